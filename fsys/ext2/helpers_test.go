package ext2

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lvdlvd/ext2walk/fsys/ext2/ext2test"
	"github.com/stvp/assert"
)

func load(t *testing.T, b *ext2test.Builder) *Image {
	t.Helper()
	img, err := Load(b.Reader(), Options{})
	assert.Nil(t, err)
	return img
}

func loadBytes(t *testing.T, data []byte, opts Options) *Image {
	t.Helper()
	img, err := Load(bytes.NewReader(data), opts)
	assert.Nil(t, err)
	return img
}

// sampleTree builds
//
//	/etc/passwd
//	/home/user/notes.txt
//	/home/user/empty
//	/a/b/c/d
//	/readme
//
// plus lost+found, and returns the inode numbers by path.
func sampleTree() (*ext2test.Builder, map[string]uint32) {
	b := ext2test.New(ext2test.Config{LostFound: true})
	ids := map[string]uint32{"/": ext2test.RootInode}
	ids["/etc"] = b.Mkdir(ext2test.RootInode, "etc", 0o755)
	ids["/etc/passwd"] = b.AddFile(ids["/etc"], "passwd", 0o644, []byte("root:x:0:0::/root:/bin/sh\n"))
	ids["/home"] = b.Mkdir(ext2test.RootInode, "home", 0o755)
	ids["/home/user"] = b.Mkdir(ids["/home"], "user", 0o700)
	ids["/home/user/notes.txt"] = b.AddFile(ids["/home/user"], "notes.txt", 0o600, []byte(strings.Repeat("note\n", 400)))
	ids["/home/user/empty"] = b.AddFile(ids["/home/user"], "empty", 0o644, nil)
	ids["/a"] = b.Mkdir(ext2test.RootInode, "a", 0o755)
	ids["/a/b"] = b.Mkdir(ids["/a"], "b", 0o755)
	ids["/a/b/c"] = b.Mkdir(ids["/a/b"], "c", 0o755)
	ids["/a/b/c/d"] = b.Mkdir(ids["/a/b/c"], "d", 0o755)
	ids["/readme"] = b.AddFile(ext2test.RootInode, "readme", 0o644, []byte("hello\n"))
	return b, ids
}
