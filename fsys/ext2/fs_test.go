package ext2

import (
	"bytes"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/lvdlvd/ext2walk/fsys"
	"github.com/lvdlvd/ext2walk/fsys/ext2/ext2test"
	"github.com/pkg/errors"
	"github.com/stvp/assert"
)

func TestFSConformance(t *testing.T) {
	b, _ := sampleTree()
	f, err := Open(b.Reader(), Options{})
	assert.Nil(t, err)
	if err := fstest.TestFS(f, "etc/passwd", "home/user/notes.txt", "home/user/empty", "a/b/c/d", "readme"); err != nil {
		t.Fatal(err)
	}
}

func TestFSReadDir(t *testing.T) {
	b, ids := sampleTree()
	f, err := Open(b.Reader(), Options{})
	assert.Nil(t, err)
	assert.Equal(t, "ext2", f.Type())

	entries, err := f.ReadDir(".")
	assert.Nil(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.Equal(t, []string{"a", "etc", "home", "lost+found", "readme"}, got)
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, fs.FileMode(0), entries[4].Type())

	info, err := entries[4].Info()
	assert.Nil(t, err)
	assert.Equal(t, uint64(ids["/readme"]), info.(fsys.FileInfo).Inode())
	assert.Equal(t, int64(6), info.Size())

	_, err = f.ReadDir("readme")
	assert.True(t, errors.Is(err, ErrNotDirectory))
	_, err = f.ReadDir("missing")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestFSReadFileThroughIndirectBlocks(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefghijklmnop"), 64*(12+256+5))
	b := ext2test.New(ext2test.Config{BlocksPerGroup: 1024})
	dir := b.Mkdir(ext2test.RootInode, "big", 0o755)
	b.AddFile(dir, "blob", 0o644, content)
	f, err := Open(b.Reader(), Options{})
	assert.Nil(t, err)

	got, err := fs.ReadFile(f, "big/blob")
	assert.Nil(t, err)
	assert.True(t, bytes.Equal(content, got))

	file, err := f.Open("big/blob")
	assert.Nil(t, err)
	ra := file.(io.ReaderAt)
	buf := make([]byte, 32)
	_, err = ra.ReadAt(buf, 1024*12-16)
	assert.Nil(t, err)
	assert.Equal(t, content[1024*12-16:1024*12+16], buf)
}

func TestFSFileExtents(t *testing.T) {
	b := ext2test.New(ext2test.Config{})
	n := b.AddFile(ext2test.RootInode, "f", 0o644, make([]byte, 3000))
	first := b.Inode(n).Block[0]
	f, err := Open(b.Reader(), Options{})
	assert.Nil(t, err)

	var mapper fsys.ExtentMapper = f
	extents, err := mapper.FileExtents("f")
	assert.Nil(t, err)
	assert.Equal(t, []fsys.Extent{{Logical: 0, Physical: int64(first) * 1024, Length: 3000}}, extents)

	_, err = f.FileExtents(".")
	assert.True(t, errors.Is(err, ErrIsDirectory))
}

func TestFSStat(t *testing.T) {
	b, ids := sampleTree()
	f, err := Open(b.Reader(), Options{})
	assert.Nil(t, err)

	info, err := f.Stat("home/user")
	assert.Nil(t, err)
	assert.Equal(t, "user", info.Name())
	assert.True(t, info.IsDir())
	assert.Equal(t, fs.ModeDir|0o700, info.Mode())
	assert.Equal(t, uint64(ids["/home/user"]), info.(fsys.FileInfo).Inode())
	_, ok := info.Sys().(*Inode)
	assert.True(t, ok)

	_, err = f.Stat("/etc")
	assert.True(t, errors.Is(err, fs.ErrInvalid))
	_, err = f.Stat("etc/passwd/x")
	assert.True(t, errors.Is(err, ErrNotDirectory))
}

func TestFSReadLink(t *testing.T) {
	b := ext2test.New(ext2test.Config{})
	b.Symlink(ext2test.RootInode, "link", "target/file")
	b.AddFile(ext2test.RootInode, "plain", 0o644, nil)
	f, err := Open(b.Reader(), Options{})
	assert.Nil(t, err)

	target, err := f.ReadLink("link")
	assert.Nil(t, err)
	assert.Equal(t, "target/file", target)

	info, err := f.Stat("link")
	assert.Nil(t, err)
	assert.Equal(t, fs.ModeSymlink, info.Mode().Type())

	_, err = f.ReadLink("plain")
	assert.True(t, errors.Is(err, fs.ErrInvalid))
}
