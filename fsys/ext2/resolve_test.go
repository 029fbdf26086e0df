package ext2

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/lvdlvd/ext2walk/fsys/ext2/ext2test"
	"github.com/pkg/errors"
	"github.com/stvp/assert"
)

func TestResolve(t *testing.T) {
	b, ids := sampleTree()
	img := load(t, b)

	for p, want := range ids {
		got, err := img.Resolve(p)
		assert.Nil(t, err, p)
		assert.Equal(t, want, got, p)
	}

	tests := []struct {
		path string
		want string
	}{
		{"", "/"},
		{"//", "/"},
		{"etc/passwd", "/etc/passwd"},
		{"//home//user/notes.txt/", "/home/user/notes.txt"},
		{"/a/b/../b/c", "/a/b/c"},
		{"/a/./b", "/a/b"},
	}
	for _, tt := range tests {
		got, err := img.Resolve(tt.path)
		assert.Nil(t, err, tt.path)
		assert.Equal(t, ids[tt.want], got, tt.path)
	}
}

func TestResolveErrors(t *testing.T) {
	b, _ := sampleTree()
	img := load(t, b)

	_, err := img.Resolve("/etc/shadow")
	assert.True(t, errors.Is(err, ErrNotFound))
	var pe *fs.PathError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "/etc/shadow", pe.Path)

	_, err = img.Resolve("/etc/passwd/x")
	assert.True(t, errors.Is(err, ErrNotDirectory))
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "/etc/passwd", pe.Path)

	_, err = img.Resolve("/nope/deeper")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLookupSpansBlocks(t *testing.T) {
	b := ext2test.New(ext2test.Config{InodesPerGroup: 256})
	dir := b.Mkdir(ext2test.RootInode, "many", 0o755)
	want := map[string]uint32{}
	for i := 0; i < 120; i++ {
		name := fmt.Sprintf("file-with-a-fairly-long-name-%03d", i)
		want[name] = b.AddFile(dir, name, 0o644, nil)
	}
	assert.True(t, len(b.DirBlocks(dir)) > 2)
	img := load(t, b)

	d, err := img.ReadInode(dir)
	assert.Nil(t, err)
	for name, n := range want {
		got, err := img.Lookup(d, name)
		assert.Nil(t, err, name)
		assert.Equal(t, n, got, name)
	}
	got, err := img.Lookup(d, "..")
	assert.Nil(t, err)
	assert.Equal(t, uint32(RootInode), got)
}

func TestScanDirStopsAtSize(t *testing.T) {
	b := ext2test.New(ext2test.Config{})
	dir := b.Mkdir(ext2test.RootInode, "d", 0o755)
	b.AddFile(dir, "kept", 0o644, nil)
	// a second block the inode size does not cover
	extra := b.AllocBlock()
	ext2test.PutDirent(b.Block(extra), 0, 11, 1024, ext2test.FileTypeRegular, "stale")
	b.Inode(dir).Block[1] = extra
	img := load(t, b)

	d, _ := img.ReadInode(dir)
	var got []string
	warnings, err := img.ScanDir(d, func(e DirEntry) error {
		got = append(got, e.Name)
		return nil
	})
	assert.Nil(t, err)
	assert.Equal(t, 0, len(warnings))
	assert.Equal(t, []string{".", "..", "kept"}, got)
}
