package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lvdlvd/ext2walk/detect"
	"github.com/lvdlvd/ext2walk/fsys/ext2"
	"github.com/lvdlvd/ext2walk/fsys/ext2/ext2test"
	"github.com/pkg/errors"
	"github.com/stvp/assert"
)

func sampleBuilder() *ext2test.Builder {
	b := ext2test.New(ext2test.Config{LostFound: true, RevLevel: 1, VolumeName: "sample"})
	docs := b.Mkdir(ext2test.RootInode, "docs", 0o755)
	b.AddFile(docs, "a.txt", 0o644, []byte("abc"))
	b.AddFile(ext2test.RootInode, "readme", 0o600, []byte("one\ntwo\nthree\n"))
	b.Mkdir(ext2test.RootInode, "empty", 0o755)
	return b
}

func sampleImage(t *testing.T) *ext2.Image {
	t.Helper()
	img, err := ext2.Load(sampleBuilder().Reader(), ext2.Options{})
	assert.Nil(t, err)
	return img
}

func TestTreeShallow(t *testing.T) {
	var out bytes.Buffer
	err := Tree(sampleImage(t), Command{Path: "/"}, &out)
	assert.Nil(t, err)
	assert.Equal(t, "/\n"+
		"┣ docs\n"+
		"┣ readme\n"+
		"┗ empty\n"+
		"\n3 directories, 1 files\n\n", out.String())
}

func TestTreeRecursiveWithDetails(t *testing.T) {
	var out bytes.Buffer
	err := Tree(sampleImage(t), Command{Path: "/", Options: OptRecursive | OptSize | OptPerms}, &out)
	assert.Nil(t, err)
	assert.Equal(t, "[drwxr-xr-x 1024] /\n"+
		"┣ [drwxr-xr-x 1024] docs\n"+
		"┃ ┗ [-rw-r--r-- 3] a.txt\n"+
		"┣ [-rw------- 14] readme\n"+
		"┗ [drwxr-xr-x 1024] empty\n"+
		"\n3 directories, 2 files\n\n", out.String())
}

func TestTreeSubdirectory(t *testing.T) {
	var out bytes.Buffer
	err := Tree(sampleImage(t), Command{Path: "docs", Options: OptSize}, &out)
	assert.Nil(t, err)
	assert.Equal(t, "[1024] docs\n┗ [3] a.txt\n\n1 directories, 1 files\n\n", out.String())

	err = Tree(sampleImage(t), Command{Path: "/readme"}, &out)
	assert.True(t, errors.Is(err, ext2.ErrNotDirectory))
	err = Tree(sampleImage(t), Command{Path: "/nope"}, &out)
	assert.True(t, errors.Is(err, ext2.ErrNotFound))
}

func TestRenderAnnotatesAnomalies(t *testing.T) {
	b := ext2test.New(ext2test.Config{})
	d := b.Mkdir(ext2test.RootInode, "d", 0o755)
	b.Link(d, "loop", ext2test.RootInode, ext2test.FileTypeDir)
	img, err := ext2.Load(b.Reader(), ext2.Options{})
	assert.Nil(t, err)

	var out bytes.Buffer
	assert.Nil(t, Tree(img, Command{Path: "/", Options: OptRecursive}, &out))
	assert.Equal(t, "/\n┗ d\n  ┗ loop [cycle]\n\n3 directories, 0 files\n\n", out.String())
}

func TestPrint(t *testing.T) {
	img := sampleImage(t)
	tests := []struct {
		path     string
		limit    int
		expected string
	}{
		{"/docs/a.txt", 0, "abc"},
		{"readme", 0, "one\ntwo\nthree\n"},
		{"readme", 2, "one\ntwo\n"},
		{"/docs/../readme", 1, "one\n"},
		{"./docs/./a.txt", 10, "abc"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		err := Print(img, Command{Path: tt.path, LineLimit: tt.limit}, &out)
		assert.Nil(t, err, tt.path)
		assert.Equal(t, tt.expected, out.String(), tt.path)
	}

	var out bytes.Buffer
	err := Print(img, Command{Path: "/docs"}, &out)
	assert.True(t, errors.Is(err, ext2.ErrIsDirectory))
	err = Print(img, Command{Path: "/docs/b.txt"}, &out)
	assert.True(t, errors.Is(err, ext2.ErrNotFound))
	err = Print(img, Command{Path: "/lost+found"}, &out)
	assert.True(t, errors.Is(err, ext2.ErrNotFound))
}

func TestLs(t *testing.T) {
	b := sampleBuilder()
	b.Symlink(ext2test.RootInode, "link", "docs/a.txt")
	f, err := ext2.Open(b.Reader(), ext2.Options{})
	assert.Nil(t, err)

	var out bytes.Buffer
	assert.Nil(t, Ls(f, "/", &out, LsOptions{}))
	assert.Equal(t, "docs/\nempty/\nlink\nlost+found/\nreadme\n", out.String())

	out.Reset()
	assert.Nil(t, Ls(f, "/docs/a.txt", &out, LsOptions{}))
	assert.Equal(t, "a.txt\n", out.String())

	out.Reset()
	assert.Nil(t, Ls(f, "/", &out, LsOptions{Long: true}))
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Equal(t, 5, len(lines))
	assert.True(t, strings.Contains(lines[0], "drwxr-xr-x"), lines[0])
	assert.True(t, strings.HasSuffix(lines[2], "link -> docs/a.txt"), lines[2])
	assert.True(t, strings.Contains(lines[4], "-rw-------"), lines[4])

	assert.True(t, Ls(f, "/missing", &out, LsOptions{}) != nil)
}

func TestInfo(t *testing.T) {
	var out bytes.Buffer
	assert.Nil(t, Info(sampleImage(t), detect.Ext2, &out))
	s := out.String()
	assert.True(t, strings.Contains(s, "Filesystem type:  ext2\n"), s)
	assert.True(t, strings.Contains(s, "Volume name:      sample\n"), s)
	assert.True(t, strings.Contains(s, "Block size:       1024\n"), s)
	assert.True(t, strings.Contains(s, "Ignored features: none\n"), s)
}

func TestOptionString(t *testing.T) {
	assert.Equal(t, "", Option(0).String())
	assert.Equal(t, "recursive|perms", (OptRecursive | OptPerms).String())
}

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	assert.Nil(t, os.WriteFile(path, data, 0o644))
	return path
}

func execute(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	path := writeImage(t, sampleBuilder().Bytes())

	out, _, err := execute("tree", path, "-r")
	assert.Nil(t, err)
	assert.True(t, strings.HasSuffix(out, "\n3 directories, 2 files\n\n"), out)

	out, _, err = execute("print", path, "/readme", "-n", "2")
	assert.Nil(t, err)
	assert.Equal(t, "one\ntwo\n", out)

	out, _, err = execute("ls", path, "docs")
	assert.Nil(t, err)
	assert.Equal(t, "a.txt\n", out)

	out, _, err = execute("info", path)
	assert.Nil(t, err)
	assert.True(t, strings.HasPrefix(out, "Filesystem type:  ext2\n"), out)

	_, _, err = execute("print", path, "/readme", "-n", "-1")
	assert.True(t, err != nil)
	_, _, err = execute("--log-level", "loud", "info", path)
	assert.True(t, err != nil)
}

func TestRootCommandBadImage(t *testing.T) {
	path := writeImage(t, make([]byte, 8192))
	_, _, err := execute("info", path)
	assert.True(t, errors.Is(err, ext2.ErrBadMagic))

	_, _, err = execute("info", filepath.Join(t.TempDir(), "absent.img"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRootCommandLogsWarnings(t *testing.T) {
	b := ext2test.New(ext2test.Config{})
	d := b.Mkdir(ext2test.RootInode, "d", 0o755)
	b.Link(d, "loop", d, ext2test.FileTypeDir)
	path := writeImage(t, b.Bytes())

	_, stderr, err := execute("tree", path, "-r")
	assert.Nil(t, err)
	assert.True(t, strings.Contains(stderr, "level=warn"), stderr)
	assert.True(t, strings.Contains(stderr, "not expanding directory"), stderr)

	_, stderr, err = execute("--log-level", "error", "tree", path, "-r")
	assert.Nil(t, err)
	assert.Equal(t, "", stderr)
}
