package cmd

import (
	"io"
	"io/fs"

	"github.com/lvdlvd/ext2walk/fsys/ext2"
)

// Tree lists the directory at c.Path. Only its direct children are shown
// unless OptRecursive is set.
func Tree(img *ext2.Image, c Command, out io.Writer) error {
	name := c.Path
	if name == "" {
		name = "/"
	}
	n, err := img.Resolve(c.Path)
	if err != nil {
		return err
	}
	ino, err := img.ReadInode(n)
	if err != nil {
		return err
	}
	if !ino.IsDir() {
		return &fs.PathError{Op: "tree", Path: name, Err: ext2.ErrNotDirectory}
	}
	tree, err := img.BuildTree(n, name, c.Options&OptRecursive != 0)
	if err != nil {
		return err
	}
	return RenderTree(out, tree.Root, c.Options)
}
