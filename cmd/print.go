package cmd

import (
	"io"
	"io/fs"

	"github.com/lvdlvd/ext2walk/fsys/ext2"
)

// Print writes the content of the file at c.Path, or its first c.LineLimit
// lines. The path is looked up in a tree built from the root, so "." and
// ".." behave as they do for a shell, and entries the tree leaves out
// (lost+found) cannot be printed.
func Print(img *ext2.Image, c Command, out io.Writer) error {
	tree, err := img.BuildTree(ext2.RootInode, "/", true)
	if err != nil {
		return err
	}
	node, err := tree.Root.Find(c.Path)
	if err != nil {
		return err
	}
	if node.IsDir() {
		return &fs.PathError{Op: "print", Path: c.Path, Err: ext2.ErrIsDirectory}
	}
	ino, err := img.ReadInode(node.Inode)
	if err != nil {
		return err
	}
	_, err = img.Stream(out, ino, c.LineLimit)
	return err
}
