package ext2

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/go-kit/kit/log/level"
)

// Node is one entry of an in-memory directory tree. A node owns its
// children; their order is the on-disk entry order.
type Node struct {
	Name  string
	Inode uint32
	Mode  uint16
	Size  uint32
	Perm  uint16

	Children []*Node

	// BackRef is set on a directory that is already open on the path
	// from the root to this node. It is not expanded.
	BackRef bool
	// Truncated is set on a directory left unexpanded because the
	// depth limit was reached.
	Truncated bool
}

// IsDir reports whether the node's mode is a directory.
func (n *Node) IsDir() bool { return n.Mode&ModeTypeMask == ModeDir }

// FileMode converts the node's raw mode into an io/fs mode.
func (n *Node) FileMode() fs.FileMode { return fileMode(n.Mode) }

// Counts tallies directories and non-directories.
type Counts struct {
	Dirs  int
	Files int
}

// Totals counts every descendant of n, transitively.
func (n *Node) Totals() Counts {
	var c Counts
	for _, child := range n.Children {
		if child.IsDir() {
			c.Dirs++
		} else {
			c.Files++
		}
		sub := child.Totals()
		c.Dirs += sub.Dirs
		c.Files += sub.Files
	}
	return c
}

// Child returns the direct child called name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Find follows p through the already built tree below n. "." is ignored
// and ".." steps back to the parent (staying put at n); nothing is read
// from disk.
func (n *Node) Find(p string) (*Node, error) {
	stack := []*Node{n}
	walked := ""
	for _, name := range strings.Split(p, "/") {
		cur := stack[len(stack)-1]
		switch name {
		case "", ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			walked = path.Join(walked, name)
			continue
		}
		if !cur.IsDir() {
			return nil, pathError("find", walked, ErrNotDirectory)
		}
		walked = path.Join(walked, name)
		child := cur.Child(name)
		if child == nil {
			return nil, pathError("find", walked, ErrNotFound)
		}
		stack = append(stack, child)
	}
	return stack[len(stack)-1], nil
}

// Anomaly is a structural problem found while building a tree.
type Anomaly struct {
	Name  string
	Inode uint32
	Err   error
}

func (a *Anomaly) Error() string {
	return fmt.Sprintf("%s (inode %d): %v", a.Name, a.Inode, a.Err)
}

func (a *Anomaly) Unwrap() error { return a.Err }

// Tree is the result of BuildTree.
type Tree struct {
	Root *Node
	// Counts covers the root's direct children only; use Root.Totals for
	// the whole tree.
	Counts Counts
	// Warnings collects walk warnings and anomalies from every directory
	// visited.
	Warnings []error
}

// BuildTree materializes directory dirIno as a tree whose root is called
// name. Entries ".", ".." and "lost+found" are left out. Subdirectories are
// expanded when recursive is set, refusing any inode already open on the
// current descent path and stopping at the configured depth limit. An entry
// whose inode cannot be read is dropped.
func (img *Image) BuildTree(dirIno uint32, name string, recursive bool) (*Tree, error) {
	ino, err := img.ReadInode(dirIno)
	if err != nil {
		return nil, err
	}
	if !ino.IsDir() {
		return nil, pathError("tree", name, ErrNotDirectory)
	}
	root := &Node{Name: name, Inode: dirIno, Mode: ino.Mode, Size: ino.Size, Perm: ino.Perm()}
	b := &treeBuilder{img: img, recursive: recursive, open: map[uint32]bool{}}
	counts := b.expand(root, ino, 0)
	return &Tree{Root: root, Counts: counts, Warnings: b.warnings}, nil
}

type treeBuilder struct {
	img       *Image
	recursive bool
	open      map[uint32]bool
	warnings  []error
}

func (b *treeBuilder) expand(node *Node, dir *Inode, depth int) Counts {
	var counts Counts
	b.open[node.Inode] = true
	defer delete(b.open, node.Inode)

	warnings, _ := b.img.ScanDir(dir, func(e DirEntry) error {
		switch e.Name {
		case ".", "..", "lost+found":
			return nil
		}
		ino, err := b.img.ReadInode(e.Inode)
		if err != nil {
			level.Debug(b.img.logger).Log("msg", "dropping entry with unreadable inode", "name", e.Name, "inode", e.Inode, "err", err)
			return nil
		}
		child := &Node{Name: e.Name, Inode: e.Inode, Mode: ino.Mode, Size: ino.Size, Perm: ino.Perm()}
		node.Children = append(node.Children, child)
		if !ino.IsDir() {
			counts.Files++
			return nil
		}
		counts.Dirs++
		if b.recursive {
			b.descend(child, ino, depth+1)
		}
		return nil
	})
	b.warnings = append(b.warnings, warnings...)
	return counts
}

func (b *treeBuilder) descend(node *Node, dir *Inode, depth int) {
	switch {
	case b.open[node.Inode]:
		node.BackRef = true
		b.anomaly(node, ErrCycle)
	case depth > b.img.maxDepth:
		node.Truncated = true
		b.anomaly(node, ErrDepthLimit)
	default:
		b.expand(node, dir, depth)
	}
}

func (b *treeBuilder) anomaly(node *Node, err error) {
	level.Warn(b.img.logger).Log("msg", "not expanding directory", "name", node.Name, "inode", node.Inode, "err", err)
	b.warnings = append(b.warnings, &Anomaly{Name: node.Name, Inode: node.Inode, Err: err})
}
