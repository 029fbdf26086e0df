package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/lvdlvd/ext2walk/fsys/ext2"
)

const (
	branch     = "┣ "
	lastBranch = "┗ "
	pipe       = "┃ "
	blank      = "  "
)

// RenderTree draws root and its descendants, one line per node, followed
// by a summary that counts root itself among the directories.
func RenderTree(w io.Writer, root *ext2.Node, opts Option) error {
	bw := bufio.NewWriter(w)
	writeNode(bw, root, opts)
	renderChildren(bw, root, "", opts)
	totals := root.Totals()
	fmt.Fprintf(bw, "\n%d directories, %d files\n\n", totals.Dirs+1, totals.Files)
	return bw.Flush()
}

func renderChildren(w *bufio.Writer, n *ext2.Node, prefix string, opts Option) {
	for i, c := range n.Children {
		connector, next := branch, prefix+pipe
		if i == len(n.Children)-1 {
			connector, next = lastBranch, prefix+blank
		}
		w.WriteString(prefix)
		w.WriteString(connector)
		writeNode(w, c, opts)
		renderChildren(w, c, next, opts)
	}
}

func writeNode(w *bufio.Writer, n *ext2.Node, opts Option) {
	if opts&(OptPerms|OptSize) != 0 {
		w.WriteByte('[')
		if opts&OptPerms != 0 {
			w.WriteString(permString(n))
			if opts&OptSize != 0 {
				w.WriteByte(' ')
			}
		}
		if opts&OptSize != 0 {
			w.WriteString(strconv.FormatUint(uint64(n.Size), 10))
		}
		w.WriteString("] ")
	}
	w.WriteString(n.Name)
	switch {
	case n.BackRef:
		w.WriteString(" [cycle]")
	case n.Truncated:
		w.WriteString(" [depth limit]")
	}
	w.WriteByte('\n')
}

// permString is the type letter (d, l or -) and three rwx triplets.
func permString(n *ext2.Node) string {
	buf := make([]byte, 10)
	switch n.Mode & ext2.ModeTypeMask {
	case ext2.ModeDir:
		buf[0] = 'd'
	case ext2.ModeSymlink:
		buf[0] = 'l'
	default:
		buf[0] = '-'
	}
	const rwx = "rwx"
	for i := 0; i < 9; i++ {
		if n.Perm&(1<<uint(8-i)) != 0 {
			buf[1+i] = rwx[i%3]
		} else {
			buf[1+i] = '-'
		}
	}
	return string(buf)
}
