package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/lvdlvd/ext2walk/fsys"
)

// LsOptions controls ls behavior
type LsOptions struct {
	Long bool // Long format (-l)
}

// linkReader is implemented by filesystems that can report symlink targets.
type linkReader interface {
	ReadLink(name string) (string, error)
}

// Ls lists the contents of a path in the filesystem.
// If the path is a file, it shows file information.
// If the path is a directory, it lists its contents.
func Ls(filesystem fsys.FS, fsPath string, out io.Writer, opts LsOptions) error {
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return listDirectory(filesystem, fsPath, out, opts)
	}
	if opts.Long {
		printLongFormat(filesystem, fsPath, info, out)
	} else {
		fmt.Fprintln(out, info.Name())
	}
	return nil
}

// normalizePath maps a shell style path onto an io/fs name.
func normalizePath(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "."
	}
	return p
}

func listDirectory(filesystem fsys.FS, dirPath string, out io.Writer, opts LsOptions) error {
	entries, err := fs.ReadDir(filesystem, dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if !opts.Long {
			if entry.IsDir() {
				name += "/"
			}
			fmt.Fprintln(out, name)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(out, "%8s %-10s %12s %s %s\n", "?", "??????????", "?", "????????????", name)
			continue
		}
		printLongFormat(filesystem, path.Join(dirPath, name), info, out)
	}
	return nil
}

func printLongFormat(filesystem fsys.FS, name string, info fs.FileInfo, out io.Writer) {
	var inode string
	if fi, ok := info.(fsys.FileInfo); ok {
		inode = fmt.Sprintf("%8d ", fi.Inode())
	}
	line := fmt.Sprintf("%s%s %12d %s %s", inode, info.Mode(), info.Size(), info.ModTime().UTC().Format("Jan _2 15:04"), info.Name())
	if lr, ok := filesystem.(linkReader); ok && info.Mode()&fs.ModeSymlink != 0 {
		if target, err := lr.ReadLink(name); err == nil {
			line += " -> " + target
		}
	}
	fmt.Fprintln(out, line)
}
