// ext2walk - explore ext2 filesystem images without mounting them
//
// Usage:
//
//	ext2walk tree <image> [path] [-r] [-s] [-p]
//	ext2walk print <image> <path> [-n lines]
//	ext2walk ls <image> [path] [-l]
//	ext2walk info <image>
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lvdlvd/ext2walk/cmd"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "ext2walk: %s\n", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := cmd.NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.Execute()
}
