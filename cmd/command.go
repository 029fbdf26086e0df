// Package cmd implements the ext2walk commands. Each command takes a bound
// image (or its io/fs view) plus a Command and writes plain text.
package cmd

import "strings"

// Option selects optional parts of a command's output.
type Option uint8

const (
	OptRecursive Option = 1 << iota // descend into subdirectories
	OptSize                         // show inode sizes
	OptPerms                        // show permission strings
)

func (o Option) String() string {
	var parts []string
	if o&OptRecursive != 0 {
		parts = append(parts, "recursive")
	}
	if o&OptSize != 0 {
		parts = append(parts, "size")
	}
	if o&OptPerms != 0 {
		parts = append(parts, "perms")
	}
	return strings.Join(parts, "|")
}

// Command is one parsed request.
type Command struct {
	Path    string
	Options Option
	// LineLimit bounds print output to its first LineLimit lines when > 0.
	LineLimit int
}
