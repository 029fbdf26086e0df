package ext2

import (
	"fmt"
	"io/fs"

	"github.com/pkg/errors"
)

// Error kinds. Wrapped errors returned by this package match one of these
// with errors.Is.
var (
	ErrBadMagic     = errors.New("bad superblock magic")
	ErrTruncated    = errors.New("image truncated")
	ErrCorrupt      = errors.New("corrupt filesystem geometry")
	ErrIO           = errors.New("i/o failure")
	ErrInvalidInode = errors.New("invalid inode number")
	ErrNullBlock    = errors.New("block 0 requested")
	ErrNotFound     = fs.ErrNotExist
	ErrNotDirectory = errors.New("not a directory")
	ErrIsDirectory  = errors.New("is a directory")
	ErrCycle        = errors.New("directory refers back to an ancestor")
	ErrDepthLimit   = errors.New("directory nesting too deep")
)

// ImageError reports a failure while binding an image: reading or
// validating the superblock or the group descriptor table.
type ImageError struct {
	Op  string
	Err error
}

func (e *ImageError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ImageError) Unwrap() error { return e.Err }

// LookupError reports a failure to resolve an inode number to its record.
type LookupError struct {
	Inode uint32
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("inode %d: %v", e.Inode, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IOError is a failed or short positional read against the image.
type IOError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s at offset %d: short read", e.Op, e.Offset)
	}
	return fmt.Sprintf("%s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes every IOError match ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

func pathError(op, path string, err error) error {
	return &fs.PathError{Op: op, Path: path, Err: err}
}
