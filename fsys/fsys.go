// Package fsys holds the io/fs facing types shared by image explorers: the
// filesystem interface, extended file info, and a reader that serves a
// file's bytes straight from its extents in the image.
package fsys

import (
	"io"
	"io/fs"
	"sort"

	"github.com/pkg/errors"
)

// FS is a read-only view of a filesystem image.
type FS interface {
	fs.FS
	fs.ReadDirFS
	fs.StatFS

	// Type names the on-disk format, e.g. "ext2".
	Type() string

	// Close releases whatever the view holds. The image itself stays open.
	Close() error
}

// FileInfo is fs.FileInfo plus the inode number.
type FileInfo interface {
	fs.FileInfo
	Inode() uint64
}

// Extent maps Length bytes at file offset Logical to image offset Physical.
type Extent struct {
	Logical  int64
	Physical int64
	Length   int64
}

// End is one past the last logical byte covered.
func (e Extent) End() int64 { return e.Logical + e.Length }

// ExtentMapper reports where a file's bytes live in the image.
type ExtentMapper interface {
	// FileExtents returns the extents of the regular file at name, sorted by
	// logical offset.
	FileExtents(name string) ([]Extent, error)
}

// Coalesce merges extents that are adjacent both logically and physically.
// The input must be sorted by logical offset.
func Coalesce(extents []Extent) []Extent {
	var out []Extent
	for _, e := range extents {
		if e.Length <= 0 {
			continue
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.End() == e.Logical && last.Physical+last.Length == e.Physical {
				last.Length += e.Length
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// ExtentReaderAt reads a file through its extent list. Bytes not covered by
// any extent read as zeros.
type ExtentReaderAt struct {
	r       io.ReaderAt
	extents []Extent
	size    int64
}

// NewExtentReaderAt returns a reader of size bytes over r. extents need not
// be sorted.
func NewExtentReaderAt(r io.ReaderAt, extents []Extent, size int64) *ExtentReaderAt {
	sorted := make([]Extent, len(extents))
	copy(sorted, extents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Logical < sorted[j].Logical })
	return &ExtentReaderAt{r: r, extents: sorted, size: size}
}

// Size is the logical file size.
func (e *ExtentReaderAt) Size() int64 { return e.size }

// Extents returns the sorted extent list. The slice must not be modified.
func (e *ExtentReaderAt) Extents() []Extent { return e.extents }

// ReadAt implements io.ReaderAt.
func (e *ExtentReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Errorf("negative offset %d", off)
	}
	if off >= e.size {
		return 0, io.EOF
	}
	short := false
	if rem := e.size - off; int64(len(p)) > rem {
		p = p[:rem]
		short = true
	}

	done := 0
	for done < len(p) {
		pos := off + int64(done)
		want := p[done:]
		i := e.find(pos)
		if i < 0 {
			// hole up to the next extent
			gap := e.nextStart(pos) - pos
			if gap > int64(len(want)) {
				gap = int64(len(want))
			}
			for j := range want[:gap] {
				want[j] = 0
			}
			done += int(gap)
			continue
		}
		ext := e.extents[i]
		within := pos - ext.Logical
		if avail := ext.Length - within; int64(len(want)) > avail {
			want = want[:avail]
		}
		n, err := e.r.ReadAt(want, ext.Physical+within)
		done += n
		if n < len(want) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return done, err
		}
	}
	if short {
		return done, io.EOF
	}
	return done, nil
}

// find returns the index of the extent covering off, or -1.
func (e *ExtentReaderAt) find(off int64) int {
	i := sort.Search(len(e.extents), func(i int) bool { return e.extents[i].End() > off })
	if i < len(e.extents) && e.extents[i].Logical <= off {
		return i
	}
	return -1
}

func (e *ExtentReaderAt) nextStart(off int64) int64 {
	i := sort.Search(len(e.extents), func(i int) bool { return e.extents[i].Logical > off })
	if i < len(e.extents) {
		return e.extents[i].Logical
	}
	return e.size
}
