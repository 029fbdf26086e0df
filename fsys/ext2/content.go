package ext2

import (
	"bytes"
	"io"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Streamed reports what Stream wrote.
type Streamed struct {
	Bytes    int64
	Lines    int
	Warnings []error
}

// Stream writes the data of ino to w, leaf block by leaf block, never past
// ino.Size. With lineLimit > 0 it stops right after the lineLimit-th
// newline. Unreadable data blocks are skipped and reported as warnings;
// a failed write aborts the stream.
func (img *Image) Stream(w io.Writer, ino *Inode, lineLimit int) (*Streamed, error) {
	var (
		res      Streamed
		consumed int64
		skipped  []error
		size     = int64(ino.Size)
	)
	warnings, err := img.WalkBlocks(ino, func(blk uint32) error {
		if consumed >= size {
			return SkipRest
		}
		data, err := img.ReadBlock(blk)
		if err != nil {
			level.Warn(img.logger).Log("msg", "skipping unreadable data block", "block", blk, "err", err)
			skipped = append(skipped, &Warning{Block: blk, Level: levelDirect, Err: err})
			return nil
		}
		if remaining := size - consumed; int64(len(data)) > remaining {
			data = data[:remaining]
		}

		done := false
		if lineLimit > 0 {
			data, done = cutLines(data, lineLimit-res.Lines, &res.Lines)
		}
		n, err := w.Write(data)
		res.Bytes += int64(n)
		if err != nil {
			return errors.Wrap(err, "write content")
		}
		consumed += int64(len(data))
		if done || consumed >= size {
			return SkipRest
		}
		return nil
	})
	res.Warnings = append(warnings, skipped...)
	if err != nil {
		return &res, err
	}
	return &res, nil
}

// cutLines returns the prefix of data holding at most want newlines,
// ending right after the last one when want is reached.
func cutLines(data []byte, want int, lines *int) ([]byte, bool) {
	end := 0
	for want > 0 {
		i := bytes.IndexByte(data[end:], '\n')
		if i < 0 {
			return data, false
		}
		end += i + 1
		*lines++
		want--
	}
	return data[:end], true
}
