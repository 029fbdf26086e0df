package ext2

import (
	"github.com/go-kit/kit/log/level"
)

// ReadBlock returns the raw contents of block n. Block 0 is the null
// pointer sentinel and is refused; callers filter it out before asking.
// The returned slice may be shared with the read cache and must not be
// modified.
func (img *Image) ReadBlock(n uint32) ([]byte, error) {
	if n == 0 {
		return nil, ErrNullBlock
	}
	if img.cache != nil {
		if v, err := img.cache.Get(n); err == nil {
			return v.([]byte), nil
		}
	}

	data := make([]byte, img.blockSize)
	if err := img.readAt("read block", data, img.blockOffset(n)); err != nil {
		level.Debug(img.logger).Log("msg", "block read failed", "block", n, "err", err)
		return nil, err
	}
	if img.cache != nil {
		img.cache.Set(n, data)
	}
	return data, nil
}

func (img *Image) blockOffset(n uint32) int64 {
	return int64(n) * int64(img.blockSize)
}

// plausibleBlock reports whether n can name a block inside the filesystem.
func (img *Image) plausibleBlock(n uint32) bool {
	return n != 0 && n < img.sb.BlocksCount
}
