package ext2

import (
	"path"
	"strings"

	"github.com/go-kit/kit/log/level"
)

// ScanDir calls fn for every entry of directory dir, block by block in
// pointer order, stopping once the blocks consumed cover dir.Size. fn may
// return SkipRest to stop early. Directory blocks that cannot be read are
// skipped and reported with the walk warnings.
func (img *Image) ScanDir(dir *Inode, fn func(DirEntry) error) ([]error, error) {
	var (
		consumed uint64
		skipped  []error
	)
	warnings, err := img.WalkBlocks(dir, func(blk uint32) error {
		consumed += uint64(img.blockSize)
		data, err := img.ReadBlock(blk)
		if err != nil {
			level.Warn(img.logger).Log("msg", "skipping unreadable directory block", "block", blk, "err", err)
			skipped = append(skipped, &Warning{Block: blk, Level: levelDirect, Err: err})
		} else {
			it := img.Entries(data)
			for it.Next() {
				if err := fn(it.Entry()); err != nil {
					return err
				}
			}
			if n := it.Resyncs(); n > 0 {
				level.Debug(img.logger).Log("msg", "resynchronized over malformed entries", "block", blk, "steps", n)
			}
		}
		if consumed >= uint64(dir.Size) {
			return SkipRest
		}
		return nil
	})
	return append(warnings, skipped...), err
}

// Lookup returns the inode number of the entry called name in directory
// dir. Only dir's own entries are searched; "." and ".." match whatever
// the directory stores for them.
func (img *Image) Lookup(dir *Inode, name string) (uint32, error) {
	var found uint32
	_, err := img.ScanDir(dir, func(e DirEntry) error {
		if e.Name == name {
			found = e.Inode
			return SkipRest
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, ErrNotFound
	}
	return found, nil
}

// Resolve walks p component by component from the root directory and
// returns the inode number it names. Empty components are ignored, so ""
// and "/" both name the root.
func (img *Image) Resolve(p string) (uint32, error) {
	cur := uint32(RootInode)
	walked := "/"
	for _, name := range strings.Split(p, "/") {
		if name == "" {
			continue
		}
		dir, err := img.ReadInode(cur)
		if err != nil {
			return 0, err
		}
		if !dir.IsDir() {
			return 0, pathError("resolve", walked, ErrNotDirectory)
		}
		next, err := img.Lookup(dir, name)
		walked = path.Join(walked, name)
		if err != nil {
			return 0, pathError("resolve", walked, err)
		}
		cur = next
	}
	return cur, nil
}
