package ext2

import (
	"encoding/binary"
	"fmt"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Indirection levels of a block pointer.
const (
	levelDirect = iota
	levelSingle
	levelDouble
	levelTriple
)

var levelNames = [...]string{"direct", "single-indirect", "double-indirect", "triple-indirect"}

// WalkFunc is called for every non-zero leaf data block of an inode.
// Returning SkipRest ends the walk early without error; any other error
// aborts the walk and is returned by WalkBlocks.
type WalkFunc func(block uint32) error

// SkipRest is returned by a WalkFunc to stop visiting further blocks.
var SkipRest = errors.New("skip remaining blocks")

// Warning is a soft failure met while walking: a subtree that could not be
// followed. The walk carries on with the next sibling pointer.
type Warning struct {
	Block uint32
	Level int
	Err   error
}

func (w *Warning) Error() string {
	return fmt.Sprintf("%s block %d: %v", levelNames[w.Level], w.Block, w.Err)
}

func (w *Warning) Unwrap() error { return w.Err }

// errImplausibleBlock marks a pointer past the end of the filesystem.
var errImplausibleBlock = errors.New("block number out of range")

// WalkBlocks calls fn for every leaf block referenced by ino, in pointer
// order: the twelve direct slots, then the single, double and triple
// indirect trees, each expanded depth first. Zero pointers are skipped at
// every level. Pointers at or past the block count are skipped without a
// read; indirection blocks that cannot be read drop only their own
// subtree. Both are reported in the returned warnings.
func (img *Image) WalkBlocks(ino *Inode, fn WalkFunc) ([]error, error) {
	w := &walker{img: img, fn: fn, ptrsPerBlock: int(img.blockSize / 4)}
	for slot, blk := range ino.Block {
		lvl := levelDirect
		if slot >= NumDirect {
			lvl = slot - NumDirect + levelSingle
		}
		if err := w.visit(blk, lvl); err != nil {
			if err == SkipRest {
				return w.warnings, nil
			}
			return w.warnings, err
		}
	}
	return w.warnings, nil
}

type walker struct {
	img          *Image
	fn           WalkFunc
	ptrsPerBlock int
	warnings     []error
}

// visit handles one pointer at the given indirection level. Level 0 is a
// leaf; level k > 0 is a block of pointers at level k-1.
func (w *walker) visit(blk uint32, lvl int) error {
	if blk == 0 {
		return nil
	}
	if !w.img.plausibleBlock(blk) {
		w.warn(blk, lvl, errImplausibleBlock)
		return nil
	}
	if lvl == levelDirect {
		return w.fn(blk)
	}

	data, err := w.img.ReadBlock(blk)
	if err != nil {
		w.warn(blk, lvl, err)
		return nil
	}
	for i := 0; i < w.ptrsPerBlock; i++ {
		ptr := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		if err := w.visit(ptr, lvl-1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) warn(blk uint32, lvl int, err error) {
	warning := &Warning{Block: blk, Level: lvl, Err: err}
	level.Warn(w.img.logger).Log("msg", "skipping unreadable block subtree", "block", blk, "level", levelNames[lvl], "err", err)
	w.warnings = append(w.warnings, warning)
}
