// Package ext2 implements a read-only explorer for ext2 filesystem images.
//
// It decodes the on-disk structures directly (superblock, group
// descriptors, inodes, block pointers, directory entries) from an
// io.ReaderAt; nothing is mounted and no OS filesystem driver is involved.
package ext2

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/bluele/gcache"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	superblockOffset = 1024
	superblockSize   = 1024
	groupDescSize    = 32
	extMagic         = 0xEF53

	// RootInode is the inode number of the root directory.
	RootInode = 2

	defaultInodeSize = 128
	maxLogBlockSize  = 6 // 64 KiB blocks
	maxGroups        = 1 << 20

	featureCompatHasJournal  = 0x0004
	featureCompatDirIndex    = 0x0020
	featureIncompatExtents   = 0x0040
	featureIncompat64Bit     = 0x0080
	featureIncompatFlexBG    = 0x0200
	featureIncompatInlineDat = 0x8000
)

// Defaults for Options fields left at zero.
const (
	DefaultCacheBlocks = 256
	DefaultMaxDepth    = 1024
)

// Superblock holds the fields of the on-disk superblock this package uses.
type Superblock struct {
	InodesCount     uint32
	BlocksCount     uint32
	FreeBlocksCount uint32
	FreeInodesCount uint32
	FirstDataBlock  uint32
	LogBlockSize    uint32
	BlocksPerGroup  uint32
	InodesPerGroup  uint32
	Magic           uint16
	State           uint16
	RevLevel        uint32
	FirstIno        uint32
	InodeSize       uint16
	FeatureCompat   uint32
	FeatureIncompat uint32
	FeatureROCompat uint32
	RawUUID         [16]byte
	RawVolumeName   [16]byte
}

func decodeSuperblock(data []byte) Superblock {
	le := binary.LittleEndian
	sb := Superblock{
		InodesCount:     le.Uint32(data[0x00:0x04]),
		BlocksCount:     le.Uint32(data[0x04:0x08]),
		FreeBlocksCount: le.Uint32(data[0x0C:0x10]),
		FreeInodesCount: le.Uint32(data[0x10:0x14]),
		FirstDataBlock:  le.Uint32(data[0x14:0x18]),
		LogBlockSize:    le.Uint32(data[0x18:0x1C]),
		BlocksPerGroup:  le.Uint32(data[0x20:0x24]),
		InodesPerGroup:  le.Uint32(data[0x28:0x2C]),
		Magic:           le.Uint16(data[0x38:0x3A]),
		State:           le.Uint16(data[0x3A:0x3C]),
		RevLevel:        le.Uint32(data[0x4C:0x50]),
		FirstIno:        le.Uint32(data[0x54:0x58]),
		InodeSize:       le.Uint16(data[0x58:0x5A]),
		FeatureCompat:   le.Uint32(data[0x5C:0x60]),
		FeatureIncompat: le.Uint32(data[0x60:0x64]),
		FeatureROCompat: le.Uint32(data[0x64:0x68]),
	}
	copy(sb.RawUUID[:], data[0x68:0x78])
	copy(sb.RawVolumeName[:], data[0x78:0x88])
	return sb
}

// BlockSize is 1024 << LogBlockSize.
func (sb *Superblock) BlockSize() uint32 { return 1024 << sb.LogBlockSize }

// GroupCount is ceil(BlocksCount / BlocksPerGroup).
func (sb *Superblock) GroupCount() uint32 {
	return uint32((uint64(sb.BlocksCount) + uint64(sb.BlocksPerGroup) - 1) / uint64(sb.BlocksPerGroup))
}

// InodeRecordSize is the stride of the inode table: 128 unless a dynamic
// revision superblock declares its own size.
func (sb *Superblock) InodeRecordSize() uint32 {
	if sb.RevLevel > 0 && sb.InodeSize > 0 {
		return uint32(sb.InodeSize)
	}
	return defaultInodeSize
}

// UUID returns the volume UUID.
func (sb *Superblock) UUID() uuid.UUID { return uuid.UUID(sb.RawUUID) }

// VolumeName returns the volume label without trailing NULs.
func (sb *Superblock) VolumeName() string {
	name := sb.RawVolumeName[:]
	for i, c := range name {
		if c == 0 {
			return string(name[:i])
		}
	}
	return string(name)
}

// UnsupportedFeatures names the feature flags set on this filesystem that
// the explorer ignores. The image is still readable through block pointers
// unless extents are in use.
func (sb *Superblock) UnsupportedFeatures() []string {
	var names []string
	if sb.FeatureCompat&featureCompatHasJournal != 0 {
		names = append(names, "has_journal")
	}
	if sb.FeatureCompat&featureCompatDirIndex != 0 {
		names = append(names, "dir_index")
	}
	if sb.FeatureIncompat&featureIncompatExtents != 0 {
		names = append(names, "extents")
	}
	if sb.FeatureIncompat&featureIncompat64Bit != 0 {
		names = append(names, "64bit")
	}
	if sb.FeatureIncompat&featureIncompatFlexBG != 0 {
		names = append(names, "flex_bg")
	}
	if sb.FeatureIncompat&featureIncompatInlineDat != 0 {
		names = append(names, "inline_data")
	}
	return names
}

func (sb *Superblock) validate() error {
	switch {
	case sb.Magic != extMagic:
		return errors.Wrapf(ErrBadMagic, "magic=0x%04x", sb.Magic)
	case sb.LogBlockSize > maxLogBlockSize:
		return errors.Wrapf(ErrCorrupt, "log_block_size=%d", sb.LogBlockSize)
	case sb.BlocksPerGroup == 0 || sb.InodesPerGroup == 0:
		return errors.Wrap(ErrCorrupt, "zero blocks or inodes per group")
	case sb.BlocksCount == 0 || sb.InodesCount == 0:
		return errors.Wrap(ErrCorrupt, "empty filesystem")
	case sb.GroupCount() > maxGroups:
		return errors.Wrapf(ErrCorrupt, "%d block groups", sb.GroupCount())
	}
	return nil
}

// GroupDescriptor is one entry of the block group descriptor table.
type GroupDescriptor struct {
	BlockBitmap     uint32
	InodeBitmap     uint32
	InodeTable      uint32
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
}

func decodeGroupDescriptor(data []byte) GroupDescriptor {
	le := binary.LittleEndian
	return GroupDescriptor{
		BlockBitmap:     le.Uint32(data[0x00:0x04]),
		InodeBitmap:     le.Uint32(data[0x04:0x08]),
		InodeTable:      le.Uint32(data[0x08:0x0C]),
		FreeBlocksCount: le.Uint16(data[0x0C:0x0E]),
		FreeInodesCount: le.Uint16(data[0x0E:0x10]),
		UsedDirsCount:   le.Uint16(data[0x10:0x12]),
	}
}

// Options tunes an Image. The zero value is usable.
type Options struct {
	// Logger receives soft failures and anomalies. Defaults to a nop logger.
	Logger log.Logger
	// CacheBlocks is the number of raw blocks kept in the read cache.
	// Zero selects DefaultCacheBlocks; a negative value disables caching.
	CacheBlocks int
	// MaxDepth caps directory recursion in the tree builder.
	// Zero selects DefaultMaxDepth.
	MaxDepth int
	// StrictDirents makes the directory entry iterator always advance by
	// the declared rec_len instead of probing for entries hidden in padding.
	StrictDirents bool
}

// Image is a bound ext2 image: the decoded layout, the group descriptor
// table and the reader they came from. All operations of this package hang
// off it; it holds no other state between calls.
type Image struct {
	r         io.ReaderAt
	sb        Superblock
	blockSize uint32
	inodeSize uint32
	groups    []GroupDescriptor

	cache    gcache.Cache
	logger   log.Logger
	maxDepth int
	strict   bool
}

// Load reads and validates the superblock and the group descriptor table.
func Load(r io.ReaderAt, opts Options) (*Image, error) {
	img := &Image{
		r:        r,
		logger:   opts.Logger,
		maxDepth: opts.MaxDepth,
		strict:   opts.StrictDirents,
	}
	if img.logger == nil {
		img.logger = log.NewNopLogger()
	}
	if img.maxDepth <= 0 {
		img.maxDepth = DefaultMaxDepth
	}

	data := make([]byte, superblockSize)
	if err := img.readAt("read superblock", data, superblockOffset); err != nil {
		return nil, imageError("read superblock", err)
	}
	img.sb = decodeSuperblock(data)
	if err := img.sb.validate(); err != nil {
		return nil, &ImageError{Op: "superblock", Err: err}
	}
	img.blockSize = img.sb.BlockSize()
	img.inodeSize = img.sb.InodeRecordSize()

	count := img.sb.GroupCount()
	table := make([]byte, int(count)*groupDescSize)
	if err := img.readAt("read group descriptors", table, img.GDTOffset()); err != nil {
		return nil, imageError("read group descriptors", err)
	}
	img.groups = make([]GroupDescriptor, count)
	for i := range img.groups {
		img.groups[i] = decodeGroupDescriptor(table[i*groupDescSize:])
	}

	switch n := opts.CacheBlocks; {
	case n == 0:
		img.cache = gcache.New(DefaultCacheBlocks).LRU().Build()
	case n > 0:
		img.cache = gcache.New(n).LRU().Build()
	}

	if unsupported := img.sb.UnsupportedFeatures(); len(unsupported) > 0 {
		level.Warn(img.logger).Log("msg", "image uses features outside ext2 rev 0/1, ignoring them", "features", len(unsupported), "names", strings.Join(unsupported, ","))
	}
	level.Debug(img.logger).Log("msg", "image loaded", "block_size", img.blockSize, "groups", count, "inodes", img.sb.InodesCount, "blocks", img.sb.BlocksCount)
	return img, nil
}

func imageError(op string, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &ImageError{Op: op, Err: ErrTruncated}
	}
	return &ImageError{Op: op, Err: err}
}

// readAt fills p from off. A short read is reported as io.ErrUnexpectedEOF
// wrapped in an IOError.
func (img *Image) readAt(op string, p []byte, off int64) error {
	n, err := img.r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &IOError{Op: op, Offset: off, Err: err}
}

// Superblock returns the decoded superblock.
func (img *Image) Superblock() Superblock { return img.sb }

// BlockSize returns the filesystem block size in bytes.
func (img *Image) BlockSize() uint32 { return img.blockSize }

// Groups returns the group descriptor table.
func (img *Image) Groups() []GroupDescriptor { return img.groups }

// GDTOffset is the byte offset of the group descriptor table: the block
// right after the one holding the superblock.
func (img *Image) GDTOffset() int64 {
	return int64(img.sb.FirstDataBlock+1) * int64(img.blockSize)
}

// Logger returns the logger soft failures are reported to.
func (img *Image) Logger() log.Logger { return img.logger }
