// Package ext2test builds small ext2 images in memory for tests.
//
// The layout is deliberately simple: every block group starts with the
// superblock slot, the descriptor table slot, two bitmaps and the inode
// table, and data blocks are handed out in ascending order from there.
// Bitmaps and free counts are not maintained; the explorer never reads
// them.
package ext2test

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Mode and directory entry type values, mirrored here so tests inside the
// ext2 package can use this builder without an import cycle.
const (
	ModeDir     = 0x4000
	ModeRegular = 0x8000
	ModeSymlink = 0xA000

	FileTypeRegular = 1
	FileTypeDir     = 2
	FileTypeSymlink = 7

	RootInode = 2
)

const (
	superblockOffset = 1024
	groupDescSize    = 32
	firstIno         = 11
	numDirect        = 12
	numSlots         = 15
)

// Config describes the geometry of a new image. Zero fields take the
// defaults noted on them.
type Config struct {
	LogBlockSize   uint32 // 0: 1 KiB blocks
	BlocksPerGroup uint32 // 512
	InodesPerGroup uint32 // 32
	Groups         int    // 1

	// RevLevel 1 honors InodeSize (default 128) as the inode table stride.
	RevLevel  uint32
	InodeSize uint16

	FeatureCompat   uint32
	FeatureIncompat uint32
	FeatureROCompat uint32

	UUID       [16]byte
	VolumeName string

	// LostFound adds /lost+found with a preallocated second block.
	LostFound bool
}

// Inode is the subset of an inode record the builder writes.
type Inode struct {
	Mode   uint16
	UID    uint16
	GID    uint16
	Size   uint32
	Mtime  uint32
	Links  uint16
	Blocks uint32
	Flags  uint32
	Block  [numSlots]uint32
}

type dirState struct {
	blocks  []uint32
	tail    int // offset of the last entry in the last block
	tailLen int // aligned length of that entry
}

// Builder assembles an image. Methods panic on misuse or when the image
// runs out of blocks or inodes; test images are small and fixed.
type Builder struct {
	cfg       Config
	bs        int
	fdb       uint32
	count     uint32
	itBlocks  uint32
	inodeSize int

	data      []byte
	nextBlock uint32
	nextInode uint32
	inodes    map[uint32]*Inode
	dirs      map[uint32]*dirState
}

// New returns a builder holding an empty root directory.
func New(cfg Config) *Builder {
	if cfg.BlocksPerGroup == 0 {
		cfg.BlocksPerGroup = 512
	}
	if cfg.InodesPerGroup == 0 {
		cfg.InodesPerGroup = 32
	}
	if cfg.Groups == 0 {
		cfg.Groups = 1
	}
	if cfg.InodeSize == 0 {
		cfg.InodeSize = 128
	}
	b := &Builder{
		cfg:       cfg,
		bs:        1024 << cfg.LogBlockSize,
		inodeSize: 128,
		nextInode: firstIno,
		inodes:    map[uint32]*Inode{},
		dirs:      map[uint32]*dirState{},
	}
	if cfg.RevLevel > 0 {
		b.inodeSize = int(cfg.InodeSize)
	}
	if b.bs == 1024 {
		b.fdb = 1
	}
	b.count = uint32(cfg.Groups) * cfg.BlocksPerGroup
	b.itBlocks = uint32((int(cfg.InodesPerGroup)*b.inodeSize + b.bs - 1) / b.bs)
	b.data = make([]byte, int(b.count)*b.bs)
	b.nextBlock = b.groupStart(0) + b.reserved()

	b.inodes[RootInode] = &Inode{Mode: ModeDir | 0o755, Links: 2}
	b.dirs[RootInode] = &dirState{}
	b.Link(RootInode, ".", RootInode, FileTypeDir)
	b.Link(RootInode, "..", RootInode, FileTypeDir)

	if cfg.LostFound {
		lf := b.Mkdir(RootInode, "lost+found", 0o700)
		b.growDir(lf)
	}
	return b
}

func (b *Builder) groupStart(g uint32) uint32 { return b.fdb + g*b.cfg.BlocksPerGroup }

// reserved covers superblock, descriptor table, bitmaps and inode table.
func (b *Builder) reserved() uint32 { return 4 + b.itBlocks }

// BlockSize returns the block size in bytes.
func (b *Builder) BlockSize() int { return b.bs }

// BlocksCount returns the number of blocks the superblock declares.
func (b *Builder) BlocksCount() uint32 { return b.count }

// InodesCount returns the number of inodes the superblock declares.
func (b *Builder) InodesCount() uint32 { return uint32(b.cfg.Groups) * b.cfg.InodesPerGroup }

// AllocBlock hands out the next unused data block, zeroed.
func (b *Builder) AllocBlock() uint32 {
	for {
		n := b.nextBlock
		if n >= b.count {
			panic("ext2test: out of blocks")
		}
		b.nextBlock++
		g := (n - b.fdb) / b.cfg.BlocksPerGroup
		if n-b.groupStart(g) < b.reserved() {
			continue
		}
		return n
	}
}

// Block returns block n of the image for in-place edits.
func (b *Builder) Block(n uint32) []byte {
	off := int(n) * b.bs
	return b.data[off : off+b.bs]
}

// WriteBlock copies data to the start of block n.
func (b *Builder) WriteBlock(n uint32, data []byte) {
	if len(data) > b.bs {
		panic("ext2test: block data too long")
	}
	copy(b.Block(n), data)
}

// PutPointer stores ptr as the index-th pointer of indirection block blk.
func (b *Builder) PutPointer(blk uint32, index int, ptr uint32) {
	binary.LittleEndian.PutUint32(b.Block(blk)[index*4:], ptr)
}

// AllocInode hands out the next unused inode number.
func (b *Builder) AllocInode() uint32 {
	n := b.nextInode
	if n > b.InodesCount() {
		panic("ext2test: out of inodes")
	}
	b.nextInode++
	return n
}

// SetInode replaces the record of inode n.
func (b *Builder) SetInode(n uint32, ino Inode) {
	b.inodes[n] = &ino
}

// Inode returns the record of inode n for in-place edits, or nil.
func (b *Builder) Inode(n uint32) *Inode { return b.inodes[n] }

// InodeOffset is the byte offset of inode n's record in the image.
func (b *Builder) InodeOffset(n uint32) int64 {
	g := (n - 1) / b.cfg.InodesPerGroup
	idx := (n - 1) % b.cfg.InodesPerGroup
	table := b.groupStart(g) + 4
	return int64(table)*int64(b.bs) + int64(idx)*int64(b.inodeSize)
}

// Mkdir creates directory name under parent and returns its inode.
func (b *Builder) Mkdir(parent uint32, name string, perm uint16) uint32 {
	n := b.AllocInode()
	b.inodes[n] = &Inode{Mode: ModeDir | perm, Links: 2}
	b.dirs[n] = &dirState{}
	b.Link(n, ".", n, FileTypeDir)
	b.Link(n, "..", parent, FileTypeDir)
	b.Link(parent, name, n, FileTypeDir)
	b.inodes[parent].Links++
	return n
}

// AddFile creates regular file name under parent holding content, and
// returns its inode. Content larger than twelve blocks goes through the
// indirect trees.
func (b *Builder) AddFile(parent uint32, name string, perm uint16, content []byte) uint32 {
	n := b.AllocInode()
	ino := &Inode{Mode: ModeRegular | perm, Links: 1, Size: uint32(len(content))}
	b.fill(ino, content)
	b.inodes[n] = ino
	b.Link(parent, name, n, FileTypeRegular)
	return n
}

// Symlink creates a symbolic link. Targets shorter than 60 bytes are stored
// inline in the block slots.
func (b *Builder) Symlink(parent uint32, name, target string) uint32 {
	n := b.AllocInode()
	ino := &Inode{Mode: ModeSymlink | 0o777, Links: 1, Size: uint32(len(target))}
	if len(target) < numSlots*4 {
		raw := make([]byte, numSlots*4)
		copy(raw, target)
		for i := range ino.Block {
			ino.Block[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
	} else {
		b.fill(ino, []byte(target))
	}
	b.inodes[n] = ino
	b.Link(parent, name, n, FileTypeSymlink)
	return n
}

func (b *Builder) fill(ino *Inode, content []byte) {
	var blocks []uint32
	for off := 0; off < len(content); off += b.bs {
		blk := b.AllocBlock()
		b.WriteBlock(blk, content[off:min(off+b.bs, len(content))])
		blocks = append(blocks, blk)
	}
	used := b.MapBlocks(ino, blocks)
	ino.Blocks = uint32(used * b.bs / 512)
}

// MapBlocks points ino at blocks in order: direct slots first, then
// single, double and triple indirect trees, allocating the indirection
// blocks. It returns the number of blocks used, data and indirection.
func (b *Builder) MapBlocks(ino *Inode, blocks []uint32) int {
	used := len(blocks)
	i := 0
	for ; i < numDirect && i < len(blocks); i++ {
		ino.Block[i] = blocks[i]
	}
	rest := blocks[i:]
	for lvl := 1; lvl <= 3 && len(rest) > 0; lvl++ {
		var root uint32
		var n int
		root, rest, n = b.indirect(lvl, rest)
		ino.Block[numDirect+lvl-1] = root
		used += n
	}
	if len(rest) > 0 {
		panic("ext2test: file too large")
	}
	return used
}

func (b *Builder) indirect(lvl int, blocks []uint32) (uint32, []uint32, int) {
	root := b.AllocBlock()
	used := 1
	for i := 0; i < b.bs/4 && len(blocks) > 0; i++ {
		var ptr uint32
		if lvl == 1 {
			ptr, blocks = blocks[0], blocks[1:]
		} else {
			var n int
			ptr, blocks, n = b.indirect(lvl-1, blocks)
			used += n
		}
		b.PutPointer(root, i, ptr)
	}
	return root, blocks, used
}

// Link appends an entry to directory dir. The previous last entry of the
// block gives up its slack; the new one runs to the end of the block.
func (b *Builder) Link(dir uint32, name string, ino uint32, fileType uint8) {
	d := b.dirs[dir]
	if d == nil {
		panic(fmt.Sprintf("ext2test: inode %d is not a directory", dir))
	}
	need := align4(8 + len(name))
	if len(d.blocks) == 0 || d.tail+d.tailLen+need > b.bs {
		blk := b.growDir(dir)
		PutDirent(b.Block(blk), 0, ino, uint16(b.bs), fileType, name)
		d.tail, d.tailLen = 0, need
		return
	}
	blk := b.Block(d.blocks[len(d.blocks)-1])
	binary.LittleEndian.PutUint16(blk[d.tail+4:], uint16(d.tailLen))
	off := d.tail + d.tailLen
	PutDirent(blk, off, ino, uint16(b.bs-off), fileType, name)
	d.tail, d.tailLen = off, need
}

// growDir adds an empty block to dir and returns it. An empty block holds
// one unused entry spanning the whole block.
func (b *Builder) growDir(dir uint32) uint32 {
	d := b.dirs[dir]
	if len(d.blocks) >= numDirect {
		panic("ext2test: directory too large")
	}
	blk := b.AllocBlock()
	binary.LittleEndian.PutUint16(b.Block(blk)[4:], uint16(b.bs))
	ino := b.inodes[dir]
	ino.Block[len(d.blocks)] = blk
	ino.Size += uint32(b.bs)
	ino.Blocks += uint32(b.bs / 512)
	d.blocks = append(d.blocks, blk)
	d.tail, d.tailLen = 0, b.bs
	return blk
}

// DirBlocks returns the data blocks of a directory made by this builder.
func (b *Builder) DirBlocks(dir uint32) []uint32 { return b.dirs[dir].blocks }

// PutDirent writes a directory entry header and name at off in buf.
func PutDirent(buf []byte, off int, ino uint32, recLen uint16, fileType uint8, name string) {
	le := binary.LittleEndian
	le.PutUint32(buf[off:], ino)
	le.PutUint16(buf[off+4:], recLen)
	buf[off+6] = uint8(len(name))
	buf[off+7] = fileType
	copy(buf[off+8:], name)
}

func align4(n int) int { return (n + 3) &^ 3 }

// Bytes writes the superblock, descriptor table and inode records and
// returns the image. Later edits to the builder are not reflected until
// Bytes is called again; edits to the returned slice are.
func (b *Builder) Bytes() []byte {
	b.writeSuperblock()
	b.writeGroups()
	for n, ino := range b.inodes {
		writeInode(b.data[b.InodeOffset(n):], ino)
	}
	return b.data
}

// Reader returns the image as an io.ReaderAt.
func (b *Builder) Reader() *bytes.Reader { return bytes.NewReader(b.Bytes()) }

func (b *Builder) writeSuperblock() {
	le := binary.LittleEndian
	sb := b.data[superblockOffset : superblockOffset+1024]
	le.PutUint32(sb[0x00:], b.InodesCount())
	le.PutUint32(sb[0x04:], b.count)
	le.PutUint32(sb[0x14:], b.fdb)
	le.PutUint32(sb[0x18:], b.cfg.LogBlockSize)
	le.PutUint32(sb[0x1C:], b.cfg.LogBlockSize)
	le.PutUint32(sb[0x20:], b.cfg.BlocksPerGroup)
	le.PutUint32(sb[0x24:], b.cfg.BlocksPerGroup)
	le.PutUint32(sb[0x28:], b.cfg.InodesPerGroup)
	le.PutUint16(sb[0x38:], 0xEF53)
	le.PutUint16(sb[0x3A:], 1)
	le.PutUint32(sb[0x4C:], b.cfg.RevLevel)
	if b.cfg.RevLevel > 0 {
		le.PutUint32(sb[0x54:], firstIno)
		le.PutUint16(sb[0x58:], b.cfg.InodeSize)
		le.PutUint32(sb[0x5C:], b.cfg.FeatureCompat)
		le.PutUint32(sb[0x60:], b.cfg.FeatureIncompat)
		le.PutUint32(sb[0x64:], b.cfg.FeatureROCompat)
		copy(sb[0x68:0x78], b.cfg.UUID[:])
		copy(sb[0x78:0x88], b.cfg.VolumeName)
	}
}

func (b *Builder) writeGroups() {
	le := binary.LittleEndian
	gdt := b.Block(b.fdb + 1)
	for g := 0; g < b.cfg.Groups; g++ {
		start := b.groupStart(uint32(g))
		d := gdt[g*groupDescSize:]
		le.PutUint32(d[0x00:], start+2)
		le.PutUint32(d[0x04:], start+3)
		le.PutUint32(d[0x08:], start+4)
	}
}

func writeInode(buf []byte, ino *Inode) {
	le := binary.LittleEndian
	le.PutUint16(buf[0x00:], ino.Mode)
	le.PutUint16(buf[0x02:], ino.UID)
	le.PutUint32(buf[0x04:], ino.Size)
	le.PutUint32(buf[0x10:], ino.Mtime)
	le.PutUint16(buf[0x18:], ino.GID)
	le.PutUint16(buf[0x1A:], ino.Links)
	le.PutUint32(buf[0x1C:], ino.Blocks)
	le.PutUint32(buf[0x20:], ino.Flags)
	for i, p := range ino.Block {
		le.PutUint32(buf[0x28+i*4:], p)
	}
}
