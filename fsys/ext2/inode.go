package ext2

import (
	"encoding/binary"
	"io/fs"
	"strings"

	"github.com/pkg/errors"
)

// Block pointer slots in Inode.Block.
const (
	NumDirect      = 12
	SingleIndirect = 12
	DoubleIndirect = 13
	TripleIndirect = 14
	NumBlockSlots  = 15
)

// File type bits of Inode.Mode.
const (
	ModeTypeMask = 0xF000
	ModeFIFO     = 0x1000
	ModeCharDev  = 0x2000
	ModeDir      = 0x4000
	ModeBlockDev = 0x6000
	ModeRegular  = 0x8000
	ModeSymlink  = 0xA000
	ModeSocket   = 0xC000

	// ModePermMask covers the permission, setuid/setgid and sticky bits.
	ModePermMask = 0x0FFF
)

// Inode is the fixed leading part of an on-disk inode record.
type Inode struct {
	Mode       uint16
	UID        uint16
	Size       uint32
	Atime      uint32
	Ctime      uint32
	Mtime      uint32
	Dtime      uint32
	GID        uint16
	LinksCount uint16
	Blocks     uint32
	Flags      uint32
	Block      [NumBlockSlots]uint32
}

func decodeInode(data []byte) Inode {
	le := binary.LittleEndian
	ino := Inode{
		Mode:       le.Uint16(data[0x00:0x02]),
		UID:        le.Uint16(data[0x02:0x04]),
		Size:       le.Uint32(data[0x04:0x08]),
		Atime:      le.Uint32(data[0x08:0x0C]),
		Ctime:      le.Uint32(data[0x0C:0x10]),
		Mtime:      le.Uint32(data[0x10:0x14]),
		Dtime:      le.Uint32(data[0x14:0x18]),
		GID:        le.Uint16(data[0x18:0x1A]),
		LinksCount: le.Uint16(data[0x1A:0x1C]),
		Blocks:     le.Uint32(data[0x1C:0x20]),
		Flags:      le.Uint32(data[0x20:0x24]),
	}
	for i := range ino.Block {
		off := 0x28 + i*4
		ino.Block[i] = le.Uint32(data[off : off+4])
	}
	return ino
}

func (i *Inode) IsDir() bool     { return i.Mode&ModeTypeMask == ModeDir }
func (i *Inode) IsRegular() bool { return i.Mode&ModeTypeMask == ModeRegular }
func (i *Inode) IsSymlink() bool { return i.Mode&ModeTypeMask == ModeSymlink }

// Perm returns the low twelve mode bits.
func (i *Inode) Perm() uint16 { return i.Mode & ModePermMask }

// FileMode converts the on-disk mode into an io/fs mode.
func (i *Inode) FileMode() fs.FileMode { return fileMode(i.Mode) }

func fileMode(raw uint16) fs.FileMode {
	mode := fs.FileMode(raw & 0777)
	switch raw & ModeTypeMask {
	case ModeDir:
		mode |= fs.ModeDir
	case ModeSymlink:
		mode |= fs.ModeSymlink
	case ModeBlockDev:
		mode |= fs.ModeDevice
	case ModeCharDev:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case ModeFIFO:
		mode |= fs.ModeNamedPipe
	case ModeSocket:
		mode |= fs.ModeSocket
	}
	if raw&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if raw&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if raw&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

// InodeLocation returns the block group holding inode n and the byte offset
// of its record in the image.
func (img *Image) InodeLocation(n uint32) (group uint32, offset int64, err error) {
	if n < 1 || n > img.sb.InodesCount {
		return 0, 0, &LookupError{Inode: n, Err: ErrInvalidInode}
	}
	group = (n - 1) / img.sb.InodesPerGroup
	index := (n - 1) % img.sb.InodesPerGroup
	if int(group) >= len(img.groups) {
		return 0, 0, &LookupError{Inode: n, Err: ErrInvalidInode}
	}
	table := img.groups[group].InodeTable
	offset = int64(table)*int64(img.blockSize) + int64(index)*int64(img.inodeSize)
	return group, offset, nil
}

// ReadInode reads the record for inode n.
func (img *Image) ReadInode(n uint32) (*Inode, error) {
	_, offset, err := img.InodeLocation(n)
	if err != nil {
		return nil, err
	}
	data := make([]byte, defaultInodeSize)
	if err := img.readAt("read inode", data, offset); err != nil {
		return nil, &LookupError{Inode: n, Err: err}
	}
	ino := decodeInode(data)
	return &ino, nil
}

// fastSymlinkMax is the longest target stored inline in the block slots.
const fastSymlinkMax = NumBlockSlots*4 - 1

// IsFastSymlink reports whether the link target lives in the block slots
// instead of a data block.
func (i *Inode) IsFastSymlink() bool {
	return i.IsSymlink() && i.Size <= fastSymlinkMax && i.Blocks == 0
}

// ReadLink returns the target of symlink ino.
func (img *Image) ReadLink(ino *Inode) (string, error) {
	if !ino.IsSymlink() {
		return "", errors.Wrap(fs.ErrInvalid, "not a symlink")
	}
	if ino.IsFastSymlink() {
		raw := make([]byte, NumBlockSlots*4)
		for i, b := range ino.Block {
			binary.LittleEndian.PutUint32(raw[i*4:], b)
		}
		return string(raw[:ino.Size]), nil
	}
	var sb strings.Builder
	if _, err := img.Stream(&sb, ino, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}
