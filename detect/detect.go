// Package detect tells the ext family members apart from the superblock
// alone, before anything else is decoded.
package detect

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Type is an on-disk format.
type Type int

const (
	Unknown Type = iota
	Ext2
	Ext3
	Ext4
)

func (t Type) String() string {
	switch t {
	case Ext2:
		return "ext2"
	case Ext3:
		return "ext3"
	case Ext4:
		return "ext4"
	default:
		return "unknown"
	}
}

// IsExt reports whether t is any ext variant.
func (t Type) IsExt() bool { return t == Ext2 || t == Ext3 || t == Ext4 }

const (
	superblockOffset = 1024
	magicOffset      = 0x38
	extMagic         = 0xEF53

	compatHasJournal = 0x0004
	incompatExtents  = 0x0040
	incompat64Bit    = 0x0080
	incompatFlexBG   = 0x0200
)

// Detect reads the superblock of r and classifies it. Images too short to
// hold a superblock, or without the ext magic, are Unknown.
func Detect(r io.ReaderAt) (Type, error) {
	sb := make([]byte, 0x68)
	n, err := r.ReadAt(sb, superblockOffset)
	if err != nil && err != io.EOF {
		return Unknown, errors.Wrap(err, "reading superblock")
	}
	if n < len(sb) {
		return Unknown, nil
	}
	if binary.LittleEndian.Uint16(sb[magicOffset:]) != extMagic {
		return Unknown, nil
	}
	return extVersion(sb), nil
}

// extVersion picks the newest variant whose features are in use.
func extVersion(sb []byte) Type {
	compat := binary.LittleEndian.Uint32(sb[0x5C:0x60])
	incompat := binary.LittleEndian.Uint32(sb[0x60:0x64])

	if incompat&(incompatExtents|incompat64Bit|incompatFlexBG) != 0 {
		return Ext4
	}
	if compat&compatHasJournal != 0 {
		return Ext3
	}
	return Ext2
}
