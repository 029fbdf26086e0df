package ext2

import (
	"encoding/binary"
)

const direntHeaderSize = 8

// File type tags stored in directory entries.
const (
	FileTypeUnknown  = 0
	FileTypeRegular  = 1
	FileTypeDir      = 2
	FileTypeCharDev  = 3
	FileTypeBlockDev = 4
	FileTypeFIFO     = 5
	FileTypeSocket   = 6
	FileTypeSymlink  = 7
)

// DirEntry is one decoded directory entry record.
type DirEntry struct {
	Inode    uint32
	RecLen   uint16
	NameLen  uint8
	FileType uint8
	Name     string
	// Offset is the position of the record inside its block.
	Offset int
}

// EntryIterator decodes the variable length records of one directory data
// block. Use it like bufio.Scanner:
//
//	it := img.Entries(block)
//	for it.Next() {
//		e := it.Entry()
//	}
//
// Iteration ends at the end of the block or at a record whose inode is 0.
// A record with a bad name length is stepped over four bytes at a time
// until a decodable record turns up.
type EntryIterator struct {
	block       []byte
	inodesCount uint32
	strict      bool

	off     int
	cur     DirEntry
	resyncs int
}

// NewEntryIterator iterates over block. inodesCount bounds the inode
// numbers accepted when probing for entries hidden in padding; strict
// disables that probing.
func NewEntryIterator(block []byte, inodesCount uint32, strict bool) *EntryIterator {
	return &EntryIterator{block: block, inodesCount: inodesCount, strict: strict}
}

// Entries returns an iterator over a directory block of this image.
func (img *Image) Entries(block []byte) *EntryIterator {
	return NewEntryIterator(block, img.sb.InodesCount, img.strict)
}

// Next advances to the next entry and reports whether there is one.
func (it *EntryIterator) Next() bool {
	le := binary.LittleEndian
	for {
		off := it.off
		if off+direntHeaderSize > len(it.block) {
			return false
		}
		ino := le.Uint32(it.block[off : off+4])
		recLen := le.Uint16(it.block[off+4 : off+6])
		nameLen := it.block[off+6]
		if ino == 0 {
			it.off = len(it.block)
			return false
		}
		if nameLen == 0 || off+direntHeaderSize+int(nameLen) > len(it.block) {
			it.off += 4
			it.resyncs++
			continue
		}

		nameStart := off + direntHeaderSize
		it.cur = DirEntry{
			Inode:    ino,
			RecLen:   recLen,
			NameLen:  nameLen,
			FileType: it.block[off+7],
			Name:     string(it.block[nameStart : nameStart+int(nameLen)]),
			Offset:   off,
		}
		it.off = off + it.advance(off, recLen, nameLen)
		return true
	}
}

// Entry returns the entry Next stopped at.
func (it *EntryIterator) Entry() DirEntry { return it.cur }

// Resyncs counts the 4-byte steps taken over undecodable records.
func (it *EntryIterator) Resyncs() int { return it.resyncs }

// advance picks the distance to the next record. A rec_len well beyond the
// record's own aligned size is treated as padding when a plausible record
// sits right after the name (preallocated directories such as lost+found
// pack entries there). This is a heuristic, not an on-disk guarantee.
func (it *EntryIterator) advance(off int, recLen uint16, nameLen uint8) int {
	tight := alignUp(direntHeaderSize+int(nameLen), 4)
	if int(recLen) < tight {
		return tight
	}
	if !it.strict && int(recLen) > tight+direntHeaderSize && it.plausibleAt(off+tight) {
		return tight
	}
	return int(recLen)
}

func (it *EntryIterator) plausibleAt(off int) bool {
	if off+direntHeaderSize > len(it.block) {
		return false
	}
	le := binary.LittleEndian
	ino := le.Uint32(it.block[off : off+4])
	recLen := int(le.Uint16(it.block[off+4 : off+6]))
	nameLen := it.block[off+6]
	return ino >= 1 && ino <= it.inodesCount &&
		recLen >= direntHeaderSize && recLen <= len(it.block)-off &&
		nameLen != 0
}

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}
