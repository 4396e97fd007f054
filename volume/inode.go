package volume

import (
	"encoding/binary"
	"fmt"
)

const (
	inodeModeOffset  = 0x0
	inodeSizeLoOff   = 0x4
	inodeBlockOffset = 0x28 // i_block[15], 60 bytes: inline data, or an extent tree root
	inodeBlockBytes  = 60
	inodeSizeHiOff   = 0x6c
	extraISizeOffset = 0x80

	extentTreeHeaderLen uint16 = 12
	extentTreeEntryLen  uint16 = 12
	extentHeaderMagic   uint16 = 0xf30a

	fileTypeMask    uint16 = 0xf000
	fileTypeRegular uint16 = 0x8000
	flagUsesExtents uint32 = 0x80000

	inodeFlagsOffset = 0x20
)

// Extent describes a single contiguous run of blocks holding file data.
type Extent struct {
	StartBlock uint64
	BlockCount uint16
}

// Inode is the subset of per-inode state the niche locator and engines
// need: where it lives in the image, whether it is a file, how long the
// file is, and its first data extent (if any).
type Inode struct {
	ByteOffset  int64
	IsFile      bool
	LengthBytes uint64
	Size        uint16
	// ExtraISize is the large-inode extension size at offset 0x80, zero for
	// inodes too short to carry one.
	ExtraISize uint16

	firstExtent    Extent
	hasFirstExtent bool
}

// FirstExtent returns the inode's first data extent and whether it has one.
// An inode without the extents flag (inline data, a device node, a
// block-mapped file) or whose extent tree root is an index node has no
// first extent for the purposes of the file_slack niche.
func (i Inode) FirstExtent() (Extent, bool) {
	return i.firstExtent, i.hasFirstExtent
}

// inodeFromBytes parses one inode-sized record at byteOffset within the
// image, given only its raw bytes.
func inodeFromBytes(b []byte, byteOffset int64) (Inode, error) {
	if len(b) < inodeBlockOffset+inodeBlockBytes {
		return Inode{}, fmt.Errorf("inode record too short: %d bytes", len(b))
	}

	mode := binary.LittleEndian.Uint16(b[inodeModeOffset : inodeModeOffset+2])
	isFile := mode&fileTypeMask == fileTypeRegular

	sizeLo := binary.LittleEndian.Uint32(b[inodeSizeLoOff : inodeSizeLoOff+4])
	sizeHi := binary.LittleEndian.Uint32(b[inodeSizeHiOff : inodeSizeHiOff+4])
	length := uint64(sizeHi)<<32 | uint64(sizeLo)

	flags := binary.LittleEndian.Uint32(b[inodeFlagsOffset : inodeFlagsOffset+4])

	inode := Inode{
		ByteOffset:  byteOffset,
		IsFile:      isFile,
		LengthBytes: length,
		Size:        uint16(len(b)),
	}

	if len(b) >= extraISizeOffset+2 {
		inode.ExtraISize = binary.LittleEndian.Uint16(b[extraISizeOffset : extraISizeOffset+2])
	}

	if flags&flagUsesExtents != 0 {
		if ext, ok := firstExtentFromTree(b[inodeBlockOffset : inodeBlockOffset+inodeBlockBytes]); ok {
			inode.firstExtent = ext
			inode.hasFirstExtent = true
		}
	}

	return inode, nil
}

// firstExtentFromTree reads the extent tree root embedded in i_block[] and
// returns the first leaf extent when the root is itself a leaf node; a
// root that is an internal node yields no extent. Grounded on EXT4's extent tree
// layout: a 12-byte header (magic, entries, max, depth) followed by
// 12-byte leaf or index records.
func firstExtentFromTree(root []byte) (Extent, bool) {
	if len(root) < int(extentTreeHeaderLen+extentTreeEntryLen) {
		return Extent{}, false
	}
	if binary.LittleEndian.Uint16(root[0:2]) != extentHeaderMagic {
		return Extent{}, false
	}

	entries := binary.LittleEndian.Uint16(root[2:4])
	depth := binary.LittleEndian.Uint16(root[6:8])
	if entries == 0 {
		return Extent{}, false
	}

	recStart := extentTreeHeaderLen
	rec := root[recStart : recStart+extentTreeEntryLen]

	if depth == 0 {
		// leaf record: fileBlock u32, count u16, startHi u16, startLo u32
		count := binary.LittleEndian.Uint16(rec[4:6])
		startHi := binary.LittleEndian.Uint16(rec[6:8])
		startLo := binary.LittleEndian.Uint32(rec[8:12])
		start := uint64(startHi)<<32 | uint64(startLo)
		return Extent{StartBlock: start, BlockCount: count}, true
	}

	// Internal node: this module only reads the first data extent of a
	// file for the file_slack niche, and does not follow on-disk index
	// blocks to a deeper leaf — that requires re-reading the image at the
	// child block, which the Locator (a pure function) deliberately does
	// not do. Files with a root-level index node report no first extent.
	return Extent{}, false
}
