package volume

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

const (
	// superblockSize is the fixed on-disk size of an EXT4 superblock.
	superblockSize = 1024
	// superblockSignature is the magic value at offset 0x38.
	superblockSignature uint16 = 0xef53
	// pbsSize is the partition boot sector EXT4 leaves zero ahead of a
	// 1024-byte-block filesystem's group-0 superblock.
	pbsSize = 1024

	feature64Bit uint32 = 0x80
)

// superblock holds the subset of EXT4 superblock fields the niche locator
// needs. Byte offsets are grounded on the EXT4 on-disk layout (fs/ext4/ext4.h).
type superblock struct {
	inodesCount       uint32
	blocksCount       uint64
	blockSize         uint32
	blocksPerGroup    uint32
	inodesPerGroup    uint32
	inodeSize         uint16
	reservedGDTBlocks uint16
	is64Bit           bool
	uuid              uuid.UUID
}

// superblockFromBytes parses a superblock from exactly superblockSize
// bytes, read from absolute offset 1024 whatever the block size.
func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) != superblockSize {
		return nil, fmt.Errorf("superblock must be %d bytes, got %d", superblockSize, len(b))
	}

	magic := binary.LittleEndian.Uint16(b[0x38:0x3a])
	if magic != superblockSignature {
		return nil, fmt.Errorf("bad superblock signature %#04x, expected %#04x", magic, superblockSignature)
	}

	incompatFlags := binary.LittleEndian.Uint32(b[0x60:0x64])
	is64Bit := incompatFlags&feature64Bit != 0

	logBlockSize := binary.LittleEndian.Uint32(b[0x18:0x1c])
	blockSize := uint32(1024) << logBlockSize

	blocksCountLo := binary.LittleEndian.Uint32(b[0x4:0x8])
	blocksCount := uint64(blocksCountLo)
	if is64Bit {
		blocksCountHi := binary.LittleEndian.Uint32(b[0x150:0x154])
		blocksCount |= uint64(blocksCountHi) << 32
	}

	inodeSize := binary.LittleEndian.Uint16(b[0x58:0x5a])
	if inodeSize == 0 {
		// revision 0 (pre-dynamic) superblocks fix the inode size at 128.
		inodeSize = 128
	}

	id, err := uuid.FromBytes(b[0x68:0x78])
	if err != nil {
		return nil, fmt.Errorf("reading volume UUID: %w", err)
	}

	return &superblock{
		inodesCount:       binary.LittleEndian.Uint32(b[0x0:0x4]),
		blocksCount:       blocksCount,
		blockSize:         blockSize,
		blocksPerGroup:    binary.LittleEndian.Uint32(b[0x20:0x24]),
		inodesPerGroup:    binary.LittleEndian.Uint32(b[0x28:0x2c]),
		inodeSize:         inodeSize,
		reservedGDTBlocks: binary.LittleEndian.Uint16(b[0xce:0xd0]),
		is64Bit:           is64Bit,
		uuid:              id,
	}, nil
}

// superblockOffset returns where group g's superblock copy begins: byte
// 1024 for group 0 whatever the block size; for a later group, the start
// of the group, shifted one block by EXT4's "padding for PBS" on
// 1024-byte-block images.
func superblockOffset(g uint32, blockSize, blocksPerGroup uint32) int64 {
	if g == 0 {
		return pbsSize
	}
	var pad int64
	if blockSize == 1024 {
		pad = 1
	}
	return (int64(g)*int64(blocksPerGroup) + pad) * int64(blockSize)
}

// groupCount computes the number of block groups from blocksCount and
// blocksPerGroup, rounding up for a partial final group.
func groupCount(blocksCount uint64, blocksPerGroup uint32) uint32 {
	return uint32(math.Ceil(float64(blocksCount) / float64(blocksPerGroup)))
}
