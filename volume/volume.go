// Package volume is the "Volume Reader" collaborator from the niche
// locator's point of view: it opens an EXT4 image once and exposes the
// handful of superblock/group-descriptor/inode accessors the Locator,
// Hider, and Detector need. It deliberately does not walk directories,
// replay the journal, or support writing — those are out of scope.
package volume

import (
	"fmt"

	"github.com/RajeckMassa/DHEXT4/backend"
	"github.com/RajeckMassa/DHEXT4/backend/file"
)

// Volume is a parsed, read-only view of an open EXT4 image.
type Volume struct {
	storage backend.Storage
	sb      *superblock
	gds     []GroupDescriptor
}

// Open reads the superblock and full group descriptor table from storage.
func Open(storage backend.Storage) (*Volume, error) {
	// Group 0's superblock always sits at absolute byte offset 1024,
	// regardless of block size; only backup copies in later groups shift.
	raw := make([]byte, superblockSize)
	if _, err := storage.ReadAt(raw, pbsSize); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	sb, err := superblockFromBytes(raw)
	if err != nil {
		return nil, err
	}

	// A loopback image's size is whatever Stat() says; a raw block device's
	// is not, so when storage is a device this cross-checks it against the
	// superblock's own block count instead of trusting any Stat() size. Both
	// helpers fail soft: a backend that can't answer (a test double, a
	// platform with no ioctl) just skips the check.
	if isDevice, _ := file.IsBlockDevice(storage); isDevice {
		if size, err := file.DeviceSize(storage); err == nil {
			needed := int64(sb.blocksCount) * int64(sb.blockSize)
			if size < needed {
				return nil, fmt.Errorf("block device is %d bytes, too small for %d blocks of %d bytes reported by the superblock", size, sb.blocksCount, sb.blockSize)
			}
		}
	}

	groups := groupCount(sb.blocksCount, sb.blocksPerGroup)

	gdtSize := groupDescriptorSize32
	if sb.is64Bit {
		gdtSize = groupDescriptorSize64
	}
	gdtBytes := make([]byte, int(groups)*gdtSize)
	gdtOffset := gdtTableOffset(sb.blockSize)
	if _, err := storage.ReadAt(gdtBytes, gdtOffset); err != nil {
		return nil, fmt.Errorf("reading group descriptor table: %w", err)
	}

	return &Volume{
		storage: storage,
		sb:      sb,
		gds:     groupDescriptorsFromBytes(gdtBytes, int(groups), sb.is64Bit),
	}, nil
}

// gdtTableOffset is where the group descriptor table begins: the block
// right after the group-0 superblock's own block.
func gdtTableOffset(blockSize uint32) int64 {
	if blockSize == 1024 {
		return 2 * int64(blockSize)
	}
	return int64(blockSize)
}

// BlockSize returns the filesystem block size in bytes (1024, 2048, or 4096).
func (v *Volume) BlockSize() uint32 { return v.sb.blockSize }

// BlocksPerGroup returns the number of blocks in each block group.
func (v *Volume) BlocksPerGroup() uint32 { return v.sb.blocksPerGroup }

// InodesPerGroup returns the number of inodes in each block group.
func (v *Volume) InodesPerGroup() uint32 { return v.sb.inodesPerGroup }

// InodesCount returns the total number of inodes in the filesystem.
func (v *Volume) InodesCount() uint32 { return v.sb.inodesCount }

// InodeSize returns the on-disk size of one inode record.
func (v *Volume) InodeSize() uint16 { return v.sb.inodeSize }

// ReservedGDTBlocks returns the number of blocks reserved for future
// group descriptor table growth.
func (v *Volume) ReservedGDTBlocks() uint16 { return v.sb.reservedGDTBlocks }

// GroupCount returns the number of block groups in the filesystem.
func (v *Volume) GroupCount() int { return len(v.gds) }

// GroupDescriptor returns the group descriptor for block group g.
func (v *Volume) GroupDescriptor(g uint32) (GroupDescriptor, error) {
	if int(g) >= len(v.gds) {
		return GroupDescriptor{}, fmt.Errorf("group %d out of range (%d groups)", g, len(v.gds))
	}
	return v.gds[g], nil
}

// UUID returns the filesystem's volume UUID.
func (v *Volume) UUID() string { return v.sb.uuid.String() }

// inodeByteOffset returns the absolute byte offset of inode n (1-indexed,
// per EXT4 convention) in the image.
func (v *Volume) inodeByteOffset(n uint32) (int64, error) {
	if n == 0 || n > v.sb.inodesCount {
		return 0, fmt.Errorf("inode %d out of range (%d inodes)", n, v.sb.inodesCount)
	}
	idx := n - 1
	group := idx / v.sb.inodesPerGroup
	indexInGroup := idx % v.sb.inodesPerGroup

	gd, err := v.GroupDescriptor(group)
	if err != nil {
		return 0, err
	}

	tableStart := int64(gd.InodeTableBlock) * int64(v.sb.blockSize)
	return tableStart + int64(indexInGroup)*int64(v.sb.inodeSize), nil
}

// GetInode reads and parses inode n.
func (v *Volume) GetInode(n uint32) (Inode, error) {
	offset, err := v.inodeByteOffset(n)
	if err != nil {
		return Inode{}, err
	}

	raw := make([]byte, v.sb.inodeSize)
	if _, err := v.storage.ReadAt(raw, offset); err != nil {
		return Inode{}, fmt.Errorf("reading inode %d: %w", n, err)
	}

	return inodeFromBytes(raw, offset)
}

// Params is a pure-value snapshot of the fields the niche locator needs,
// decoupled from the live Volume (and its I/O) so Locate stays a pure
// function, per the Locator Purity testable property.
type Params struct {
	BlockSize         uint32
	BlocksPerGroup    uint32
	InodesPerGroup    uint32
	InodesCount       uint32
	InodeSize         uint16
	ReservedGDTBlocks uint16
	GroupCount        int
	GroupDescriptors  []GroupDescriptor
}

// Params snapshots the volume's parameters.
func (v *Volume) Params() Params {
	gds := make([]GroupDescriptor, len(v.gds))
	copy(gds, v.gds)
	return Params{
		BlockSize:         v.sb.blockSize,
		BlocksPerGroup:    v.sb.blocksPerGroup,
		InodesPerGroup:    v.sb.inodesPerGroup,
		InodesCount:       v.sb.inodesCount,
		InodeSize:         v.sb.inodeSize,
		ReservedGDTBlocks: v.sb.reservedGDTBlocks,
		GroupCount:        len(v.gds),
		GroupDescriptors:  gds,
	}
}
