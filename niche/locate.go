package niche

import "github.com/RajeckMassa/DHEXT4/volume"

// Selector carries the caller-chosen coordinates a niche formula needs
// beyond the volume's own parameters: which group, which group-descriptor
// slot within a backup copy, which growth block, and (for per-inode
// niches) the already-resolved inode.
type Selector struct {
	Group      uint32
	GDIndex    int
	BlockIndex int
	Inode      volume.Inode
}

const (
	reservedSpaceInodeOffset = 0x7A
	osd2Offset               = 0x7E
	reservedInodeChecksumLo  = 0x7C
	reservedInodeChecksumHi  = 0x7E
	extendedAttributesBase   = 0x80
)

// blockGroupPad is EXT4's "padding for PBS" correction in blocks: a
// 1024-byte-block image reserves one extra block ahead of every sparse
// backup copy to skip the partition boot sector.
func blockGroupPad(blockSize uint32) int64 {
	if blockSize == 1024 {
		return 1
	}
	return 0
}

// Locate computes the byte location and expected idle fill for tag, given
// only volume parameters and a caller selection — no I/O, no randomness.
func Locate(tag Tag, p volume.Params, sel Selector) (Location, error) {
	B := int64(p.BlockSize)
	G := int64(p.BlocksPerGroup)
	pad := blockGroupPad(p.BlockSize)

	switch tag {
	case PartitionBootSector:
		return Location{Offset: 0, Length: 1024, Fill: FillZeros}, nil

	case SuperblockSlack:
		if B <= 1024 {
			return Location{}, &LocateError{Kind: BlockSizeTooSmall, Niche: tag}
		}
		if sel.Group == 0 {
			return Location{Offset: 2048, Length: B - 2048, Fill: FillZeros}, nil
		}
		if !IsBackup(sel.Group) {
			return Location{}, &LocateError{Kind: TooFewGroups, Niche: tag}
		}
		offset := int64(sel.Group)*G*B + 1024
		return Location{Offset: offset, Length: B - 1024, Fill: FillZeros}, nil

	case BackupSuperblock:
		if p.GroupCount < 3 {
			return Location{}, &LocateError{Kind: TooFewGroups, Niche: tag}
		}
		if !IsBackup(sel.Group) {
			return Location{}, &LocateError{Kind: TooFewGroups, Niche: tag}
		}
		offset := (int64(sel.Group)*G + pad) * B
		return Location{Offset: offset, Length: 1024, Fill: FillCompareToPrimary}, nil

	case GDReserved:
		if !IsBackup(sel.Group) {
			return Location{}, &LocateError{Kind: TooFewGroups, Niche: tag}
		}
		base := (int64(sel.Group)*G + pad + 1) * B
		offset := base + 0x3C + 64*int64(sel.GDIndex)
		return Location{Offset: offset, Length: 4, Fill: FillZeros}, nil

	case GrowthBlocks:
		return locateGrowthBlocks(tag, p, sel, B, G, pad)

	case InodeBitmap:
		gd, err := groupDescriptorAt(tag, p, sel.Group)
		if err != nil {
			return Location{}, err
		}
		skip := int64(p.InodesPerGroup) / 8
		offset := int64(gd.InodeBitmapBlock)*B + skip
		return Location{Offset: offset, Length: B - skip, Fill: FillOnesOrZeros}, nil

	case BlockBitmap:
		if G == B*8 {
			return Location{}, &LocateError{Kind: BlockSizeTooSmall, Niche: tag}
		}
		gd, err := groupDescriptorAt(tag, p, sel.Group)
		if err != nil {
			return Location{}, err
		}
		skip := G / 8
		offset := int64(gd.BlockBitmapBlock)*B + skip
		return Location{Offset: offset, Length: B - skip, Fill: FillOnesOrZeros}, nil

	case ReservedSpaceInode:
		return Location{Offset: sel.Inode.ByteOffset + reservedSpaceInodeOffset, Length: 2, Fill: FillZeros}, nil

	case OSD2:
		return Location{Offset: sel.Inode.ByteOffset + osd2Offset, Length: 2, Fill: FillZeros}, nil

	case ReservedInode:
		inodeSize := int64(p.InodeSize)
		return Location{
			Offset: sel.Inode.ByteOffset,
			Length: reservedInodeChecksumLo,
			Fill:   FillZeros,
			Second: &Run{
				Offset: sel.Inode.ByteOffset + reservedInodeChecksumHi,
				Length: inodeSize - reservedInodeChecksumHi,
			},
		}, nil

	case ExtendedAttributes:
		if p.InodeSize <= 128 {
			return Location{}, &LocateError{Kind: MissingRequiredInput, Niche: tag}
		}
		start := int64(extendedAttributesBase) + int64(sel.Inode.ExtraISize)
		length := int64(p.InodeSize) - start
		if length <= 0 {
			return Location{}, &LocateError{Kind: MissingRequiredInput, Niche: tag}
		}
		return Location{Offset: sel.Inode.ByteOffset + start, Length: length, Fill: FillZeros}, nil

	case FileSlack:
		if !sel.Inode.IsFile {
			return Location{}, &LocateError{Kind: NotARegularFile, Niche: tag}
		}
		ext, ok := sel.Inode.FirstExtent()
		if !ok {
			return Location{}, &LocateError{Kind: NoFirstExtent, Niche: tag}
		}
		used := int64(sel.Inode.LengthBytes) % B
		if used == 0 {
			return Location{}, &LocateError{Kind: FullyUsedFinalBlock, Niche: tag}
		}
		endBlock := (int64(ext.StartBlock) + int64(ext.BlockCount) - 1) * B
		return Location{Offset: endBlock + used, Length: B - used, Fill: FillZeros}, nil
	}

	return Location{}, &LocateError{Kind: UnknownNiche, Niche: tag}
}

func groupDescriptorAt(tag Tag, p volume.Params, g uint32) (volume.GroupDescriptor, error) {
	if int(g) >= len(p.GroupDescriptors) {
		return volume.GroupDescriptor{}, &LocateError{Kind: MissingRequiredInput, Niche: tag}
	}
	return p.GroupDescriptors[g], nil
}

// locateGrowthBlocks computes one block's worth of the reserved GDT
// growth region for group sel.Group, selecting block sel.BlockIndex out
// of the reservedGDTBlocks available (0 is the Hider's default: the
// first eligible block).
//
// The boundary is clamped to stop before the first block group's block
// bitmap rather than copying the source tool's sticky one-block latch,
// which keeps shrinking every later group's range by one block once it
// fires once, even where there is no collision.
//
// offsetGDTNumber rounds reservedBlocks/8 up, not down: the reserved GDT
// index bitmap occupies a partial byte whenever reservedBlocks isn't a
// multiple of 8, and floor division would overlap that last byte.
func locateGrowthBlocks(tag Tag, p volume.Params, sel Selector, B, G, pad int64) (Location, error) {
	if !IsBackup(sel.Group) {
		return Location{}, &LocateError{Kind: TooFewGroups, Niche: tag}
	}
	if p.ReservedGDTBlocks == 0 || len(p.GroupDescriptors) == 0 {
		return Location{}, &LocateError{Kind: MissingRequiredInput, Niche: tag}
	}

	skipStart := pad + 1
	skipBlocks := int64(p.GroupCount)*64/B + 1
	start := skipStart + skipBlocks + int64(sel.Group)*G
	reservedBlocks := int64(p.ReservedGDTBlocks)
	end := start + reservedBlocks

	startBitmap := int64(p.GroupDescriptors[0].BlockBitmapBlock) + 1
	if end > startBitmap {
		end = startBitmap
	}

	blockIndex := start + int64(sel.BlockIndex)
	if blockIndex < start || blockIndex >= end {
		return Location{}, &LocateError{Kind: MissingRequiredInput, Niche: tag}
	}

	offsetGDTNumber := (reservedBlocks + 7) / 8
	offset := blockIndex*B + offsetGDTNumber
	return Location{Offset: offset, Length: B - offsetGDTNumber, Fill: FillZeros}, nil
}
