package volume

import "encoding/binary"

const (
	groupDescriptorSize32 = 32
	groupDescriptorSize64 = 64
)

// GroupDescriptor carries the three block locations the niche locator
// needs out of a block group's descriptor entry. Field offsets are
// grounded on EXT4's on-disk group descriptor layout.
type GroupDescriptor struct {
	BlockBitmapBlock uint64
	InodeBitmapBlock uint64
	InodeTableBlock  uint64
}

// groupDescriptorsFromBytes parses count group descriptors out of b,
// starting at b[0].
func groupDescriptorsFromBytes(b []byte, count int, is64Bit bool) []GroupDescriptor {
	size := groupDescriptorSize32
	if is64Bit {
		size = groupDescriptorSize64
	}

	out := make([]GroupDescriptor, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		if start+size > len(b) {
			break
		}
		out = append(out, groupDescriptorFromBytes(b[start:start+size], is64Bit))
	}
	return out
}

func groupDescriptorFromBytes(b []byte, is64Bit bool) GroupDescriptor {
	blockBitmap := uint64(binary.LittleEndian.Uint32(b[0x0:0x4]))
	inodeBitmap := uint64(binary.LittleEndian.Uint32(b[0x4:0x8]))
	inodeTable := uint64(binary.LittleEndian.Uint32(b[0x8:0xc]))

	if is64Bit && len(b) >= groupDescriptorSize64 {
		blockBitmap |= uint64(binary.LittleEndian.Uint32(b[0x20:0x24])) << 32
		inodeBitmap |= uint64(binary.LittleEndian.Uint32(b[0x24:0x28])) << 32
		inodeTable |= uint64(binary.LittleEndian.Uint32(b[0x28:0x2c])) << 32
	}

	return GroupDescriptor{
		BlockBitmapBlock: blockBitmap,
		InodeBitmapBlock: inodeBitmap,
		InodeTableBlock:  inodeTable,
	}
}
