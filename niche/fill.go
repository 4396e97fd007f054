package niche

import "github.com/RajeckMassa/DHEXT4/util/bitmap"

// Fill names the byte pattern a niche is expected to hold when nothing is
// hidden there.
type Fill int

const (
	// FillZeros means every byte is 0x00.
	FillZeros Fill = iota
	// FillOnesOrZeros means every byte is 0x00 or every byte is 0xFF;
	// EXT4's INODE_UNINIT/BLOCK_UNINIT flags permit either.
	FillOnesOrZeros
	// FillCompareToPrimary means the niche is compared byte-for-byte
	// against the primary superblock rather than against a static fill.
	// Only backup_superblock uses this; the Detector special-cases it.
	FillCompareToPrimary
)

func (f Fill) String() string {
	switch f {
	case FillZeros:
		return "zeros"
	case FillOnesOrZeros:
		return "ones-or-zeros"
	case FillCompareToPrimary:
		return "compare-to-primary"
	default:
		return "unknown"
	}
}

// IsIdle reports whether buf matches the expected idle pattern for f.
func (f Fill) IsIdle(buf []byte) bool {
	switch f {
	case FillZeros:
		for _, b := range buf {
			if b != 0x00 {
				return false
			}
		}
		return true
	case FillOnesOrZeros:
		bm := bitmap.FromBytes(buf)
		return bm.AllZero() || bm.AllOnes()
	default:
		return false
	}
}
