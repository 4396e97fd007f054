package niche

// Run is one contiguous byte range within an image.
type Run struct {
	Offset int64
	Length int64
}

// Location is where one niche instance lives and what it should contain
// when idle. Most niches are a single contiguous Run; reserved_inode
// additionally carries Second, the run on the far side of the inode
// checksum field that the filesystem itself may legitimately populate.
type Location struct {
	Offset int64
	Length int64
	Fill   Fill
	Second *Run
}

// TotalLength is the sum of the primary run and, if present, Second —
// the capacity a Hider payload must fit within.
func (l Location) TotalLength() int64 {
	total := l.Length
	if l.Second != nil {
		total += l.Second.Length
	}
	return total
}
