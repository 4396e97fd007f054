package detect

import (
	"encoding/binary"
	"testing"

	"github.com/RajeckMassa/DHEXT4/hide"
	"github.com/RajeckMassa/DHEXT4/niche"
	"github.com/RajeckMassa/DHEXT4/testhelper"
)

const (
	testBlockSize      = 4096
	testBlocksPerGroup = 64
	testGroupCount     = 4
	testInodesPerGroup = 32
	testInodeSize      = 256
)

// buildTestImage lays out a minimal, internally-consistent EXT4 superblock
// and group descriptor table: the same synthetic layout the hide package's
// tests use, kept separate so each package's tests stay self-contained.
func buildTestImage(t *testing.T) *testhelper.MemImage {
	t.Helper()
	blocksCount := testBlocksPerGroup * testGroupCount
	img := testhelper.NewMemImage(blocksCount * testBlockSize)
	b := img.Bytes

	sb := b[1024:2048]
	binary.LittleEndian.PutUint32(sb[0x0:0x4], testInodesPerGroup*testGroupCount)
	binary.LittleEndian.PutUint32(sb[0x4:0x8], uint32(blocksCount))
	binary.LittleEndian.PutUint32(sb[0x18:0x1c], 2) // log_block_size=2 -> 4096
	binary.LittleEndian.PutUint32(sb[0x20:0x24], testBlocksPerGroup)
	binary.LittleEndian.PutUint32(sb[0x28:0x2c], testInodesPerGroup)
	binary.LittleEndian.PutUint16(sb[0x38:0x3a], 0xef53)
	binary.LittleEndian.PutUint16(sb[0x58:0x5a], testInodeSize)

	gdt := b[testBlockSize : testBlockSize+testGroupCount*32]
	for g := 0; g < testGroupCount; g++ {
		entry := gdt[g*32 : g*32+32]
		base := uint32(g * testBlocksPerGroup)
		binary.LittleEndian.PutUint32(entry[0x0:0x4], base+2) // block bitmap
		binary.LittleEndian.PutUint32(entry[0x4:0x8], base+3) // inode bitmap
		binary.LittleEndian.PutUint32(entry[0x8:0xc], base+4) // inode table
	}

	return img
}

func inodeOffset(n uint32) int64 {
	idx := n - 1
	group := idx / testInodesPerGroup
	indexInGroup := idx % testInodesPerGroup
	tableBlock := int64(group*testBlocksPerGroup + 4)
	return tableBlock*testBlockSize + int64(indexInGroup)*testInodeSize
}

func writeExtentFileInode(img *testhelper.MemImage, n uint32, startBlock uint32, blockCount uint16, sizeBytes uint32) {
	off := inodeOffset(n)
	rec := img.Bytes[off : off+testInodeSize]
	binary.LittleEndian.PutUint16(rec[0x0:0x2], 0x8180) // regular file
	binary.LittleEndian.PutUint32(rec[0x4:0x8], sizeBytes)
	binary.LittleEndian.PutUint32(rec[0x20:0x24], 0x80000) // uses extents

	root := rec[0x28 : 0x28+60]
	binary.LittleEndian.PutUint16(root[0:2], 0xf30a)
	binary.LittleEndian.PutUint16(root[2:4], 1)
	binary.LittleEndian.PutUint16(root[4:6], 4)
	binary.LittleEndian.PutUint16(root[6:8], 0)
	leaf := root[12:24]
	binary.LittleEndian.PutUint32(leaf[0:4], 0)
	binary.LittleEndian.PutUint16(leaf[4:6], blockCount)
	binary.LittleEndian.PutUint16(leaf[6:8], 0)
	binary.LittleEndian.PutUint32(leaf[8:12], startBlock)
}

func openDetectEngine(t *testing.T, img *testhelper.MemImage) *Engine {
	t.Helper()
	e, err := Open(img.File(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func TestScanCleanImageFindsNothing(t *testing.T) {
	img := buildTestImage(t)
	writeExtentFileInode(img, 6, 10, 2, 4096) // exactly fills its final block: no slack

	e := openDetectEngine(t, img)
	report, err := e.Scan(nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Incidents) != 0 {
		t.Errorf("got %d incidents on a clean image, want 0: %+v", len(report.Incidents), report.Incidents)
	}
	if len(report.TechniquesSeen) != 0 {
		t.Errorf("got TechniquesSeen = %v, want empty", report.TechniquesSeen)
	}
}

func TestHideThenScanRoundTrip(t *testing.T) {
	img := buildTestImage(t)

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	payload := []byte("se") // osd2 only holds 2 bytes
	ino := uint32(5)
	if _, err := hideEngine.Hide(niche.OSD2, payload, hide.Options{Inode: &ino}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan([][]byte{payload})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if !report.TechniquesSeen[niche.OSD2] {
		t.Fatalf("expected OSD2 in TechniquesSeen, got %v", report.TechniquesSeen)
	}

	var found *Incident
	for i := range report.Incidents {
		if report.Incidents[i].NicheTag == niche.OSD2 && report.Incidents[i].InodeNumber == int64(ino) {
			found = &report.Incidents[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("no incident for osd2 on inode %d: %+v", ino, report.Incidents)
	}
	if !found.MatchedPayload {
		t.Errorf("incident did not report a matched payload: %+v", found)
	}
}

func TestHideFileSlackThenScanRoundTrip(t *testing.T) {
	img := buildTestImage(t)
	writeExtentFileInode(img, 6, 10, 2, 5000) // 5000 % 4096 = 904 bytes used in the final block

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	payload := []byte("hiddendata")
	ino := uint32(6)
	if _, err := hideEngine.Hide(niche.FileSlack, payload, hide.Options{Inode: &ino}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan([][]byte{payload})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var found *Incident
	for i := range report.Incidents {
		if report.Incidents[i].NicheTag == niche.FileSlack && report.Incidents[i].InodeNumber == int64(ino) {
			found = &report.Incidents[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("no file_slack incident for inode %d: %+v", ino, report.Incidents)
	}
	if !found.MatchedPayload {
		t.Errorf("incident did not report a matched payload: %+v", found)
	}
}

func TestHideGDReservedThenScanRoundTrip(t *testing.T) {
	img := buildTestImage(t)

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	payload := []byte{0x11, 0x22, 0x33, 0x44}
	if _, err := hideEngine.Hide(niche.GDReserved, payload, hide.Options{}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan([][]byte{payload})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !report.TechniquesSeen[niche.GDReserved] {
		t.Fatalf("expected gd_reserved in TechniquesSeen, got %v", report.TechniquesSeen)
	}
}

func TestHideSuperblockSlackThenScanRoundTrip(t *testing.T) {
	img := buildTestImage(t)

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	payload := []byte("slackdata")
	if _, err := hideEngine.Hide(niche.SuperblockSlack, payload, hide.Options{}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan([][]byte{payload})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !report.TechniquesSeen[niche.SuperblockSlack] {
		t.Fatalf("expected superblock_slack in TechniquesSeen, got %v", report.TechniquesSeen)
	}
}

func TestHideBackupSuperblockThenScanRoundTrip(t *testing.T) {
	img := buildTestImage(t)

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	payload := []byte("backupcopydata")
	if _, err := hideEngine.Hide(niche.BackupSuperblock, payload, hide.Options{}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan([][]byte{payload})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var found *Incident
	for i := range report.Incidents {
		if report.Incidents[i].NicheTag == niche.BackupSuperblock {
			found = &report.Incidents[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("no backup_superblock incident: %+v", report.Incidents)
	}
	if !found.MatchedPayload {
		t.Errorf("incident did not report a matched payload: %+v", found)
	}
}

func TestHideInodeBitmapThenScanRoundTrip(t *testing.T) {
	img := buildTestImage(t)

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	payload := []byte("bitmaptail")
	if _, err := hideEngine.Hide(niche.InodeBitmap, payload, hide.Options{}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan([][]byte{payload})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !report.TechniquesSeen[niche.InodeBitmap] {
		t.Fatalf("expected inode_bitmap in TechniquesSeen, got %v", report.TechniquesSeen)
	}
}

func TestHideBlockBitmapThenScanRoundTrip(t *testing.T) {
	img := buildTestImage(t)

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	payload := []byte("bm")
	if _, err := hideEngine.Hide(niche.BlockBitmap, payload, hide.Options{}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan([][]byte{payload})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !report.TechniquesSeen[niche.BlockBitmap] {
		t.Fatalf("expected block_bitmap in TechniquesSeen, got %v", report.TechniquesSeen)
	}
}

func TestHideExtendedAttributesThenScanRoundTrip(t *testing.T) {
	img := buildTestImage(t)

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	payload := []byte("xattrdata")
	ino := uint32(8)
	if _, err := hideEngine.Hide(niche.ExtendedAttributes, payload, hide.Options{Inode: &ino}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan([][]byte{payload})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var found *Incident
	for i := range report.Incidents {
		if report.Incidents[i].NicheTag == niche.ExtendedAttributes && report.Incidents[i].InodeNumber == int64(ino) {
			found = &report.Incidents[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("no extended_attributes incident for inode %d: %+v", ino, report.Incidents)
	}
	if !found.MatchedPayload {
		t.Errorf("incident did not report a matched payload: %+v", found)
	}
}

// buildGrowthTestImage lays out a synthetic image sized for growth_blocks:
// group 0's block bitmap block is placed far past the reserved GDT growth
// region so the Locator's boundary clamp never triggers, unlike
// buildTestImage's compact layout where every group's metadata sits
// immediately after the group descriptor table.
func buildGrowthTestImage(t *testing.T, blockSize uint32, reservedGDTBlocks uint16) *testhelper.MemImage {
	t.Helper()
	const (
		blocksPerGroup = 64
		groupCount     = 5
		inodesPerGroup = 32
		inodeSize      = 256
		totalBlocks    = blocksPerGroup * groupCount
	)
	logBlockSize := map[uint32]uint32{1024: 0, 2048: 1, 4096: 2}[blockSize]

	img := testhelper.NewMemImage(totalBlocks * int(blockSize))
	b := img.Bytes

	sb := b[1024:2048]
	binary.LittleEndian.PutUint32(sb[0x0:0x4], inodesPerGroup*groupCount)
	binary.LittleEndian.PutUint32(sb[0x4:0x8], totalBlocks)
	binary.LittleEndian.PutUint32(sb[0x18:0x1c], logBlockSize)
	binary.LittleEndian.PutUint32(sb[0x20:0x24], blocksPerGroup)
	binary.LittleEndian.PutUint32(sb[0x28:0x2c], inodesPerGroup)
	binary.LittleEndian.PutUint16(sb[0x38:0x3a], 0xef53)
	binary.LittleEndian.PutUint16(sb[0x58:0x5a], inodeSize)
	binary.LittleEndian.PutUint16(sb[0xce:0xd0], reservedGDTBlocks)

	gdtOffset := int64(blockSize)
	if blockSize == 1024 {
		gdtOffset = 2 * int64(blockSize)
	}
	gdt := b[gdtOffset : gdtOffset+groupCount*32]
	binary.LittleEndian.PutUint32(gdt[0x0:0x4], 1000)

	return img
}

// TestGrowthBlocksRoundTripAcrossBlockSizes hides and re-detects a payload
// in growth_blocks for each of EXT4's three block sizes, with a reserved
// GDT block count (31) that isn't a multiple of 8 — the scenario that
// would have caught the Locator's floor-division regression.
func TestGrowthBlocksRoundTripAcrossBlockSizes(t *testing.T) {
	for _, blockSize := range []uint32{1024, 2048, 4096} {
		img := buildGrowthTestImage(t, blockSize, 31)

		hideEngine, err := hide.Open(img.File(), nil)
		if err != nil {
			t.Fatalf("block size %d: hide.Open: %v", blockSize, err)
		}
		payload := []byte("GROWTH")
		if _, err := hideEngine.Hide(niche.GrowthBlocks, payload, hide.Options{}); err != nil {
			t.Fatalf("block size %d: Hide: %v", blockSize, err)
		}

		detectEngine, err := Open(img.File(), nil)
		if err != nil {
			t.Fatalf("block size %d: Open: %v", blockSize, err)
		}
		report, err := detectEngine.Scan([][]byte{payload})
		if err != nil {
			t.Fatalf("block size %d: Scan: %v", blockSize, err)
		}
		if !report.TechniquesSeen[niche.GrowthBlocks] {
			t.Errorf("block size %d: expected growth_blocks in TechniquesSeen, got %v", blockSize, report.TechniquesSeen)
		}
	}
}

func TestScanWithoutPatternsStillReportsIncident(t *testing.T) {
	img := buildTestImage(t)

	hideEngine, err := hide.Open(img.File(), nil)
	if err != nil {
		t.Fatalf("hide.Open: %v", err)
	}
	ino := uint32(5)
	if _, err := hideEngine.Hide(niche.OSD2, []byte("xy"), hide.Options{Inode: &ino}); err != nil {
		t.Fatalf("Hide: %v", err)
	}

	detectEngine := openDetectEngine(t, img)
	report, err := detectEngine.Scan(nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var found *Incident
	for i := range report.Incidents {
		if report.Incidents[i].NicheTag == niche.OSD2 {
			found = &report.Incidents[i]
		}
	}
	if found == nil {
		t.Fatalf("expected an osd2 incident even with no search patterns")
	}
	if found.MatchedPayload {
		t.Errorf("MatchedPayload should be false with no patterns supplied")
	}
}
