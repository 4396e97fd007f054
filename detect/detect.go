// Package detect drives the Locator across every niche, every inode, and
// every block group, reporting which locations hold more than the idle
// fill EXT4 itself would leave there.
package detect

import (
	"bytes"
	"fmt"

	"github.com/RajeckMassa/DHEXT4/backend"
	"github.com/RajeckMassa/DHEXT4/niche"
	"github.com/RajeckMassa/DHEXT4/util"
	"github.com/RajeckMassa/DHEXT4/volume"
	"github.com/sirupsen/logrus"
)

const (
	backupFirstHalfLen  = 90
	backupSecondHalfOff = 0x5E
	backupSecondHalfLen = 926
)

// Engine opens one EXT4 image and scans it for non-idle niches.
type Engine struct {
	vol     *volume.Volume
	storage backend.Storage
	log     *logrus.Entry
}

// Open parses storage's superblock and group descriptors. storage may be
// opened read-only: the Detector never writes.
func Open(storage backend.Storage, log *logrus.Logger) (*Engine, error) {
	vol, err := volume.Open(storage)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{vol: vol, storage: storage, log: log.WithField("component", "detect")}, nil
}

// Scan walks every niche instance in the image and reports the ones that
// are not idle. patterns is nil for "don't search", or one-or-more byte
// patterns to look for inside non-idle buffers.
func (e *Engine) Scan(patterns [][]byte) (*Report, error) {
	report := newReport()
	params := e.vol.Params()

	for _, tag := range niche.AllTags() {
		if err := e.scanTag(tag, params, patterns, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (e *Engine) scanTag(tag niche.Tag, p volume.Params, patterns [][]byte, report *Report) error {
	switch tag {
	case niche.PartitionBootSector:
		return e.checkLocation(tag, p, niche.Selector{}, NoInode, patterns, report)

	case niche.InodeBitmap, niche.BlockBitmap:
		for g := 0; g < p.GroupCount; g++ {
			if err := e.checkLocation(tag, p, niche.Selector{Group: uint32(g)}, NoInode, patterns, report); err != nil {
				return err
			}
		}
		return nil

	case niche.SuperblockSlack:
		for g := 0; g < p.GroupCount; g++ {
			if err := e.checkLocation(tag, p, niche.Selector{Group: uint32(g)}, NoInode, patterns, report); err != nil {
				return err
			}
		}
		return nil

	case niche.GDReserved:
		for g := 0; g < p.GroupCount; g++ {
			if !niche.IsBackup(uint32(g)) {
				continue
			}
			for i := 0; i < p.GroupCount; i++ {
				sel := niche.Selector{Group: uint32(g), GDIndex: i}
				if err := e.checkLocation(tag, p, sel, NoInode, patterns, report); err != nil {
					return err
				}
			}
		}
		return nil

	case niche.GrowthBlocks:
		for g := 0; g < p.GroupCount; g++ {
			if !niche.IsBackup(uint32(g)) {
				continue
			}
			for bi := 0; ; bi++ {
				sel := niche.Selector{Group: uint32(g), BlockIndex: bi}
				loc, err := niche.Locate(tag, p, sel)
				if err != nil {
					break // ran past the reserved range for this group
				}
				if err := e.compareAndRecord(tag, loc, NoInode, patterns, report); err != nil {
					return err
				}
			}
		}
		return nil

	case niche.BackupSuperblock:
		return e.scanBackupSuperblock(p, patterns, report)

	case niche.ReservedSpaceInode, niche.OSD2, niche.ExtendedAttributes, niche.FileSlack:
		for n := uint32(1); n <= p.InodesCount; n++ {
			if err := e.checkInodeNiche(tag, p, n, patterns, report); err != nil {
				return err
			}
		}
		return nil

	case niche.ReservedInode:
		for _, n := range [2]uint32{9, 10} {
			if err := e.checkInodeNiche(tag, p, n, patterns, report); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func (e *Engine) checkInodeNiche(tag niche.Tag, p volume.Params, n uint32, patterns [][]byte, report *Report) error {
	inode, err := e.vol.GetInode(n)
	if err != nil {
		return fmt.Errorf("reading inode %d: %w", n, err)
	}
	sel := niche.Selector{Inode: inode}
	return e.checkLocation(tag, p, sel, int64(n), patterns, report)
}

func (e *Engine) checkLocation(tag niche.Tag, p volume.Params, sel niche.Selector, inodeNumber int64, patterns [][]byte, report *Report) error {
	loc, err := niche.Locate(tag, p, sel)
	if err != nil {
		return nil // infeasible niches are silently skipped, never an error
	}
	return e.compareAndRecord(tag, loc, inodeNumber, patterns, report)
}

func (e *Engine) compareAndRecord(tag niche.Tag, loc niche.Location, inodeNumber int64, patterns [][]byte, report *Report) error {
	primary := make([]byte, loc.Length)
	if _, err := e.storage.ReadAt(primary, loc.Offset); err != nil {
		return fmt.Errorf("reading %s at %d: %w", tag, loc.Offset, err)
	}

	var second []byte
	if loc.Second != nil {
		second = make([]byte, loc.Second.Length)
		if _, err := e.storage.ReadAt(second, loc.Second.Offset); err != nil {
			return fmt.Errorf("reading %s at %d: %w", tag, loc.Second.Offset, err)
		}
	}

	idle := loc.Fill.IsIdle(primary) && (second == nil || loc.Fill.IsIdle(second))
	if idle {
		return nil
	}

	matched := matchesAny(primary, patterns) || matchesAny(second, patterns)
	report.add(Incident{
		InodeNumber:    inodeNumber,
		Message:        incidentMessage(tag, inodeNumber),
		NicheTag:       tag,
		MatchedPayload: matched,
	})
	e.log.WithFields(logrus.Fields{"niche": tag, "inode": inodeNumber}).Debug("incident recorded")
	return nil
}

// scanBackupSuperblock compares every sparse backup superblock copy from
// group 1 upward against the reference copy in group 1, at (G + pad)·B.
func (e *Engine) scanBackupSuperblock(p volume.Params, patterns [][]byte, report *Report) error {
	primaryLoc, err := niche.Locate(niche.BackupSuperblock, p, niche.Selector{Group: 1})
	if err != nil {
		return nil
	}
	primary := make([]byte, primaryLoc.Length)
	if _, err := e.storage.ReadAt(primary, primaryLoc.Offset); err != nil {
		return fmt.Errorf("reading reference superblock copy at %d: %w", primaryLoc.Offset, err)
	}
	primaryFirst := primary[:backupFirstHalfLen]
	primarySecond := primary[backupSecondHalfOff : backupSecondHalfOff+backupSecondHalfLen]

	for g := 1; g < p.GroupCount; g++ {
		if !niche.IsBackup(uint32(g)) {
			continue
		}
		loc, err := niche.Locate(niche.BackupSuperblock, p, niche.Selector{Group: uint32(g)})
		if err != nil {
			continue
		}
		backup := make([]byte, loc.Length)
		if _, err := e.storage.ReadAt(backup, loc.Offset); err != nil {
			return fmt.Errorf("reading backup superblock %d at %d: %w", g, loc.Offset, err)
		}
		backupFirst := backup[:backupFirstHalfLen]
		backupSecond := backup[backupSecondHalfOff : backupSecondHalfOff+backupSecondHalfLen]

		firstDiffers, firstDump := util.SuperblockDiff(g, "first", primaryFirst, backupFirst)
		secondDiffers, secondDump := util.SuperblockDiff(g, "second", primarySecond, backupSecond)
		if !firstDiffers && !secondDiffers {
			continue
		}
		e.log.WithField("group", g).Debug(firstDump + secondDump)

		matched := matchesAny(backupFirst, patterns) || matchesAny(backupSecond, patterns)
		report.add(Incident{
			InodeNumber:    NoInode,
			Message:        fmt.Sprintf("superblock copy %d is not the same as the reference copy in group 1", g),
			NicheTag:       niche.BackupSuperblock,
			MatchedPayload: matched,
		})
	}
	return nil
}

func matchesAny(buf []byte, patterns [][]byte) bool {
	if len(buf) == 0 {
		return false
	}
	for _, p := range patterns {
		if len(p) > 0 && bytes.Contains(buf, p) {
			return true
		}
	}
	return false
}

func incidentMessage(tag niche.Tag, inodeNumber int64) string {
	if inodeNumber == NoInode {
		return fmt.Sprintf("%s is not empty", tag)
	}
	return fmt.Sprintf("%s is not empty on inode %d", tag, inodeNumber)
}
