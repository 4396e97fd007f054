package detect

import (
	"fmt"

	"github.com/RajeckMassa/DHEXT4/niche"
)

// NoInode is the sentinel inode number for an incident not tied to a
// specific inode: the superblock, the PBS, a group descriptor, and so on.
const NoInode = -1

// Incident records one non-idle niche occurrence found during a scan.
type Incident struct {
	InodeNumber    int64
	Message        string
	NicheTag       niche.Tag
	MatchedPayload bool
}

// Report is the result of one full scan.
type Report struct {
	Incidents      []Incident
	TechniquesSeen map[niche.Tag]bool
}

// String renders an incident as "inode, message, matched" in the same
// shape the original tool's report line used, independent of any logging
// configuration.
func (i Incident) String() string {
	inode := "-"
	if i.InodeNumber != NoInode {
		inode = fmt.Sprintf("%d", i.InodeNumber)
	}
	return fmt.Sprintf("%s, %s, matched=%v", inode, i.Message, i.MatchedPayload)
}

func newReport() *Report {
	return &Report{TechniquesSeen: make(map[niche.Tag]bool)}
}

func (r *Report) add(inc Incident) {
	r.Incidents = append(r.Incidents, inc)
	r.TechniquesSeen[inc.NicheTag] = true
}
