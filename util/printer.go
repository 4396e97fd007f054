// Package util renders the byte-level divergence between a backup
// superblock copy and the reference copy the Detector compares it
// against, for the Detector's Debug-level incident log line.
package util

import (
	"fmt"
	"strings"
)

// SuperblockDiff compares primary (the reference copy) and backup — same-length byte runs
// covering one half of the backup_superblock split-compare region — and
// reports whether they differ. When they do, dump lists every differing
// byte's offset (relative to the start of half) and its value in each
// copy, rather than a full hex dump of a region that is mostly identical.
func SuperblockDiff(group int, half string, primary, backup []byte) (differs bool, dump string) {
	n := len(primary)
	if len(backup) < n {
		n = len(backup)
	}

	var b strings.Builder
	count := 0
	for i := 0; i < n; i++ {
		if primary[i] == backup[i] {
			continue
		}
		count++
		fmt.Fprintf(&b, "  +%#04x primary=%#02x backup=%#02x\n", i, primary[i], backup[i])
	}
	if count == 0 {
		return false, ""
	}

	header := fmt.Sprintf("group %d backup superblock %s half diverges at %d byte(s):\n", group, half, count)
	return true, header + b.String()
}
