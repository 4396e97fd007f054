//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package file

import (
	"os"

	"github.com/RajeckMassa/DHEXT4/backend"
	"golang.org/x/sys/unix"
)

// isBlockDevice reports whether info describes a raw block or character
// device rather than a regular loopback image file.
func isBlockDevice(info os.FileInfo) bool {
	return info.Mode()&os.ModeDevice != 0
}

// DeviceSize returns the size in bytes of a raw block device opened via
// OpenFromPath. Regular image files should use Stat().Size() instead; a
// block device reports a Stat() size of 0, so hiders/detectors pointed at
// /dev/loopN or similar must fall back to this ioctl.
func DeviceSize(storage backend.Storage) (int64, error) {
	f, err := storage.Sys()
	if err != nil {
		return 0, err
	}
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}

// IsBlockDevice reports whether storage is backed by a raw device node.
// A backend with no real os.FileInfo to report (a test double, say) is
// treated as "not a device" rather than an error.
func IsBlockDevice(storage backend.Storage) (bool, error) {
	st, err := storage.Stat()
	if err != nil {
		return false, err
	}
	if st == nil {
		return false, nil
	}
	return isBlockDevice(st), nil
}
