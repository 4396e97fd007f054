//go:build !(aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris)

package file

import (
	"errors"

	"github.com/RajeckMassa/DHEXT4/backend"
)

// DeviceSize is unsupported on this platform: there is no ioctl to query a
// raw block device's size, so callers must rely on Stat().Size() instead.
func DeviceSize(storage backend.Storage) (int64, error) {
	return 0, errors.New("block device size queries not supported on this platform")
}

// IsBlockDevice always reports false on this platform: raw device nodes
// aren't distinguishable from regular files without the unix os.FileMode
// device bit.
func IsBlockDevice(storage backend.Storage) (bool, error) {
	return false, nil
}
