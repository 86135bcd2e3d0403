//go:build darwin

package blockdev

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// mountpointOf reports where a device (or one of its slices) is mounted, or
// "" if it is not.
func mountpointOf(dev string) string {
	if !strings.HasPrefix(dev, "/dev/") {
		return ""
	}
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil || n <= 0 {
		return ""
	}
	buf := make([]unix.Statfs_t, n)
	if _, err := unix.Getfsstat(buf, unix.MNT_NOWAIT); err != nil {
		return ""
	}
	for _, st := range buf {
		from := cString(st.Mntfromname[:])
		on := cString(st.Mntonname[:])
		if from == dev || strings.HasPrefix(from, dev+"s") {
			return filepath.Clean(on)
		}
	}
	return ""
}

func cString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
