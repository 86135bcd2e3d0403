//go:build darwin

package blockdev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetMode switches between buffered and uncached I/O. macOS has no O_DIRECT;
// F_NOCACHE is the closest equivalent.
func (d *Device) SetMode(m Mode) error {
	arg := 0
	if m == ModeDirect {
		arg = 1
	}
	if _, err := unix.FcntlInt(d.f.Fd(), unix.F_NOCACHE, arg); err != nil {
		return fmt.Errorf("set rwtype %s: %w", m, err)
	}
	d.mode = m
	return nil
}
