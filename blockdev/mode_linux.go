//go:build linux

package blockdev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetMode switches between buffered and direct I/O. Must be called before a
// run starts; the mode is held fixed for the run's duration.
func (d *Device) SetMode(m Mode) error {
	flags, err := unix.FcntlInt(d.f.Fd(), unix.F_GETFL, 0)
	if err != nil {
		return fmt.Errorf("F_GETFL: %w", err)
	}
	switch m {
	case ModeDirect:
		flags |= unix.O_DIRECT
	default:
		flags &^= unix.O_DIRECT
	}
	if _, err := unix.FcntlInt(d.f.Fd(), unix.F_SETFL, flags); err != nil {
		return fmt.Errorf("set rwtype %s: %w", m, err)
	}
	d.mode = m
	return nil
}
