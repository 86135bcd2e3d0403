//go:build windows

package blockdev

import "fmt"

func (d *Device) SetMode(m Mode) error {
	if m == ModeDirect {
		return fmt.Errorf("rwtype direct is not supported on Windows")
	}
	d.mode = m
	return nil
}
