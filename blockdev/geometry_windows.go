//go:build windows

package blockdev

import "os"

// Windows device size probing is not implemented; regular files and images
// are supported, raw devices are not.
func (d *Device) probeGeometry() error {
	ok, err := d.probeRegular()
	if err != nil {
		return err
	}
	if !ok {
		return os.ErrInvalid
	}
	return nil
}
