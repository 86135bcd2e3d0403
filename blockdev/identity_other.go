//go:build !linux

package blockdev

// Identity returns a stable string identifying the device. Without sysfs,
// the path and capacity have to do.
func (d *Device) Identity() string {
	return d.fallbackIdentity()
}
