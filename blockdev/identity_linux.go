//go:build linux

package blockdev

import (
	"os"
	"path/filepath"
	"strings"
)

// Identity returns a stable string identifying the device: model and serial
// from sysfs when available, otherwise the path and capacity. Feeds the
// captcha token and the default bad-block file name.
func (d *Device) Identity() string {
	base := filepath.Base(d.path)
	sysPath := filepath.Join("/sys/block", base, "device")
	if _, err := os.Stat(sysPath); err != nil {
		sysPath = filepath.Join("/sys/class/block", base, "device")
	}

	var parts []string
	for _, attr := range []string{"model", "serial"} {
		b, err := os.ReadFile(filepath.Join(sysPath, attr))
		if err != nil {
			continue
		}
		if s := strings.TrimSpace(string(b)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "-")
	}
	return d.fallbackIdentity()
}
