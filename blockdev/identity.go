package blockdev

import (
	"fmt"
	"path/filepath"
)

func (d *Device) fallbackIdentity() string {
	return fmt.Sprintf("%s-%d", filepath.Base(d.path), d.SizeBytes())
}
