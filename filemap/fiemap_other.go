//go:build !linux

package filemap

import "fmt"

// File-to-block mapping relies on the FIEMAP ioctl, which only Linux
// exposes in a usable form.
func FileExtents(path string) ([]Extent, error) {
	return nil, fmt.Errorf("file block mapping for %s requires FIEMAP, which this platform does not provide", path)
}
