//go:build linux

package filemap

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FS_IOC_FIEMAP and the wire structs from linux/fiemap.h.
const (
	fsIocFiemap = 0xc020660b

	fiemapFlagSync   = 0x1
	fiemapExtentLast = 0x1

	extentsPerCall = 64
)

type fiemapExtent struct {
	Logical    uint64
	Physical   uint64
	Length     uint64
	Reserved64 [2]uint64
	Flags      uint32
	Reserved   [3]uint32
}

type fiemapArg struct {
	Start         uint64
	Length        uint64
	Flags         uint32
	MappedExtents uint32
	ExtentCount   uint32
	Reserved      uint32
	Extents       [extentsPerCall]fiemapExtent
}

// FileExtents returns the physical extents backing a file, via FIEMAP.
func FileExtents(path string) ([]Extent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Extent
	start := uint64(0)
	for {
		arg := fiemapArg{
			Start:       start,
			Length:      ^uint64(0) - start,
			Flags:       fiemapFlagSync,
			ExtentCount: extentsPerCall,
		}
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), fsIocFiemap, uintptr(unsafe.Pointer(&arg))); errno != 0 {
			return nil, fmt.Errorf("FIEMAP %s: %w", path, errno)
		}
		if arg.MappedExtents == 0 {
			return out, nil
		}
		for i := uint32(0); i < arg.MappedExtents; i++ {
			e := arg.Extents[i]
			out = append(out, Extent{Logical: e.Logical, Physical: e.Physical, Length: e.Length})
			start = e.Logical + e.Length
			if e.Flags&fiemapExtentLast != 0 {
				return out, nil
			}
		}
	}
}
