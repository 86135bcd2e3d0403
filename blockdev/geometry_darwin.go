//go:build darwin

package blockdev

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	dkiocGetBlockSize  = 0x40046418 // _IOR('d', 24, uint32)
	dkiocGetBlockCount = 0x40086419 // _IOR('d', 25, uint64)
)

func (d *Device) probeGeometry() error {
	if ok, err := d.probeRegular(); err != nil || ok {
		return err
	}

	fd := d.f.Fd()
	var blockSize uint32
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, dkiocGetBlockSize, uintptr(unsafe.Pointer(&blockSize))); errno != 0 {
		return fmt.Errorf("DKIOCGETBLOCKSIZE: %w", errno)
	}
	var blockCount uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, dkiocGetBlockCount, uintptr(unsafe.Pointer(&blockCount))); errno != 0 {
		return fmt.Errorf("DKIOCGETBLOCKCOUNT: %w", errno)
	}

	d.logicalBlockSize = uint64(blockSize)
	// macOS does not expose a physical block size through dkio; report the
	// logical size.
	d.physicalBlockSize = uint64(blockSize)
	d.logicalBlockCount = blockCount
	return nil
}
