//go:build linux

package blockdev

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func (d *Device) probeGeometry() error {
	if ok, err := d.probeRegular(); err != nil || ok {
		return err
	}

	fd := int(d.f.Fd())
	lbs, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
	if err != nil {
		return fmt.Errorf("BLKSSZGET: %w", err)
	}
	pbs, err := unix.IoctlGetInt(fd, unix.BLKPBSZGET)
	if err != nil {
		// Old kernels; fall back to the logical size.
		pbs = lbs
	}
	size, err := ioctlGetUint64(d.f.Fd(), unix.BLKGETSIZE64)
	if err != nil {
		return fmt.Errorf("BLKGETSIZE64: %w", err)
	}

	d.logicalBlockSize = uint64(lbs)
	d.physicalBlockSize = uint64(pbs)
	d.logicalBlockCount = size / uint64(lbs)
	return nil
}

func ioctlGetUint64(fd uintptr, req uint) (uint64, error) {
	var v uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(&v))); errno != 0 {
		return 0, errno
	}
	return v, nil
}
