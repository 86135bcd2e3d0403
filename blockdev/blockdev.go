// Package blockdev provides logical-block addressed access to regular files
// and raw block devices, with per-OS geometry probing and a selectable
// read/write mode (buffered or direct).
package blockdev

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("bbf/blockdev")

// Mode selects how reads and writes reach the device.
type Mode int

const (
	// ModeOS performs buffered I/O through the OS page cache.
	ModeOS Mode = iota
	// ModeDirect bypasses the page cache (O_DIRECT on Linux, F_NOCACHE on
	// macOS). Buffers must come from AllocBuffer.
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "os"
}

// ParseMode maps a --rwtype flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "os", "":
		return ModeOS, nil
	case "direct":
		return ModeDirect, nil
	}
	return ModeOS, fmt.Errorf("valid rwtype values are 'os' or 'direct', not %q", s)
}

// Device is a block-addressed handle over a file or raw block device. The
// geometry is probed once at open time and held fixed.
type Device struct {
	f        *os.File
	path     string
	mode     Mode
	readOnly bool

	logicalBlockSize  uint64
	physicalBlockSize uint64
	logicalBlockCount uint64
}

// Open opens path for block-addressed access. A block device that is
// currently mounted is refused unless force is set.
func Open(path string, readOnly, force bool) (*Device, error) {
	if !force {
		if mnt := mountpointOf(path); mnt != "" {
			return nil, fmt.Errorf("%s is mounted on %s; unmount it or pass --force", path, mnt)
		}
	}
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	d := &Device{f: f, path: path, readOnly: readOnly, mode: ModeOS}
	if err := d.probeGeometry(); err != nil {
		f.Close()
		return nil, fmt.Errorf("probe geometry of %s: %w", path, err)
	}
	log.Debugw("opened device", "path", path, "blocks", d.logicalBlockCount,
		"logical", d.logicalBlockSize, "physical", d.physicalBlockSize)
	return d, nil
}

// probeRegular handles the regular-file case shared by every OS: size by
// stat, 512-byte blocks.
func (d *Device) probeRegular() (bool, error) {
	fi, err := d.f.Stat()
	if err != nil {
		return false, err
	}
	if !fi.Mode().IsRegular() {
		return false, nil
	}
	d.logicalBlockSize = 512
	d.physicalBlockSize = 512
	d.logicalBlockCount = uint64(fi.Size()) / 512
	return true, nil
}

// Path returns the path the device was opened with.
func (d *Device) Path() string { return d.path }

// Mode returns the current read/write mode.
func (d *Device) Mode() Mode { return d.mode }

// LogicalBlockSize returns the logical block size in bytes.
func (d *Device) LogicalBlockSize() uint64 { return d.logicalBlockSize }

// PhysicalBlockSize returns the physical block size in bytes.
func (d *Device) PhysicalBlockSize() uint64 { return d.physicalBlockSize }

// LogicalBlockCount returns the number of addressable logical blocks.
func (d *Device) LogicalBlockCount() uint64 { return d.logicalBlockCount }

// SizeBytes returns the device capacity in bytes.
func (d *Device) SizeBytes() uint64 { return d.logicalBlockCount * d.logicalBlockSize }

// DefaultStepping returns the preferred batch size in blocks, sized so one
// batch covers about 1 MiB of I/O.
func (d *Device) DefaultStepping() uint64 {
	s := uint64(1<<20) / d.logicalBlockSize
	if s == 0 {
		s = 1
	}
	return s
}

func (d *Device) checkRange(block, count uint64, buflen int) error {
	if count == 0 || uint64(buflen) != count*d.logicalBlockSize {
		return fmt.Errorf("buffer of %d bytes does not cover %d blocks of %d bytes: %w",
			buflen, count, d.logicalBlockSize, syscall.EINVAL)
	}
	if block >= d.logicalBlockCount || block+count > d.logicalBlockCount {
		return fmt.Errorf("blocks [%d,%d) beyond device end %d: %w",
			block, block+count, d.logicalBlockCount, syscall.EINVAL)
	}
	return nil
}

// ReadBlocks reads count logical blocks starting at block into buf. buf must
// be exactly count blocks long.
func (d *Device) ReadBlocks(block, count uint64, buf []byte) error {
	if err := d.checkRange(block, count, len(buf)); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(buf, int64(block*d.logicalBlockSize)); err != nil {
		return fmt.Errorf("read %d blocks at %d: %w", count, block, err)
	}
	return nil
}

// WriteBlocks writes count logical blocks starting at block from buf.
func (d *Device) WriteBlocks(block, count uint64, buf []byte) error {
	if d.readOnly {
		return fmt.Errorf("%s opened read-only", d.path)
	}
	if err := d.checkRange(block, count, len(buf)); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(buf, int64(block*d.logicalBlockSize)); err != nil {
		return fmt.Errorf("write %d blocks at %d: %w", count, block, err)
	}
	return nil
}

// AllocBuffer returns a buffer covering count blocks, aligned to the logical
// block size. Direct I/O requires the user buffer itself to be aligned.
func (d *Device) AllocBuffer(count uint64) []byte {
	n := int(count * d.logicalBlockSize)
	align := int(d.logicalBlockSize)
	raw := make([]byte, n+align)
	off := int(uintptr(unsafe.Pointer(&raw[0])) & uintptr(align-1))
	if off != 0 {
		off = align - off
	}
	return raw[off : off+n]
}

// Mountpoint returns where the device is currently mounted, or "".
func (d *Device) Mountpoint() string { return mountpointOf(d.path) }

// Sync flushes buffered writes to the device.
func (d *Device) Sync() error { return d.f.Sync() }

// Close releases the device handle.
func (d *Device) Close() error { return d.f.Close() }
