package burnin

import (
	"context"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipswaps/bbf/badblocks"
	"github.com/swipswaps/bbf/surface"
)

// memDevice is a byte-slice backed Device with injectable failures.
type memDevice struct {
	blockSize uint64
	data      []byte

	// When set, consulted before touching data; a non-nil return is the
	// simulated I/O failure.
	readErr  func(block, count uint64) error
	writeErr func(block, count uint64) error

	reads  int
	writes int
}

func newMemDevice(blocks, blockSize uint64) *memDevice {
	d := &memDevice{blockSize: blockSize, data: make([]byte, blocks*blockSize)}
	for i := range d.data {
		d.data[i] = byte(i % 251)
	}
	return d
}

func (d *memDevice) LogicalBlockSize() uint64  { return d.blockSize }
func (d *memDevice) LogicalBlockCount() uint64 { return uint64(len(d.data)) / d.blockSize }
func (d *memDevice) DefaultStepping() uint64   { return 100 }

func (d *memDevice) ReadBlocks(block, count uint64, buf []byte) error {
	d.reads++
	if d.readErr != nil {
		if err := d.readErr(block, count); err != nil {
			return err
		}
	}
	copy(buf, d.data[block*d.blockSize:(block+count)*d.blockSize])
	return nil
}

func (d *memDevice) WriteBlocks(block, count uint64, buf []byte) error {
	d.writes++
	if d.writeErr != nil {
		if err := d.writeErr(block, count); err != nil {
			return err
		}
	}
	copy(d.data[block*d.blockSize:(block+count)*d.blockSize], buf)
	return nil
}

// snapshotRecorder keeps every snapshot a run emits.
type snapshotRecorder struct {
	snaps []surface.Snapshot
}

func (r *snapshotRecorder) Report(s surface.Snapshot) { r.snaps = append(r.snaps, s) }

func TestTrimStepping(t *testing.T) {
	cases := []struct {
		pos, stepping, count, want uint64
	}{
		{0, 100, 1000, 100},
		{900, 100, 1000, 100},
		{950, 100, 1000, 50},
		{999, 100, 1000, 1},
		{1000, 100, 1000, 0},
		{1500, 100, 1000, 0},
		{0, 100, 42, 42},
	}
	for _, c := range cases {
		got := trimStepping(c.pos, c.stepping, c.count)
		assert.Equal(t, c.want, got, "pos=%d stepping=%d count=%d", c.pos, c.stepping, c.count)
	}
}

func TestWithAttempts(t *testing.T) {
	calls := 0
	err := withAttempts(3, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient %d", calls)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = withAttempts(3, func() error {
		calls++
		return fmt.Errorf("persistent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestNewDerivesRange(t *testing.T) {
	dev := newMemDevice(1000, 16)
	list := badblocks.NewList(nil)

	r, err := New(dev, Params{StartBlock: 150, EndBlock: 950, Stepping: 100, Retries: 1}, list, nil)
	require.NoError(t, err)
	start, end := r.Range()
	assert.Equal(t, uint64(100), start, "start rounds down to a stepping boundary")
	assert.Equal(t, uint64(1000), end, "end rounds up but clamps to the device")
	assert.Equal(t, uint64(100), r.Stepping())

	// Stepping 0 selects the device default.
	r, err = New(dev, Params{StartBlock: 0, EndBlock: 1000, Retries: 1}, list, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), r.Stepping())

	_, err = New(dev, Params{StartBlock: 500, EndBlock: 500, Stepping: 100, Retries: 1}, list, nil)
	assert.Error(t, err, "empty range is rejected")

	_, err = New(dev, Params{StartBlock: 0, EndBlock: 1000, Stepping: 100, Retries: 0}, list, nil)
	assert.Error(t, err, "zero retries is rejected")
}

func TestRunHealthyDevice(t *testing.T) {
	dev := newMemDevice(1000, 16)
	before := make([]byte, len(dev.data))
	copy(before, dev.data)

	list := badblocks.NewList(nil)
	rec := &snapshotRecorder{}
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 1000, Stepping: 100,
		Retries: 2, MaxErrors: 5, ReportEvery: time.Hour,
	}, list, rec)
	require.NoError(t, err)

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, 0, list.Len())
	assert.Equal(t, before, dev.data, "every batch is restored to its original contents")

	require.NotEmpty(t, rec.snaps)
	final := rec.snaps[len(rec.snaps)-1]
	assert.Equal(t, uint64(1000), final.Pos)
	assert.Equal(t, uint64(0), final.RangeStart)
	assert.Equal(t, uint64(1000), final.RangeEnd)
}

func TestRunRecordsFailingBatch(t *testing.T) {
	dev := newMemDevice(1000, 16)
	// Every write touching [300,400) fails, including the restore write.
	dev.writeErr = func(block, count uint64) error {
		if block < 400 && block+count > 300 {
			return fmt.Errorf("media error at %d", block)
		}
		return nil
	}

	list := badblocks.NewList(nil)
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 1000, Stepping: 100,
		Retries: 2, MaxErrors: 1000, ReportEvery: time.Hour,
	}, list, nil)
	require.NoError(t, err)

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome, "one bad batch does not end the run")

	want := make([]uint64, 0, 100)
	for b := uint64(300); b < 400; b++ {
		want = append(want, b)
	}
	assert.Equal(t, want, list.Addrs(), "the failing batch's own addresses are recorded")
}

func TestRunStopsAtErrorLimit(t *testing.T) {
	dev := newMemDevice(1000, 16)
	dev.writeErr = func(block, count uint64) error {
		if block < 400 && block+count > 300 {
			return fmt.Errorf("media error at %d", block)
		}
		return nil
	}

	list := badblocks.NewList(nil)
	rec := &snapshotRecorder{}
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 1000, Stepping: 100,
		Retries: 1, MaxErrors: 50, ReportEvery: time.Hour,
	}, list, rec)
	require.NoError(t, err)

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StoppedByLimit, outcome)
	assert.Equal(t, 100, list.Len(), "the whole batch is recorded before the limit check")

	final := rec.snaps[len(rec.snaps)-1]
	assert.Equal(t, uint64(400), final.Pos, "the cursor advanced past the failing batch")
}

func TestRunStopsAtLimitIncludingImported(t *testing.T) {
	dev := newMemDevice(1000, 16)
	dev.writeErr = func(block, count uint64) error {
		if block < 100 && block+count > 0 {
			return fmt.Errorf("media error")
		}
		return nil
	}

	// Already at the limit from a previous run: one more bad batch trips it.
	seed := make([]uint64, 50)
	list := badblocks.NewList(seed)
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 1000, Stepping: 100,
		Retries: 1, MaxErrors: 50, ReportEvery: time.Hour,
	}, list, nil)
	require.NoError(t, err)

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StoppedByLimit, outcome)
	assert.Equal(t, 150, list.Len())
}

func TestRunRestoresAfterUnreadableBatch(t *testing.T) {
	dev := newMemDevice(200, 16)
	// Preserve reads of batch [100,200) fail; everything else works.
	dev.readErr = func(block, count uint64) error {
		if block == 100 && count == 100 {
			return fmt.Errorf("unreadable")
		}
		return nil
	}

	list := badblocks.NewList(nil)
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 200, Stepping: 100,
		Retries: 1, MaxErrors: 10, ReportEvery: time.Hour,
	}, list, nil)
	require.NoError(t, err)

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, 0, list.Len(), "a failed preserve read alone does not make the batch bad")

	// The restore had nothing to restore, so the batch holds zeros now.
	zeros := make([]byte, 100*16)
	assert.Equal(t, zeros, dev.data[100*16:], "unreadable batch is restored with zeros")
}

func TestRunAbsorbsPatternMismatch(t *testing.T) {
	dev := newMemDevice(100, 16)
	// Reads after the preserve pass return stale zeros, so every pattern
	// readback mismatches. Writes (including the restore) still succeed.
	preserved := false
	dev.readErr = func(block, count uint64) error {
		if preserved {
			clear(dev.data[block*dev.blockSize : (block+count)*dev.blockSize])
		}
		preserved = true
		return nil
	}

	list := badblocks.NewList(nil)
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 100, Stepping: 100,
		Retries: 1, MaxErrors: 10, ReportEvery: time.Hour,
	}, list, nil)
	require.NoError(t, err)

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, 0, list.Len(), "pattern mismatches are logged, not recorded as bad blocks")
}

func TestRunFatalOnInvalidParameter(t *testing.T) {
	dev := newMemDevice(1000, 16)
	dev.writeErr = func(block, count uint64) error {
		if block >= 500 {
			return fmt.Errorf("ioctl: %w", syscall.EINVAL)
		}
		return nil
	}

	list := badblocks.NewList(nil)
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 1000, Stepping: 100,
		Retries: 1, MaxErrors: 1000, ReportEvery: time.Hour,
	}, list, nil)
	require.NoError(t, err)

	outcome, err := r.Run(context.Background())
	assert.Equal(t, StoppedByFatalError, outcome)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EINVAL)
	assert.Equal(t, 0, list.Len(), "a fatal error is not a bad block")
}

func TestRunCancelledBeforeStart(t *testing.T) {
	dev := newMemDevice(1000, 16)
	list := badblocks.NewList(nil)
	rec := &snapshotRecorder{}
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 1000, Stepping: 100,
		Retries: 1, MaxErrors: 10, ReportEvery: time.Hour,
	}, list, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StoppedByUser, outcome)
	assert.Zero(t, dev.reads, "no batch was touched")
	assert.Zero(t, dev.writes)

	require.Len(t, rec.snaps, 2, "initial and final snapshot, nothing else")
	assert.Equal(t, uint64(0), rec.snaps[1].Pos)
}

func TestRunRetriesBeforeClassifying(t *testing.T) {
	dev := newMemDevice(100, 16)
	failures := 0
	dev.writeErr = func(block, count uint64) error {
		// The first two attempts of every write fail; the third succeeds.
		failures++
		if failures%3 != 0 {
			return fmt.Errorf("transient")
		}
		return nil
	}

	list := badblocks.NewList(nil)
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 100, Stepping: 100,
		Retries: 2, MaxErrors: 10, ReportEvery: time.Hour,
	}, list, nil)
	require.NoError(t, err)

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Equal(t, 0, list.Len(), "writes that succeed within the retry budget are not bad")
}

func TestScanReadOnly(t *testing.T) {
	dev := newMemDevice(1000, 16)
	dev.readErr = func(block, count uint64) error {
		if block == 200 {
			return fmt.Errorf("read error")
		}
		return nil
	}

	list := badblocks.NewList(nil)
	r, err := New(dev, Params{
		StartBlock: 0, EndBlock: 1000, Stepping: 100,
		Retries: 1, MaxErrors: 1000, ReportEvery: time.Hour,
	}, list, nil)
	require.NoError(t, err)

	outcome, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	assert.Zero(t, dev.writes, "scan never writes")
	assert.Equal(t, 100, list.Len())
	assert.Equal(t, uint64(200), list.Addrs()[0])
}

func TestFix(t *testing.T) {
	dev := newMemDevice(100, 16)
	dev.readErr = func(block, count uint64) error {
		if block == 7 {
			return fmt.Errorf("unreadable")
		}
		return nil
	}
	dev.writeErr = func(block, count uint64) error {
		if block == 9 {
			return fmt.Errorf("write error")
		}
		return nil
	}

	res, err := Fix(context.Background(), dev, []uint64{3, 7, 9}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rewritten)
	assert.Equal(t, 1, res.Zeroed)
	assert.Equal(t, 1, res.Failed)

	zeros := make([]byte, 16)
	assert.Equal(t, zeros, dev.data[7*16:8*16], "unreadable block is zeroed")
}

func TestFixFatalOnInvalidParameter(t *testing.T) {
	dev := newMemDevice(100, 16)
	dev.writeErr = func(block, count uint64) error {
		return fmt.Errorf("ioctl: %w", syscall.EINVAL)
	}
	_, err := Fix(context.Background(), dev, []uint64{1}, 1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestFixCancelled(t *testing.T) {
	dev := newMemDevice(100, 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fix(ctx, dev, []uint64{1, 2, 3}, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, dev.reads)
}
