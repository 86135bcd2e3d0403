// Package burnin implements the bad-block verification engine: it walks a
// device's logical block range in fixed-size batches, pattern-tests each
// batch destructively but restorably, and accumulates bad block ranges.
package burnin

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/swipswaps/bbf/badblocks"
	"github.com/swipswaps/bbf/surface"
)

var log = logging.Logger("bbf/burnin")

// patternBytes are written to every batch in this order during a burn-in.
var patternBytes = []byte{0x00, 0x55, 0xAA, 0xFF}

// ErrMismatch reports that a pattern read back differently than written. It
// is a data-integrity failure, distinct from an I/O failure.
var ErrMismatch = errors.New("readback does not match written pattern")

// Device is the slice of blockdev.Device the engine needs. Tests substitute
// a memory-backed fake.
type Device interface {
	ReadBlocks(block, count uint64, buf []byte) error
	WriteBlocks(block, count uint64, buf []byte) error
	LogicalBlockSize() uint64
	LogicalBlockCount() uint64
	DefaultStepping() uint64
}

// Outcome is the terminal state of a run.
type Outcome int

const (
	// Completed means the cursor reached the end block.
	Completed Outcome = iota
	// StoppedByUser means cancellation was observed between batches.
	StoppedByUser
	// StoppedByLimit means the bad-block count exceeded the configured
	// maximum. Intentional early termination, not an error.
	StoppedByLimit
	// StoppedByFatalError means the device reported an invalid parameter;
	// the run cannot continue.
	StoppedByFatalError
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case StoppedByUser:
		return "stopped by user"
	case StoppedByLimit:
		return "stopped: bad block limit exceeded"
	case StoppedByFatalError:
		return "stopped: fatal device error"
	}
	return "unknown"
}

// Params configure one run. All fields are fixed for the run's duration.
type Params struct {
	StartBlock uint64
	EndBlock   uint64 // exclusive
	Stepping   uint64 // blocks per batch; 0 selects the device default
	Retries    int    // extra attempts after a failed read or write, >= 1
	MaxErrors  uint64 // stop once more than this many bad blocks are recorded

	// ReportEvery is the progress snapshot interval; 0 means one second.
	ReportEvery time.Duration
}

// Runner drives a run over one device. The device handle, the cursor and
// the bad-block list are owned exclusively by the runner while Run or Scan
// executes.
type Runner struct {
	dev  Device
	list *badblocks.List
	rep  surface.Reporter

	startBlock  uint64
	endBlock    uint64
	stepping    uint64
	blockSize   uint64
	retries     int
	maxErrors   uint64
	reportEvery time.Duration
}

// New derives the effective run range from the requested parameters and the
// device geometry: the start rounds down to a stepping boundary, the end
// clamps to the device and rounds up to cover a whole final batch.
func New(dev Device, p Params, list *badblocks.List, rep surface.Reporter) (*Runner, error) {
	if p.Retries < 1 {
		return nil, fmt.Errorf("retries must be >= 1, got %d", p.Retries)
	}
	if p.StartBlock >= p.EndBlock {
		return nil, fmt.Errorf("start block %d >= end block %d", p.StartBlock, p.EndBlock)
	}
	stepping := p.Stepping
	if stepping == 0 {
		stepping = dev.DefaultStepping()
	}
	if stepping == 0 {
		return nil, errors.New("device reports a zero default stepping")
	}

	count := dev.LogicalBlockCount()
	start := roundDown(p.StartBlock, stepping)
	end := min(p.EndBlock, count)
	end = min(roundUp(end, stepping), count)

	every := p.ReportEvery
	if every == 0 {
		every = time.Second
	}

	return &Runner{
		dev:         dev,
		list:        list,
		rep:         rep,
		startBlock:  start,
		endBlock:    end,
		stepping:    stepping,
		blockSize:   dev.LogicalBlockSize(),
		retries:     p.Retries,
		maxErrors:   p.MaxErrors,
		reportEvery: every,
	}, nil
}

// Range returns the effective [start, end) block range of the run.
func (r *Runner) Range() (start, end uint64) { return r.startBlock, r.endBlock }

// Stepping returns the effective batch size in blocks.
func (r *Runner) Stepping() uint64 { return r.stepping }

// Run performs the destructive burn-in over the configured range. The
// bad-block list passed to New is extended in place.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	orig := r.alloc()
	scratch := r.alloc()
	patterns := make([][]byte, len(patternBytes))
	for i, b := range patternBytes {
		patterns[i] = r.alloc()
		for j := range patterns[i] {
			patterns[i][j] = b
		}
	}

	return r.loop(ctx, func(block, count uint64) error {
		return r.burnBatch(block, count, orig, scratch, patterns)
	})
}

// loop is the shared driver: it polls cancellation and the report ticker
// once per iteration, sizes each batch through trimStepping, classifies the
// batch result, and emits a final snapshot on every exit path.
func (r *Runner) loop(ctx context.Context, test func(block, count uint64) error) (Outcome, error) {
	start := time.Now()
	ticker := time.NewTicker(r.reportEvery)
	defer ticker.Stop()

	outcome := Completed
	var fatal error

	block := r.startBlock
	r.report(start, block)
	for block < r.endBlock {
		if ctx.Err() != nil {
			outcome = StoppedByUser
			break
		}
		select {
		case <-ticker.C:
			r.report(start, block)
		default:
		}

		step := trimStepping(block, r.stepping, r.dev.LogicalBlockCount())
		if step == 0 {
			// Past the device end; nothing left to test.
			break
		}

		err := test(block, step)
		batch := block
		block += step
		if err == nil {
			continue
		}
		if errors.Is(err, syscall.EINVAL) {
			outcome = StoppedByFatalError
			fatal = fmt.Errorf("blocks [%d,%d): %w", batch, batch+step, err)
			break
		}

		log.Warnw("bad batch", "start", batch, "blocks", step, "err", err)
		r.list.AppendBatch(batch, step)
		if uint64(r.list.Len()) > r.maxErrors {
			outcome = StoppedByLimit
			break
		}
	}
	r.report(start, block)
	return outcome, fatal
}

func (r *Runner) report(start time.Time, pos uint64) {
	if r.rep == nil {
		return
	}
	r.rep.Report(surface.Snapshot{
		Start:      start,
		Now:        time.Now(),
		RangeStart: r.startBlock,
		RangeEnd:   r.endBlock,
		Pos:        pos,
		BadCount:   r.list.Len(),
	})
}

// alloc returns a one-batch buffer, aligned when the device can provide
// aligned memory (direct I/O needs it).
func (r *Runner) alloc() []byte {
	if ab, ok := r.dev.(interface{ AllocBuffer(count uint64) []byte }); ok {
		return ab.AllocBuffer(r.stepping)
	}
	return make([]byte, r.stepping*r.blockSize)
}

func roundDown(v, mult uint64) uint64 {
	return v - (v % mult)
}

func roundUp(v, mult uint64) uint64 {
	if v%mult == 0 {
		return v
	}
	return roundDown(v, mult) + mult
}
