package burnin

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/swipswaps/bbf/surface"
)

// FixResult summarizes a Fix pass.
type FixResult struct {
	Rewritten int // blocks read successfully and written back in place
	Zeroed    int // unreadable blocks overwritten with zeros
	Failed    int // blocks that did not take the write after retries
}

// Fix visits each listed block and nudges the drive into reallocating it:
// read the block and write the same data back, or write zeros when the read
// fails (that data is already gone). Destructive for unreadable blocks, so
// callers gate it behind the captcha.
func Fix(ctx context.Context, dev Device, addrs []uint64, retries int, rep surface.Reporter) (FixResult, error) {
	var res FixResult
	if retries < 1 {
		return res, fmt.Errorf("retries must be >= 1, got %d", retries)
	}

	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	report := func(i int) {
		if rep == nil {
			return
		}
		rep.Report(surface.Snapshot{
			Start:      start,
			Now:        time.Now(),
			RangeStart: 0,
			RangeEnd:   uint64(len(addrs)),
			Pos:        uint64(i),
			BadCount:   res.Failed,
		})
	}

	buf := make([]byte, dev.LogicalBlockSize())
	report(0)
	for i, block := range addrs {
		if ctx.Err() != nil {
			report(i)
			return res, ctx.Err()
		}
		select {
		case <-ticker.C:
			report(i)
		default:
		}

		readable := withAttempts(retries+1, func() error {
			return dev.ReadBlocks(block, 1, buf)
		}) == nil
		if !readable {
			clear(buf)
		}

		err := withAttempts(retries+1, func() error {
			return dev.WriteBlocks(block, 1, buf)
		})
		switch {
		case errors.Is(err, syscall.EINVAL):
			report(i)
			return res, fmt.Errorf("block %d: %w", block, err)
		case err != nil:
			res.Failed++
		case readable:
			res.Rewritten++
		default:
			res.Zeroed++
		}
	}
	report(len(addrs))
	return res, nil
}
