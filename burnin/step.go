package burnin

import (
	"bytes"
	"fmt"
)

// trimStepping returns how many blocks the next batch may cover: the
// requested stepping, truncated so the batch never reaches past the device
// end. Zero means the position is at or beyond the end; callers treat that
// as a stop condition, never as a zero-size batch to retry.
func trimStepping(pos, stepping, blockCount uint64) uint64 {
	if pos >= blockCount {
		return 0
	}
	return min(stepping, blockCount-pos)
}

// burnBatch tests one batch without leaving it corrupted: preserve current
// contents, run every pattern, then restore. The batch outcome is the
// outcome of the restore write alone.
func (r *Runner) burnBatch(block, count uint64, orig, scratch []byte, patterns [][]byte) error {
	n := count * r.blockSize
	preserved := orig[:n]

	if err := r.retry(func() error { return r.dev.ReadBlocks(block, count, preserved) }); err != nil {
		// The original contents are presumed lost already; restore zeros.
		log.Warnw("cannot preserve batch contents", "block", block, "err", err)
		clear(preserved)
	}

	for _, p := range patterns {
		// Per-pattern results are not folded into the classification: a
		// block that cannot hold a pattern but still takes the restore
		// write is not recorded as bad. The persisted list means "could
		// not restore contents".
		if err := r.verifyPattern(block, count, scratch[:n], p[:n]); err != nil {
			log.Debugw("pattern verification failed", "block", block, "err", err)
		}
	}

	return r.retry(func() error { return r.dev.WriteBlocks(block, count, preserved) })
}

// verifyPattern performs one write+read+compare cycle for a single pattern
// against the batch. I/O failures are retried and then propagated; a
// byte-level mismatch comes back as ErrMismatch.
func (r *Runner) verifyPattern(block, count uint64, got, want []byte) error {
	if err := r.retry(func() error { return r.dev.WriteBlocks(block, count, want) }); err != nil {
		return fmt.Errorf("write pattern 0x%02X to blocks [%d,%d): %w", want[0], block, block+count, err)
	}
	if err := r.retry(func() error { return r.dev.ReadBlocks(block, count, got) }); err != nil {
		return fmt.Errorf("read pattern 0x%02X back from blocks [%d,%d): %w", want[0], block, block+count, err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("blocks [%d,%d) pattern 0x%02X: %w", block, block+count, want[0], ErrMismatch)
	}
	return nil
}
