package burnin

import "context"

// Scan performs a read-only pass over the configured range: a batch whose
// read fails after retries is recorded bad. Nothing is ever written, so no
// confirmation token is required of the caller.
func (r *Runner) Scan(ctx context.Context) (Outcome, error) {
	buf := r.alloc()
	return r.loop(ctx, func(block, count uint64) error {
		return r.retry(func() error {
			return r.dev.ReadBlocks(block, count, buf[:count*r.blockSize])
		})
	})
}
