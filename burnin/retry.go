package burnin

// retry runs op up to retries+1 times, stopping at the first success.
// Re-attempts are immediate: a marginal sector either answers on a re-read
// or it does not, and waiting does not change that.
func (r *Runner) retry(op func() error) error {
	return withAttempts(r.retries+1, op)
}

func withAttempts(attempts int, op func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}
