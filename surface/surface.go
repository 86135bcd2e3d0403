// Package surface renders progress for long-running device scans: a tcell
// fullscreen view for interactive runs and a plain line reporter for quiet
// or non-tty use. Reporters never fail a run; rendering is best effort.
package surface

import "time"

// Snapshot is one progress observation emitted by a run loop.
type Snapshot struct {
	Start      time.Time
	Now        time.Time
	RangeStart uint64
	RangeEnd   uint64
	Pos        uint64
	BadCount   int
}

// Elapsed returns the run time covered by the snapshot.
func (s Snapshot) Elapsed() time.Duration {
	return s.Now.Sub(s.Start).Truncate(time.Second)
}

// Done returns the number of blocks already covered.
func (s Snapshot) Done() uint64 {
	if s.Pos < s.RangeStart {
		return 0
	}
	return s.Pos - s.RangeStart
}

// Total returns the number of blocks in the run range.
func (s Snapshot) Total() uint64 {
	if s.RangeEnd < s.RangeStart {
		return 0
	}
	return s.RangeEnd - s.RangeStart
}

// ETA estimates the remaining run time from the rate so far. Zero when no
// progress has been made yet.
func (s Snapshot) ETA() time.Duration {
	done := s.Done()
	el := s.Now.Sub(s.Start)
	if done == 0 || el <= 0 {
		return 0
	}
	perBlock := float64(el) / float64(done)
	return time.Duration(perBlock * float64(s.Total()-done)).Truncate(time.Second)
}

// Reporter accepts progress snapshots. Implementations must not abort the
// run: Report returns nothing and swallows its own failures.
type Reporter interface {
	Report(Snapshot)
}
