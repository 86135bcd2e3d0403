package surface

import (
	"fmt"
	"io"
)

// PlainReporter writes one overwriting progress line per snapshot, the way
// the tool reports when stdout is not a terminal or --quiet suppressed the
// fullscreen view.
type PlainReporter struct {
	W io.Writer
}

// Report renders a single status line. Write errors are ignored; a broken
// pipe must not stop the scan.
func (p *PlainReporter) Report(s Snapshot) {
	if p.W == nil {
		return
	}
	pct := 0.0
	if s.Total() > 0 {
		pct = float64(s.Done()) * 100.0 / float64(s.Total())
	}
	eta := "-"
	if d := s.ETA(); d > 0 {
		eta = d.String()
	}
	fmt.Fprintf(p.W, "\r\x1B[2Kelapsed: %s  blocks: %d / %d [%d..%d) (%.1f%%)  bad: %d  eta: %s",
		s.Elapsed(), s.Done(), s.Total(), s.RangeStart, s.RangeEnd, pct, s.BadCount, eta)
}
