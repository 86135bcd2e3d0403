package surface

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotHelpers(t *testing.T) {
	start := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	s := Snapshot{
		Start:      start,
		Now:        start.Add(10 * time.Second),
		RangeStart: 100,
		RangeEnd:   1100,
		Pos:        600,
		BadCount:   3,
	}
	assert.Equal(t, 10*time.Second, s.Elapsed())
	assert.Equal(t, uint64(500), s.Done())
	assert.Equal(t, uint64(1000), s.Total())
	assert.Equal(t, 10*time.Second, s.ETA(), "half done in 10s leaves 10s")

	// Before any progress there is no rate to project from.
	s.Pos = s.RangeStart
	assert.Equal(t, time.Duration(0), s.ETA())
}

func TestPlainReporter(t *testing.T) {
	var buf bytes.Buffer
	p := &PlainReporter{W: &buf}
	start := time.Now()
	p.Report(Snapshot{
		Start:      start,
		Now:        start.Add(time.Second),
		RangeStart: 0,
		RangeEnd:   1000,
		Pos:        250,
		BadCount:   7,
	})
	out := buf.String()
	assert.Contains(t, out, "250 / 1000")
	assert.Contains(t, out, "(25.0%)")
	assert.Contains(t, out, "bad: 7")

	// A nil writer must be a no-op, not a panic.
	(&PlainReporter{}).Report(Snapshot{})
}
