package surface

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// UI is the fullscreen terminal view for a scan or burn-in run. One glyph
// per cell of the block range; the status block carries the numbers.
type UI struct {
	s        tcell.Screen
	stopChan chan struct{}
	once     sync.Once

	mu           sync.Mutex
	title        string
	summaryLines []string
	legendLines  []string
	statusLines  []string
	mapLines     []string
}

// NewUI initializes the terminal screen and starts the key event loop.
func NewUI() (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	u := &UI{
		s:        s,
		stopChan: make(chan struct{}),
	}
	go u.eventLoop()
	return u, nil
}

// Close restores the terminal. Safe to call after RequestStop.
func (u *UI) Close() {
	if u.s == nil {
		return
	}
	u.s.Fini()
	u.s = nil
	fmt.Print("\033[?1049l\033[?25h")
}

// RequestStop signals that the user asked to stop the run. Idempotent and
// safe after Close.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
		if s := u.s; s != nil {
			s.PostEvent(tcell.NewEventInterrupt(nil))
		}
	})
}

// StopRequested exposes the stop channel so callers can tie it to a
// cancellable context.
func (u *UI) StopRequested() <-chan struct{} { return u.stopChan }

// IsStopped reports whether a stop has been requested.
func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// SetTitle sets the line rendered across the top of the screen.
func (u *UI) SetTitle(t string) {
	u.mu.Lock()
	u.title = t
	u.mu.Unlock()
}

// SetSummaryLines sets the geometry/run summary shown under the title.
func (u *UI) SetSummaryLines(lines []string) {
	u.mu.Lock()
	u.summaryLines = append([]string(nil), lines...)
	u.mu.Unlock()
}

// SetLegend sets the legend lines shown under the summary.
func (u *UI) SetLegend(lines []string) {
	u.mu.Lock()
	u.legendLines = append([]string(nil), lines...)
	u.mu.Unlock()
}

// Report implements Reporter: it rebuilds the block map and status lines
// from the snapshot and redraws. Rendering problems are swallowed.
func (u *UI) Report(s Snapshot) {
	if u.s == nil {
		return
	}
	w, h := u.s.Size()
	if w <= 0 || h <= 0 {
		return
	}

	u.mu.Lock()
	u.mapLines = renderBlockMap(s, w, h-len(u.summaryLines)-len(u.legendLines)-8)
	eta := "-"
	if d := s.ETA(); d > 0 {
		eta = d.String()
	}
	u.statusLines = []string{
		fmt.Sprintf("Position: %d  [%d .. %d)", s.Pos, s.RangeStart, s.RangeEnd),
		fmt.Sprintf("Tested: %d / %d blocks", s.Done(), s.Total()),
		fmt.Sprintf("Bad blocks: %d", s.BadCount),
		fmt.Sprintf("Elapsed: %s   ETA: %s", s.Elapsed(), eta),
	}
	u.mu.Unlock()

	u.LayoutAndDraw()
}

// renderBlockMap maps the run range onto rows*width cells, one glyph per
// cell: tested, or not yet.
func renderBlockMap(s Snapshot, w, rows int) []string {
	if rows < 1 {
		rows = 1
	}
	if rows > 16 {
		rows = 16
	}
	total := s.Total()
	if total == 0 || w <= 0 {
		return nil
	}
	cells := uint64(w * rows)
	perCell := (total + cells - 1) / cells
	if perCell == 0 {
		perCell = 1
	}

	const (
		tested   = '█'
		untested = '░'
	)
	lines := make([]string, 0, rows)
	cell := uint64(0)
	for row := 0; row < rows; row++ {
		var b strings.Builder
		b.Grow(w)
		for col := 0; col < w; col++ {
			start := s.RangeStart + cell*perCell
			if start >= s.RangeEnd {
				break
			}
			if start < s.Pos {
				b.WriteRune(tested)
			} else {
				b.WriteRune(untested)
			}
			cell++
		}
		if b.Len() == 0 {
			break
		}
		lines = append(lines, b.String())
	}
	return lines
}

func putStr(s tcell.Screen, x, y int, str string) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break
		}
		s.SetContent(pos, y, r, nil, tcell.StyleDefault)
	}
}

// LayoutAndDraw redraws the whole view from the current state.
func (u *UI) LayoutAndDraw() {
	if u.s == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	u.s.Clear()
	w, h := u.s.Size()
	y := 0

	if u.title != "" {
		putStr(u.s, 0, y, strings.Repeat("═", w))
		putStr(u.s, (w-len(u.title))/2, y, u.title)
		y++
	}
	for _, line := range u.summaryLines {
		if y >= h {
			break
		}
		putStr(u.s, 0, y, line)
		y++
	}
	for _, line := range u.legendLines {
		if y >= h {
			break
		}
		putStr(u.s, 0, y, line)
		y++
	}
	for _, line := range u.mapLines {
		if y >= h {
			break
		}
		putStr(u.s, 0, y, line)
		y++
	}
	if len(u.statusLines) > 0 && y < h {
		putStr(u.s, 0, y, strings.Repeat("─", w))
		putStr(u.s, 2, y, " Status ")
		y++
		for _, line := range u.statusLines {
			if y >= h {
				break
			}
			putStr(u.s, 0, y, line)
			y++
		}
	}
	u.s.Show()
}

func (u *UI) eventLoop() {
	// Close nils u.s from another goroutine; hold our own reference for the
	// loop's lifetime. Fini makes PollEvent return nil, which ends the loop.
	s := u.s
	for {
		select {
		case <-u.stopChan:
			return
		default:
		}
		ev := s.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC:
				u.RequestStop()
			case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			case ev.Key() == tcell.KeyEscape:
				u.RequestStop()
			}
		case *tcell.EventResize:
			s.Sync()
		case *tcell.EventInterrupt:
			return
		case nil:
			return
		}
	}
}
