package utils

import (
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress renders an extraction progress bar on stderr. It stays
// silent when disabled or when stderr is not a terminal, so piped
// output never sees control sequences.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	enabled   bool

	// mu guards description: Step is called from concurrent extraction
	// workers while mpb's render goroutine reads the label.
	mu          sync.Mutex
	description string
}

const descWidth = 24

// NewProgress creates a progress bar over total units.
func NewProgress(total int, enabled bool) *Progress {
	p := &Progress{enabled: enabled && term.IsTerminal(int(os.Stderr.Fd()))}
	if !p.enabled {
		return p
	}

	p.container = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)
	p.bar = p.container.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return p.label()
			}, decor.WC{W: descWidth, C: decor.DindentRight}),
			decor.Name("  "),
			decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)
	return p
}

// Step advances the bar by one unit and updates the entry label. Safe
// for concurrent use.
func (p *Progress) Step(description string) {
	p.mu.Lock()
	p.description = description
	p.mu.Unlock()
	if !p.enabled || p.bar == nil {
		return
	}
	p.bar.Increment()
}

// label returns the current entry label, clipped to the decorator
// width.
func (p *Progress) label() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.description) > descWidth {
		return p.description[:descWidth-2] + ".."
	}
	return p.description
}

// Finish waits for the bar to drain and releases the terminal.
func (p *Progress) Finish() {
	if !p.enabled || p.container == nil {
		return
	}
	p.container.Wait()
}
