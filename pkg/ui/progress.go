package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 24
)

// PageTracker prints a single updating line while a listing is paged in.
// Its Update method satisfies activity.ProgressFunc.
type PageTracker struct {
	out   io.Writer
	clock clockwork.Clock
	start time.Time

	Page       int
	TotalPages int
	Fetched    int
}

func NewPageTracker(out io.Writer, clock clockwork.Clock) *PageTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PageTracker{out: out, clock: clock, start: clock.Now()}
}

// Update records progress and redraws the line
func (pt *PageTracker) Update(page, totalPages, fetched int) {
	pt.Page, pt.TotalPages, pt.Fetched = page, totalPages, fetched
	fmt.Fprintf(pt.out, "\r%s %s %s",
		Magenta("[FETCHING]"),
		pt.Bar(),
		Dim(fmt.Sprintf("%d photos", pt.Fetched)))
}

// Finish ends the progress line
func (pt *PageTracker) Finish() {
	fmt.Fprintf(pt.out, "\r%s %d pages, %d photos in %s\n",
		Green("[DONE]"), pt.Page, pt.Fetched, pt.Elapsed().Round(time.Millisecond))
}

// Bar renders page progress. An unknown total renders an empty bar.
func (pt *PageTracker) Bar() string {
	filled := 0
	if pt.TotalPages > 0 {
		filled = pt.Page * barWidth / pt.TotalPages
	}
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat(ProgressBar, filled),
		strings.Repeat(ProgressEmpty, barWidth-filled),
		pt.Page, pt.TotalPages)
}

func (pt *PageTracker) Elapsed() time.Duration {
	return pt.clock.Since(pt.start)
}

// Rate returns photos per second so far
func (pt *PageTracker) Rate() float64 {
	secs := pt.Elapsed().Seconds()
	if secs == 0 {
		return 0
	}
	return float64(pt.Fetched) / secs
}
