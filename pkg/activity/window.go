package activity

import (
	"fmt"
	"time"

	apperrors "flickrheat/pkg/errors"
)

// minYear is the earliest year accepted for a window
const minYear = 1900

// Window is an inclusive range of UTC calendar days
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow truncates start and end to UTC midnight
func NewWindow(start, end time.Time) Window {
	return Window{Start: dayStart(start), End: dayStart(end)}
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// YearWindow returns January 1 through December 31 of year, or through
// today (UTC) when year is the current year. Future years are rejected.
func YearWindow(year int, now time.Time) (Window, error) {
	now = now.UTC()
	if year > now.Year() {
		return Window{}, apperrors.Validation(fmt.Sprintf("year %d is in the future", year))
	}
	if year < minYear {
		return Window{}, apperrors.Validation(fmt.Sprintf("year %d is out of range", year))
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	if year == now.Year() {
		end = dayStart(now)
	}
	return Window{Start: start, End: end}, nil
}

// Days returns the number of calendar days in w, 0 when End precedes Start
func (w Window) Days() int {
	if w.End.Before(w.Start) {
		return 0
	}
	// Calendar arithmetic rather than duration division keeps this exact.
	n := 0
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// Contains reports whether date (YYYY-MM-DD) falls within w
func (w Window) Contains(date string) bool {
	return date >= w.Start.Format(DateLayout) && date <= w.End.Format(DateLayout)
}

// FillWindow returns one entry per day of w in chronological order. Days
// missing from days get count 0 and level 0; entries outside w are dropped.
func FillWindow(days []Day, w Window) []Day {
	byDate := make(map[string]Day, len(days))
	for _, d := range days {
		byDate[d.Date] = d
	}

	out := make([]Day, 0, w.Days())
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		key := d.Format(DateLayout)
		if existing, ok := byDate[key]; ok {
			out = append(out, existing)
			continue
		}
		out = append(out, Day{Date: key})
	}
	return out
}

// MonthBounds returns the first instant of month and the last second
// before the next month, both UTC.
func MonthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0).Add(-time.Second)
}
