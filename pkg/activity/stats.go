package activity

import "time"

// Stats summarizes a dense series
type Stats struct {
	TotalCount    int    `json:"totalCount"`
	ActiveDays    int    `json:"activeDays"`
	PeakCount     int    `json:"peakCount"`
	PeakDate      string `json:"peakDate,omitempty"`
	LongestStreak int    `json:"longestStreak"`
	CurrentStreak int    `json:"currentStreak"`
}

// Summarize computes totals, the peak day and streaks. A streak is a run
// of active days on consecutive calendar dates; the current streak is the
// run ending on the last day of the series.
func Summarize(days []Day) Stats {
	var s Stats
	run := 0
	var prev time.Time

	for _, d := range days {
		s.TotalCount += d.Count
		if d.Count > s.PeakCount {
			s.PeakCount = d.Count
			s.PeakDate = d.Date
		}

		date, err := time.Parse(DateLayout, d.Date)
		if err != nil || d.Count == 0 {
			run = 0
			prev = time.Time{}
			continue
		}

		s.ActiveDays++
		if !prev.IsZero() && date.Equal(prev.AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		prev = date
		if run > s.LongestStreak {
			s.LongestStreak = run
		}
	}

	if n := len(days); n > 0 && days[n-1].Count > 0 {
		s.CurrentStreak = run
	}
	return s
}
