package activity

import (
	"sort"
	"time"
)

// DayKey returns the calendar day a photo is bucketed under. Taken mode
// uses the date part of the local taken time and falls back to the upload
// date when it is missing or malformed.
func DayKey(p PhotoRecord, mode Mode) string {
	if mode == ModeTaken && len(p.TakenTimestamp) >= len(DateLayout) {
		date := p.TakenTimestamp[:len(DateLayout)]
		if _, err := time.Parse(DateLayout, date); err == nil {
			return date
		}
	}
	return time.Unix(p.UploadTimestamp, 0).UTC().Format(DateLayout)
}

// Aggregate counts photos per day and levels each day against the busiest
// one. The result is sparse and sorted by date.
func Aggregate(photos []PhotoRecord, mode Mode, lv Leveler) []Day {
	if lv == nil {
		lv = LinearQuartile{}
	}

	counts := make(map[string]int)
	for _, p := range photos {
		counts[DayKey(p, mode)]++
	}

	days := make([]Day, 0, len(counts))
	for date, count := range counts {
		days = append(days, Day{Date: date, Count: count})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	return ApplyLevels(days, lv)
}

// ApplyLevels returns a copy of days with levels recomputed by lv
func ApplyLevels(days []Day, lv Leveler) []Day {
	peak := 0
	for _, d := range days {
		if d.Count > peak {
			peak = d.Count
		}
	}

	out := make([]Day, len(days))
	for i, d := range days {
		out[i] = Day{Date: d.Date, Count: d.Count, Level: lv.Level(d.Count, peak)}
	}
	return out
}
