package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"flickrheat/pkg/activity"
)

// Cell is the glyph drawn for one day
const Cell = "■"

// palette runs from no activity to the busiest quartile
var palette = []lipgloss.Color{
	lipgloss.Color("#2D333B"),
	lipgloss.Color("#0E4429"),
	lipgloss.Color("#006D32"),
	lipgloss.Color("#26A641"),
	lipgloss.Color("#39D353"),
}

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#768390"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0084"))
	statLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("#0063DC")).Bold(true)
	statValue  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444C56")).
			Padding(0, 1)
)

// shade maps a level on a 0..maxLevel scale onto the palette
func shade(level, maxLevel int) lipgloss.Style {
	idx := 0
	if level > 0 && maxLevel > 0 {
		idx = (level*(len(palette)-1) + maxLevel - 1) / maxLevel
		if idx >= len(palette) {
			idx = len(palette) - 1
		}
	}
	return lipgloss.NewStyle().Foreground(palette[idx])
}

// RenderGrid draws days as a calendar grid with one column per week and
// rows Sunday through Saturday. days must be dense and ascending.
func RenderGrid(days []activity.Day, maxLevel int) string {
	if len(days) == 0 {
		return labelStyle.Render("no days to show")
	}
	first, err := time.Parse(activity.DateLayout, days[0].Date)
	if err != nil {
		return labelStyle.Render("invalid date " + days[0].Date)
	}
	offset := int(first.Weekday())
	weeks := (offset + len(days) + 6) / 7

	rows := make([][]string, 7)
	for r := range rows {
		rows[r] = make([]string, weeks)
		for c := range rows[r] {
			rows[r][c] = "  "
		}
	}
	for i, d := range days {
		pos := offset + i
		rows[pos%7][pos/7] = shade(d.Level, maxLevel).Render(Cell) + " "
	}

	var b strings.Builder
	b.WriteString("    " + monthLabels(first, offset, len(days), weeks) + "\n")
	dayNames := map[int]string{1: "Mon", 3: "Wed", 5: "Fri"}
	for r, row := range rows {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-4s", dayNames[r])))
		b.WriteString(strings.Join(row, ""))
		b.WriteString("\n")
	}
	return b.String()
}

// monthLabels places each month's abbreviation above the week holding
// its first day, skipping labels that would overlap.
func monthLabels(first time.Time, offset, n, weeks int) string {
	line := []rune(strings.Repeat(" ", weeks*2+3))
	next := 0
	for i := 0; i < n; i++ {
		d := first.AddDate(0, 0, i)
		if d.Day() != 1 && i != 0 {
			continue
		}
		col := (offset + i) / 7 * 2
		if col < next {
			continue
		}
		copy(line[col:], []rune(d.Month().String()[:3]))
		next = col + 4
	}
	return labelStyle.Render(strings.TrimRight(string(line), " "))
}

// RenderLegend draws the "Less ... More" scale for maxLevel
func RenderLegend(maxLevel int) string {
	cells := make([]string, 0, maxLevel+1)
	for l := 0; l <= maxLevel; l++ {
		cells = append(cells, shade(l, maxLevel).Render(Cell))
	}
	return labelStyle.Render("Less ") + strings.Join(cells, " ") + labelStyle.Render(" More")
}

// RenderStats formats the summary block
func RenderStats(s activity.Stats) string {
	peak := "-"
	if s.PeakCount > 0 {
		peak = fmt.Sprintf("%d on %s", s.PeakCount, s.PeakDate)
	}
	lines := []string{
		statLabel.Render("Photos:         ") + statValue.Render(fmt.Sprint(s.TotalCount)),
		statLabel.Render("Active days:    ") + statValue.Render(fmt.Sprint(s.ActiveDays)),
		statLabel.Render("Busiest day:    ") + statValue.Render(peak),
		statLabel.Render("Longest streak: ") + statValue.Render(fmt.Sprintf("%d days", s.LongestStreak)),
		statLabel.Render("Current streak: ") + statValue.Render(fmt.Sprintf("%d days", s.CurrentStreak)),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderHeatmap composes the title, grid, legend and stats into a box
func RenderHeatmap(title string, hm activity.Heatmap) string {
	maxLevel := 4
	if lv, err := activity.ParseLeveling(hm.Leveling); err == nil {
		maxLevel = lv.MaxLevel()
	}
	parts := []string{
		titleStyle.Render(title),
		"",
		RenderGrid(hm.Days, maxLevel),
		RenderLegend(maxLevel),
		"",
		RenderStats(hm.Stats),
	}
	if hm.Partial {
		parts = append(parts, "", Yellow("Listing stopped at the page cap; counts are incomplete."))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// RenderMonthly draws one horizontal bar per month
func RenderMonthly(year int, counts [12]int) string {
	peak := 0
	for _, c := range counts {
		if c > peak {
			peak = c
		}
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Monthly photos %d", year)) + "\n")
	for i, c := range counts {
		width := 0
		if peak > 0 {
			width = c * 40 / peak
		}
		if c > 0 && width == 0 {
			width = 1
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			labelStyle.Render(time.Month(i+1).String()[:3]),
			shade(width, 40).Render(strings.Repeat(ProgressBar, width)),
			statValue.Render(fmt.Sprint(c))))
	}
	return b.String()
}
