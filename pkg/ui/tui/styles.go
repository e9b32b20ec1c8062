package tui

import "github.com/charmbracelet/lipgloss"

var (
	flickrPink = lipgloss.Color("#FF0084")
	flickrBlue = lipgloss.Color("#0063DC")
	softGreen  = lipgloss.Color("#39D353")
	amber      = lipgloss.Color("#E5C07B")
	errRed     = lipgloss.Color("#F47067")
	dimGray    = lipgloss.Color("#768390")

	headerStyle = lipgloss.NewStyle().
			Foreground(flickrPink).
			Bold(true).
			Padding(0, 0, 1, 0)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(flickrBlue).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(flickrBlue).
			Bold(true)

	valueStyle   = lipgloss.NewStyle().Foreground(amber)
	successStyle = lipgloss.NewStyle().Foreground(softGreen).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errRed).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(amber)
	logTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#545D68"))
	helpStyle    = lipgloss.NewStyle().Foreground(dimGray).Padding(1, 0, 0, 0)
)

func levelStyle(level string) lipgloss.Style {
	switch level {
	case "ERROR":
		return errorStyle
	case "WARN":
		return warnStyle
	case "SUCCESS":
		return successStyle
	default:
		return lipgloss.NewStyle().Foreground(dimGray)
	}
}
