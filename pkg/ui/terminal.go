package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Banner is printed at the top of interactive commands
const Banner = `
  ┌─────────────────────────────────────────────┐
  │  ▪ ▪ ▫ ▪ ▪ ▪ ▫   f l i c k r h e a t        │
  │  ▫ ▪ ▪ ▪ ▫ ▪ ▪   photo activity heatmaps     │
  └─────────────────────────────────────────────┘
`

// Output is where the Print helpers write; tests swap it
var Output io.Writer = os.Stdout

// Flickr blue and pink carry labels and the banner; the rest follow the
// usual terminal conventions. lipgloss drops the colour when Output is not
// a terminal.
var (
	Cyan    = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("#0063DC")))
	Yellow  = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")))
	Red     = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Bold(true))
	Green   = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("#39D353")))
	Magenta = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0084")))
	Dim     = paint(lipgloss.NewStyle().Faint(true))
)

func paint(s lipgloss.Style) func(string) string {
	return func(text string) string { return s.Render(text) }
}

func PrintBanner() {
	fmt.Fprint(Output, Magenta(Banner))
}

// withDetail appends ": detail" when one is given
func withDetail(msg string, details []interface{}) string {
	if len(details) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, details[0])
}

func PrintError(msg string, details ...interface{}) {
	fmt.Fprintln(Output, Red("✗ "+withDetail(msg, details)))
}

func PrintWarning(msg string, details ...interface{}) {
	fmt.Fprintln(Output, Yellow("! "+withDetail(msg, details)))
}

func PrintSuccess(msg string) {
	fmt.Fprintln(Output, Green("✓ "+msg))
}

// PrintInfo prints an aligned "label: value" pair
func PrintInfo(label, value string) {
	fmt.Fprintf(Output, "%s %s\n", Cyan(fmt.Sprintf("%-12s", label+":")), Yellow(value))
}
