package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"flickrheat/pkg/activity"
)

// Phase is where the computation stands
type Phase int

const (
	PhaseFetching Phase = iota
	PhaseDone
	PhaseFailed
	PhaseCancelled
)

// LogMessage is one line of the activity log panel
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model follows a single heatmap computation page by page and renders
// the finished heatmap when the result arrives.
type Model struct {
	spinner  spinner.Model
	progress progress.Model
	clock    clockwork.Clock

	title      string
	page       int
	totalPages int
	fetched    int
	startedAt  time.Time

	phase  Phase
	result *activity.Heatmap
	err    error

	width          int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
}

// NewModel creates a model titled title. A nil clock uses the real clock.
func NewModel(title string, clock clockwork.Clock) Model {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = s.Style.Foreground(flickrPink)

	p := progress.New(progress.WithGradient(string(flickrBlue), string(flickrPink)))
	p.Width = 40

	return Model{
		spinner:        s,
		progress:       p,
		clock:          clock,
		title:          title,
		startedAt:      clock.Now(),
		logMessages:    []LogMessage{},
		maxLogMessages: 8,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Percent is page progress in [0, 1]
func (m Model) Percent() float64 {
	if m.totalPages <= 0 {
		return 0
	}
	pct := float64(m.page) / float64(m.totalPages)
	if pct > 1 {
		pct = 1
	}
	return pct
}

func (m Model) Phase() Phase {
	return m.phase
}

// Result returns the heatmap and error once the computation ended
func (m Model) Result() (*activity.Heatmap, error) {
	return m.result, m.err
}

func (m *Model) addLog(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.clock.Now(),
		Level:   level,
		Message: message,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}
