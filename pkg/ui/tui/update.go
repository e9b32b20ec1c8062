package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"flickrheat/pkg/activity"
)

// PageMsg reports that another page of the listing arrived
type PageMsg struct {
	Page       int
	TotalPages int
	Fetched    int
}

// ResultMsg carries the finished heatmap
type ResultMsg struct {
	Heatmap activity.Heatmap
}

// ErrorMsg ends the computation with a failure
type ErrorMsg struct {
	Err error
}

// LogMsg appends a line to the log panel
type LogMsg struct {
	Level   string
	Message string
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 20; w > 10 && w < 60 {
			m.progress.Width = w
		}
		return m, nil

	case spinner.TickMsg:
		if m.phase != PhaseFetching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PageMsg:
		m.page, m.totalPages, m.fetched = msg.Page, msg.TotalPages, msg.Fetched
		m.addLog("INFO", fmt.Sprintf("page %d/%d, %d photos", msg.Page, msg.TotalPages, msg.Fetched))
		return m, nil

	case LogMsg:
		m.addLog(msg.Level, msg.Message)
		return m, nil

	case ResultMsg:
		hm := msg.Heatmap
		m.result = &hm
		m.phase = PhaseDone
		m.addLog("SUCCESS", fmt.Sprintf("%d photos across %d days", hm.TotalPhotos, len(hm.Days)))
		return m, tea.Quit

	case ErrorMsg:
		m.err = msg.Err
		m.phase = PhaseFailed
		m.addLog("ERROR", msg.Err.Error())
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		if m.phase == PhaseFetching {
			m.phase = PhaseCancelled
		}
		return m, tea.Quit
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}
