package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"flickrheat/pkg/ui"
)

func (m Model) View() string {
	sections := []string{headerStyle.Render(m.title)}

	switch m.phase {
	case PhaseDone:
		sections = append(sections, ui.RenderHeatmap(m.title, *m.result))
		return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
	case PhaseFailed:
		sections = append(sections, errorStyle.Render("✗ "+m.err.Error()))
		return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
	case PhaseCancelled:
		sections = append(sections, warnStyle.Render("cancelled"))
		return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
	}

	sections = append(sections, m.renderProgressPanel(), m.renderLogs())
	if m.showHelp {
		sections = append(sections, helpStyle.Render("q / esc / ctrl+c  cancel\n?                 toggle help"))
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderProgressPanel() string {
	status := "resolving user"
	if m.totalPages > 0 {
		status = fmt.Sprintf("page %d of %d", m.page, m.totalPages)
	}

	lines := []string{
		m.spinner.View() + " " + valueStyle.Render(status),
		m.progress.ViewAs(m.Percent()),
		labelStyle.Render("Photos:  ") + valueStyle.Render(fmt.Sprint(m.fetched)),
		labelStyle.Render("Elapsed: ") + valueStyle.Render(formatDuration(m.clock.Since(m.startedAt))),
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderLogs() string {
	if len(m.logMessages) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.logMessages))
	for _, l := range m.logMessages {
		lines = append(lines, fmt.Sprintf("%s %s",
			logTimeStyle.Render(l.Time.Format("15:04:05")),
			levelStyle(l.Level).Render(l.Message)))
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
