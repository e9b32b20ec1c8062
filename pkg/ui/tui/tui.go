package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"flickrheat/pkg/activity"
)

// ErrCancelled is returned when the user quits before the result arrives
var ErrCancelled = errors.New("cancelled by user")

// Work computes a heatmap, reporting each page through progress
type Work func(ctx context.Context, progress activity.ProgressFunc) (activity.Heatmap, error)

// TUI runs a Model in a bubbletea program
type TUI struct {
	program *tea.Program
	model   Model
}

func NewTUI(title string, opts ...tea.ProgramOption) *TUI {
	model := NewModel(title, nil)
	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Send forwards msg to the running program
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Progress satisfies activity.ProgressFunc
func (t *TUI) Progress(page, totalPages, fetched int) {
	t.Send(PageMsg{Page: page, TotalPages: totalPages, Fetched: fetched})
}

// Run executes work in the background while the program draws its
// progress. Quitting early cancels work and returns ErrCancelled.
func (t *TUI) Run(ctx context.Context, work Work) (activity.Heatmap, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		hm, err := work(ctx, t.Progress)
		if err != nil {
			t.Send(ErrorMsg{Err: err})
			return
		}
		t.Send(ResultMsg{Heatmap: hm})
	}()

	final, err := t.program.Run()
	if err != nil {
		return activity.Heatmap{}, fmt.Errorf("terminal UI: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return activity.Heatmap{}, fmt.Errorf("terminal UI: unexpected model %T", final)
	}
	switch m.Phase() {
	case PhaseDone:
		hm, _ := m.Result()
		return *hm, nil
	case PhaseFailed:
		_, err := m.Result()
		return activity.Heatmap{}, err
	default:
		return activity.Heatmap{}, ErrCancelled
	}
}
