package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/alist-sync/internal/config"
	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/stats"
	"github.com/bamsammich/alist-sync/internal/ui"
)

// Config configures the full-screen presenter.
type Config struct {
	Stats   *stats.Collector
	Workers int
	Root    string
	Mode    string
	Theme   config.ThemeConfig
	// OnQuit stops the run when the user quits early.
	OnQuit func()
}

// Presenter runs a Bubble Tea program and implements ui.Presenter.
type Presenter struct {
	cfg   Config
	model Model
}

func NewPresenter(cfg Config) *Presenter {
	ApplyTheme(cfg.Theme)
	return &Presenter{cfg: cfg}
}

// Run starts the program on the alternate screen and blocks until the user
// quits.
func (p *Presenter) Run(events <-chan event.Event) error {
	p.model = NewModel(events, p.cfg.Stats, p.cfg.Workers, p.cfg.Root, p.cfg.Mode, p.cfg.OnQuit)
	prog := tea.NewProgram(p.model, tea.WithAltScreen(), tea.WithoutSignalHandler())
	final, err := prog.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok {
		p.model = m
	}
	return nil
}

func (p *Presenter) Summary() string {
	return ui.CompletionSummary(p.cfg.Stats.Snapshot())
}
