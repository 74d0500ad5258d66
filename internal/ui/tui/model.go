package tui

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/stats"
	"github.com/bamsammich/alist-sync/internal/ui"
)

type viewMode int

const (
	viewFeed viewMode = iota
	viewRate
	viewErrors
)

type engineEventMsg event.Event
type channelDoneMsg struct{}
type tickMsg time.Time
type saveResultMsg struct {
	path string
	err  error
}

// readNextEvent blocks on the event channel for the next message.
func readNextEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return channelDoneMsg{}
		}
		return engineEventMsg(ev)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// saveModal is the file name prompt shown after a run.
type saveModal struct {
	active bool
	input  []rune
	cursor int
}

func (s *saveModal) open(name string) {
	s.active = true
	s.input = []rune(name)
	s.cursor = len(s.input)
}

func (s *saveModal) insert(rs []rune) {
	s.input = slices.Insert(s.input, s.cursor, rs...)
	s.cursor += len(rs)
}

func (s *saveModal) backspace() {
	if s.cursor > 0 {
		s.input = slices.Delete(s.input, s.cursor-1, s.cursor)
		s.cursor--
	}
}

func (s *saveModal) render() string {
	before, after := string(s.input[:s.cursor]), string(s.input[s.cursor:])
	return "  " + styleSavePrompt.Render("Save to: ") +
		styleSaveInput.Render(before) + styleSaveInput.Render("█") + styleSaveInput.Render(after)
}

// Model is the root Bubble Tea model of the full-screen display.
type Model struct {
	events  <-chan event.Event
	stats   *stats.Collector
	workers int
	root    string
	mode    string
	onQuit  func()

	view     viewMode
	feed     feedView
	rate     rateView
	width    int
	height   int
	notice   string
	done     bool
	quitting bool

	lastSnap stats.Snapshot
	lastETA  time.Duration

	save saveModal
}

// NewModel creates the model for a run in mode ("copy", "mirror", "sync"
// or "resume") writing under root. onQuit, if set, is called when the user
// quits before the run has finished.
func NewModel(events <-chan event.Event, c *stats.Collector, workers int, root, mode string, onQuit func()) Model {
	return Model{
		events:  events,
		stats:   c,
		workers: workers,
		root:    root,
		mode:    mode,
		onQuit:  onQuit,
		feed:    newFeedView(root),
		rate:    rateView{byCount: mode == "copy"},
		width:   80,
		height:  24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(readNextEvent(m.events), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.save.active {
			return m.handleSaveKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case engineEventMsg:
		m.feed.handleEvent(event.Event(msg))
		return m, readNextEvent(m.events)

	case channelDoneMsg:
		m.done = true
		m.lastSnap = m.stats.Snapshot()
		m.lastETA = 0
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.stats.Tick()
		m.lastSnap = m.stats.Snapshot()
		m.lastETA = m.stats.ETA()
		return m, tickCmd()

	case saveResultMsg:
		m.save.active = false
		if msg.err != nil {
			m.notice = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			m.notice = "saved to " + msg.path
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if !m.done && m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit
	case "f":
		m.view, m.notice = viewFeed, ""
	case "r":
		m.view, m.notice = viewRate, ""
	case "e":
		m.view, m.notice = viewErrors, ""
	case "j", "down":
		m.feed.scrollDown()
	case "k", "up":
		m.feed.scrollUp()
	case "g":
		m.feed.scrollToTop()
	case "G":
		m.feed.scrollToBottom()
	case "s":
		if m.done {
			m.save.open(fmt.Sprintf("alist-sync-%s.log", time.Now().Format("2006-01-02-150405")))
			m.notice = ""
		}
	}
	return m, nil
}

func (m Model) handleSaveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.save.active = false
	case tea.KeyEnter:
		return m, m.writeReport(string(m.save.input))
	case tea.KeyBackspace:
		m.save.backspace()
	case tea.KeyLeft:
		m.save.cursor = max(m.save.cursor-1, 0)
	case tea.KeyRight:
		m.save.cursor = min(m.save.cursor+1, len(m.save.input))
	case tea.KeyRunes:
		m.save.insert(msg.Runes)
	}
	return m, nil
}

// writeReport saves the run totals and every finished entry to path.
func (m Model) writeReport(path string) tea.Cmd {
	snap := m.lastSnap
	root, mode := m.root, m.mode
	finished := append([]finishedEntry(nil), m.feed.finished...)

	return func() tea.Msg {
		var b strings.Builder
		fmt.Fprintf(&b, "alist-sync %s report\n", mode)
		fmt.Fprintf(&b, "target:    %s\n", root)
		fmt.Fprintf(&b, "finished:  %s\n", time.Now().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "duration:  %s\n", ui.FormatDuration(snap.Elapsed))
		fmt.Fprintf(&b, "done:      %s\n", ui.FormatCount(snap.Succeeded()))
		fmt.Fprintf(&b, "failed:    %s\n", ui.FormatCount(snap.Failed()))
		fmt.Fprintf(&b, "copied:    %s\n", ui.FormatBytes(snap.BytesCopied))
		b.WriteString("\n")
		for _, e := range finished {
			label := e.label
			if !e.task {
				label = ui.StripRoot(root, label)
			}
			switch e.outcome {
			case outcomeFailed:
				fmt.Fprintf(&b, "x  %-50s  %s\n", label, e.errMsg)
			case outcomeBusy:
				fmt.Fprintf(&b, "-  %-50s  busy\n", label)
			case outcomeBackedUp:
				fmt.Fprintf(&b, "b  %-50s  backup\n", label)
			case outcomeDeleted:
				fmt.Fprintf(&b, "d  %-50s  deleted\n", label)
			default:
				fmt.Fprintf(&b, "v  %-50s  %s\n", label, ui.FormatBytes(e.size))
			}
		}
		err := os.WriteFile(path, []byte(b.String()), 0o644) //nolint:gosec // user-chosen report path
		return saveResultMsg{path: path, err: err}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader() + "\n")

	contentHeight := max(m.height-3, 3)
	switch m.view {
	case viewFeed:
		b.WriteString(m.feed.view(contentHeight))
	case viewRate:
		b.WriteString(m.rate.view(m.width, m.lastSnap, m.stats, len(m.feed.active), m.workers))
	case viewErrors:
		b.WriteString(m.renderAllErrors(contentHeight))
	}

	switch {
	case m.save.active:
		b.WriteString(m.save.render())
	case m.notice != "":
		b.WriteString(styleNotice.Render("  " + m.notice))
	}
	b.WriteString("\n" + m.renderFooter())
	return b.String()
}

func (m Model) renderAllErrors(height int) string {
	if len(m.feed.errors) == 0 {
		return styleSkipped.Render("  no errors") + "\n"
	}
	errs := m.feed.errors[max(len(m.feed.errors)-height, 0):]
	var b strings.Builder
	for _, e := range errs {
		fmt.Fprintf(&b, "  %s  %s  %s  %s\n",
			styleSize.Render(e.time.Format("15:04:05")),
			styleFailed.Render("✗"),
			styleError.Render(ui.StripRoot(m.root, e.label)),
			styleError.Render(e.err))
	}
	return b.String()
}

func (m Model) renderHeader() string {
	snap := m.lastSnap
	title := styleTitle.Render("alist-sync " + m.mode)

	if m.done {
		return styleHeader.Render(fmt.Sprintf("  %s  %s  %s done  %s failed  %s  %s",
			title, styleDone.Render("finished"),
			ui.FormatCount(snap.Succeeded()), ui.FormatCount(snap.Failed()),
			ui.FormatBytes(snap.BytesCopied), ui.FormatDuration(snap.Elapsed)))
	}

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesCopied) / float64(snap.BytesTotal)
	}
	return styleHeader.Render(fmt.Sprintf("  %s  %3.0f%%  %s  %s / %s  %s / %s done  eta %s",
		title, pct*100, styleBarFilled.Render(ui.ProgressBar(pct, 10)),
		ui.FormatBytes(snap.BytesCopied), ui.FormatBytes(snap.BytesTotal),
		ui.FormatCount(snap.Succeeded()+snap.Failed()),
		ui.FormatCount(snap.ItemsPlanned+snap.TasksSubmitted),
		ui.FormatETA(m.lastETA)))
}

func (m Model) renderFooter() string {
	binds := [][2]string{{"q", "quit"}, {"f", "feed"}, {"r", "rate"}, {"e", "errors"}, {"j/k", "scroll"}}
	if m.done {
		binds = append(binds, [2]string{"s", "save"})
	}
	parts := make([]string, 0, len(binds))
	for _, kb := range binds {
		parts = append(parts, styleKey.Render(kb[0])+" "+styleKeyLabel.Render(kb[1]))
	}
	return "  " + strings.Join(parts, "   ")
}
