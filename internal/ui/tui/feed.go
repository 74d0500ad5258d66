package tui

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/ui"
)

// activeEntry is a work item or copy task between its first status change
// and its finish.
type activeEntry struct {
	key     string
	label   string
	status  string
	size    int64
	started time.Time
	task    bool
}

type outcome int

const (
	outcomeCopied outcome = iota
	outcomeDeleted
	outcomeBackedUp
	outcomeBusy
	outcomeFailed
)

type finishedEntry struct {
	label   string
	size    int64
	outcome outcome
	errMsg  string
	task    bool
}

type errorEntry struct {
	label string
	err   string
	time  time.Time
}

type feedView struct {
	root     string
	active   map[string]*activeEntry
	finished []finishedEntry
	errors   []errorEntry

	scrollOffset int
	autoScroll   bool
}

func newFeedView(root string) feedView {
	return feedView{
		root:       root,
		active:     make(map[string]*activeEntry),
		autoScroll: true,
	}
}

func (f *feedView) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.ItemStatus:
		f.track(ev.ID, ev.Path, ev.Status, ev.Size, ev.Timestamp, false)

	case event.TaskSubmitted, event.TaskStatus:
		status := ev.Status
		if ev.Type == event.TaskSubmitted {
			status = "submitted"
		}
		f.track(ui.TaskLabel(ev), ui.TaskLabel(ev), status, ev.Size, ev.Timestamp, true)

	case event.ItemDone:
		delete(f.active, ev.ID)
		o := outcomeCopied
		if ev.Kind == "delete" {
			o = outcomeDeleted
		}
		f.finish(finishedEntry{label: ev.Path, size: ev.Size, outcome: o})

	case event.TaskDone:
		delete(f.active, ui.TaskLabel(ev))
		f.finish(finishedEntry{label: ui.TaskLabel(ev), size: ev.Size, task: true})

	case event.ItemFailed:
		delete(f.active, ev.ID)
		f.fail(ev.Path, ev, false)

	case event.TaskFailed:
		delete(f.active, ui.TaskLabel(ev))
		f.fail(ui.TaskLabel(ev), ev, true)

	case event.ItemRejected:
		f.finish(finishedEntry{label: ev.Path, size: ev.Size, outcome: outcomeBusy})

	case event.BackupCreated:
		f.finish(finishedEntry{label: ev.Path, outcome: outcomeBackedUp})
	}
}

func (f *feedView) track(key, label, status string, size int64, at time.Time, task bool) {
	if e, ok := f.active[key]; ok {
		e.status = status
		return
	}
	f.active[key] = &activeEntry{key: key, label: label, status: status, size: size, started: at, task: task}
}

func (f *feedView) finish(e finishedEntry) {
	f.finished = append(f.finished, e)
}

func (f *feedView) fail(label string, ev event.Event, task bool) {
	msg := "error"
	if ev.Error != nil {
		msg = ev.Error.Error()
	}
	f.finish(finishedEntry{label: label, size: ev.Size, outcome: outcomeFailed, errMsg: msg, task: task})
	f.errors = append(f.errors, errorEntry{label: label, err: msg, time: ev.Timestamp})
}

func (f *feedView) scrollDown() {
	f.autoScroll = false
	f.scrollOffset++
}

func (f *feedView) scrollUp() {
	f.autoScroll = false
	if f.scrollOffset > 0 {
		f.scrollOffset--
	}
}

func (f *feedView) scrollToTop() {
	f.autoScroll = false
	f.scrollOffset = 0
}

func (f *feedView) scrollToBottom() {
	f.autoScroll = true
}

// view lays out three sections: active entries capped at a third of the
// height, the scrollable finished list, and the newest errors pinned last.
func (f *feedView) view(height int) string {
	activeCount := min(len(f.active), max(height/3, 1))
	errCount := min(len(f.errors), 5)

	dividers := 0
	for _, n := range []int{activeCount, errCount, len(f.finished)} {
		if n > 0 {
			dividers++
		}
	}
	finishedHeight := max(height-activeCount-errCount-dividers, 1)

	maxOffset := max(len(f.finished)-finishedHeight, 0)
	if f.autoScroll {
		f.scrollOffset = maxOffset
	}
	f.scrollOffset = min(max(f.scrollOffset, 0), maxOffset)

	var b strings.Builder
	if activeCount > 0 {
		b.WriteString(styleDivider.Render(fmt.Sprintf("─ active (%d)", len(f.active))) + "\n")
		b.WriteString(f.renderActive(activeCount))
	}
	if len(f.finished) > 0 {
		b.WriteString(styleDivider.Render(fmt.Sprintf("─ finished (%d)", len(f.finished))) + "\n")
		end := min(f.scrollOffset+finishedHeight, len(f.finished))
		for _, e := range f.finished[f.scrollOffset:end] {
			b.WriteString(f.renderFinished(e) + "\n")
		}
	}
	if errCount > 0 {
		b.WriteString(styleDivider.Render(fmt.Sprintf("─ errors (%d)", len(f.errors))) + "\n")
		b.WriteString(f.renderErrors(errCount))
	}
	return b.String()
}

// renderActive lists the longest-running entries first.
func (f *feedView) renderActive(limit int) string {
	entries := make([]*activeEntry, 0, len(f.active))
	for _, e := range f.active {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *activeEntry) int {
		if c := a.started.Compare(b.started); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})

	var b strings.Builder
	for _, e := range entries[:limit] {
		fmt.Fprintf(&b, "  %s  %s  %s  %s\n",
			styleActive.Render("⟩"),
			f.styledLabel(e.label, e.task),
			styleSize.Render(ui.FormatBytes(e.size)),
			styleStatusWord.Render(e.status))
	}
	return b.String()
}

func (f *feedView) renderFinished(e finishedEntry) string {
	label := f.styledLabel(e.label, e.task)
	size := styleSize.Render(fmt.Sprintf("%10s", ui.FormatBytes(e.size)))
	switch e.outcome {
	case outcomeFailed:
		return fmt.Sprintf("  %s  %s  %s", styleFailed.Render("✗"), label, styleError.Render(e.errMsg))
	case outcomeBusy:
		return fmt.Sprintf("  %s  %s  %s", styleSkipped.Render("–"), label, styleSkipped.Render("busy, skipped"))
	case outcomeBackedUp:
		return fmt.Sprintf("  %s  %s", styleBackup.Render("↺"), label)
	case outcomeDeleted:
		return fmt.Sprintf("  %s  %s", styleDone.Render("×"), label)
	default:
		return fmt.Sprintf("  %s  %s  %s", styleDone.Render("✓"), label, size)
	}
}

func (f *feedView) renderErrors(limit int) string {
	var b strings.Builder
	for _, e := range f.errors[len(f.errors)-limit:] {
		fmt.Fprintf(&b, "  %s  %s  %s\n",
			styleFailed.Render("✗"),
			styleError.Render(ui.StripRoot(f.root, e.label)),
			styleError.Render(e.err))
	}
	return b.String()
}

// styledLabel dims the directory part of a target path. Task labels name
// both ends and are shown as they are.
func (f *feedView) styledLabel(label string, task bool) string {
	if task {
		return styleFile.Render(label)
	}
	rel := ui.StripRoot(f.root, label)
	dir, base := path.Split(rel)
	if dir == "" {
		return styleFile.Render(base)
	}
	return styleDir.Render(dir) + styleFile.Render(base)
}
