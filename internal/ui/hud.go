package ui

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/bamsammich/alist-sync/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

// hudPresenter provides a TTY display with a scrolling feed of finished
// items and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   *stats.Collector
	workers int
	root    string // target root, stripped from displayed paths
	// byCount rates progress in finished tasks, for servers that copy
	// whole files without reporting bytes along the way.
	byCount bool

	hudDrawn     bool
	hudLineCount int
	active       map[string]bool // items or tasks between queue and finish
	lastHUDDraw  time.Time
}

const (
	sparklineWidth   = 20
	byteSparkFloor   = 256 << 10 // bytes/sec
	countSparkFloor  = 1         // finished/sec
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond
)

func (p *hudPresenter) Run(events <-chan Event) error {
	p.active = make(map[string]bool)

	// Fire first tick quickly to seed the ring buffer, then every second.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw while no events flow (long downloads, slow remote tasks).
	redrawTicker := time.NewTicker(200 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case ItemStatus:
		p.active[ev.ID] = true

	case TaskSubmitted:
		p.active[TaskLabel(ev)] = true

	case ItemDone:
		delete(p.active, ev.ID)
		icon := "✓"
		if ev.Kind == "delete" {
			icon = "×"
		}
		p.feed("%s  %s  %10s", icon, p.styledPath(ev.Path), FormatBytes(ev.Size))

	case ItemFailed:
		delete(p.active, ev.ID)
		p.feed("✗  %s  %10s  %s", p.styledPath(ev.Path), FormatBytes(ev.Size), errText(ev.Error))

	case ItemRejected:
		p.feed("–  %s  %sbusy, skipped%s", p.styledPath(ev.Path), ansiDim, ansiReset)

	case BackupCreated:
		p.feed("↺  %s", p.styledPath(ev.Path))

	case TaskDone:
		delete(p.active, TaskLabel(ev))
		p.feed("✓  %s  %10s", TaskLabel(ev), FormatBytes(ev.Size))

	case TaskFailed:
		delete(p.active, TaskLabel(ev))
		p.feed("✗  %s  %s", TaskLabel(ev), errText(ev.Error))
	}
}

// feed prints one line above the HUD.
func (p *hudPresenter) feed(format string, args ...any) {
	p.clearHUD()
	fmt.Fprintf(p.w, format+"\n", args...)
	p.drawHUD()
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	p.clearHUD()

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesCopied) / float64(snap.BytesTotal)
	}

	// Line 1: throughput sparkline + rate + byte totals.
	fmt.Fprintf(p.w, "       %s   %s   %s / %s\n",
		p.sparkline(), p.rate(),
		FormatBytes(snap.BytesCopied), FormatBytes(snap.BytesTotal))

	// Line 2: progress bar + done count + active workers + eta.
	planned := snap.ItemsPlanned + snap.TasksSubmitted
	fmt.Fprintf(p.w, " %3.0f%%  %s   %s / %s done   %s   eta %s\n",
		pct*100, ProgressBar(pct, progressBarWidth),
		FormatCount(snap.Succeeded()+snap.Failed()), FormatCount(planned),
		WorkerIndicator(min(len(p.active), p.workers), p.workers),
		FormatETA(p.stats.ETA()))

	p.hudDrawn = true
	p.hudLineCount = 2
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) sparkline() string {
	if p.byCount {
		return Sparkline(p.stats.DoneSparklineData(sparklineWidth), sparklineWidth, countSparkFloor)
	}
	return Sparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth, byteSparkFloor)
}

func (p *hudPresenter) rate() string {
	if p.byCount {
		return FormatPerSec(p.stats.RollingDoneRate(10), "tasks")
	}
	return FormatRate(p.stats.RollingSpeed(10))
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", p.hudLineCount)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// styledPath dims the directory part of a target path so the file name
// stands out.
func (p *hudPresenter) styledPath(target string) string {
	rel := StripRoot(p.root, target)
	dir, base := path.Split(rel)
	if dir == "" || dir == "/" {
		return base
	}
	return fmt.Sprintf("%s%s%s%s", ansiDim, dir, ansiReset, base)
}

// StripRoot removes a root prefix from a slash-separated path.
func StripRoot(root, p string) string {
	if root == "" || root == "/" {
		return strings.TrimPrefix(p, "/")
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	if strings.HasPrefix(p, root) {
		return p[len(root):]
	}
	return p
}
