package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/alist-sync/internal/stats"
)

// plainPresenter prints one line per finished item or task to stdout, and
// periodic progress to stderr.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	root    string
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	path := StripRoot(p.root, ev.Path)
	switch ev.Type {
	case PlanComplete:
		fmt.Fprintf(p.w, "planned %s items, %s\n", FormatCount(ev.Total), FormatBytes(ev.TotalSize))
	case ItemDone:
		if ev.Kind == "delete" {
			fmt.Fprintf(p.w, "delete: %s\n", path)
			return
		}
		fmt.Fprintf(p.w, "%s  %s\n", path, FormatBytes(ev.Size))
	case ItemFailed:
		fmt.Fprintf(p.w, "%s  failed  %s\n", path, errText(ev.Error))
	case TaskFailed:
		fmt.Fprintf(p.w, "%s  failed  %s\n", TaskLabel(ev), errText(ev.Error))
	case ItemRejected:
		fmt.Fprintf(p.w, "%s  busy, skipped\n", path)
	case BackupCreated:
		fmt.Fprintf(p.w, "backup: %s\n", path)
	case TaskDone:
		fmt.Fprintf(p.w, "%s  %s\n", TaskLabel(ev), FormatBytes(ev.Size))
	case TaskSubmitted:
		if p.verbose {
			fmt.Fprintf(p.w, "submitted: %s\n", TaskLabel(ev))
		}
	case ItemStatus:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", path, ev.Status)
		}
	case TaskStatus:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", TaskLabel(ev), ev.Status)
		}
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesCopied) / float64(snap.BytesTotal) * 100
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s/%s done %s eta %s\n",
			pct,
			FormatBytes(snap.BytesCopied), FormatBytes(snap.BytesTotal),
			FormatCount(snap.Succeeded()), FormatCount(snap.ItemsPlanned+snap.TasksSubmitted),
			FormatRate(p.stats.RollingSpeed(10)),
			FormatETA(p.stats.ETA()),
		)
		return
	}
	fmt.Fprintf(p.errW, "progress: %s copied, %s done\n",
		FormatBytes(snap.BytesCopied), FormatCount(snap.Succeeded()))
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}

// TaskLabel names a copy task by its source file and target directory.
func TaskLabel(ev Event) string {
	return ev.Source + " -> " + ev.Path
}
