package tui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/alist-sync/internal/stats"
	"github.com/bamsammich/alist-sync/internal/ui"
)

const (
	byteSparkFloor  = 256 << 10
	countSparkFloor = 1
)

// rateView shows throughput: bytes per second for mirror and sync runs,
// finished tasks per second for server-side copies.
type rateView struct {
	byCount bool
}

func (r rateView) view(width int, snap stats.Snapshot, c *stats.Collector, busy, workers int) string {
	sparkWidth := max(width-4, 10)

	var (
		big   string
		spark string
	)
	if r.byCount {
		big = ui.FormatPerSec(c.RollingDoneRate(5), "tasks")
		spark = ui.Sparkline(c.DoneSparklineData(sparkWidth), sparkWidth, countSparkFloor)
	} else {
		big = ui.FormatRate(c.RollingSpeed(5))
		spark = ui.Sparkline(c.SparklineData(sparkWidth), sparkWidth, byteSparkFloor)
	}

	var b strings.Builder
	b.WriteString("  " + styleBigNumber.Render(big) + "\n\n")
	b.WriteString("  " + styleSparkline.Render(spark) + "\n\n")

	counters := []struct {
		label string
		value string
	}{
		{"done", ui.FormatCount(snap.Succeeded())},
		{"failed", ui.FormatCount(snap.Failed())},
		{"deleted", ui.FormatCount(snap.Deletes)},
		{"backups", ui.FormatCount(snap.Backups)},
		{"busy", ui.FormatCount(snap.ItemsRejected)},
		{"copied", ui.FormatBytes(snap.BytesCopied)},
	}
	cells := make([]string, 0, len(counters))
	for _, c := range counters {
		cells = append(cells, styleCounterLabel.Render(c.label)+" "+styleFile.Render(c.value))
	}
	b.WriteString("  " + strings.Join(cells, "   ") + "\n\n")

	fmt.Fprintf(&b, "  %s  %s\n", styleDivider.Render("workers"), workerGrid(busy, workers))
	return b.String()
}

func workerGrid(busy, total int) string {
	busy = min(busy, total)
	return styleWorkerBusy.Render(strings.Repeat("▪", busy)) +
		styleWorkerIdle.Render(strings.Repeat("□", total-busy))
}
