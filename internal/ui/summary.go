package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/alist-sync/internal/stats"
)

// CompletionSummary builds the final summary line from a snapshot.
// Format: done ✓  ok 48  failed 0  size 2.1 GiB  avg 641 MB/s  time 3m 17s
//
// Counters that stayed zero (deletes, backups, rejected) are left out.
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}

	head := styleOK.Render("done ✓")
	switch {
	case snap.Failed() > 0 && snap.Succeeded() == 0:
		head = styleFail.Render("failed ✗")
	case snap.Failed() > 0:
		head = styleWarn.Render("done ✗")
	}

	parts := []string{
		head,
		field("ok", FormatCount(snap.Succeeded())),
		field("failed", FormatCount(snap.Failed())),
	}
	if snap.Deletes > 0 {
		parts = append(parts, field("deleted", FormatCount(snap.Deletes)))
	}
	if snap.Backups > 0 {
		parts = append(parts, field("backups", FormatCount(snap.Backups)))
	}
	if snap.ItemsRejected > 0 {
		parts = append(parts, field("busy", FormatCount(snap.ItemsRejected)))
	}
	parts = append(parts,
		field("size", FormatBytes(snap.BytesCopied)),
		field("avg", FormatRate(avgSpeed)),
		field("time", FormatDuration(snap.Elapsed)),
	)
	return strings.Join(parts, "  ")
}

func field(label, value string) string {
	return styleLabel.Render(label) + " " + styleValue.Render(value)
}

// ReportTable renders per-owner totals as an aligned two-column block.
func ReportTable(owner string, items int, bytes int64) string {
	rows := lipgloss.JoinVertical(lipgloss.Left,
		field("items", FormatCount(int64(items))),
		field("size ", FormatBytes(bytes)),
	)
	return lipgloss.JoinVertical(lipgloss.Left, styleTitle.Render(owner), rows)
}
