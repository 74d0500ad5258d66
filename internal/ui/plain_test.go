package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/alist-sync/internal/stats"
)

func runPlain(t *testing.T, verbose bool, evs ...Event) string {
	t.Helper()
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.NewCollector(), root: "/dst", verbose: verbose}

	events := make(chan Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	require.NoError(t, p.Run(events))
	return out.String()
}

func TestPlainPresenterItems(t *testing.T) {
	out := runPlain(t, false,
		Event{Type: ItemDone, Kind: "copy", Path: "/dst/dir/file.txt", Size: 1024},
		Event{Type: ItemDone, Kind: "delete", Path: "/dst/extra.txt"},
		Event{Type: ItemFailed, Kind: "copy", Path: "/dst/bad.bin", Error: assert.AnError},
		Event{Type: ItemRejected, Path: "/dst/busy.txt"},
		Event{Type: BackupCreated, Path: "/dst/.backup/abc_1.history"},
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "dir/file.txt  1.0 KiB", lines[0])
	assert.Equal(t, "delete: extra.txt", lines[1])
	assert.Contains(t, lines[2], "bad.bin  failed")
	assert.Contains(t, lines[2], assert.AnError.Error())
	assert.Equal(t, "busy.txt  busy, skipped", lines[3])
	assert.Equal(t, "backup: .backup/abc_1.history", lines[4])
}

func TestPlainPresenterTasks(t *testing.T) {
	out := runPlain(t, false,
		Event{Type: TaskSubmitted, Source: "/src/a.mkv", Path: "/dst"},
		Event{Type: TaskDone, Source: "/src/a.mkv", Path: "/dst", Size: 2048},
		Event{Type: TaskFailed, Source: "/src/b.mkv", Path: "/dst", Error: assert.AnError},
	)
	assert.NotContains(t, out, "submitted")
	assert.Contains(t, out, "/src/a.mkv -> /dst  2.0 KiB")
	assert.Contains(t, out, "/src/b.mkv -> /dst  failed")
}

func TestPlainPresenterVerbose(t *testing.T) {
	out := runPlain(t, true,
		Event{Type: TaskSubmitted, Source: "/src/a.mkv", Path: "/dst"},
		Event{Type: ItemStatus, Path: "/dst/x", Status: "downloading"},
	)
	assert.Contains(t, out, "submitted: /src/a.mkv -> /dst")
	assert.Contains(t, out, "x  downloading")
}

func TestPlainPresenterPlanComplete(t *testing.T) {
	out := runPlain(t, false, Event{Type: PlanComplete, Total: 1200, TotalSize: 1 << 20})
	assert.Equal(t, "planned 1,200 items, 1.0 MiB\n", out)
}

func TestPlainPresenterSummary(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddItemsDone(100)
	collector.AddBytesCopied(1024 * 1024)

	p := &plainPresenter{stats: collector}
	s := p.Summary()
	assert.Contains(t, s, "ok")
	assert.Contains(t, s, "100")
	assert.Contains(t, s, "1.0 MiB")
}
