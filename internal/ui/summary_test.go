package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/alist-sync/internal/stats"
)

func TestCompletionSummary(t *testing.T) {
	s := CompletionSummary(stats.Snapshot{
		ItemsDone:   3,
		Deletes:     2,
		BytesCopied: 2048,
		Elapsed:     2 * time.Second,
	})
	assert.Contains(t, s, "done ✓")
	assert.Contains(t, s, "deleted")
	assert.Contains(t, s, "2.0 KiB")
	assert.Contains(t, s, "1.00 KB/s")
	assert.NotContains(t, s, "backups")
	assert.NotContains(t, s, "busy")
}

func TestCompletionSummaryFailures(t *testing.T) {
	partial := CompletionSummary(stats.Snapshot{ItemsDone: 1, TasksFailed: 1})
	assert.Contains(t, partial, "done ✗")

	total := CompletionSummary(stats.Snapshot{ItemsFailed: 2})
	assert.Contains(t, total, "failed ✗")
}

func TestCompletionSummaryLayout(t *testing.T) {
	s := CompletionSummary(stats.Snapshot{
		ItemsDone:      1200,
		TasksSucceeded: 34,
		ItemsFailed:    2,
		Backups:        1,
		ItemsRejected:  3,
		BytesCopied:    5 << 20,
		Elapsed:        2*time.Minute + 5*time.Second,
	})
	assert.Contains(t, s, "done ✗")
	assert.Contains(t, s, "ok 1,234")
	assert.Contains(t, s, "failed 2")
	assert.Contains(t, s, "backups 1")
	assert.Contains(t, s, "busy 3")
	assert.Contains(t, s, "size 5.0 MiB")
	assert.Contains(t, s, "avg 41.0 KB/s")
	assert.Contains(t, s, "time 2m 05s")
	assert.NotContains(t, s, "deleted")
	assert.Less(t, strings.Index(s, "busy"), strings.Index(s, "size"), "optional counters come before totals")
}

func TestCompletionSummaryNoElapsed(t *testing.T) {
	s := CompletionSummary(stats.Snapshot{BytesCopied: 100})
	assert.Contains(t, s, "avg 0 B/s")
	assert.Contains(t, s, "time 0s")
}

func TestReportTable(t *testing.T) {
	s := ReportTable("alice", 1200, 3<<30)
	assert.Contains(t, s, "alice")
	assert.Contains(t, s, "1,200")
	assert.Contains(t, s, "3.0 GiB")
}

func TestQuietPresenterSummary(t *testing.T) {
	c := stats.NewCollector()
	p := &quietPresenter{stats: c}
	assert.Empty(t, p.Summary())

	c.AddItemsFailed(1)
	assert.NotEmpty(t, p.Summary())
}
