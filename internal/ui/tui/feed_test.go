package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/alist-sync/internal/event"
)

func TestFeed_TracksItemsAndTasks(t *testing.T) {
	f := newFeedView("/dst")
	f.handleEvent(event.Event{Type: event.ItemStatus, ID: "a", Path: "/dst/a.bin", Status: "downloading", Size: 10})
	f.handleEvent(event.Event{Type: event.ItemStatus, ID: "a", Path: "/dst/a.bin", Status: "uploading"})
	f.handleEvent(event.Event{Type: event.TaskSubmitted, Source: "/src/b.bin", Path: "/dst"})
	f.handleEvent(event.Event{Type: event.TaskStatus, Source: "/src/b.bin", Path: "/dst", Status: "running"})

	require.Len(t, f.active, 2)
	assert.Equal(t, "uploading", f.active["a"].status)
	assert.Equal(t, int64(10), f.active["a"].size, "first status keeps the size")
	assert.Equal(t, "running", f.active["/src/b.bin -> /dst"].status)

	f.handleEvent(event.Event{Type: event.ItemDone, ID: "a", Kind: "copy", Path: "/dst/a.bin", Size: 10})
	f.handleEvent(event.Event{Type: event.TaskDone, Source: "/src/b.bin", Path: "/dst", Size: 3})
	assert.Empty(t, f.active)
	require.Len(t, f.finished, 2)
	assert.Equal(t, outcomeCopied, f.finished[0].outcome)
	assert.True(t, f.finished[1].task)
}

func TestFeed_Outcomes(t *testing.T) {
	f := newFeedView("/dst")
	f.handleEvent(event.Event{Type: event.ItemDone, ID: "d", Kind: "delete", Path: "/dst/old.txt"})
	f.handleEvent(event.Event{Type: event.BackupCreated, Path: "/dst/.history/x"})
	f.handleEvent(event.Event{Type: event.ItemRejected, ID: "r", Path: "/dst/busy.bin"})
	f.handleEvent(event.Event{Type: event.ItemFailed, ID: "f", Path: "/dst/bad.bin", Error: errors.New("boom")})
	f.handleEvent(event.Event{Type: event.TaskFailed, Source: "/s/t", Path: "/dst"})

	got := make([]outcome, 0, len(f.finished))
	for _, e := range f.finished {
		got = append(got, e.outcome)
	}
	assert.Equal(t, []outcome{outcomeDeleted, outcomeBackedUp, outcomeBusy, outcomeFailed, outcomeFailed}, got)
	require.Len(t, f.errors, 2)
	assert.Equal(t, "boom", f.errors[0].err)
	assert.Equal(t, "error", f.errors[1].err, "a task failure without detail")

	out := f.view(20)
	assert.Contains(t, out, "busy, skipped")
	assert.Contains(t, out, "─ errors (2)")
	assert.Contains(t, out, "boom")
}

func TestFeed_ActiveOldestFirst(t *testing.T) {
	f := newFeedView("/dst")
	now := time.Now()
	f.handleEvent(event.Event{Type: event.ItemStatus, ID: "new", Path: "/dst/new", Timestamp: now})
	f.handleEvent(event.Event{Type: event.ItemStatus, ID: "old", Path: "/dst/old", Timestamp: now.Add(-time.Minute)})

	out := f.renderActive(2)
	assert.Less(t, strings.Index(out, "old"), strings.Index(out, "new"))
	assert.NotContains(t, f.renderActive(1), "new")
}

func TestFeed_Scrolling(t *testing.T) {
	f := newFeedView("/dst")
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		f.handleEvent(event.Event{Type: event.ItemDone, ID: name, Kind: "copy", Path: "/dst/" + name + ".txt"})
	}

	// Height 4: one divider and three finished lines.
	out := f.view(4)
	assert.Contains(t, out, "f.txt", "follows the newest entries")
	assert.NotContains(t, out, "a.txt")

	f.scrollToTop()
	out = f.view(4)
	assert.Contains(t, out, "a.txt")
	assert.NotContains(t, out, "f.txt")

	f.scrollDown()
	assert.Equal(t, 1, f.scrollOffset)
	f.scrollUp()
	f.scrollUp()
	assert.Equal(t, 0, f.scrollOffset)

	for range 20 {
		f.scrollDown()
	}
	f.view(4)
	assert.Equal(t, 3, f.scrollOffset, "clamped to the last page")

	f.scrollToBottom()
	assert.True(t, f.autoScroll)
}

func TestFeed_StyledLabel(t *testing.T) {
	f := newFeedView("/dst")
	assert.Equal(t, "sub/file.txt", f.styledLabel("/dst/sub/file.txt", false))
	assert.Equal(t, "file.txt", f.styledLabel("/dst/file.txt", false))
	assert.Equal(t, "/s/a -> /dst", f.styledLabel("/s/a -> /dst", true))
}

func TestWorkerGrid(t *testing.T) {
	assert.Equal(t, "▪▪□□", workerGrid(2, 4))
	assert.Equal(t, "▪▪", workerGrid(5, 2))
	assert.Empty(t, workerGrid(0, 0))
}
