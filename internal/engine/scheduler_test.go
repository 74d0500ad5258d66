package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

func TestSubmitRejectsLockedPath(t *testing.T) {
	set := testSettings(t)
	local, dst := newLocal(t), newLocal(t)
	writeFile(t, local, "/f.txt", []byte("hello"))
	src := &blockingFS{FS: local, release: make(chan struct{}), opened: make(chan struct{})}

	s := NewScheduler(set)
	ctx := context.Background()

	first := NewCopyItem(set, src, "/f.txt", dst, "/t.txt", ItemOptions{})
	require.NoError(t, s.Submit(ctx, first))
	<-src.opened

	// Same target, different source.
	clash := NewDeleteItem(set, dst, "/t.txt", ItemOptions{})
	require.ErrorIs(t, s.Submit(ctx, clash), ErrPathLocked)
	// Same source, different target.
	clash = NewCopyItem(set, src, "/f.txt", dst, "/other.txt", ItemOptions{})
	require.ErrorIs(t, s.Submit(ctx, clash), ErrPathLocked)
	assert.Equal(t, int64(2), set.Stats.Snapshot().ItemsRejected)

	close(src.release)
	require.Eventually(t, func() bool { return s.locks.len() == 0 }, 5*time.Second, 5*time.Millisecond)

	again := NewDeleteItem(set, dst, "/t.txt", ItemOptions{})
	require.NoError(t, s.Submit(ctx, again))
	s.pool.StopAndWait()

	assert.Equal(t, StatusDone, first.Status)
	assert.Equal(t, StatusDone, again.Status)
	assert.False(t, fileExists(dst, "/t.txt"))
}

func TestPathLocksAllOrNothing(t *testing.T) {
	l := newPathLocks()
	require.True(t, l.tryLock("a", "b"))
	require.False(t, l.tryLock("c", "b"))
	assert.False(t, l.locked("c"))

	assert.Empty(t, l.unlock("a", "b"))
	assert.Equal(t, []string{"a"}, l.unlock("a"))
	assert.True(t, l.tryLock("c", "b"))
}

func TestRunDrainsQueueAndStopsWhenIdle(t *testing.T) {
	set := testSettings(t)
	src, dst := newLocal(t), newLocal(t)
	for _, name := range []string{"/a", "/b", "/c"} {
		writeFile(t, src, name, payload(10))
	}

	s := NewScheduler(set)
	queue := make(chan *WorkItem, 3)
	for _, name := range []string{"/a", "/b", "/c"} {
		queue <- NewCopyItem(set, src, name, dst, name, ItemOptions{})
	}

	start := time.Now()
	require.NoError(t, s.Run(context.Background(), queue))
	assert.GreaterOrEqual(t, time.Since(start), set.IdleTimeout)

	for _, name := range []string{"/a", "/b", "/c"} {
		assert.Equal(t, payload(10), readFile(t, dst, name))
	}
	assert.Equal(t, int64(3), set.Stats.Snapshot().ItemsDone)
}

func TestIdleTimeoutCountsFromStart(t *testing.T) {
	set := testSettings(t)
	set.IdleTimeout = 300 * time.Millisecond
	src, dst := newLocal(t), newLocal(t)
	writeFile(t, src, "/late", payload(10))

	s := NewScheduler(set)
	time.Sleep(set.IdleTimeout)

	// Work arriving after the timeout does not restart it.
	queue := make(chan *WorkItem, 1)
	queue <- NewCopyItem(set, src, "/late", dst, "/late", ItemOptions{})
	start := time.Now()
	require.NoError(t, s.Run(context.Background(), queue))
	assert.Less(t, time.Since(start), set.IdleTimeout)
	assert.Equal(t, payload(10), readFile(t, dst, "/late"))
}

func TestRunWaitsForProducers(t *testing.T) {
	set := testSettings(t)
	s := NewScheduler(set)
	done := s.AddProducer()

	finished := make(chan error, 1)
	go func() { finished <- s.Run(context.Background(), make(chan *WorkItem)) }()

	select {
	case <-finished:
		t.Fatal("scheduler stopped while a producer was active")
	case <-time.After(4 * set.IdleTimeout):
	}

	done()
	done()
	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after the producer finished")
	}
}

func TestRunDaemonStopsOnCancel(t *testing.T) {
	set := testSettings(t)
	set.Daemon = true
	s := NewScheduler(set)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- s.Run(ctx, nil) }()

	time.Sleep(4 * set.IdleTimeout)
	select {
	case <-finished:
		t.Fatal("daemon scheduler stopped on idle")
	default:
	}

	cancel()
	select {
	case err := <-finished:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler ignored cancellation")
	}
}

func TestSchedulerResume(t *testing.T) {
	set := testSettings(t)
	src, dst := newLocal(t), newLocal(t)
	writeFile(t, src, "/f.bin", payload(32))
	writeFile(t, dst, "/stale.txt", []byte("x"))

	ctx := context.Background()
	recs := []store.Record{
		{ID: "copy-1", Kind: string(KindCopy), SourcePath: "/f.bin", TargetPath: "/f.bin",
			Status: string(StatusDownloading), CreatedAt: time.Now()},
		{ID: "del-1", Kind: string(KindDelete), TargetPath: "/stale.txt",
			Status: string(StatusInit), CreatedAt: time.Now()},
	}
	for _, rec := range recs {
		require.NoError(t, set.Store.Upsert(ctx, rec))
	}

	s := NewScheduler(set)
	n, err := s.Resume(ctx, func(store.Record) (transport.FS, transport.FS, error) {
		return src, dst, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, s.Run(ctx, nil))

	assert.Equal(t, payload(32), readFile(t, dst, "/f.bin"))
	assert.False(t, fileExists(dst, "/stale.txt"))

	pending, err := set.Store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	logs, err := set.Store.Logs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestCloseRemovesLeftoverScratch(t *testing.T) {
	set := testSettings(t)
	leftover := filepath.Join(set.CacheDir, scratchPrefix+"deadbeef")
	other := filepath.Join(set.CacheDir, "keep.txt")
	require.NoError(t, os.WriteFile(leftover, []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("keep"), 0o644))

	held := acquireScratch(set.CacheDir, "/in/use")
	require.NoError(t, os.WriteFile(held.path, []byte("busy"), 0o644))
	defer held.release()

	require.NoError(t, NewScheduler(set).Close())

	assert.NoFileExists(t, leftover)
	assert.FileExists(t, other)
	assert.FileExists(t, held.path)
}
