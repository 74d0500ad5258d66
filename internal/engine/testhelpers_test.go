package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

// testSettings returns settings with short intervals, an in-memory store and
// a scratch dir under the test's temp dir.
func testSettings(t *testing.T) Settings {
	t.Helper()
	return Settings{
		Store:          store.NewMemory(),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		CacheDir:       t.TempDir(),
		Workers:        4,
		IntakeWait:     10 * time.Millisecond,
		IdleTimeout:    50 * time.Millisecond,
		SubmitInterval: 10 * time.Millisecond,
		ReconcilePoll:  10 * time.Millisecond,
		CopyRecheck:    Recheck{Retries: Retries(3), Interval: 5 * time.Millisecond},
		DeleteRecheck:  Recheck{Retries: Retries(3), Interval: 5 * time.Millisecond},
		BackupRecheck:  Recheck{Retries: Retries(3), Interval: 5 * time.Millisecond},
	}.withDefaults()
}

// newLocal returns a LocalFS over a fresh temp dir.
func newLocal(t *testing.T) *transport.LocalFS {
	t.Helper()
	return transport.NewLocalFS(t.TempDir())
}

func writeFile(t *testing.T, fs *transport.LocalFS, p string, data []byte) {
	t.Helper()
	abs := fs.AbsPath(p)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, data, 0o644))
}

func readFile(t *testing.T, fs *transport.LocalFS, p string) []byte {
	t.Helper()
	data, err := os.ReadFile(fs.AbsPath(p))
	require.NoError(t, err)
	return data
}

func fileExists(fs *transport.LocalFS, p string) bool {
	_, err := os.Stat(fs.AbsPath(p))
	return err == nil
}

// laggyFS hides paths from Stat for a number of calls after they are
// written, like a remote whose listing catches up late.
type laggyFS struct {
	transport.FS

	mu     sync.Mutex
	hidden map[string]int
	lag    int
	// sizes overrides the size Stat reports for a path.
	sizes map[string]int64
	// removeErr, if set, is returned by Remove.
	removeErr error
	// ghost keeps removed paths visible to Stat for this many calls.
	ghost   int
	ghosted map[string]int
}

func newLaggyFS(fs transport.FS, lag int) *laggyFS {
	return &laggyFS{
		FS:      fs,
		hidden:  make(map[string]int),
		lag:     lag,
		sizes:   make(map[string]int64),
		ghosted: make(map[string]int),
	}
}

func (l *laggyFS) ID() string { return "laggy:" + l.FS.(interface{ ID() string }).ID() }

func (l *laggyFS) Stat(ctx context.Context, p string) (transport.Entry, error) {
	l.mu.Lock()
	if n := l.hidden[p]; n > 0 {
		l.hidden[p] = n - 1
		l.mu.Unlock()
		return transport.Entry{}, transport.ErrNotFound
	}
	if n := l.ghosted[p]; n > 0 {
		l.ghosted[p] = n - 1
		l.mu.Unlock()
		return transport.Entry{Path: p}, nil
	}
	size, override := l.sizes[p]
	l.mu.Unlock()

	e, err := l.FS.Stat(ctx, p)
	if err == nil && override {
		e.Size = size
	}
	return e, err
}

func (l *laggyFS) Put(ctx context.Context, p string, r io.Reader, size int64, modified time.Time) error {
	if err := l.FS.Put(ctx, p, r, size, modified); err != nil {
		return err
	}
	l.mu.Lock()
	l.hidden[p] = l.lag
	l.mu.Unlock()
	return nil
}

func (l *laggyFS) Remove(ctx context.Context, p string) error {
	if l.removeErr != nil {
		return l.removeErr
	}
	if err := l.FS.Remove(ctx, p); err != nil {
		return err
	}
	l.mu.Lock()
	l.ghosted[p] = l.ghost
	l.mu.Unlock()
	return nil
}

// fakeQueue is a scripted remote copy-task queue. Submitted tasks appear
// undone with an empty status.
type fakeQueue struct {
	mu        sync.Mutex
	submitted []string
	failNext  int
	undone    map[string]transport.Task
	done      map[string]transport.Task
	refreshed time.Time
	clears    int
	nextID    int
	// autoFinish, if set, completes each task with this status on the
	// snapshot after it was submitted.
	autoFinish *string
	extraDone  []transport.Task
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		undone: make(map[string]transport.Task),
		done:   make(map[string]transport.Task),
	}
}

func (q *fakeQueue) SubmitCopy(_ context.Context, srcDir, dstDir string, names []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext > 0 {
		q.failNext--
		return transport.ErrNotSupported
	}
	for _, n := range names {
		src := path.Join(srcDir, n)
		q.nextID++
		id := fmt.Sprintf("t%d", q.nextID)
		q.submitted = append(q.submitted, src)
		q.undone[id] = transport.Task{ID: id, Name: "copy " + src, SrcPath: src, DstDir: dstDir}
	}
	return nil
}

func (q *fakeQueue) TaskSnapshot(context.Context, transport.TaskKind) (transport.TaskSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.refreshed.IsZero() {
		return transport.TaskSnapshot{}, nil
	}
	snap := transport.TaskSnapshot{Refreshed: q.refreshed}
	for _, t := range q.undone {
		snap.Undone = append(snap.Undone, t)
	}
	for _, t := range q.done {
		snap.Done = append(snap.Done, t)
	}
	snap.Done = append(snap.Done, q.extraDone...)
	if q.autoFinish != nil {
		for id, t := range q.undone {
			t.Status = *q.autoFinish
			q.done[id] = t
			delete(q.undone, id)
		}
	}
	return snap, nil
}

func (q *fakeQueue) ClearDone(context.Context, transport.TaskKind) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clears++
	q.done = make(map[string]transport.Task)
	return nil
}

func (q *fakeQueue) clearCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clears
}

func (q *fakeQueue) submissions() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.submitted...)
}

func (q *fakeQueue) refresh() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshed = time.Now()
}

// blockingFS blocks Open until release is closed.
type blockingFS struct {
	transport.FS
	release chan struct{}
	opened  chan struct{}
	once    sync.Once
}

func (b *blockingFS) ID() string { return "blocking" }

func (b *blockingFS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	b.once.Do(func() { close(b.opened) })
	<-b.release
	return b.FS.Open(ctx, p)
}

func payload(n int) []byte { return bytes.Repeat([]byte("x"), n) }
