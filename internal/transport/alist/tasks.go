package alist

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/bamsammich/alist-sync/internal/transport"
)

// SubmitCopy creates a server-side copy task for names in srcDir.
func (c *Client) SubmitCopy(ctx context.Context, srcDir, dstDir string, names []string) error {
	body := map[string]any{"src_dir": clean(srcDir), "dst_dir": clean(dstDir), "names": names}
	if err := c.do(ctx, http.MethodPost, "/api/fs/copy", body, nil); err != nil {
		return fmt.Errorf("copy %v from %s to %s: %w", names, srcDir, dstDir, err)
	}
	return nil
}

// ClearDone drops finished tasks of kind from the server's queue.
func (c *Client) ClearDone(ctx context.Context, kind transport.TaskKind) error {
	if err := c.do(ctx, http.MethodPost, "/api/task/"+string(kind)+"/clear_done", nil, nil); err != nil {
		return fmt.Errorf("clear done %s tasks: %w", kind, err)
	}
	return nil
}

const taskPageSize = 200

// taskPage accepts both list shapes: a bare array (Alist) and a paged
// {content, total} object (OpenList).
type taskPage struct {
	Content []transport.Task
	Total   int64
}

func (p *taskPage) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		p.Total = -1
		return json.Unmarshal(b, &p.Content)
	}
	var paged struct {
		Content []transport.Task `json:"content"`
		Total   int64            `json:"total"`
	}
	if err := json.Unmarshal(b, &paged); err != nil {
		return err
	}
	p.Content, p.Total = paged.Content, paged.Total
	return nil
}

// Tasks fetches the full done or undone list of kind from the server.
func (c *Client) Tasks(ctx context.Context, kind transport.TaskKind, done bool) ([]transport.Task, error) {
	which := "undone"
	if done {
		which = "done"
	}
	endpoint := "/api/task/" + string(kind) + "/" + which

	var all []transport.Task
	for page := 1; ; page++ {
		var tp taskPage
		p := endpoint + "?page=" + strconv.Itoa(page) + "&page_size=" + strconv.Itoa(taskPageSize)
		if err := c.do(ctx, http.MethodGet, p, nil, &tp); err != nil {
			return nil, fmt.Errorf("list %s %s tasks: %w", which, kind, err)
		}
		for _, t := range tp.Content {
			t.SrcPath, t.DstDir, _ = ParseCopyTaskName(t.Name)
			all = append(all, t)
		}
		if tp.Total < 0 || len(tp.Content) < taskPageSize || int64(len(all)) >= tp.Total {
			return all, nil
		}
	}
}

// TaskSnapshot returns the cached view of kind's queue, starting a
// background refresher on first use. Until the first refresh completes the
// snapshot is stale (zero Refreshed).
func (c *Client) TaskSnapshot(_ context.Context, kind transport.TaskKind) (transport.TaskSnapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.TaskSnapshot{}, fmt.Errorf("task snapshot %s: client closed", kind)
	}
	w, ok := c.watchers[kind]
	if !ok {
		w = newTaskWatch(c, kind)
		c.watchers[kind] = w
		go w.run()
	}
	c.mu.Unlock()
	return w.snapshot(), nil
}

// taskWatch keeps a periodically refreshed snapshot of one task queue.
type taskWatch struct {
	c      *Client
	kind   transport.TaskKind
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	snap   transport.TaskSnapshot
}

func newTaskWatch(c *Client, kind transport.TaskKind) *taskWatch {
	ctx, cancel := context.WithCancel(context.Background())
	return &taskWatch{c: c, kind: kind, ctx: ctx, cancel: cancel}
}

func (w *taskWatch) run() {
	ticker := time.NewTicker(w.c.opts.TaskPoll)
	defer ticker.Stop()
	for {
		w.refresh()
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *taskWatch) refresh() {
	done, err := w.c.Tasks(w.ctx, w.kind, true)
	if err != nil {
		w.c.log.Warn("refresh task queue failed", "kind", w.kind, "error", err)
		return
	}
	undone, err := w.c.Tasks(w.ctx, w.kind, false)
	if err != nil {
		w.c.log.Warn("refresh task queue failed", "kind", w.kind, "error", err)
		return
	}

	w.mu.Lock()
	w.snap = transport.TaskSnapshot{Refreshed: time.Now(), Done: done, Undone: undone}
	w.mu.Unlock()
}

func (w *taskWatch) snapshot() transport.TaskSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snap
}

func (w *taskWatch) stop() { w.cancel() }

// copyTaskName matches server copy task names such as
// "copy [/mnt](/a/b.txt) to [/dst](/x)".
var copyTaskName = regexp.MustCompile(`^copy \[(.*?)\]\((.*?)\) to \[(.*?)\]\((.*?)\)$`)

// ParseCopyTaskName extracts the absolute source path and destination
// directory from a copy task name.
func ParseCopyTaskName(name string) (src, dstDir string, ok bool) {
	m := copyTaskName.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return path.Join("/", m[1], m[2]), path.Join("/", m[3], m[4]), true
}
