package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

// ReconcileResult summarizes a finished reconciliation.
type ReconcileResult struct {
	Tasks     int
	Succeeded int
	Failed    int
	// AssumedDone is set when the run ended because the remote reported an
	// empty undone list, under Settings.EmptyUndoneMeansDone.
	AssumedDone bool
}

// Reconciler submits copy tasks to a remote task queue and follows the
// queue until every task has finished.
type Reconciler struct {
	set   Settings
	log   *slog.Logger
	queue transport.TaskQueue
	job   string

	mu       sync.Mutex
	tasks    []*CopyTask
	inflight mapset.Set[string]
	retired  mapset.Set[string]
	byRemote map[string]*CopyTask
	byRoute  map[string]*CopyTask
	byName   map[string]*CopyTask

	saveMu sync.Mutex
}

// NewReconciler creates a reconciler for tasks. When job is non-empty the
// task list is saved to the job store under it after every change.
func NewReconciler(set Settings, queue transport.TaskQueue, job string, tasks []*CopyTask) *Reconciler {
	set = set.withDefaults()
	r := &Reconciler{
		set:      set,
		log:      set.Logger.With("component", "reconciler"),
		queue:    queue,
		job:      job,
		tasks:    tasks,
		inflight: mapset.NewThreadUnsafeSet[string](),
		retired:  mapset.NewThreadUnsafeSet[string](),
		byRemote: make(map[string]*CopyTask),
		byRoute:  make(map[string]*CopyTask, len(tasks)),
		byName:   make(map[string]*CopyTask, len(tasks)),
	}
	for _, t := range tasks {
		if t.RemoteID != "" {
			r.byRemote[t.RemoteID] = t
		}
		r.byRoute[routeKey(t.SrcPath(), t.DstDir)] = t
		r.byName[t.Name] = t
		r.retired.Append(t.Retired...)
	}
	return r
}

func routeKey(src, dstDir string) string { return src + "\x00" + dstDir }

// Run drives the submission and reconciliation loops concurrently and
// returns once every task is terminal.
func (r *Reconciler) Run(ctx context.Context) (ReconcileResult, error) {
	subCtx, stopSubmit := context.WithCancel(ctx)
	defer stopSubmit()

	var res ReconcileResult
	g, gctx := errgroup.WithContext(subCtx)
	g.Go(func() error {
		return r.submitLoop(gctx)
	})
	g.Go(func() error {
		// The submission loop has nothing left to do once reconciliation ends.
		defer stopSubmit()
		var err error
		res, err = r.reconcileLoop(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return r.result(), err
	}
	return res, nil
}

// Tasks returns a copy of the current task states.
func (r *Reconciler) Tasks() []CopyTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CopyTask, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = *t
	}
	return out
}

func (r *Reconciler) submitLoop(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(r.set.SubmitInterval)
	defer ticker.Stop()

	for {
		batch, remaining := r.takeSubmissions()
		if remaining == 0 {
			r.log.Debug("all tasks submitted")
			return nil
		}
		for _, t := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.submit(ctx, t)
			}()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// takeSubmissions marks every init task that is not already being submitted
// as in flight and returns them, plus the number of tasks still in init.
func (r *Reconciler) takeSubmissions() (batch []*CopyTask, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.Status != TaskInit {
			continue
		}
		remaining++
		if r.inflight.Contains(t.Name) {
			continue
		}
		r.inflight.Add(t.Name)
		batch = append(batch, t)
	}
	return batch, remaining
}

func (r *Reconciler) submit(ctx context.Context, t *CopyTask) {
	err := r.queue.SubmitCopy(ctx, t.SrcDir, t.DstDir, []string{t.FileName})

	r.mu.Lock()
	r.inflight.Remove(t.Name)
	if err != nil {
		r.mu.Unlock()
		r.log.Warn("copy task submission failed, will retry", "task", t.Name, "error", err)
		return
	}
	t.advance(TaskCreated)
	r.mu.Unlock()

	r.log.Info("copy task submitted", "task", t.Name)
	r.set.Stats.AddTasksSubmitted(1)
	event.Emit(r.set.Events, event.Event{
		Type:   event.TaskSubmitted,
		Path:   t.DstDir,
		Source: t.SrcPath(),
		Status: string(TaskCreated),
		Size:   t.Size,
	})
	r.persist(ctx)
}

func (r *Reconciler) reconcileLoop(ctx context.Context) (ReconcileResult, error) {
	ticker := time.NewTicker(r.set.ReconcilePoll)
	defer ticker.Stop()

	for {
		if res := r.result(); res.Succeeded+res.Failed == res.Tasks {
			if err := r.queue.ClearDone(ctx, transport.TaskCopy); err != nil {
				r.log.Error("clear finished copy tasks", "error", err)
			}
			r.log.Info("copy tasks finished", "succeeded", res.Succeeded, "failed", res.Failed)
			return res, nil
		}

		snap, err := r.queue.TaskSnapshot(ctx, transport.TaskCopy)
		switch {
		case err != nil:
			r.log.Warn("read copy task queue", "error", err)
		case snap.Stale():
			r.log.Debug("copy task queue not observed yet")
		default:
			if r.apply(snap) {
				r.persist(ctx)
			}
			if r.set.EmptyUndoneMeansDone && r.assumeDone(snap) {
				res := r.result()
				res.AssumedDone = true
				r.log.Info("remote reports no pending copy tasks, assuming done",
					"succeeded", res.Succeeded, "failed", res.Failed)
				return res, nil
			}
		}

		select {
		case <-ctx.Done():
			return r.result(), ctx.Err()
		case <-ticker.C:
		}
	}
}

// assumeDone reports whether the remote shows nothing undone but something
// done, once every task has at least been submitted.
func (r *Reconciler) assumeDone(snap transport.TaskSnapshot) bool {
	if len(snap.Undone) != 0 || len(snap.Done) == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.Status == TaskInit {
			return false
		}
	}
	return true
}

// apply folds a queue snapshot into the local tasks and reports whether any
// task changed.
func (r *Reconciler) apply(snap transport.TaskSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, rt := range slices.Concat(snap.Undone, snap.Done) {
		t := r.match(rt)
		if t == nil {
			continue
		}
		if t.RemoteID == "" && rt.ID != "" {
			t.RemoteID = rt.ID
			r.byRemote[rt.ID] = t
			changed = true
		}

		to, ok := MapRemoteStatus(rt.Status)
		if !ok {
			r.log.Error("unknown copy task status", "task", t.Name, "status", rt.Status)
			continue
		}
		if !t.advance(to) {
			continue
		}
		changed = true
		r.report(t, rt)
	}
	return changed
}

// match finds the local task a remote task refers to: by remote id once
// known, then by source path and destination dir, then by name. Retired
// remote ids never match. Neither does a local task already bound to a
// different remote id, or one not yet submitted in this run.
func (r *Reconciler) match(rt transport.Task) *CopyTask {
	if rt.ID != "" {
		if t, ok := r.byRemote[rt.ID]; ok {
			return t
		}
		if r.retired.Contains(rt.ID) {
			return nil
		}
	}
	var t *CopyTask
	if rt.SrcPath != "" {
		t = r.byRoute[routeKey(rt.SrcPath, rt.DstDir)]
	}
	if t == nil {
		t = r.byName[rt.Name]
	}
	if t == nil || t.Status == TaskInit || (t.RemoteID != "" && t.RemoteID != rt.ID) {
		return nil
	}
	return t
}

func (r *Reconciler) report(t *CopyTask, rt transport.Task) {
	ev := event.Event{
		Type:   event.TaskStatus,
		ID:     t.RemoteID,
		Path:   t.DstDir,
		Source: t.SrcPath(),
		Status: string(t.Status),
		Size:   t.Size,
	}
	switch t.Status {
	case TaskSuccess:
		r.log.Info("copy task succeeded", "task", t.Name)
		r.set.Stats.AddTasksSucceeded(1)
		r.set.Stats.AddBytesCopied(t.Size)
		ev.Type = event.TaskDone
	case TaskFailed:
		r.log.Error("copy task failed", "task", t.Name, "error", rt.Error)
		r.set.Stats.AddTasksFailed(1)
		ev.Type = event.TaskFailed
		ev.Error = errors.New(rt.Error)
	default:
		r.log.Debug("copy task status", "task", t.Name, "status", t.Status)
	}
	event.Emit(r.set.Events, ev)
}

func (r *Reconciler) result() ReconcileResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := ReconcileResult{Tasks: len(r.tasks)}
	for _, t := range r.tasks {
		switch t.Status {
		case TaskSuccess:
			res.Succeeded++
		case TaskFailed:
			res.Failed++
		}
	}
	return res
}

// persist saves the task list. Saves are serialized so an older view never
// overwrites a newer one.
func (r *Reconciler) persist(ctx context.Context) {
	if r.job == "" {
		return
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	recs := make([]store.CopyTask, len(r.tasks))
	for i, t := range r.tasks {
		recs[i] = t.record()
	}
	r.mu.Unlock()

	if err := r.set.Store.SaveCopyTasks(ctx, r.job, recs); err != nil {
		r.log.Error("save copy tasks", "job", r.job, "error", fmt.Errorf("%w: %w", ErrStore, err))
	}
}
