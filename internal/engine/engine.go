package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/bamsammich/alist-sync/internal/filter"
	"github.com/bamsammich/alist-sync/internal/stats"
	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

// Result is the outcome of a sync run.
type Result struct {
	Stats stats.Snapshot
	Err   error
}

// MirrorConfig describes a mirror run: files are downloaded from Src and
// uploaded to Dst by local workers.
type MirrorConfig struct {
	Settings  Settings
	Src       transport.FS
	SrcRoot   string
	Dst       transport.FS
	DstRoot   string
	Filter    *filter.Chain
	BackupDir string
	Delete    bool
}

// RunMirror plans a mirror of SrcRoot onto DstRoot and runs the resulting
// work items, blocking until the scheduler goes idle.
func RunMirror(ctx context.Context, cfg MirrorConfig) Result {
	sched := NewScheduler(cfg.Settings)
	set := sched.Settings()
	defer func() {
		if err := sched.Close(); err != nil {
			set.Logger.Warn("scheduler cleanup", "error", err)
		}
	}()

	queue := make(chan *WorkItem, set.Workers*2)
	done := sched.AddProducer()

	planErr := make(chan error, 1)
	go func() {
		defer done()
		_, err := PlanMirror(ctx, set, MirrorPlan{
			Src:       cfg.Src,
			SrcRoot:   cfg.SrcRoot,
			Dst:       cfg.Dst,
			DstRoot:   cfg.DstRoot,
			Filter:    cfg.Filter,
			BackupDir: cfg.BackupDir,
			Delete:    cfg.Delete,
		}, queue)
		planErr <- err
	}()

	runErr := sched.Run(ctx, queue)
	err := errors.Join(<-planErr, runErr)
	return Result{Stats: set.Stats.Snapshot(), Err: err}
}

// SyncConfig describes a two-way sync across a group of directories.
type SyncConfig struct {
	Settings Settings
	Dirs     []SyncDir
	Filter   *filter.Chain
}

// RunSync copies every file missing from a member of the group in from the
// first member that has it, blocking until the scheduler goes idle.
func RunSync(ctx context.Context, cfg SyncConfig) Result {
	sched := NewScheduler(cfg.Settings)
	set := sched.Settings()
	defer func() {
		if err := sched.Close(); err != nil {
			set.Logger.Warn("scheduler cleanup", "error", err)
		}
	}()

	queue := make(chan *WorkItem, set.Workers*2)
	done := sched.AddProducer()

	planErr := make(chan error, 1)
	go func() {
		defer done()
		_, err := PlanSync(ctx, set, SyncPlan{Dirs: cfg.Dirs, Filter: cfg.Filter}, queue)
		planErr <- err
	}()

	runErr := sched.Run(ctx, queue)
	err := errors.Join(<-planErr, runErr)
	return Result{Stats: set.Stats.Snapshot(), Err: err}
}

// ResumeConfig describes a resume run over the live records of the job
// store.
type ResumeConfig struct {
	Settings Settings
	Bind     Binder
}

// Resume replays every unfinished work item in the job store.
func Resume(ctx context.Context, cfg ResumeConfig) Result {
	sched := NewScheduler(cfg.Settings)
	set := sched.Settings()
	defer func() {
		if err := sched.Close(); err != nil {
			set.Logger.Warn("scheduler cleanup", "error", err)
		}
	}()

	done := sched.AddProducer()
	_, err := sched.Resume(ctx, cfg.Bind)
	done()
	if err != nil {
		return Result{Stats: set.Stats.Snapshot(), Err: err}
	}

	err = sched.Run(ctx, nil)
	return Result{Stats: set.Stats.Snapshot(), Err: err}
}

// CopyConfig describes a copy run: the server copies SrcRoot into each
// target through its own task queue.
type CopyConfig struct {
	Settings Settings
	FS       transport.FS
	Queue    transport.TaskQueue
	SrcRoot  string
	Targets  []string
	Filter   *filter.Chain
}

// RunCopy plans copy tasks, or reloads them from the job store when an
// earlier run of the same job was interrupted, and reconciles them against
// the server's copy queue. The cached tasks are dropped once the run
// finishes without failures.
func RunCopy(ctx context.Context, cfg CopyConfig) Result {
	set := cfg.Settings.withDefaults()
	job := JobID(cfg.SrcRoot, cfg.Targets...)
	log := set.Logger.With("job", job)

	recs, err := set.Store.LoadCopyTasks(ctx, job)
	if err != nil {
		return Result{Stats: set.Stats.Snapshot(), Err: fmt.Errorf("%w: load copy tasks: %w", ErrStore, err)}
	}

	var tasks []*CopyTask
	if len(recs) > 0 {
		for _, rec := range recs {
			t := copyTaskFromRecord(rec)
			if t.Status == TaskFailed {
				t.retry()
			}
			tasks = append(tasks, t)
		}
		log.Info("resuming cached copy tasks", "tasks", len(tasks))
	} else {
		tasks, err = PlanCopy(ctx, set, CopyPlan{
			FS:      cfg.FS,
			SrcRoot: cfg.SrcRoot,
			Targets: cfg.Targets,
			Filter:  cfg.Filter,
		})
		if err != nil {
			return Result{Stats: set.Stats.Snapshot(), Err: fmt.Errorf("plan: %w", err)}
		}
		if len(tasks) == 0 {
			log.Info("targets already up to date")
			return Result{Stats: set.Stats.Snapshot()}
		}
		saved := make([]store.CopyTask, len(tasks))
		for i, t := range tasks {
			saved[i] = t.record()
		}
		if err := set.Store.SaveCopyTasks(ctx, job, saved); err != nil {
			return Result{Stats: set.Stats.Snapshot(), Err: fmt.Errorf("%w: save copy tasks: %w", ErrStore, err)}
		}
	}

	res, err := NewReconciler(set, cfg.Queue, job, tasks).Run(ctx)
	if err != nil {
		return Result{Stats: set.Stats.Snapshot(), Err: err}
	}
	if res.Failed == 0 {
		if err := set.Store.DeleteCopyTasks(ctx, job); err != nil {
			log.Warn("drop cached copy tasks", "error", err)
		}
	}
	return Result{Stats: set.Stats.Snapshot()}
}
