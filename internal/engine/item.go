package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

var (
	ErrPathLocked        = errors.New("path locked by another item")
	ErrBackupCollision   = errors.New("backup target already exists")
	ErrNoBackupDir       = errors.New("backup requested without a backup dir")
	ErrRecheck           = errors.New("recheck failed")
	ErrStore             = errors.New("job store")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Kind is what a work item does to its target.
type Kind string

const (
	KindCopy   Kind = "copy"
	KindDelete Kind = "delete"
)

// Status is a work item's position in its lifecycle.
type Status string

const (
	StatusInit        Status = "init"
	StatusBackingUp   Status = "back-upping"
	StatusBackedUp    Status = "back-upped"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusUploading   Status = "uploading"
	StatusUploaded    Status = "uploaded"
	StatusCopied      Status = "copied"
	StatusDeleted     Status = "deleted"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// Terminal reports whether s ends the item's lifecycle.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusFailed }

// transitions lists the forward moves allowed from each non-terminal status.
// Every non-terminal status may additionally move to StatusFailed.
var transitions = map[Status][]Status{
	StatusInit:        {StatusBackingUp, StatusDownloading, StatusDeleted},
	StatusBackingUp:   {StatusBackedUp},
	StatusBackedUp:    {StatusDownloading, StatusDeleted},
	StatusDownloading: {StatusDownloaded},
	StatusDownloaded:  {StatusUploading},
	StatusUploading:   {StatusUploaded},
	StatusUploaded:    {StatusCopied},
	StatusCopied:      {StatusDone},
	StatusDeleted:     {StatusDone},
}

// CanTransition reports whether a work item may move from one status to another.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WorkItem is one copy or delete of a single target path. It is mutated only
// by the goroutine running it.
type WorkItem struct {
	CreatedAt  time.Time
	DoneAt     time.Time
	ID         string
	Kind       Kind
	SourcePath string
	TargetPath string
	BackupDir  string
	// BackupPath is the history file the target is moved to, fixed before
	// the move.
	BackupPath string
	Status     Status
	ErrorInfo  string
	Owner      string
	Size       int64
	NeedBackup bool

	src transport.FS
	dst transport.FS
	set Settings
	log *slog.Logger
}

// ItemOptions are the optional parts of a new work item.
type ItemOptions struct {
	BackupDir  string
	NeedBackup bool
	Size       int64
}

// NewCopyItem creates a work item copying srcPath on src to dstPath on dst.
func NewCopyItem(set Settings, src transport.FS, srcPath string, dst transport.FS, dstPath string, opts ItemOptions) *WorkItem {
	return newItem(set, KindCopy, src, cleanPath(srcPath), dst, cleanPath(dstPath), opts)
}

// NewDeleteItem creates a work item removing dstPath from dst.
func NewDeleteItem(set Settings, dst transport.FS, dstPath string, opts ItemOptions) *WorkItem {
	return newItem(set, KindDelete, nil, "", dst, cleanPath(dstPath), opts)
}

func itemID(kind Kind, srcPath, dstPath string, created time.Time) string {
	return fingerprint(string(kind), srcPath, dstPath, created.Format(time.RFC3339Nano))
}

func newItem(set Settings, kind Kind, src transport.FS, srcPath string, dst transport.FS, dstPath string, opts ItemOptions) *WorkItem {
	set = set.withDefaults()
	created := time.Now()
	w := &WorkItem{
		ID:         itemID(kind, srcPath, dstPath, created),
		Kind:       kind,
		SourcePath: srcPath,
		TargetPath: dstPath,
		BackupDir:  opts.BackupDir,
		NeedBackup: opts.NeedBackup,
		Size:       opts.Size,
		Status:     StatusInit,
		Owner:      set.Owner,
		CreatedAt:  created,
		src:        src,
		dst:        dst,
		set:        set,
	}
	w.log = set.Logger.With("item", w.ShortID())
	w.log.Info("item created", "kind", kind, "source", srcPath, "target", dstPath)
	return w
}

// ItemFromRecord rebuilds a persisted work item, binding it to filesystems.
func ItemFromRecord(set Settings, rec store.Record, src, dst transport.FS) *WorkItem {
	set = set.withDefaults()
	w := &WorkItem{
		ID:         rec.ID,
		Kind:       Kind(rec.Kind),
		SourcePath: rec.SourcePath,
		TargetPath: rec.TargetPath,
		BackupDir:  rec.BackupDir,
		BackupPath: rec.BackupPath,
		NeedBackup: rec.NeedBackup,
		Status:     Status(rec.Status),
		ErrorInfo:  rec.ErrorInfo,
		Owner:      rec.Owner,
		Size:       rec.Size,
		CreatedAt:  rec.CreatedAt,
		DoneAt:     rec.DoneAt,
		src:        src,
		dst:        dst,
		set:        set,
	}
	w.log = set.Logger.With("item", w.ShortID())
	return w
}

// ShortID is the first 8 characters of the id, used in logs.
func (w *WorkItem) ShortID() string {
	if len(w.ID) < 8 {
		return w.ID
	}
	return w.ID[:8]
}

func (w *WorkItem) String() string {
	return fmt.Sprintf("<%s %s: %s -> %s>", w.Kind, w.ShortID(), w.SourcePath, w.TargetPath)
}

// Record returns the persisted form of the item.
func (w *WorkItem) Record() store.Record {
	return store.Record{
		ID:         w.ID,
		Kind:       string(w.Kind),
		SourcePath: w.SourcePath,
		TargetPath: w.TargetPath,
		BackupDir:  w.BackupDir,
		BackupPath: w.BackupPath,
		NeedBackup: w.NeedBackup,
		Status:     string(w.Status),
		ErrorInfo:  w.ErrorInfo,
		Owner:      w.Owner,
		Size:       w.Size,
		CreatedAt:  w.CreatedAt,
		DoneAt:     w.DoneAt,
	}
}

// Run drives the item to a terminal status. Item failures are recorded in
// ErrorInfo and only returned when Settings.Debug is set; job store
// failures are always returned.
func (w *WorkItem) Run(ctx context.Context) (err error) {
	if w.Status.Terminal() {
		return nil
	}
	w.log.Info("item started", "status", w.Status)
	if err := w.set.Store.Upsert(ctx, w.Record()); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = w.fail(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	if runErr := w.run(ctx); runErr != nil {
		if errors.Is(runErr, ErrStore) {
			return runErr
		}
		return w.fail(ctx, runErr)
	}
	return w.setStatus(ctx, StatusDone)
}

func (w *WorkItem) run(ctx context.Context) error {
	if w.NeedBackup && w.Status.before(StatusBackedUp) {
		if err := w.backup(ctx); err != nil {
			return err
		}
	}

	switch w.Kind {
	case KindCopy:
		if err := w.copy(ctx); err != nil {
			return err
		}
	case KindDelete:
		if err := w.delete(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown item kind %q", w.Kind)
	}

	return w.recheck(ctx)
}

func (w *WorkItem) fail(ctx context.Context, cause error) error {
	w.log.Error("item failed", "status", w.Status, "error", cause)
	w.ErrorInfo = cause.Error()
	if err := w.setStatus(ctx, StatusFailed); err != nil {
		return err
	}
	if w.set.Debug {
		return cause
	}
	return nil
}

// setStatus validates and applies a transition, persisting it before
// returning. A terminal status appends the completion log and removes the
// live record.
func (w *WorkItem) setStatus(ctx context.Context, to Status) error {
	from := w.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	w.Status = to
	w.log.Debug("status changed", "from", from, "to", to)

	ev := event.Event{
		Type:   event.ItemStatus,
		ID:     w.ID,
		Kind:   string(w.Kind),
		Path:   w.TargetPath,
		Source: w.SourcePath,
		Status: string(to),
		Size:   w.Size,
	}

	if !to.Terminal() {
		if err := w.set.Store.Upsert(ctx, w.Record(), store.FieldStatus, store.FieldSize); err != nil {
			return fmt.Errorf("%w: %w", ErrStore, err)
		}
		event.Emit(w.set.Events, ev)
		return nil
	}

	w.DoneAt = time.Now()
	rec := w.Record()
	if err := w.set.Store.AppendLog(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if err := w.set.Store.Delete(ctx, w.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	if to == StatusDone {
		w.log.Info("item done", "kind", w.Kind, "target", w.TargetPath)
		w.set.Stats.AddItemsDone(1)
		ev.Type = event.ItemDone
	} else {
		w.set.Stats.AddItemsFailed(1)
		ev.Type = event.ItemFailed
		ev.Error = errors.New(w.ErrorInfo)
	}
	event.Emit(w.set.Events, ev)
	return nil
}

// before reports whether s comes earlier than o in the copy pipeline.
func (s Status) before(o Status) bool { return statusRank[s] < statusRank[o] }

var statusRank = map[Status]int{
	StatusInit:        0,
	StatusBackingUp:   1,
	StatusBackedUp:    2,
	StatusDownloading: 3,
	StatusDownloaded:  4,
	StatusUploading:   5,
	StatusUploaded:    6,
	StatusCopied:      7,
	StatusDeleted:     7,
	StatusDone:        8,
	StatusFailed:      8,
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean("/" + p)
}
