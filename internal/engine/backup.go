package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	historySuffix = ".history"
	sidecarSuffix = ".json"
)

// backupName is the history file name for a target last modified at mtime.
func backupName(target string, mtime time.Time) string {
	return fmt.Sprintf("%s_%d%s", fingerprint(target), mtime.Unix(), historySuffix)
}

// backup moves the existing target into BackupDir and writes a JSON sidecar
// with its prior stat. Neither artifact may exist beforehand, and both must
// be visible before the item moves on.
//
// The history path is persisted before the target is moved, so a resumed
// item knows a missing target means "already moved" rather than "nothing
// to back up".
func (w *WorkItem) backup(ctx context.Context) error {
	if w.BackupDir == "" {
		return ErrNoBackupDir
	}
	resumed := w.Status == StatusBackingUp
	if w.Status == StatusInit {
		if err := w.setStatus(ctx, StatusBackingUp); err != nil {
			return err
		}
	}

	if w.BackupPath == "" && resumed {
		orphan, err := w.findOrphanBackup(ctx)
		if err != nil {
			return err
		}
		w.BackupPath = orphan
	}
	if w.BackupPath == "" {
		reserved, err := w.reserveBackup(ctx)
		if err != nil {
			return err
		}
		if !reserved {
			w.log.Debug("nothing to back up", "target", w.TargetPath)
			return w.setStatus(ctx, StatusBackedUp)
		}
	}

	history := w.BackupPath
	sidecar := history + sidecarSuffix
	rc := w.set.BackupRecheck

	prior, err := w.dst.Stat(ctx, w.TargetPath)
	switch {
	case err == nil:
		if err := w.dst.Rename(ctx, w.TargetPath, history); err != nil {
			return fmt.Errorf("move %s to %s: %w", w.TargetPath, history, err)
		}
		if _, err := transport.ReStat(ctx, w.dst, history, rc.retries(), rc.Interval); err != nil {
			return fmt.Errorf("%w: backup %s: %w", ErrRecheck, history, err)
		}
	case errors.Is(err, transport.ErrNotFound):
		// Moved by an earlier attempt that stopped short of the sidecar.
		moved, err := transport.ReStat(ctx, w.dst, history, rc.retries(), rc.Interval)
		if err != nil {
			return fmt.Errorf("%w: target %s gone and backup %s missing: %w", ErrRecheck, w.TargetPath, history, err)
		}
		prior = moved
		prior.Path, prior.Name = w.TargetPath, path.Base(w.TargetPath)
	default:
		return fmt.Errorf("stat target %s: %w", w.TargetPath, err)
	}

	exists, err := transport.Exists(ctx, w.dst, sidecar)
	if err != nil {
		return fmt.Errorf("stat backup %s: %w", sidecar, err)
	}
	if !exists {
		meta, err := json.Marshal(prior)
		if err != nil {
			return fmt.Errorf("encode backup metadata: %w", err)
		}
		if err := w.dst.Put(ctx, sidecar, bytes.NewReader(meta), int64(len(meta)), time.Now()); err != nil {
			return fmt.Errorf("write %s: %w", sidecar, err)
		}
	}
	if _, err := transport.ReStat(ctx, w.dst, sidecar, rc.retries(), rc.Interval); err != nil {
		return fmt.Errorf("%w: backup metadata %s: %w", ErrRecheck, sidecar, err)
	}

	w.log.Info("backup created", "target", w.TargetPath, "history", history)
	w.set.Stats.AddBackups(1)
	event.Emit(w.set.Events, event.Event{
		Type: event.BackupCreated,
		ID:   w.ID,
		Path: history,
		Size: prior.Size,
	})
	return w.setStatus(ctx, StatusBackedUp)
}

// reserveBackup picks the history path for the current target, checks that
// neither artifact exists yet and persists the choice. It reports false
// when there is no target to back up.
func (w *WorkItem) reserveBackup(ctx context.Context) (bool, error) {
	prior, err := w.dst.Stat(ctx, w.TargetPath)
	if errors.Is(err, transport.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat target %s: %w", w.TargetPath, err)
	}

	history := path.Join(w.BackupDir, backupName(w.TargetPath, prior.Modified))
	for _, p := range []string{history, history + sidecarSuffix} {
		exists, err := transport.Exists(ctx, w.dst, p)
		if err != nil {
			return false, fmt.Errorf("stat backup %s: %w", p, err)
		}
		if exists {
			return false, fmt.Errorf("%w: %s", ErrBackupCollision, p)
		}
	}

	w.BackupPath = history
	if err := w.set.Store.Upsert(ctx, w.Record(), store.FieldBackupPath); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return true, nil
}

// findOrphanBackup looks in BackupDir for a history file of this target
// that has no sidecar, left by an attempt whose record predates the
// persisted history path. It returns "" when there is none or the target is
// still in place.
func (w *WorkItem) findOrphanBackup(ctx context.Context) (string, error) {
	if exists, err := transport.Exists(ctx, w.dst, w.TargetPath); err != nil || exists {
		return "", err
	}
	entries, err := w.dst.List(ctx, w.BackupDir)
	if errors.Is(err, transport.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("list %s: %w", w.BackupDir, err)
	}

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name] = true
	}
	prefix := fingerprint(w.TargetPath) + "_"
	for _, e := range entries {
		if e.IsDir || !strings.HasPrefix(e.Name, prefix) || !strings.HasSuffix(e.Name, historySuffix) {
			continue
		}
		if !names[e.Name+sidecarSuffix] {
			return path.Join(w.BackupDir, e.Name), nil
		}
	}
	return "", nil
}
