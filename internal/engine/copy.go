package engine

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

// copy moves the source file to the target through a local scratch file.
// Each sub-step persists its status, and a resumed item skips the steps its
// status says are complete. A resumed item whose scratch file is gone
// downloads again without moving its status backwards.
func (w *WorkItem) copy(ctx context.Context) error {
	if w.src == nil {
		return errors.New("copy item has no source filesystem")
	}
	if !w.Status.before(StatusUploaded) {
		return w.markCopied(ctx)
	}

	src, err := w.src.Stat(ctx, w.SourcePath)
	if err != nil {
		return fmt.Errorf("stat source %s: %w", w.SourcePath, err)
	}
	if src.IsDir {
		return fmt.Errorf("source %s is a directory", w.SourcePath)
	}
	if src.Size != w.Size {
		w.Size = src.Size
		if err := w.set.Store.Upsert(ctx, w.Record(), store.FieldSize); err != nil {
			return fmt.Errorf("%w: %w", ErrStore, err)
		}
	}

	scratch := acquireScratch(w.set.CacheDir, w.SourcePath)
	defer scratch.release()

	if err := w.download(ctx, scratch); err != nil {
		return err
	}
	if err := w.upload(ctx, scratch, src); err != nil {
		return err
	}
	return w.markCopied(ctx)
}

func (w *WorkItem) download(ctx context.Context, scratch *scratchFile) error {
	if w.Status.before(StatusDownloaded) || !scratch.intact(w.Size) {
		if w.Status.before(StatusDownloading) {
			if err := w.setStatus(ctx, StatusDownloading); err != nil {
				return err
			}
		}

		rc, err := w.src.Open(ctx, w.SourcePath)
		if err != nil {
			return fmt.Errorf("open source %s: %w", w.SourcePath, err)
		}
		n, err := scratch.fill(ctx, rc, w.set.Limiter)
		rc.Close()
		if err != nil {
			return fmt.Errorf("download %s: %w", w.SourcePath, err)
		}
		if n != w.Size {
			return fmt.Errorf("download %s: got %d bytes, want %d", w.SourcePath, n, w.Size)
		}
		w.log.Debug("downloaded", "source", w.SourcePath, "bytes", n)
	}

	if w.Status == StatusDownloading {
		return w.setStatus(ctx, StatusDownloaded)
	}
	return nil
}

func (w *WorkItem) upload(ctx context.Context, scratch *scratchFile, src transport.Entry) error {
	if w.Status == StatusDownloaded {
		if err := w.setStatus(ctx, StatusUploading); err != nil {
			return err
		}
	}

	// A backup has already moved the target away; otherwise a stale target
	// is replaced.
	if err := w.dst.Remove(ctx, w.TargetPath); err != nil && !errors.Is(err, transport.ErrNotFound) {
		return fmt.Errorf("remove stale target %s: %w", w.TargetPath, err)
	}
	if err := w.dst.Mkdir(ctx, path.Dir(w.TargetPath)); err != nil {
		return fmt.Errorf("mkdir %s: %w", path.Dir(w.TargetPath), err)
	}

	f, err := scratch.open()
	if err != nil {
		return fmt.Errorf("open scratch file: %w", err)
	}
	defer f.Close()

	if err := w.dst.Put(ctx, w.TargetPath, f, w.Size, src.Modified); err != nil {
		return fmt.Errorf("upload %s: %w", w.TargetPath, err)
	}
	w.set.Stats.AddBytesCopied(w.Size)
	w.log.Debug("uploaded", "target", w.TargetPath, "bytes", w.Size)
	return w.setStatus(ctx, StatusUploaded)
}

func (w *WorkItem) markCopied(ctx context.Context) error {
	if w.Status == StatusUploaded {
		return w.setStatus(ctx, StatusCopied)
	}
	return nil
}
