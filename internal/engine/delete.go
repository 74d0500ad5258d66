package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/bamsammich/alist-sync/internal/transport"
)

// delete removes the target. A target that is already gone counts as
// deleted, so replaying a delete is harmless.
func (w *WorkItem) delete(ctx context.Context) error {
	if w.Status == StatusDeleted {
		return nil
	}

	err := w.dst.Remove(ctx, w.TargetPath)
	switch {
	case errors.Is(err, transport.ErrNotFound):
		w.log.Debug("target already absent", "target", w.TargetPath)
	case err != nil:
		return fmt.Errorf("remove %s: %w", w.TargetPath, err)
	default:
		w.set.Stats.AddDeletes(1)
	}
	return w.setStatus(ctx, StatusDeleted)
}
