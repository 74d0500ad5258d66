package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go"

	"github.com/bamsammich/alist-sync/internal/transport"
)

var (
	errSizeMismatch = errors.New("size mismatch")
	errStillPresent = errors.New("target still present")
)

// recheck confirms the item's post-condition against the target filesystem,
// which may lag behind a successful write.
func (w *WorkItem) recheck(ctx context.Context) error {
	var (
		rc    Recheck
		check func() error
	)
	switch w.Kind {
	case KindCopy:
		rc = w.set.CopyRecheck
		check = func() error {
			e, err := w.dst.Stat(ctx, w.TargetPath)
			if err != nil {
				return err
			}
			if e.Size != w.Size {
				return fmt.Errorf("%w: %d bytes, want %d", errSizeMismatch, e.Size, w.Size)
			}
			return nil
		}
	case KindDelete:
		rc = w.set.DeleteRecheck
		check = func() error {
			_, err := w.dst.Stat(ctx, w.TargetPath)
			if errors.Is(err, transport.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return errStillPresent
		}
	default:
		return fmt.Errorf("unknown item kind %q", w.Kind)
	}

	err := retry.Do(check,
		retry.Context(ctx),
		retry.Attempts(rc.retries()+1),
		retry.Delay(rc.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, transport.ErrNotFound) ||
				errors.Is(err, errSizeMismatch) ||
				errors.Is(err, errStillPresent)
		}),
		retry.OnRetry(func(n uint, err error) {
			w.log.Debug("recheck pending", "target", w.TargetPath, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRecheck, w.TargetPath, err)
	}
	return nil
}
