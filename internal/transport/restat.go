package transport

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"
)

// ReStat stats path, retrying up to retries extra times with a fixed
// interval while the path is not found. Remote listings are eventually
// consistent, so a freshly written path may briefly report missing.
// Errors other than ErrNotFound abort immediately.
func ReStat(ctx context.Context, fs FS, path string, retries uint, interval time.Duration) (Entry, error) {
	var entry Entry
	err := retry.Do(
		func() error {
			e, err := fs.Stat(ctx, path)
			if err != nil {
				return err
			}
			entry = e
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(retries+1),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrNotFound) }),
	)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Exists reports whether path exists. Errors other than ErrNotFound are returned.
func Exists(ctx context.Context, fs FS, path string) (bool, error) {
	_, err := fs.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}
