package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

// Scheduler runs work items on a fixed-size pool, allowing at most one
// in-flight item per path.
type Scheduler struct {
	set   Settings
	log   *slog.Logger
	pool  pond.Pool
	locks *pathLocks

	producers atomic.Int64
	start     time.Time

	mu   sync.Mutex
	errs []error
}

// NewScheduler creates a scheduler with set.Workers workers.
func NewScheduler(set Settings) *Scheduler {
	set = set.withDefaults()
	return &Scheduler{
		set:   set,
		log:   set.Logger.With("component", "scheduler"),
		pool:  pond.NewPool(set.Workers),
		locks: newPathLocks(),
		start: time.Now(),
	}
}

// Settings returns the scheduler's settings with defaults applied.
func (s *Scheduler) Settings() Settings { return s.set }

// AddProducer registers an active upstream producer. The scheduler does not
// shut down on idle while any producer is registered. The returned func
// unregisters it and is safe to call more than once.
func (s *Scheduler) AddProducer() (done func()) {
	s.producers.Add(1)
	var once sync.Once
	return func() { once.Do(func() { s.producers.Add(-1) }) }
}

// Submit locks the item's paths and hands it to the pool. If another
// in-flight item holds one of them, the item is dropped and ErrPathLocked
// returned; resubmitting is up to the caller.
func (s *Scheduler) Submit(ctx context.Context, item *WorkItem) error {
	return s.submit(ctx, item, false)
}

func (s *Scheduler) submit(ctx context.Context, item *WorkItem, loader bool) error {
	keys := item.lockKeys()
	if !loader {
		for _, k := range keys {
			if s.locks.locked(k) {
				return s.reject(item, k)
			}
		}
	}
	if !s.locks.tryLock(keys...) {
		return s.reject(item, keys[0])
	}

	s.set.Stats.AddItemsPlanned(1)
	event.Emit(s.set.Events, event.Event{
		Type:   event.ItemQueued,
		ID:     item.ID,
		Kind:   string(item.Kind),
		Path:   item.TargetPath,
		Source: item.SourcePath,
		Size:   item.Size,
	})

	// Items run to completion even if the intake context is cancelled.
	runCtx := context.WithoutCancel(ctx)
	s.pool.Submit(func() {
		defer s.Release(keys...)
		if err := item.Run(runCtx); err != nil {
			s.recordErr(fmt.Errorf("%s: %w", item, err))
		}
	})
	return nil
}

func (s *Scheduler) reject(item *WorkItem, key string) error {
	s.log.Warn("item rejected, path locked", "item", item.ShortID(), "path", key)
	s.set.Stats.AddItemsRejected(1)
	event.Emit(s.set.Events, event.Event{
		Type:  event.ItemRejected,
		ID:    item.ID,
		Kind:  string(item.Kind),
		Path:  item.TargetPath,
		Error: ErrPathLocked,
	})
	return fmt.Errorf("%w: %s", ErrPathLocked, key)
}

// Release unlocks keys. Each key must be released exactly once; releasing a
// key that is not held is logged.
func (s *Scheduler) Release(keys ...string) {
	for _, k := range s.locks.unlock(keys...) {
		s.log.Error("released a path that was not locked", "path", k)
	}
}

func (s *Scheduler) recordErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// Run consumes queue until the scheduler goes idle: the queue is empty,
// daemon mode is off, no producer is registered, and IdleTimeout has
// elapsed since the scheduler was created. It then waits for in-flight
// items and returns their joined errors. Cancelling ctx stops intake the
// same way but returns ctx.Err().
//
// Items rejected because their path is locked are logged and dropped.
func (s *Scheduler) Run(ctx context.Context, queue <-chan *WorkItem) error {
	timer := time.NewTimer(s.set.IntakeWait)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.set.IntakeWait)

		select {
		case <-ctx.Done():
			s.log.Info("intake cancelled, waiting for in-flight items")
			s.pool.StopAndWait()
			return ctx.Err()

		case item, ok := <-queue:
			if !ok {
				// A closed queue stays empty; drop it so the idle check runs.
				queue = nil
				continue
			}
			if err := s.Submit(ctx, item); err != nil && !errors.Is(err, ErrPathLocked) {
				s.recordErr(err)
			}

		case <-timer.C:
			if len(queue) == 0 && s.idle() {
				s.log.Info("idle, shutting down", "running", s.pool.RunningWorkers())
				s.pool.StopAndWait()
				return s.Err()
			}
		}
	}
}

func (s *Scheduler) idle() bool {
	return !s.set.Daemon &&
		s.producers.Load() == 0 &&
		time.Since(s.start) > s.set.IdleTimeout
}

// Err returns the joined errors of items that returned one.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

// Binder resolves the filesystems a persisted record runs against.
type Binder func(rec store.Record) (src, dst transport.FS, err error)

// Resume submits every live record in the job store, bypassing the lock
// pre-check but still taking the locks. It returns the number of items
// submitted.
func (s *Scheduler) Resume(ctx context.Context, bind Binder) (int, error) {
	recs, err := s.set.Store.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: load pending: %w", ErrStore, err)
	}

	n := 0
	for _, rec := range recs {
		src, dst, err := bind(rec)
		if err != nil {
			s.log.Error("cannot resume item", "item", rec.ID, "error", err)
			continue
		}
		item := ItemFromRecord(s.set, rec, src, dst)
		if err := s.submit(ctx, item, true); err != nil {
			continue
		}
		n++
	}
	s.log.Info("resumed pending items", "count", n, "stored", len(recs))
	return n, nil
}

// Close removes scratch files left behind by earlier runs.
func (s *Scheduler) Close() error {
	n, err := cleanScratch(s.set.CacheDir)
	if err != nil {
		return fmt.Errorf("clean scratch files: %w", err)
	}
	if n > 0 {
		s.log.Debug("removed leftover scratch files", "count", n)
	}
	return nil
}
