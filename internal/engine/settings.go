package engine

import (
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/stats"
	"github.com/bamsammich/alist-sync/internal/store"
)

// Defaults for Settings fields left zero.
const (
	DefaultWorkers        = 5
	DefaultIntakeWait     = 3 * time.Second
	DefaultIdleTimeout    = 10 * time.Second
	DefaultSubmitInterval = 5 * time.Second
	DefaultReconcilePoll  = time.Second
	DefaultCopyRetries    = 3
	DefaultCopyInterval   = 3 * time.Second
	DefaultDeleteRetries  = 5
	DefaultDeleteInterval = 2 * time.Second
	DefaultBackupRetries  = 5
	DefaultBackupInterval = 2 * time.Second
	scratchPrefix         = "download_tmp_"
)

// Recheck bounds the retries used to confirm a post-condition against an
// eventually consistent remote. A nil Retries selects the operation's
// default; zero means a single check.
type Recheck struct {
	Retries  *uint
	Interval time.Duration
}

// Retries returns a Recheck.Retries value.
func Retries(n uint) *uint { return &n }

// retries is the number of extra checks after the first.
func (r Recheck) retries() uint {
	if r.Retries == nil {
		return 0
	}
	return *r.Retries
}

// Settings is the explicit configuration shared by the scheduler, work
// items, and the copy-task reconciler.
type Settings struct {
	Store    store.Store
	Logger   *slog.Logger
	Events   chan<- event.Event
	Stats    *stats.Collector
	Limiter  *rate.Limiter
	Owner    string
	CacheDir string

	Workers        int
	IntakeWait     time.Duration
	IdleTimeout    time.Duration
	SubmitInterval time.Duration
	ReconcilePoll  time.Duration

	CopyRecheck   Recheck
	DeleteRecheck Recheck
	BackupRecheck Recheck

	// Daemon keeps the scheduler accepting work after the queue drains.
	Daemon bool
	// Debug makes WorkItem.Run return item failures instead of only
	// recording them.
	Debug bool
	// EmptyUndoneMeansDone treats an observed empty undone list with a
	// non-empty done list as completion, for servers that never report
	// per-task success.
	EmptyUndoneMeansDone bool
}

// withDefaults returns s with zero fields filled in.
func (s Settings) withDefaults() Settings {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Stats == nil {
		s.Stats = stats.NewCollector()
	}
	if s.Store == nil {
		s.Store = store.NewMemory()
	}
	if s.CacheDir == "" {
		s.CacheDir = os.TempDir()
	}
	if s.Workers <= 0 {
		s.Workers = DefaultWorkers
	}
	if s.IntakeWait <= 0 {
		s.IntakeWait = DefaultIntakeWait
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.SubmitInterval <= 0 {
		s.SubmitInterval = DefaultSubmitInterval
	}
	if s.ReconcilePoll <= 0 {
		s.ReconcilePoll = DefaultReconcilePoll
	}
	s.CopyRecheck = s.CopyRecheck.orDefault(DefaultCopyRetries, DefaultCopyInterval)
	s.DeleteRecheck = s.DeleteRecheck.orDefault(DefaultDeleteRetries, DefaultDeleteInterval)
	s.BackupRecheck = s.BackupRecheck.orDefault(DefaultBackupRetries, DefaultBackupInterval)
	return s
}

func (r Recheck) orDefault(retries uint, interval time.Duration) Recheck {
	if r.Retries == nil {
		r.Retries = Retries(retries)
	}
	if r.Interval <= 0 {
		r.Interval = interval
	}
	return r
}
