package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/alist-sync/internal/engine"
	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/filter"
	"github.com/bamsammich/alist-sync/internal/notify"
	"github.com/bamsammich/alist-sync/internal/stats"
	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/ui"
	"github.com/bamsammich/alist-sync/internal/ui/tui"
)

// session owns everything a sync run needs besides its endpoints: the job
// store, progress events, and the presenter draining them.
type session struct {
	o         *options
	mode      string
	store     store.Store
	collector *stats.Collector
	events    chan event.Event
	presenter ui.Presenter
	presented chan error

	ctx  context.Context
	stop context.CancelFunc
}

func (o *options) startSession(mode, displayRoot string) (*session, error) {
	st, err := store.Open(o.storeKind, o.storePath)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	s := &session{
		o:         o,
		mode:      mode,
		store:     st,
		collector: stats.NewCollector(),
		events:    make(chan event.Event, 256),
		presented: make(chan error, 1),
	}
	s.ctx, s.stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s.presenter = s.newPresenter(displayRoot)

	var in <-chan event.Event = s.events
	if o.logFile != "" {
		in = teeEvents(in)
	}
	go func() { s.presented <- s.presenter.Run(in) }()
	return s, nil
}

// newPresenter picks the full-screen display for --tui on a terminal and
// the inline presenters otherwise.
//
//nolint:ireturn // factory
func (s *session) newPresenter(displayRoot string) ui.Presenter {
	o := s.o
	isTTY := ui.IsTTY(os.Stderr.Fd())
	if o.tui && isTTY && !o.quiet {
		return tui.NewPresenter(tui.Config{
			Stats:   s.collector,
			Workers: o.workers,
			Root:    displayRoot,
			Mode:    s.mode,
			Theme:   o.cfg.Theme,
			OnQuit:  s.stop,
		})
	}
	if o.tui && !isTTY {
		slog.Warn("--tui requires a terminal, falling back to inline output")
	}
	return ui.NewPresenter(ui.Config{
		Writer:     os.Stdout,
		ErrWriter:  os.Stderr,
		Stats:      s.collector,
		Root:       displayRoot,
		Mode:       s.mode,
		Workers:    o.workers,
		IsTTY:      isTTY,
		Quiet:      o.quiet,
		Verbose:    o.verbose,
		NoProgress: o.noProgress,
	})
}

// context returns the run context, cancelled by SIGINT, SIGTERM, or
// quitting the full-screen display.
func (s *session) context() (context.Context, context.CancelFunc) {
	return s.ctx, s.stop
}

// settings converts the flags into engine settings.
func (s *session) settings() (engine.Settings, error) {
	o := s.o
	var limiter *rate.Limiter
	if o.bwLimit != "" {
		n, err := filter.ParseSize(o.bwLimit)
		if err != nil {
			return engine.Settings{}, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		if n > 0 {
			limiter = engine.NewBWLimiter(n)
		}
	}

	recheck := engine.Recheck{Interval: o.recheckInterval}
	if o.recheckRetriesSet {
		recheck.Retries = engine.Retries(o.recheckRetries)
	}
	return engine.Settings{
		Store:                s.store,
		Logger:               slog.Default(),
		Events:               s.events,
		Stats:                s.collector,
		Limiter:              limiter,
		Owner:                o.owner(),
		CacheDir:             o.cacheDir,
		Workers:              o.workers,
		IdleTimeout:          o.idleTimeout,
		SubmitInterval:       o.submitInterval,
		ReconcilePoll:        o.pollInterval,
		CopyRecheck:          recheck,
		DeleteRecheck:        recheck,
		BackupRecheck:        recheck,
		Daemon:               o.daemon,
		Debug:                o.debug,
		EmptyUndoneMeansDone: o.emptyUndoneDone,
	}, nil
}

// owner names this run in the completion log.
func (o *options) owner() string {
	if o.name != "" {
		return o.name
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "alist-sync-" + uuid.NewString()[:8]
}

// finish stops the presenter, prints the summary, sends the webhook notice
// and maps the result onto an exit code: 1 for partial, 2 for total failure.
func (s *session) finish(res engine.Result) error {
	s.stop()
	close(s.events)
	if err := <-s.presented; err != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Warn("close job store", "error", err)
	}

	if summary := s.presenter.Summary(); summary != "" {
		fmt.Fprintln(os.Stderr, summary)
	}

	if s.o.webhook != "" {
		text := notify.Summary(s.o.owner(), s.mode, res.Stats, res.Err)
		hook := notify.NewWebhook(s.o.webhook, s.o.timeout, slog.Default())
		if err := hook.Send(context.Background(), text); err != nil {
			slog.Warn("webhook notice failed", "error", err)
		}
	}

	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		slog.Error(s.mode+" failed", "error", res.Err)
	}
	if res.Err == nil && res.Stats.Failed() == 0 {
		return nil
	}
	if res.Stats.Succeeded() > 0 {
		return &exitError{code: 1}
	}
	return &exitError{code: 2}
}

// abort ends a session that failed before any work started.
func (s *session) abort(err error) error {
	s.stop()
	close(s.events)
	<-s.presented
	if cerr := s.store.Close(); cerr != nil {
		slog.Warn("close job store", "error", cerr)
	}
	return err
}
