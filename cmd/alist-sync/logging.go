package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/ui"
)

// setupLogging installs the default logger: text on stderr at a level
// chosen by --verbose/--quiet, plus a rotated JSON file when --log is set.
func (o *options) setupLogging() error {
	h, err := o.logHandler(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// logHandler builds the handler setupLogging installs, with text going to w.
// The JSON file always records debug level so it carries the event stream.
func (o *options) logHandler(w io.Writer) (slog.Handler, error) {
	level := slog.LevelInfo
	switch {
	case o.verbose:
		level = slog.LevelDebug
	case o.quiet:
		level = slog.LevelWarn
	}
	var handler slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})

	if o.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(o.logFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   o.logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		o.closeLog = lj.Close
		jsonHandler := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = ui.NewMultiHandler(handler, jsonHandler)
	}
	return handler, nil
}

// teeEvents logs every event as a structured record before forwarding it.
// Only used with --log so the file carries the full event stream.
func teeEvents(in <-chan event.Event) <-chan event.Event {
	out := make(chan event.Event, cap(in))
	go func() {
		defer close(out)
		for ev := range in {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("path", ev.Path),
				slog.Int64("size", ev.Size),
			}
			if ev.ID != "" {
				attrs = append(attrs, slog.String("id", ev.ID))
			}
			if ev.Status != "" {
				attrs = append(attrs, slog.String("status", ev.Status))
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			slog.LogAttrs(context.Background(), slog.LevelDebug, "sync.event", attrs...)
			out <- ev
		}
	}()
	return out
}
