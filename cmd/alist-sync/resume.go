package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bamsammich/alist-sync/internal/engine"
	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/transport"
)

func newResumeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [flags] <source> <target>",
		Short: "Finish work items left in the job store by an interrupted mirror",
		Long: `Resume replays every unfinished work item in the job store against the
given source and target. Items carry absolute paths, so only the server
part of each location matters; the path part is ignored. Items continue
from the last status they reached.`,
		Example: `  alist-sync resume nas:/ cloud:/`,
		Args:    cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := o.open(args[0])
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			defer src.Close()
			dst, err := o.open(args[1])
			if err != nil {
				return fmt.Errorf("target: %w", err)
			}
			defer dst.Close()

			s, err := o.startSession("resume", "")
			if err != nil {
				return err
			}
			set, err := s.settings()
			if err != nil {
				return s.abort(err)
			}
			ctx, stop := s.context()
			defer stop()

			res := engine.Resume(ctx, engine.ResumeConfig{
				Settings: set,
				Bind:     bindEndpoints(src.fs, dst.fs),
			})
			stop()
			return s.finish(res)
		},
	}
}

// bindEndpoints binds copy records to src and dst and delete records to
// dst alone.
func bindEndpoints(src, dst transport.FS) engine.Binder {
	return func(rec store.Record) (transport.FS, transport.FS, error) {
		switch engine.Kind(rec.Kind) {
		case engine.KindCopy:
			return src, dst, nil
		case engine.KindDelete:
			return nil, dst, nil
		default:
			return nil, nil, errors.New("unknown item kind " + rec.Kind)
		}
	}
}
