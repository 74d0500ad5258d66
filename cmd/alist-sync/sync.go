package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bamsammich/alist-sync/internal/engine"
)

func newSyncCmd(o *options) *cobra.Command {
	var filters filterOptions
	cmd := &cobra.Command{
		Use:   "sync [flags] <location> <location>...",
		Short: "Copy files missing from any member of a group in from the others",
		Long: `Sync treats its locations as one group. A file that some members hold
and others lack is copied to the rest from the first location holding it.
Files present everywhere are never overwritten and nothing is deleted.`,
		Example: `  alist-sync sync nas:/photos cloud:/photos ./photos`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := filters.chain(o)
			if err != nil {
				return err
			}

			dirs := make([]engine.SyncDir, 0, len(args))
			for _, arg := range args {
				ep, err := o.open(arg)
				if err != nil {
					return fmt.Errorf("%s: %w", arg, err)
				}
				defer ep.Close()
				dirs = append(dirs, engine.SyncDir{FS: ep.fs, Root: ep.path})
			}

			s, err := o.startSession("sync", "")
			if err != nil {
				return err
			}
			set, err := s.settings()
			if err != nil {
				return s.abort(err)
			}
			ctx, stop := s.context()
			defer stop()

			slog.Debug("starting sync", "locations", args, "workers", set.Workers)

			res := engine.RunSync(ctx, engine.SyncConfig{
				Settings: set,
				Dirs:     dirs,
				Filter:   chain,
			})
			stop()
			return s.finish(res)
		},
	}
	filters.register(cmd)
	return cmd
}
