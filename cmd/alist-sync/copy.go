package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bamsammich/alist-sync/internal/engine"
)

func newCopyCmd(o *options) *cobra.Command {
	var filters filterOptions
	cmd := &cobra.Command{
		Use:   "copy [flags] <source> <target>...",
		Short: "Have the server copy missing files into each target",
		Long: `Copy submits server-side copy tasks for every source file missing on a
target, then follows the server's copy queue until each task succeeds or
fails. Source and targets must live on the same server. An interrupted
copy picks up its cached tasks when run again with the same arguments.`,
		Example: `  alist-sync copy nas:/downloads nas:/aliyun/downloads nas:/115/downloads`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := filters.chain(o)
			if err != nil {
				return err
			}

			src, err := o.open(args[0])
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			defer src.Close()
			if src.client == nil {
				return errors.New("copy needs a server source; use mirror for local directories")
			}

			targets := make([]string, 0, len(args)-1)
			for _, arg := range args[1:] {
				dst, err := o.open(arg)
				if err != nil {
					return fmt.Errorf("target: %w", err)
				}
				dst.Close()
				if !dst.loc.SameServer(src.loc) {
					return fmt.Errorf("target %s is not on the source server %s", arg, src.loc)
				}
				targets = append(targets, dst.path)
			}

			s, err := o.startSession("copy", "")
			if err != nil {
				return err
			}
			set, err := s.settings()
			if err != nil {
				return s.abort(err)
			}
			ctx, stop := s.context()
			defer stop()

			slog.Debug("starting copy", "source", src.loc, "targets", targets)
			res := engine.RunCopy(ctx, engine.CopyConfig{
				Settings: set,
				FS:       src.fs,
				Queue:    src.client,
				SrcRoot:  src.path,
				Targets:  targets,
				Filter:   chain,
			})
			stop()
			return s.finish(res)
		},
	}
	filters.register(cmd)
	return cmd
}
