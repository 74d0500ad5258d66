package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/spf13/cobra"

	"github.com/bamsammich/alist-sync/internal/engine"
)

func newMirrorCmd(o *options) *cobra.Command {
	var (
		filters   filterOptions
		deleteExt bool
		backupDir string
	)
	cmd := &cobra.Command{
		Use:   "mirror [flags] <source> <target>",
		Short: "Make target match source by downloading and re-uploading files",
		Long: `Mirror copies files that are missing on the target or differ in size.
Each file is downloaded to a scratch file and uploaded by a local worker.
Locations are local paths, name:/path for a configured server, or
http[s]://[user@]host[:port]/path.`,
		Example: `  alist-sync mirror nas:/media cloud:/backup/media
  alist-sync mirror --delete --backup-dir /.history ./photos nas:/photos`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("backup-dir") && o.cfg.Defaults.BackupDir != nil {
				backupDir = *o.cfg.Defaults.BackupDir
			}
			if backupDir != "" && !path.IsAbs(backupDir) {
				return errors.New("--backup-dir must be an absolute path on the target")
			}
			chain, err := filters.chain(o)
			if err != nil {
				return err
			}

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

			s, err := o.startSession("mirror", dst.path)
			if err != nil {
				return err
			}
			set, err := s.settings()
			if err != nil {
				return s.abort(err)
			}
			ctx, stop := s.context()
			defer stop()

			slog.Debug("starting mirror", "source", src.loc, "target", dst.loc,
				"workers", set.Workers, "delete", deleteExt, "backup_dir", backupDir)

			res := engine.RunMirror(ctx, engine.MirrorConfig{
				Settings:  set,
				Src:       src.fs,
				SrcRoot:   src.path,
				Dst:       dst.fs,
				DstRoot:   dst.path,
				Filter:    chain,
				BackupDir: backupDir,
				Delete:    deleteExt,
			})
			stop()
			return s.finish(res)
		},
	}
	filters.register(cmd)
	cmd.Flags().BoolVar(&deleteExt, "delete", false, "delete files on the target that the source lacks")
	cmd.Flags().StringVar(&backupDir, "backup-dir", "", "move overwritten or deleted target files here first")
	return cmd
}
