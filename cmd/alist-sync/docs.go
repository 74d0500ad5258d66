package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// newDocsCmd generates reference pages for every command. It is hidden and
// run when packaging releases.
func newDocsCmd() *cobra.Command {
	var dir, format string
	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Generate man pages or markdown for alist-sync",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gen, err := docGenerator(format)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			root := cmd.Root()
			root.DisableAutoGenTag = true
			if err := gen(root, dir); err != nil {
				return fmt.Errorf("generate %s docs: %w", format, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s docs to %s\n", format, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "docs", "output directory")
	cmd.Flags().StringVar(&format, "format", "man", "output format: man, markdown or rest")
	return cmd
}

func docGenerator(format string) (func(*cobra.Command, string) error, error) {
	switch format {
	case "man":
		header := &doc.GenManHeader{
			Title:   "ALIST-SYNC",
			Section: "1",
			Source:  "alist-sync " + version,
			Manual:  "alist-sync manual",
		}
		return func(root *cobra.Command, dir string) error { return doc.GenManTree(root, header, dir) }, nil
	case "markdown":
		return doc.GenMarkdownTree, nil
	case "rest":
		return doc.GenReSTTree, nil
	default:
		return nil, fmt.Errorf("unknown format %q (use man, markdown or rest)", format)
	}
}
