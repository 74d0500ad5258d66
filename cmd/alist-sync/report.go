package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bamsammich/alist-sync/internal/engine"
	"github.com/bamsammich/alist-sync/internal/store"
	"github.com/bamsammich/alist-sync/internal/ui"
)

func newReportCmd(o *options) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "report [--owner NAME]",
		Short: "Sum finished items and bytes per owner from the completion log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(o.storeKind, o.storePath)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer func() {
				if err := st.Close(); err != nil {
					slog.Warn("close job store", "error", err)
				}
			}()

			logs, err := st.Logs(cmd.Context(), owner)
			if err != nil {
				return fmt.Errorf("read completion log: %w", err)
			}
			writeReport(os.Stdout, summarize(logs))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only count items finished by NAME")
	return cmd
}

type ownerTotal struct {
	owner string
	items int
	bytes int64
}

// summarize totals the successful copies per owner, sorted by owner.
func summarize(logs []store.Record) []ownerTotal {
	byOwner := make(map[string]*ownerTotal)
	for _, rec := range logs {
		if rec.Status != string(engine.StatusDone) || rec.Kind != string(engine.KindCopy) {
			continue
		}
		t := byOwner[rec.Owner]
		if t == nil {
			t = &ownerTotal{owner: rec.Owner}
			byOwner[rec.Owner] = t
		}
		t.items++
		t.bytes += rec.Size
	}

	out := make([]ownerTotal, 0, len(byOwner))
	for _, t := range byOwner {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].owner < out[j].owner })
	return out
}

func writeReport(w io.Writer, totals []ownerTotal) {
	if len(totals) == 0 {
		fmt.Fprintln(w, "no finished items")
		return
	}
	for _, t := range totals {
		name := t.owner
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintln(w, ui.ReportTable(name, t.items, t.bytes))
	}
}
