package ui

import "github.com/bamsammich/alist-sync/internal/stats"

// quietPresenter drains events and prints nothing until the summary.
type quietPresenter struct {
	stats *stats.Collector
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for range events {
	}
	return nil
}

// Summary is only non-empty when something failed.
func (p *quietPresenter) Summary() string {
	if p.stats == nil {
		return ""
	}
	snap := p.stats.Snapshot()
	if snap.Failed() == 0 {
		return ""
	}
	return CompletionSummary(snap)
}
