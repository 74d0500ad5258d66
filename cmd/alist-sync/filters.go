package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/alist-sync/internal/filter"
)

var _ pflag.Value = (*filterFlag)(nil)

// filterFlag is a pflag.Value that preserves CLI ordering of --exclude
// and --include by appending to a shared rule list.
type filterFlag struct {
	rules   *[]string
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	prefix := "- "
	if f.include {
		prefix = "+ "
	}
	rule := prefix + val
	if _, err := filter.ParseRule(rule); err != nil {
		return err
	}
	*f.rules = append(*f.rules, rule)
	return nil
}

// filterOptions are the per-command filter flags.
type filterOptions struct {
	rules      []string
	filterFile string
	minSize    string
	maxSize    string
}

func (f *filterOptions) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.Var(&filterFlag{rules: &f.rules}, "exclude", "exclude files matching PATTERN (repeatable)")
	fl.Var(&filterFlag{rules: &f.rules, include: true}, "include", "include files matching PATTERN (repeatable)")
	fl.StringVar(&f.filterFile, "filter", "", "read filter rules from FILE")
	fl.StringVar(&f.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	fl.StringVar(&f.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
}

// chain builds the filter: CLI rules, then the filter file, then config
// rules. Size bounds from the CLI replace those from config. A chain with
// nothing in it is returned as nil.
func (f *filterOptions) chain(o *options) (*filter.Chain, error) {
	minSize, maxSize := o.cfg.Filter.MinSize, o.cfg.Filter.MaxSize
	if f.minSize != "" {
		minSize = f.minSize
	}
	if f.maxSize != "" {
		maxSize = f.maxSize
	}

	c, err := filter.Build(f.rules, minSize, maxSize)
	if err != nil {
		return nil, err
	}
	if f.filterFile != "" {
		if err := c.LoadFile(f.filterFile); err != nil {
			return nil, err
		}
	}
	for _, r := range o.cfg.Filter.Rules {
		if err := c.Add(r); err != nil {
			return nil, err
		}
	}
	if c.Empty() {
		return nil, nil
	}
	return c, nil
}
