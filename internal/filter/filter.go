// Package filter decides which remote paths take part in a sync, using
// ordered include/exclude glob rules and optional size bounds.
package filter

import (
	"fmt"
	"strings"
)

// Rule is one include or exclude glob.
type Rule struct {
	glob    *glob
	Include bool
}

func (r Rule) String() string {
	if r.Include {
		return "+ " + r.glob.source
	}
	return "- " + r.glob.source
}

// ParseRule parses "+ pattern" (include) or "- pattern" (exclude). A
// pattern with neither prefix is an exclude.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	include := false
	switch {
	case strings.HasPrefix(s, "+ "):
		include, s = true, strings.TrimSpace(s[2:])
	case strings.HasPrefix(s, "- "):
		s = strings.TrimSpace(s[2:])
	}
	if s == "" {
		return Rule{}, fmt.Errorf("empty filter pattern")
	}
	g, err := compileGlob(s)
	if err != nil {
		return Rule{}, fmt.Errorf("filter pattern %q: %w", s, err)
	}
	return Rule{glob: g, Include: include}, nil
}

// Chain is an ordered rule list plus size bounds. The first matching rule
// decides; paths no rule matches are included. The zero Chain includes
// everything.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Build creates a chain from rule strings in ParseRule form and optional
// human-readable size bounds (see ParseSize); empty bounds are unset.
func Build(rules []string, minSize, maxSize string) (*Chain, error) {
	c := NewChain()
	for _, r := range rules {
		if err := c.Add(r); err != nil {
			return nil, err
		}
	}
	for _, b := range []struct {
		val string
		set func(int64)
	}{{minSize, c.SetMinSize}, {maxSize, c.SetMaxSize}} {
		if b.val == "" {
			continue
		}
		n, err := ParseSize(b.val)
		if err != nil {
			return nil, err
		}
		b.set(n)
	}
	return c, nil
}

// Add appends a rule in ParseRule form.
func (c *Chain) Add(spec string) error {
	r, err := ParseRule(spec)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, r)
	return nil
}

// AddExclude appends an exclude rule.
func (c *Chain) AddExclude(pattern string) error { return c.Add("- " + pattern) }

// AddInclude appends an include rule.
func (c *Chain) AddInclude(pattern string) error { return c.Add("+ " + pattern) }

func (c *Chain) SetMinSize(n int64) { c.minSize = n }
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Rules returns the chain's rules in order.
func (c *Chain) Rules() []Rule { return append([]Rule(nil), c.rules...) }

// Empty reports whether the chain has no rules and no size bounds.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Match reports whether the path at rel (slash separated, relative to the
// sync root) is included. Size bounds apply to files only.
func (c *Chain) Match(rel string, isDir bool, size int64) bool {
	if c == nil {
		return true
	}
	if !isDir && !c.sizeOK(size) {
		return false
	}
	rel = strings.Trim(rel, "/")
	for _, r := range c.rules {
		if r.glob.matches(rel, isDir) {
			return r.Include
		}
	}
	return true
}

func (c *Chain) sizeOK(size int64) bool {
	if c.minSize > 0 && size < c.minSize {
		return false
	}
	return c.maxSize <= 0 || size <= c.maxSize
}
