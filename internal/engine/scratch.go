package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"
)

// scratchFile is the local staging copy of a source file between download
// and upload. Its name is derived from the source path so a resumed item
// finds the file a previous run left behind.
type scratchFile struct {
	path string
}

// scratchRegistry tracks scratch files currently held by running items so
// Close can tell live files from leftovers.
type scratchRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

var liveScratch = &scratchRegistry{paths: make(map[string]struct{})}

func (r *scratchRegistry) add(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[p] = struct{}{}
}

func (r *scratchRegistry) remove(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, p)
}

func (r *scratchRegistry) held(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.paths[p]
	return ok
}

// acquireScratch reserves the scratch path for source. The caller must
// release it; release removes the file.
func acquireScratch(dir, source string) *scratchFile {
	s := &scratchFile{path: filepath.Join(dir, scratchPrefix+fingerprint(source))}
	liveScratch.add(s.path)
	return s
}

func (s *scratchFile) release() {
	_ = os.Remove(s.path)
	liveScratch.remove(s.path)
}

// intact reports whether the scratch file exists with exactly size bytes.
func (s *scratchFile) intact(size int64) bool {
	fi, err := os.Stat(s.path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() == size
}

// fill truncates the scratch file and copies r into it, throttled by
// limiter when one is set.
func (s *scratchFile) fill(ctx context.Context, r io.Reader, limiter *rate.Limiter) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return 0, fmt.Errorf("create cache dir: %w", err)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return 0, fmt.Errorf("create scratch file: %w", err)
	}

	if limiter != nil {
		r = newRateLimitedReader(ctx, r, limiter)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close scratch file: %w", err)
	}
	return n, nil
}

func (s *scratchFile) open() (*os.File, error) {
	return os.Open(s.path)
}

// cleanScratch removes scratch files in dir not held by a running item and
// returns how many were removed.
func cleanScratch(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, scratchPrefix+"*"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range matches {
		if liveScratch.held(p) {
			continue
		}
		if err := os.Remove(p); err == nil {
			removed++
		}
	}
	return removed, nil
}
