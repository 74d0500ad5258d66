package engine

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/bamsammich/alist-sync/internal/transport"
)

// pathLocks is the set of paths owned by in-flight work items.
type pathLocks struct {
	mu   sync.Mutex
	held mapset.Set[string]
}

func newPathLocks() *pathLocks {
	return &pathLocks{held: mapset.NewThreadUnsafeSet[string]()}
}

// tryLock takes every key or none of them.
func (l *pathLocks) tryLock(keys ...string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held.ContainsAny(keys...) {
		return false
	}
	l.held.Append(keys...)
	return true
}

// unlock releases keys and returns the ones that were not held.
func (l *pathLocks) unlock(keys ...string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var missing []string
	for _, k := range keys {
		if !l.held.Contains(k) {
			missing = append(missing, k)
			continue
		}
		l.held.Remove(k)
	}
	return missing
}

func (l *pathLocks) locked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held.Contains(key)
}

func (l *pathLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held.Cardinality()
}

// lockKey names path on fs. Filesystems without an ID are told apart by
// identity.
func lockKey(fs transport.FS, p string) string {
	if id, ok := fs.(interface{ ID() string }); ok {
		return id.ID() + ":" + p
	}
	return fmt.Sprintf("%p:%s", fs, p)
}

// lockKeys returns the keys a work item must hold while it runs.
func (w *WorkItem) lockKeys() []string {
	keys := []string{lockKey(w.dst, w.TargetPath)}
	if w.Kind == KindCopy && w.src != nil {
		if k := lockKey(w.src, w.SourcePath); k != keys[0] {
			keys = append(keys, k)
		}
	}
	return keys
}
