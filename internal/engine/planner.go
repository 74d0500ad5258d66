package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/alist-sync/internal/event"
	"github.com/bamsammich/alist-sync/internal/filter"
	"github.com/bamsammich/alist-sync/internal/transport"
)

const defaultWalkConcurrency = 8

// Tree is a recursive listing keyed by slash path relative to the root.
// Directories are not included.
type Tree map[string]transport.Entry

// Walk lists root on fs recursively, at most limit directories at a time.
// Entries the filter excludes are skipped; excluded directories are not
// descended. A missing root yields an empty tree.
func Walk(ctx context.Context, fs transport.FS, root string, chain *filter.Chain, limit int) (Tree, error) {
	if limit <= 0 {
		limit = defaultWalkConcurrency
	}
	root = cleanPath(root)

	var (
		mu   sync.Mutex
		tree = make(Tree)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var visit func(dir string) error
	visit = func(dir string) error {
		entries, err := fs.List(gctx, dir)
		if err != nil {
			if dir == root && isNotFound(err) {
				return nil
			}
			return fmt.Errorf("list %s: %w", dir, err)
		}
		for _, e := range entries {
			rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, root), "/")
			if chain != nil && !chain.Match(rel, e.IsDir, e.Size) {
				continue
			}
			if !e.IsDir {
				mu.Lock()
				tree[rel] = e
				mu.Unlock()
				continue
			}
			sub := e.Path
			// Run inline once the limit is reached so deep trees cannot
			// deadlock waiting on their own parents.
			if !g.TryGo(func() error { return visit(sub) }) {
				if err := visit(sub); err != nil {
					return err
				}
			}
		}
		return nil
	}

	g.Go(func() error { return visit(root) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tree, nil
}

// Sorted returns the tree's relative paths in order.
func (t Tree) Sorted() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// MirrorPlan configures PlanMirror.
type MirrorPlan struct {
	Src     transport.FS
	SrcRoot string
	Dst     transport.FS
	DstRoot string
	Filter  *filter.Chain
	// BackupDir, when set, makes every item that would replace or remove
	// an existing target back it up first.
	BackupDir string
	// Delete removes target files that do not exist on the source.
	Delete bool
	// WalkConcurrency bounds concurrent directory listings.
	WalkConcurrency int
}

// PlanMirror compares the source and target trees and sends a work item to
// out for each file that is missing or differs in size on the target, and,
// with Delete, for each target file missing from the source. It returns the
// number of items sent.
func PlanMirror(ctx context.Context, set Settings, p MirrorPlan, out chan<- *WorkItem) (int, error) {
	set = set.withDefaults()
	event.Emit(set.Events, event.Event{Type: event.PlanStarted, Path: p.DstRoot, Source: p.SrcRoot})

	var srcTree, dstTree Tree
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		srcTree, err = Walk(gctx, p.Src, p.SrcRoot, p.Filter, p.WalkConcurrency)
		return err
	})
	g.Go(func() (err error) {
		dstTree, err = Walk(gctx, p.Dst, p.DstRoot, p.Filter, p.WalkConcurrency)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	backupRel := ""
	if p.BackupDir != "" {
		if rel, ok := within(p.DstRoot, p.BackupDir); ok {
			backupRel = rel
		}
	}

	var items []*WorkItem
	var totalSize int64
	for _, rel := range srcTree.Sorted() {
		se := srcTree[rel]
		de, exists := dstTree[rel]
		if exists && de.Size == se.Size {
			continue
		}
		items = append(items, NewCopyItem(set,
			p.Src, path.Join(p.SrcRoot, rel),
			p.Dst, path.Join(p.DstRoot, rel),
			ItemOptions{BackupDir: p.BackupDir, NeedBackup: exists && p.BackupDir != "", Size: se.Size}))
		totalSize += se.Size
	}
	if p.Delete {
		for _, rel := range dstTree.Sorted() {
			if _, ok := srcTree[rel]; ok {
				continue
			}
			if backupRel != "" && (rel == backupRel || strings.HasPrefix(rel, backupRel+"/")) {
				continue
			}
			items = append(items, NewDeleteItem(set, p.Dst, path.Join(p.DstRoot, rel),
				ItemOptions{BackupDir: p.BackupDir, NeedBackup: p.BackupDir != ""}))
		}
	}

	set.Stats.AddBytesTotal(totalSize)
	set.Logger.Info("mirror planned", "source", p.SrcRoot, "target", p.DstRoot,
		"items", len(items), "bytes", totalSize)
	event.Emit(set.Events, event.Event{
		Type:      event.PlanComplete,
		Path:      p.DstRoot,
		Source:    p.SrcRoot,
		Total:     int64(len(items)),
		TotalSize: totalSize,
	})

	for i, item := range items {
		select {
		case out <- item:
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	return len(items), nil
}

// SyncDir is one member of a sync group.
type SyncDir struct {
	FS   transport.FS
	Root string
}

// SyncPlan configures PlanSync.
type SyncPlan struct {
	Dirs            []SyncDir
	Filter          *filter.Chain
	WalkConcurrency int
}

// PlanSync sends a copy item for every file that some member of the group
// holds and another lacks. The first member holding a file, in group order,
// is its source. Files present everywhere are left alone whatever their
// size, and nothing is deleted.
func PlanSync(ctx context.Context, set Settings, p SyncPlan, out chan<- *WorkItem) (int, error) {
	set = set.withDefaults()
	if len(p.Dirs) < 2 {
		return 0, errors.New("sync needs at least two directories")
	}
	for _, d := range p.Dirs {
		event.Emit(set.Events, event.Event{Type: event.PlanStarted, Path: d.Root})
	}

	trees := make([]Tree, len(p.Dirs))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range p.Dirs {
		g.Go(func() (err error) {
			trees[i], err = Walk(gctx, d.FS, d.Root, p.Filter, p.WalkConcurrency)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	union := make(Tree)
	owner := make(map[string]int)
	for i, t := range trees {
		for rel, e := range t {
			if _, ok := union[rel]; !ok {
				union[rel] = e
				owner[rel] = i
			}
		}
	}

	var items []*WorkItem
	var totalSize int64
	for _, rel := range union.Sorted() {
		from := p.Dirs[owner[rel]]
		for i, to := range p.Dirs {
			if _, ok := trees[i][rel]; ok {
				continue
			}
			size := union[rel].Size
			items = append(items, NewCopyItem(set,
				from.FS, path.Join(from.Root, rel),
				to.FS, path.Join(to.Root, rel),
				ItemOptions{Size: size}))
			totalSize += size
		}
	}

	set.Stats.AddBytesTotal(totalSize)
	set.Logger.Info("sync planned", "dirs", len(p.Dirs), "files", len(union),
		"items", len(items), "bytes", totalSize)
	event.Emit(set.Events, event.Event{
		Type:      event.PlanComplete,
		Path:      p.Dirs[0].Root,
		Total:     int64(len(items)),
		TotalSize: totalSize,
	})

	for i, item := range items {
		select {
		case out <- item:
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	return len(items), nil
}

// CopyPlan configures PlanCopy. Source and targets live on the same server,
// which performs the copies itself.
type CopyPlan struct {
	FS              transport.FS
	SrcRoot         string
	Targets         []string
	Filter          *filter.Chain
	WalkConcurrency int
}

// PlanCopy returns one copy task for every source file missing from each
// target.
func PlanCopy(ctx context.Context, set Settings, p CopyPlan) ([]*CopyTask, error) {
	set = set.withDefaults()
	event.Emit(set.Events, event.Event{Type: event.PlanStarted, Source: p.SrcRoot})

	srcTree, err := Walk(ctx, p.FS, p.SrcRoot, p.Filter, p.WalkConcurrency)
	if err != nil {
		return nil, err
	}

	var tasks []*CopyTask
	var totalSize int64
	for _, target := range p.Targets {
		dstTree, err := Walk(ctx, p.FS, target, p.Filter, p.WalkConcurrency)
		if err != nil {
			return nil, err
		}
		for _, rel := range srcTree.Sorted() {
			if _, ok := dstTree[rel]; ok {
				continue
			}
			e := srcTree[rel]
			dir := path.Dir(rel)
			tasks = append(tasks, NewCopyTask(
				path.Join(p.SrcRoot, dir), path.Join(target, dir), path.Base(rel), e.Size))
			totalSize += e.Size
		}
		set.Logger.Info("copy planned", "source", p.SrcRoot, "target", target)
	}

	set.Stats.AddBytesTotal(totalSize)
	event.Emit(set.Events, event.Event{
		Type:      event.PlanComplete,
		Source:    p.SrcRoot,
		Total:     int64(len(tasks)),
		TotalSize: totalSize,
	})
	return tasks, nil
}

// within returns p relative to root when p lies under root.
func within(root, p string) (string, bool) {
	root, p = cleanPath(root), cleanPath(p)
	if root == "/" {
		return strings.TrimPrefix(p, "/"), p != "/"
	}
	if !strings.HasPrefix(p, root+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, root+"/"), true
}

func isNotFound(err error) bool { return errors.Is(err, transport.ErrNotFound) }
