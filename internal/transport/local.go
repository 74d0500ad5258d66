package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

var _ FS = (*LocalFS)(nil)

// LocalFS serves a local directory through the FS interface. Slash paths
// are resolved beneath root, so "/" names root itself.
type LocalFS struct {
	root string
}

// NewLocalFS returns a LocalFS rooted at root.
func NewLocalFS(root string) *LocalFS {
	return &LocalFS{root: root}
}

// Root returns the local directory backing the filesystem.
func (l *LocalFS) Root() string { return l.root }

// ID identifies the filesystem in path lock keys.
func (l *LocalFS) ID() string { return "file://" + filepath.ToSlash(l.root) }

// AbsPath maps a slash path to its location on disk.
func (l *LocalFS) AbsPath(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(path.Clean("/"+p)))
}

func (l *LocalFS) Stat(_ context.Context, p string) (Entry, error) {
	info, err := os.Stat(l.AbsPath(p))
	if err != nil {
		return Entry{}, localErr("stat", p, err)
	}
	return infoToEntry(info, cleanPath(p)), nil
}

func (l *LocalFS) List(_ context.Context, p string) ([]Entry, error) {
	dir := cleanPath(p)
	des, err := os.ReadDir(l.AbsPath(dir))
	if err != nil {
		return nil, localErr("list", p, err)
	}
	entries := make([]Entry, 0, len(des))
	for _, d := range des {
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, infoToEntry(info, path.Join(dir, d.Name())))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (l *LocalFS) Open(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := os.Open(l.AbsPath(p))
	if err != nil {
		return nil, localErr("open", p, err)
	}
	return f, nil
}

// Put writes through a uniquely named sibling file and renames it into place,
// so readers never observe a partially written target.
func (l *LocalFS) Put(_ context.Context, p string, r io.Reader, size int64, modified time.Time) error {
	abs := l.AbsPath(p)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}

	tmp := filepath.Join(filepath.Dir(abs),
		fmt.Sprintf(".%s.%s.part", filepath.Base(abs), uuid.New().String()[:8]))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("short write: %d of %d bytes", n, size)
	}
	if err == nil && !modified.IsZero() {
		err = os.Chtimes(tmp, modified, modified)
	}
	if err == nil {
		err = os.Rename(tmp, abs)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("put %s: %w", p, err)
	}
	return nil
}

func (l *LocalFS) Mkdir(_ context.Context, p string) error {
	if err := os.MkdirAll(l.AbsPath(p), 0o755); err != nil {
		return localErr("mkdir", p, err)
	}
	return nil
}

func (l *LocalFS) Remove(_ context.Context, p string) error {
	abs := l.AbsPath(p)
	if _, err := os.Lstat(abs); err != nil {
		return localErr("remove", p, err)
	}
	if err := os.RemoveAll(abs); err != nil {
		return localErr("remove", p, err)
	}
	return nil
}

func (l *LocalFS) Rename(_ context.Context, from, to string) error {
	dst := l.AbsPath(to)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return localErr("rename", to, err)
	}
	if err := os.Rename(l.AbsPath(from), dst); err != nil {
		return localErr("rename", from, err)
	}
	return nil
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

func infoToEntry(info os.FileInfo, p string) Entry {
	e := Entry{
		Path:     p,
		Name:     path.Base(p),
		Modified: info.ModTime(),
		IsDir:    info.IsDir(),
	}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e
}

// localErr wraps err, translating fs.ErrNotExist into ErrNotFound.
func localErr(op, p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", op, p, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, p, err)
}
