package transport

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned (possibly wrapped) when a path does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotSupported is returned by backends lacking an optional capability.
	ErrNotSupported = errors.New("not supported")
)

// Entry describes a single file or directory on a remote filesystem.
// Paths are slash-separated and absolute within the filesystem namespace.
type Entry struct {
	Modified time.Time `json:"modified"`
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Sign     string    `json:"sign,omitempty"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
}

// FS is the filesystem capability set the sync engine drives.
type FS interface {
	// Stat returns metadata for path, or an error wrapping ErrNotFound.
	Stat(ctx context.Context, path string) (Entry, error)

	// List returns the immediate children of the directory at path.
	List(ctx context.Context, path string) ([]Entry, error)

	// Open streams the content of the file at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Put uploads size bytes from r to path, creating parents as needed.
	Put(ctx context.Context, path string, r io.Reader, size int64, modified time.Time) error

	// Mkdir creates the directory at path and any missing parents.
	Mkdir(ctx context.Context, path string) error

	// Remove deletes the file or directory at path.
	Remove(ctx context.Context, path string) error

	// Rename moves from to the absolute path to, across directories if needed.
	Rename(ctx context.Context, from, to string) error
}

// TaskKind names a remote asynchronous task queue.
type TaskKind string

const (
	TaskCopy   TaskKind = "copy"
	TaskUpload TaskKind = "upload"
)

// Task is one entry of a remote task queue as reported by the server.
// SrcPath and DstDir are filled in by backends that can recover them from
// the task name; they are empty otherwise.
type Task struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Error    string  `json:"error"`
	SrcPath  string  `json:"-"`
	DstDir   string  `json:"-"`
	State    int     `json:"state"`
	Progress float64 `json:"progress"`
}

// TaskSnapshot is a point-in-time view of a remote task queue. A zero
// Refreshed means the queue has not been observed yet, which is distinct
// from an observed empty queue.
type TaskSnapshot struct {
	Refreshed time.Time
	Done      []Task
	Undone    []Task
}

// Stale reports whether the snapshot has never been refreshed.
func (s TaskSnapshot) Stale() bool { return s.Refreshed.IsZero() }

// TaskQueue is the remote asynchronous copy facility.
type TaskQueue interface {
	// SubmitCopy asks the server to copy names from srcDir into dstDir.
	SubmitCopy(ctx context.Context, srcDir, dstDir string, names []string) error

	// TaskSnapshot returns the most recent cached view of the kind's queue.
	TaskSnapshot(ctx context.Context, kind TaskKind) (TaskSnapshot, error)

	// ClearDone removes finished tasks of kind from the server.
	ClearDone(ctx context.Context, kind TaskKind) error
}
