// Package store persists live work items, completion logs, and cached copy
// tasks so an interrupted run can be resumed.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownField is returned by Upsert for a field outside the Field set.
var ErrUnknownField = errors.New("unknown field")

// Record is the persisted form of a work item.
type Record struct {
	CreatedAt  time.Time `json:"created_at"`
	DoneAt     time.Time `json:"done_at"`
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	SourcePath string    `json:"source_path,omitempty"`
	TargetPath string    `json:"target_path"`
	BackupDir  string    `json:"backup_dir,omitempty"`
	BackupPath string    `json:"backup_path,omitempty"`
	Status     string    `json:"status"`
	ErrorInfo  string    `json:"error_info,omitempty"`
	Owner      string    `json:"owner,omitempty"`
	Size       int64     `json:"size"`
	NeedBackup bool      `json:"need_backup"`
}

// Field names a column of Record that may be updated on its own.
type Field string

const (
	FieldStatus     Field = "status"
	FieldErrorInfo  Field = "error_info"
	FieldDoneAt     Field = "done_at"
	FieldSize       Field = "size"
	FieldBackupPath Field = "backup_path"
)

func (f Field) valid() bool {
	switch f {
	case FieldStatus, FieldErrorInfo, FieldDoneAt, FieldSize, FieldBackupPath:
		return true
	}
	return false
}

func validate(fields []Field) error {
	for _, f := range fields {
		if !f.valid() {
			return fmt.Errorf("%w: %q", ErrUnknownField, string(f))
		}
	}
	return nil
}

// CopyTask is the persisted form of a remote copy task.
type CopyTask struct {
	Name     string `json:"name"`
	SrcDir   string `json:"src_dir"`
	DstDir   string `json:"dst_dir"`
	FileName string `json:"file_name"`
	Status   string `json:"status"`
	RemoteID string `json:"remote_id,omitempty"`
	Size     int64  `json:"size"`
	// Retired holds the remote ids of earlier attempts, which must not be
	// matched to the task again.
	Retired []string `json:"retired,omitempty"`
}

// Store is the job store. Implementations are safe for concurrent use.
type Store interface {
	// Upsert writes rec. With no fields the whole record is written;
	// otherwise only the named fields are updated, inserting rec in full
	// if it is not stored yet.
	Upsert(ctx context.Context, rec Record, fields ...Field) error

	// Delete removes the live record id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// AppendLog appends a completion log entry.
	AppendLog(ctx context.Context, rec Record) error

	// Pending returns every live record, oldest first.
	Pending(ctx context.Context) ([]Record, error)

	// Logs returns completion logs for owner, or all logs when owner is empty.
	Logs(ctx context.Context, owner string) ([]Record, error)

	// SaveCopyTasks replaces the cached copy tasks of job.
	SaveCopyTasks(ctx context.Context, job string, tasks []CopyTask) error

	// LoadCopyTasks returns the cached copy tasks of job.
	LoadCopyTasks(ctx context.Context, job string) ([]CopyTask, error)

	// DeleteCopyTasks drops the cached copy tasks of job.
	DeleteCopyTasks(ctx context.Context, job string) error

	Close() error
}

// Open returns the store selected by kind: "sqlite" (at path) or "memory".
//
//nolint:ireturn // picks the backend by kind
func Open(kind, path string) (Store, error) {
	switch kind {
	case "", "sqlite":
		return OpenSQLite(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store %q (use sqlite or memory)", kind)
	}
}
