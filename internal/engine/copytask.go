package engine

import (
	"path"
	"slices"

	"github.com/bamsammich/alist-sync/internal/store"
)

// TaskStatus is the local view of a remote copy task.
type TaskStatus string

const (
	TaskInit       TaskStatus = "init"
	TaskCreated    TaskStatus = "created"
	TaskWaiting    TaskStatus = "waiting"
	TaskGettingSrc TaskStatus = "getting_src"
	TaskSuccess    TaskStatus = "success"
	TaskFailed     TaskStatus = "failed"
)

var taskRank = map[TaskStatus]int{
	TaskInit:       0,
	TaskCreated:    1,
	TaskWaiting:    2,
	TaskGettingSrc: 3,
	TaskSuccess:    4,
	TaskFailed:     4,
}

// Terminal reports whether the task has finished either way.
func (s TaskStatus) Terminal() bool { return s == TaskSuccess || s == TaskFailed }

// remoteStatus maps the status strings the server reports for copy tasks.
var remoteStatus = map[string]TaskStatus{
	"":                   TaskWaiting,
	"getting src object": TaskGettingSrc,
	"failed":             TaskFailed,
	"success":            TaskSuccess,
}

// MapRemoteStatus converts a server task status. ok is false for strings
// outside the known table.
func MapRemoteStatus(s string) (status TaskStatus, ok bool) {
	status, ok = remoteStatus[s]
	return status, ok
}

// CopyTask is one file the server is asked to copy from SrcDir into DstDir.
type CopyTask struct {
	Name     string
	SrcDir   string
	DstDir   string
	FileName string
	Status   TaskStatus
	RemoteID string
	Size     int64
	// Retired lists remote ids of earlier attempts.
	Retired []string
}

// NewCopyTask returns a task in TaskInit.
func NewCopyTask(srcDir, dstDir, fileName string, size int64) *CopyTask {
	srcDir, dstDir = cleanPath(srcDir), cleanPath(dstDir)
	return &CopyTask{
		Name:     path.Join(srcDir, fileName) + " -> " + dstDir,
		SrcDir:   srcDir,
		DstDir:   dstDir,
		FileName: fileName,
		Status:   TaskInit,
		Size:     size,
	}
}

// SrcPath is the full path of the file being copied.
func (t *CopyTask) SrcPath() string { return path.Join(t.SrcDir, t.FileName) }

// advance moves the task to status if that is a step forward. Terminal
// tasks never change.
func (t *CopyTask) advance(status TaskStatus) bool {
	if t.Status.Terminal() || taskRank[status] <= taskRank[t.Status] {
		return false
	}
	t.Status = status
	return true
}

// retry puts a failed task back in TaskInit for another submission. Its
// remote id is retired so the old failure is not matched again.
func (t *CopyTask) retry() {
	if t.RemoteID != "" {
		t.Retired = append(t.Retired, t.RemoteID)
	}
	t.Status, t.RemoteID = TaskInit, ""
}

func (t *CopyTask) record() store.CopyTask {
	return store.CopyTask{
		Name:     t.Name,
		SrcDir:   t.SrcDir,
		DstDir:   t.DstDir,
		FileName: t.FileName,
		Status:   string(t.Status),
		RemoteID: t.RemoteID,
		Size:     t.Size,
		Retired:  slices.Clone(t.Retired),
	}
}

func copyTaskFromRecord(rec store.CopyTask) *CopyTask {
	return &CopyTask{
		Name:     rec.Name,
		SrcDir:   rec.SrcDir,
		DstDir:   rec.DstDir,
		FileName: rec.FileName,
		Status:   TaskStatus(rec.Status),
		RemoteID: rec.RemoteID,
		Size:     rec.Size,
		Retired:  slices.Clone(rec.Retired),
	}
}
