package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/alist-sync/internal/transport"
)

func TestMapRemoteStatus(t *testing.T) {
	tests := []struct {
		remote string
		want   TaskStatus
	}{
		{"", TaskWaiting},
		{"getting src object", TaskGettingSrc},
		{"failed", TaskFailed},
		{"success", TaskSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			got, ok := MapRemoteStatus(tt.remote)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := MapRemoteStatus("uploading to the moon")
	assert.False(t, ok)
}

func TestCopyTaskAdvance(t *testing.T) {
	task := NewCopyTask("/src/dir", "/dst", "f.txt", 10)
	assert.Equal(t, "/src/dir/f.txt -> /dst", task.Name)
	assert.Equal(t, "/src/dir/f.txt", task.SrcPath())

	assert.True(t, task.advance(TaskCreated))
	assert.True(t, task.advance(TaskGettingSrc))
	assert.False(t, task.advance(TaskWaiting), "no regression")
	assert.False(t, task.advance(TaskGettingSrc), "re-applying is a no-op")
	assert.True(t, task.advance(TaskSuccess))
	assert.False(t, task.advance(TaskFailed), "terminal stays terminal")
	assert.Equal(t, TaskSuccess, task.Status)
}

func created(tasks ...*CopyTask) []*CopyTask {
	for _, t := range tasks {
		t.Status = TaskCreated
	}
	return tasks
}

func TestReconcilerCompletes(t *testing.T) {
	set := testSettings(t)
	q := newFakeQueue()
	success := "success"
	q.autoFinish = &success
	q.refresh()

	tasks := []*CopyTask{
		NewCopyTask("/src", "/dst", "a.txt", 3),
		NewCopyTask("/src/sub", "/dst/sub", "b.txt", 4),
	}
	r := NewReconciler(set, q, "job1", tasks)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, ReconcileResult{Tasks: 2, Succeeded: 2}, res)
	assert.Equal(t, 1, q.clearCount())
	assert.ElementsMatch(t, []string{"/src/a.txt", "/src/sub/b.txt"}, q.submissions())

	saved, err := set.Store.LoadCopyTasks(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	for _, s := range saved {
		assert.Equal(t, string(TaskSuccess), s.Status)
		assert.NotEmpty(t, s.RemoteID)
	}
	snap := set.Stats.Snapshot()
	assert.Equal(t, int64(2), snap.TasksSubmitted)
	assert.Equal(t, int64(2), snap.TasksSucceeded)
}

func TestCopyTaskRetry(t *testing.T) {
	task := NewCopyTask("/src", "/dst", "a.txt", 1)
	task.Status, task.RemoteID = TaskFailed, "r1"
	task.retry()
	task.Status, task.RemoteID = TaskFailed, "r2"
	task.retry()

	assert.Equal(t, TaskInit, task.Status)
	assert.Empty(t, task.RemoteID)
	assert.Equal(t, []string{"r1", "r2"}, task.Retired)
	assert.Equal(t, []string{"r1", "r2"}, task.record().Retired)
}

func TestReconcilerSkipsRetiredRemoteIDs(t *testing.T) {
	set := testSettings(t)
	q := newFakeQueue()
	q.done["r1"] = transport.Task{ID: "r1", Status: "failed", SrcPath: "/src/a.txt", DstDir: "/dst"}
	q.done["r2"] = transport.Task{ID: "r2", Status: "success", SrcPath: "/src/a.txt", DstDir: "/dst"}
	q.refresh()

	task := NewCopyTask("/src", "/dst", "a.txt", 1)
	task.Status = TaskCreated
	task.Retired = []string{"r1"}

	res, err := NewReconciler(set, q, "", []*CopyTask{task}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Tasks: 1, Succeeded: 1}, res)
}

func TestReconcilerStaleSnapshotGuard(t *testing.T) {
	set := testSettings(t)
	q := newFakeQueue()
	r := NewReconciler(set, q, "", []*CopyTask{NewCopyTask("/src", "/dst", "a.txt", 1)})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	res, err := r.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 0, res.Succeeded+res.Failed)
	assert.Equal(t, 0, q.clearCount())
	assert.Equal(t, TaskCreated, r.Tasks()[0].Status)
}

func TestReconcilerIsolatesUnknownStatus(t *testing.T) {
	set := testSettings(t)
	q := newFakeQueue()
	q.done["r1"] = transport.Task{ID: "r1", Status: "exploded", SrcPath: "/src/a.txt", DstDir: "/dst"}
	q.done["r2"] = transport.Task{ID: "r2", Status: "success", SrcPath: "/src/b.txt", DstDir: "/dst"}
	q.refresh()

	r := NewReconciler(set, q, "", created(
		NewCopyTask("/src", "/dst", "a.txt", 1),
		NewCopyTask("/src", "/dst", "b.txt", 1),
	))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := r.Tasks()
	assert.Equal(t, TaskCreated, got[0].Status)
	assert.Equal(t, "r1", got[0].RemoteID)
	assert.Equal(t, TaskSuccess, got[1].Status)
	assert.Equal(t, 0, q.clearCount())
}

func TestReconcilerFailedTaskIsTerminal(t *testing.T) {
	set := testSettings(t)
	q := newFakeQueue()
	q.done["r1"] = transport.Task{ID: "r1", Status: "failed", Error: "quota", SrcPath: "/src/a.txt", DstDir: "/dst"}
	q.refresh()

	r := NewReconciler(set, q, "", created(NewCopyTask("/src", "/dst", "a.txt", 1)))
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReconcileResult{Tasks: 1, Failed: 1}, res)
	assert.Equal(t, 1, q.clearCount())
	assert.Equal(t, int64(1), set.Stats.Snapshot().TasksFailed)
}

func TestReconcilerRetriesFailedSubmission(t *testing.T) {
	set := testSettings(t)
	q := newFakeQueue()
	q.failNext = 2
	success := "success"
	q.autoFinish = &success
	q.refresh()

	r := NewReconciler(set, q, "", []*CopyTask{NewCopyTask("/src", "/dst", "a.txt", 1)})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, []string{"/src/a.txt"}, q.submissions())
}

func TestReconcilerMatchesByRemoteID(t *testing.T) {
	set := testSettings(t)
	q := newFakeQueue()
	// Same route as the local task but a different id: an older run.
	q.done["old"] = transport.Task{ID: "old", Status: "failed", SrcPath: "/src/a.txt", DstDir: "/dst"}
	q.done["t9"] = transport.Task{ID: "t9", Status: "success"}
	q.refresh()

	task := NewCopyTask("/src", "/dst", "a.txt", 1)
	task.Status = TaskWaiting
	task.RemoteID = "t9"

	res, err := NewReconciler(set, q, "", []*CopyTask{task}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Tasks: 1, Succeeded: 1}, res)
}

func TestReconcilerEmptyUndoneMeansDone(t *testing.T) {
	set := testSettings(t)
	set.EmptyUndoneMeansDone = true
	q := newFakeQueue()
	q.extraDone = []transport.Task{{ID: "other", Name: "unrelated", Status: "success"}}
	q.refresh()

	r := NewReconciler(set, q, "", created(NewCopyTask("/src", "/dst", "a.txt", 1)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := r.Run(ctx)
	require.NoError(t, err)

	assert.True(t, res.AssumedDone)
	assert.Equal(t, 0, res.Succeeded)
	assert.Equal(t, 0, q.clearCount())
}

func TestReconcilerNoTasks(t *testing.T) {
	set := testSettings(t)
	q := newFakeQueue()
	res, err := NewReconciler(set, q, "", nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, res)
	assert.Equal(t, 1, q.clearCount())
}
