package store

import (
	"context"
	"slices"
	"sort"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is a process-local Store, used for tests and --store=memory runs.
type Memory struct {
	mu     sync.Mutex
	items  map[string]Record
	logs   []Record
	copies map[string][]CopyTask
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		items:  make(map[string]Record),
		copies: make(map[string][]CopyTask),
	}
}

func (m *Memory) Upsert(_ context.Context, rec Record, fields ...Field) error {
	if err := validate(fields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.items[rec.ID]
	if !ok || len(fields) == 0 {
		m.items[rec.ID] = rec
		return nil
	}
	for _, f := range fields {
		switch f {
		case FieldStatus:
			cur.Status = rec.Status
		case FieldErrorInfo:
			cur.ErrorInfo = rec.ErrorInfo
		case FieldDoneAt:
			cur.DoneAt = rec.DoneAt
		case FieldSize:
			cur.Size = rec.Size
		case FieldBackupPath:
			cur.BackupPath = rec.BackupPath
		}
	}
	m.items[rec.ID] = cur
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *Memory) AppendLog(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, rec)
	return nil
}

func (m *Memory) Pending(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.items))
	for _, r := range m.items {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Logs(_ context.Context, owner string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.logs {
		if owner == "" || r.Owner == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) SaveCopyTasks(_ context.Context, job string, tasks []CopyTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copies[job] = cloneCopyTasks(tasks)
	return nil
}

func (m *Memory) LoadCopyTasks(_ context.Context, job string) ([]CopyTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneCopyTasks(m.copies[job]), nil
}

func cloneCopyTasks(tasks []CopyTask) []CopyTask {
	out := slices.Clone(tasks)
	for i := range out {
		out[i].Retired = slices.Clone(out[i].Retired)
	}
	return out
}

func (m *Memory) DeleteCopyTasks(_ context.Context, job string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.copies, job)
	return nil
}

func (*Memory) Close() error { return nil }
