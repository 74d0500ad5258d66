package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "PlanStarted", typ: PlanStarted},
		{want: "PlanComplete", typ: PlanComplete},
		{want: "ItemQueued", typ: ItemQueued},
		{want: "ItemRejected", typ: ItemRejected},
		{want: "ItemStatus", typ: ItemStatus},
		{want: "ItemDone", typ: ItemDone},
		{want: "ItemFailed", typ: ItemFailed},
		{want: "BackupCreated", typ: BackupCreated},
		{want: "TaskSubmitted", typ: TaskSubmitted},
		{want: "TaskStatus", typ: TaskStatus},
		{want: "TaskDone", typ: TaskDone},
		{want: "TaskFailed", typ: TaskFailed},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(0).String())
	assert.Equal(t, "Unknown", Type(999).String())
}

func TestEmit(t *testing.T) {
	ch := make(chan Event, 1)

	Emit(ch, Event{Type: ItemDone, ID: "a"})
	// Channel full: dropped instead of blocking.
	Emit(ch, Event{Type: ItemDone, ID: "b"})
	Emit(nil, Event{Type: ItemDone})

	require.Len(t, ch, 1)
	got := <-ch
	assert.Equal(t, "a", got.ID)
	assert.False(t, got.Timestamp.IsZero())
}
