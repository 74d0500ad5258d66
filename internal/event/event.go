package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	PlanStarted Type = iota + 1
	PlanComplete
	ItemQueued
	ItemRejected
	ItemStatus
	ItemDone
	ItemFailed
	BackupCreated
	TaskSubmitted
	TaskStatus
	TaskDone
	TaskFailed
)

var typeNames = [...]string{
	PlanStarted:   "PlanStarted",
	PlanComplete:  "PlanComplete",
	ItemQueued:    "ItemQueued",
	ItemRejected:  "ItemRejected",
	ItemStatus:    "ItemStatus",
	ItemDone:      "ItemDone",
	ItemFailed:    "ItemFailed",
	BackupCreated: "BackupCreated",
	TaskSubmitted: "TaskSubmitted",
	TaskStatus:    "TaskStatus",
	TaskDone:      "TaskDone",
	TaskFailed:    "TaskFailed",
}

func (t Type) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single progress notification from the sync engine.
type Event struct {
	Timestamp time.Time
	Error     error
	Type      Type
	ID        string // work item id or copy task name
	Kind      string // "copy" or "delete" for items
	Path      string // target path
	Source    string // source path, empty for deletes
	Status    string
	Size      int64
	Total     int64 // planned items (PlanComplete)
	TotalSize int64 // planned bytes (PlanComplete)
}

// Emit sends e on ch without blocking. A full or nil channel drops the event.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
