package ui

import "github.com/bamsammich/alist-sync/internal/event"

// Event is re-exported so presenters read like the engine's vocabulary.
type Event = event.Event

// Re-export event types for convenience.
const (
	PlanStarted   = event.PlanStarted
	PlanComplete  = event.PlanComplete
	ItemQueued    = event.ItemQueued
	ItemRejected  = event.ItemRejected
	ItemStatus    = event.ItemStatus
	ItemDone      = event.ItemDone
	ItemFailed    = event.ItemFailed
	BackupCreated = event.BackupCreated
	TaskSubmitted = event.TaskSubmitted
	TaskStatus    = event.TaskStatus
	TaskDone      = event.TaskDone
	TaskFailed    = event.TaskFailed
)
