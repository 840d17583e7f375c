package eventbus

import "time"

// Event types.
const (
	TypeTaskFinished   = "scheduler.task_finished"
	TypeItemPublished  = "cycle.item_published"
	TypeItemFailed     = "cycle.item_failed"
	TypeCycleCompleted = "cycle.completed"
)

// TaskFinished is the payload of TypeTaskFinished.
type TaskFinished struct {
	Task     string
	Trigger  string
	Started  time.Time
	Took     time.Duration
	Err      string
	Panicked bool
}

// ItemPublished is the payload of TypeItemPublished.
type ItemPublished struct {
	CycleID  string
	ItemID   int64
	Title    string
	Category string
	Attempts int
	TextOnly bool
}

// ItemFailed is the payload of TypeItemFailed.
type ItemFailed struct {
	CycleID  string
	ItemID   int64
	Title    string
	Category string
	Attempts int
	Err      string
}

// CycleCompleted is the payload of TypeCycleCompleted.
type CycleCompleted struct {
	CycleID   string
	Task      string
	Attempted int
	Succeeded int
	Skipped   int
	Failed    int
	Started   time.Time
	Took      time.Duration
}
