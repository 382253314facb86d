package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "diskv": one file per record under Path (a directory)
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// MaxTransitions bounds the journal; older records are pruned. 0 means 10000.
	MaxTransitions int
}

// Transition kinds.
const (
	KindSchedule    = "schedule"
	KindUnschedule  = "unschedule"
	KindDeleteTask  = "delete_task"
	KindDeleteEntry = "delete_entry"
	KindEditTask    = "edit_task"
)

// Transition records one coordinator transition attempt.
type Transition struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	ScopeID string    `json:"scope_id"`
	TaskID  string    `json:"task_id,omitempty"`
	EntryID string    `json:"entry_id,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}

// Snapshot kinds.
const (
	SnapshotTasks   = "tasks"
	SnapshotEntries = "entries"
)

const defaultMaxTransitions = 10000
