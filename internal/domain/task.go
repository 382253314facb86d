// Package domain holds the logical shapes shared by the stores, the scheduling
// coordinator and the aggregation engine. Wire shapes live in internal/remote.
package domain

import "time"

type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusScheduled  Status = "scheduled"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusInProgress Status = "in_progress"
)

// Known reports whether s is one of the statuses the remote store is expected to return.
func (s Status) Known() bool {
	switch s {
	case StatusBacklog, StatusScheduled, StatusDone, StatusBlocked, StatusInProgress:
		return true
	}
	return false
}

// Task is a unit of backlog work owned by exactly one scope.
//
// Status is scheduled iff exactly one live TimeEntry references ID.
// Only backlog <-> scheduled is driven by the scheduling protocol; other
// statuses come from editing flows and are opaque to scheduling.
type Task struct {
	ID              string
	Title           string
	Project         string
	Status          Status
	Billable        bool
	DefaultDuration string
	ScopeID         string
}

// TaskFields is a partial task payload used by create and update.
// Nil fields are left out of the request.
type TaskFields struct {
	Title           *string
	Project         *string
	Status          *Status
	Billable        *bool
	DefaultDuration *string
}

// WithStatus returns a copy of f with Status set.
func (f TaskFields) WithStatus(s Status) TaskFields {
	f.Status = &s
	return f
}

// TimeEntry is a scheduled calendar interval instantiated from a task.
// End is always after Start.
type TimeEntry struct {
	ID      string
	TaskID  string
	ScopeID string
	Start   time.Time
	End     time.Time
	// Title is the task title copied at schedule time.
	Title string
}

// Duration returns End-Start, or 0 when either bound is missing.
func (e TimeEntry) Duration() time.Duration {
	if e.Start.IsZero() || e.End.IsZero() {
		return 0
	}
	return e.End.Sub(e.Start)
}

// EntryFields is the payload for creating an entry.
type EntryFields struct {
	TaskID string
	Start  time.Time
	End    time.Time
	Title  string
}

// Sheet is a scope: a namespace partitioning tasks and entries.
type Sheet struct {
	ID          string
	Name        string
	Description string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SheetFields is the payload for creating or updating a sheet.
type SheetFields struct {
	Name        *string
	Description *string
	Color       *string
}

// Project is an opaque label source for the task edit form.
type Project struct {
	ID    string
	Label string
}

// Ptr returns a pointer to v. Handy for building *Fields payloads.
func Ptr[T any](v T) *T { return &v }
