// Package store owns the in-memory task and entry collections of the active
// scope. Collections are only mutated here; callers go through store operations.
package store

import (
	"context"
	"fmt"

	"ontime/internal/domain"
	"ontime/internal/eventbus"
	"ontime/internal/remote"
	"ontime/pkg/logx"
)

type TaskStore struct {
	api   remote.TaskAPI
	scope *Scope
	bus   eventbus.Bus
	log   logx.Logger
	tasks *collection[domain.Task]
}

// NewTaskStore builds a store bound to scope. bus may be nil.
func NewTaskStore(api remote.TaskAPI, scope *Scope, bus eventbus.Bus, log logx.Logger) *TaskStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TaskStore{
		api:   api,
		scope: scope,
		bus:   bus,
		log:   log.With(logx.String("comp", "tasks")),
		tasks: newCollection(func(t domain.Task) string { return t.ID }),
	}
}

// List fetches the tasks of scopeID. It never fails: transport errors and an
// empty scopeID yield an empty result. The result replaces the local collection
// only when scopeID is still the active scope once the fetch resolves.
func (s *TaskStore) List(ctx context.Context, scopeID string) []domain.Task {
	if scopeID == "" {
		return []domain.Task{}
	}
	tok := s.scope.Token()
	tasks, err := s.api.ListTasks(ctx, scopeID)
	if err != nil {
		s.log.Warn("list tasks failed", logx.String("scope", scopeID), logx.Err(err))
		return []domain.Task{}
	}
	if tok.ScopeID() != scopeID || !s.scope.Commit(tok, func() { s.tasks.replace(tasks) }) {
		s.log.Debug("discarding stale task reload", logx.String("scope", scopeID))
		return tasks
	}
	publish(s.bus, eventbus.TasksRefreshed, scopeID, len(tasks))
	return tasks
}

// Create stores a new task under scopeID and reloads.
func (s *TaskStore) Create(ctx context.Context, scopeID string, f domain.TaskFields) error {
	if scopeID == "" {
		s.log.Warn("create task without scope")
		return domain.NewMissingScope("create task")
	}
	if f.Title == nil || *f.Title == "" {
		return domain.NewValidation("title", "required")
	}
	if err := s.api.CreateTask(ctx, scopeID, f); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	s.List(ctx, scopeID)
	return nil
}

// Update patches task id under scopeID and reloads.
func (s *TaskStore) Update(ctx context.Context, scopeID, id string, f domain.TaskFields) error {
	if scopeID == "" {
		s.log.Warn("update task without scope", logx.String("task_id", id))
		return domain.NewMissingScope("update task")
	}
	if id == "" {
		return domain.NewValidation("id", "required")
	}
	if err := s.api.UpdateTask(ctx, scopeID, id, f); err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	s.List(ctx, scopeID)
	return nil
}

// Remove drops task id locally, then remotely. A failed remote delete is
// followed by a full reload of scopeID.
func (s *TaskStore) Remove(ctx context.Context, scopeID, id string) error {
	if id == "" {
		return domain.NewValidation("id", "required")
	}
	err := Optimistic{
		Speculative: func() { s.tasks.remove(id) },
		Confirm:     func(ctx context.Context) error { return s.api.DeleteTask(ctx, id) },
		Resync: func(ctx context.Context) {
			if scopeID != "" {
				s.List(ctx, scopeID)
			}
		},
	}.Apply(ctx)
	if err != nil {
		s.log.Warn("delete task failed, resynced", logx.String("task_id", id), logx.Err(err))
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// Reset drops every local task. Called when the active scope changes so rows
// of the previous scope never outlive the switch.
func (s *TaskStore) Reset() { s.tasks.clear() }

// Tasks returns a snapshot of the local collection.
func (s *TaskStore) Tasks() []domain.Task { return s.tasks.snapshot() }

func (s *TaskStore) Get(id string) (domain.Task, bool) { return s.tasks.get(id) }

// Backlog returns the local tasks in backlog status.
func (s *TaskStore) Backlog() []domain.Task {
	return s.tasks.filter(func(t domain.Task) bool { return t.Status == domain.StatusBacklog })
}

func publish(bus eventbus.Bus, typ, scopeID string, n int) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Data: eventbus.Refreshed{ScopeID: scopeID, Count: n}})
}
