package store

import (
	"context"
	"fmt"

	"ontime/internal/domain"
	"ontime/internal/eventbus"
	"ontime/internal/remote"
	"ontime/pkg/logx"
)

type EntryStore struct {
	api     remote.EntryAPI
	scope   *Scope
	bus     eventbus.Bus
	log     logx.Logger
	entries *collection[domain.TimeEntry]
}

func NewEntryStore(api remote.EntryAPI, scope *Scope, bus eventbus.Bus, log logx.Logger) *EntryStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &EntryStore{
		api:     api,
		scope:   scope,
		bus:     bus,
		log:     log.With(logx.String("comp", "entries")),
		entries: newCollection(func(e domain.TimeEntry) string { return e.ID }),
	}
}

// List fetches the entries of scopeID with the same fail-soft and scope-guard
// rules as TaskStore.List.
func (s *EntryStore) List(ctx context.Context, scopeID string) []domain.TimeEntry {
	if scopeID == "" {
		return []domain.TimeEntry{}
	}
	tok := s.scope.Token()
	entries, err := s.api.ListEntries(ctx, scopeID)
	if err != nil {
		s.log.Warn("list entries failed", logx.String("scope", scopeID), logx.Err(err))
		return []domain.TimeEntry{}
	}
	if tok.ScopeID() != scopeID || !s.scope.Commit(tok, func() { s.entries.replace(entries) }) {
		s.log.Debug("discarding stale entry reload", logx.String("scope", scopeID))
		return entries
	}
	publish(s.bus, eventbus.EntriesRefreshed, scopeID, len(entries))
	return entries
}

// Create stores a new entry under scopeID and reloads. Without a scope nothing
// is sent.
func (s *EntryStore) Create(ctx context.Context, scopeID string, f domain.EntryFields) error {
	if scopeID == "" {
		s.log.Warn("create entry without scope", logx.String("task_id", f.TaskID))
		return domain.NewMissingScope("create entry")
	}
	if f.TaskID == "" {
		return domain.NewValidation("task_id", "required")
	}
	if !f.End.After(f.Start) {
		return domain.NewValidation("end", "must be after start")
	}
	if err := s.api.CreateEntry(ctx, scopeID, f); err != nil {
		return fmt.Errorf("create entry for %s: %w", f.TaskID, err)
	}
	s.List(ctx, scopeID)
	return nil
}

// Remove drops entry id locally, then remotely, resyncing on failure.
func (s *EntryStore) Remove(ctx context.Context, scopeID, id string) error {
	if id == "" {
		return domain.NewValidation("id", "required")
	}
	err := Optimistic{
		Speculative: func() { s.entries.remove(id) },
		Confirm:     func(ctx context.Context) error { return s.api.DeleteEntry(ctx, id) },
		Resync: func(ctx context.Context) {
			if scopeID != "" {
				s.List(ctx, scopeID)
			}
		},
	}.Apply(ctx)
	if err != nil {
		s.log.Warn("delete entry failed, resynced", logx.String("entry_id", id), logx.Err(err))
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return nil
}

func (s *EntryStore) Reset() { s.entries.clear() }

func (s *EntryStore) Entries() []domain.TimeEntry { return s.entries.snapshot() }

func (s *EntryStore) Get(id string) (domain.TimeEntry, bool) { return s.entries.get(id) }

// FindByTask returns the local entries referencing taskID.
func (s *EntryStore) FindByTask(taskID string) []domain.TimeEntry {
	return s.entries.filter(func(e domain.TimeEntry) bool { return e.TaskID == taskID })
}
