// Package gcal mirrors the time entries of the active sheet into a Google
// Calendar. The mirror is one-way: calendar edits are overwritten on the next
// sync and events whose entry disappeared are deleted.
package gcal

import (
	"context"
	"errors"
	"sync"

	"ontime/internal/domain"
	"ontime/internal/eventbus"
	"ontime/pkg/logx"
)

// EntrySource exposes the last committed entries.
type EntrySource interface {
	Entries() []domain.TimeEntry
}

// Stats counts what one sync changed.
type Stats struct {
	Inserted int `json:"inserted"`
	Patched  int `json:"patched"`
	Deleted  int `json:"deleted"`
}

type Mirror struct {
	cal     Calendar
	entries EntrySource
	log     logx.Logger

	mu sync.Mutex
}

func New(cal Calendar, entries EntrySource, log logx.Logger) *Mirror {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Mirror{cal: cal, entries: entries, log: log.With(logx.String("comp", "gcal"))}
}

// Sync makes the calendar hold exactly one event per entry of scopeID.
// It keeps going after a failed call and returns the joined errors.
func (m *Mirror) Sync(ctx context.Context, scopeID string, entries []domain.TimeEntry) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st Stats
	if scopeID == "" {
		return st, domain.NewMissingScope("mirror")
	}
	events, err := m.cal.Mirrored(ctx, scopeID)
	if err != nil {
		return st, err
	}

	want := make(map[string]domain.TimeEntry, len(entries))
	for _, e := range entries {
		if e.ScopeID == "" {
			e.ScopeID = scopeID
		}
		want[e.ID] = e
	}

	var errs []error
	seen := map[string]bool{}
	for _, ev := range events {
		id := entryIDOf(ev)
		e, ok := want[id]
		if !ok || seen[id] {
			if err := m.cal.Delete(ctx, ev.Id); err != nil {
				errs = append(errs, err)
				continue
			}
			st.Deleted++
			continue
		}
		seen[id] = true
		if sameSlot(ev, e) {
			continue
		}
		if err := m.cal.Patch(ctx, ev.Id, EventFor(e)); err != nil {
			errs = append(errs, err)
			continue
		}
		st.Patched++
	}
	for _, e := range entries {
		if seen[e.ID] {
			continue
		}
		if e.ScopeID == "" {
			e.ScopeID = scopeID
		}
		if _, err := m.cal.Insert(ctx, EventFor(e)); err != nil {
			errs = append(errs, err)
			continue
		}
		st.Inserted++
	}
	return st, errors.Join(errs...)
}

// Watch syncs after every entries refresh until ctx is done. Refreshes that
// arrive during a sync coalesce into one follow-up sync.
func (m *Mirror) Watch(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(1, eventbus.EntriesRefreshed)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				r, _ := e.Data.(eventbus.Refreshed)
				m.syncScope(ctx, r.ScopeID)
			}
		}
	}()
}

func (m *Mirror) syncScope(ctx context.Context, scopeID string) {
	if scopeID == "" {
		return
	}
	var entries []domain.TimeEntry
	for _, e := range m.entries.Entries() {
		if e.ScopeID == "" || e.ScopeID == scopeID {
			entries = append(entries, e)
		}
	}
	st, err := m.Sync(ctx, scopeID, entries)
	fields := []logx.Field{
		logx.String("scope", scopeID),
		logx.Int("inserted", st.Inserted),
		logx.Int("patched", st.Patched),
		logx.Int("deleted", st.Deleted),
	}
	if err != nil {
		m.log.Warn("calendar sync failed", append(fields, logx.Err(err))...)
		return
	}
	m.log.Debug("calendar synced", fields...)
}
