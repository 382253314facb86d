package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"ontime/internal/domain"
	"ontime/internal/eventbus"
	"ontime/pkg/logx"
)

type memCalendar struct {
	mu      sync.Mutex
	seq     int
	events  map[string]*calendar.Event
	failDel bool
}

func newMemCalendar() *memCalendar { return &memCalendar{events: map[string]*calendar.Event{}} }

func (c *memCalendar) Mirrored(ctx context.Context, scopeID string) ([]*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*calendar.Event
	for _, ev := range c.events {
		if ev.ExtendedProperties.Private[propScope] == scopeID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *memCalendar) Insert(ctx context.Context, ev *calendar.Event) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	ev.Id = fmt.Sprintf("ev%d", c.seq)
	c.events[ev.Id] = ev
	return ev, nil
}

func (c *memCalendar) Patch(ctx context.Context, id string, ev *calendar.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev.Id = id
	c.events[id] = ev
	return nil
}

func (c *memCalendar) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failDel {
		return errors.New("delete refused")
	}
	delete(c.events, id)
	return nil
}

func (c *memCalendar) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type staticEntries []domain.TimeEntry

func (s staticEntries) Entries() []domain.TimeEntry { return s }

func entry(id, task string, hour int) domain.TimeEntry {
	start := time.Date(2026, 10, 19, hour, 0, 0, 0, time.UTC)
	return domain.TimeEntry{ID: id, TaskID: task, ScopeID: "s1", Start: start, End: start.Add(time.Hour), Title: "Task " + task}
}

func TestSyncInsertsPatchesAndDeletes(t *testing.T) {
	cal := newMemCalendar()
	m := New(cal, nil, logx.Nop())
	ctx := context.Background()

	st, err := m.Sync(ctx, "s1", []domain.TimeEntry{entry("e1", "t1", 9), entry("e2", "t2", 11)})
	if err != nil || st.Inserted != 2 {
		t.Fatalf("first sync: %+v %v", st, err)
	}

	st, err = m.Sync(ctx, "s1", []domain.TimeEntry{entry("e1", "t1", 9), entry("e2", "t2", 11)})
	if err != nil || st != (Stats{}) {
		t.Fatalf("second sync should be a no-op: %+v %v", st, err)
	}

	st, err = m.Sync(ctx, "s1", []domain.TimeEntry{entry("e1", "t1", 14)})
	if err != nil || st.Patched != 1 || st.Deleted != 1 || st.Inserted != 0 {
		t.Fatalf("third sync: %+v %v", st, err)
	}
	if cal.len() != 1 {
		t.Fatalf("events = %d", cal.len())
	}
}

func TestSyncDeletesDuplicates(t *testing.T) {
	cal := newMemCalendar()
	e := entry("e1", "t1", 9)
	_, _ = cal.Insert(context.Background(), EventFor(e))
	_, _ = cal.Insert(context.Background(), EventFor(e))

	st, err := New(cal, nil, logx.Nop()).Sync(context.Background(), "s1", []domain.TimeEntry{e})
	if err != nil || st.Deleted != 1 || cal.len() != 1 {
		t.Fatalf("stats = %+v err = %v len = %d", st, err, cal.len())
	}
}

func TestSyncContinuesAfterErrors(t *testing.T) {
	cal := newMemCalendar()
	_, _ = cal.Insert(context.Background(), EventFor(entry("gone", "t9", 8)))
	cal.failDel = true

	st, err := New(cal, nil, logx.Nop()).Sync(context.Background(), "s1", []domain.TimeEntry{entry("e1", "t1", 9)})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if st.Inserted != 1 {
		t.Fatalf("insert should still happen: %+v", st)
	}
	if _, err := New(cal, nil, logx.Nop()).Sync(context.Background(), "", nil); !domain.IsMissingScope(err) {
		t.Fatalf("empty scope: %v", err)
	}
}

func TestWatchSyncsOnRefresh(t *testing.T) {
	cal := newMemCalendar()
	bus := eventbus.New()
	m := New(cal, staticEntries{entry("e1", "t1", 9), entry("x", "t2", 9)}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Watch(ctx, bus)

	bus.Publish(eventbus.Event{Type: eventbus.EntriesRefreshed, Data: eventbus.Refreshed{ScopeID: "s1", Count: 2}})
	deadline := time.Now().Add(2 * time.Second)
	for cal.len() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("events = %d", cal.len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGoogleCalendarInsert(t *testing.T) {
	var got calendar.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/calendars/work/events") {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ev42","summary":"Task t1"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := calendar.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ev, err := NewGoogleCalendar(svc, "work").Insert(ctx, EventFor(entry("e1", "t1", 9)))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ev.Id != "ev42" {
		t.Fatalf("id = %q", ev.Id)
	}
	if got.ExtendedProperties == nil || got.ExtendedProperties.Private[propEntry] != "e1" {
		t.Fatalf("request body = %+v", got)
	}
	if got.Start.DateTime != "2026-10-19T09:00:00Z" {
		t.Fatalf("start = %q", got.Start.DateTime)
	}
}
