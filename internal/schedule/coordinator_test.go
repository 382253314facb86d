package schedule

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"ontime/internal/domain"
	"ontime/internal/eventbus"
	"ontime/internal/remote"
	"ontime/internal/storage"
	"ontime/internal/store"
	"ontime/pkg/logx"
)

type fixture struct {
	fake    *remote.Fake
	scope   *store.Scope
	tasks   *store.TaskStore
	entries *store.EntryStore
	bus     eventbus.Bus
	c       *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{fake: remote.NewFake(), scope: store.NewScope("s1"), bus: eventbus.New()}
	f.tasks = store.NewTaskStore(f.fake, f.scope, f.bus, logx.Nop())
	f.entries = store.NewEntryStore(f.fake, f.scope, f.bus, logx.Nop())
	f.c = New(Deps{Tasks: f.tasks, Entries: f.entries, Scope: f.scope, Bus: f.bus})
	return f
}

// mutating calls only, in order
func (f *fixture) writes() []string {
	var out []string
	for _, c := range f.fake.Calls() {
		if !strings.HasPrefix(c, "List") {
			out = append(out, c)
		}
	}
	return out
}

var dropAt = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func TestScheduleCreatesEntryThenUpdatesTask(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "Write", DefaultDuration: "2h", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)
	f.fake.ResetCalls()

	if err := f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got, want := f.writes(), []string{"CreateEntry t1", "UpdateTask t1"}; !slices.Equal(got, want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	es := f.entries.FindByTask("t1")
	if len(es) != 1 {
		t.Fatalf("expected one entry, got %+v", es)
	}
	if !es[0].Start.Equal(dropAt) || !es[0].End.Equal(dropAt.Add(2*time.Hour)) || es[0].Title != "Write" {
		t.Fatalf("unexpected entry: %+v", es[0])
	}
	task, _ := f.tasks.Get("t1")
	if task.Status != domain.StatusScheduled {
		t.Fatalf("status = %s, want scheduled", task.Status)
	}
	if v := f.c.CheckInvariant(); len(v) != 0 {
		t.Fatalf("invariant violated: %v", v)
	}
	if p := f.c.Pending(); len(p) != 0 {
		t.Fatalf("placeholder left behind: %+v", p)
	}
}

func TestScheduleUnknownDurationUsesOneHour(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", DefaultDuration: "9h", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)
	if err := f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if d := f.entries.FindByTask("t1")[0].Duration(); d != time.Hour {
		t.Fatalf("duration = %v, want 1h", d)
	}
}

func TestScheduleEntryFailureLeavesTaskInBacklog(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)
	f.fake.FailNext("CreateEntry", domain.NewTransport("POST /time-entries", 503, nil))
	f.fake.ResetCalls()

	err := f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt})
	if !domain.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := f.writes(); !slices.Equal(got, []string{"CreateEntry t1"}) {
		t.Fatalf("task update must not run, writes = %v", got)
	}
	if task, _ := f.fake.Task("t1"); task.Status != domain.StatusBacklog {
		t.Fatalf("remote status = %s", task.Status)
	}
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", ScopeID: "s1", Status: domain.StatusDone})
	f.fake.AddTask(domain.Task{ID: "t2", Title: "y", ScopeID: "s1"})
	f.fake.AddEntry(domain.TimeEntry{TaskID: "t2", ScopeID: "s1", Start: dropAt, End: dropAt.Add(time.Hour)})
	ctx := context.Background()
	f.c.Reload(ctx)
	f.fake.ResetCalls()

	for _, g := range []DropGesture{
		{TaskID: "missing", At: dropAt},
		{TaskID: "t1", At: dropAt},
		{TaskID: "t2", At: dropAt},
		{TaskID: "t2"},
	} {
		if err := f.c.Schedule(ctx, g); !domain.IsValidation(err) {
			t.Fatalf("%+v: expected validation error, got %v", g, err)
		}
	}
	if calls := f.fake.Calls(); len(calls) != 0 {
		t.Fatalf("ignored gestures must not reach the remote: %v", calls)
	}
}

func TestScheduleWithoutScope(t *testing.T) {
	f := newFixture(t)
	f.scope.Set("")
	if err := f.c.Schedule(context.Background(), DropGesture{TaskID: "t1", At: dropAt}); !domain.IsMissingScope(err) {
		t.Fatalf("expected missing scope, got %v", err)
	}
}

func scheduled(t *testing.T) (*fixture, string) {
	t.Helper()
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", DefaultDuration: "2h", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)
	if err := f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	f.fake.ResetCalls()
	return f, f.entries.FindByTask("t1")[0].ID
}

var bounds = Rect{Left: 0, Top: 0, Right: 800, Bottom: 600}

func TestUnscheduleOutsideBounds(t *testing.T) {
	f, entryID := scheduled(t)
	ctx := context.Background()

	moved, err := f.c.Unschedule(ctx, DragGesture{EntryID: entryID, Release: Point{X: 900, Y: 10}, Bounds: bounds})
	if err != nil || !moved {
		t.Fatalf("Unschedule: moved=%v err=%v", moved, err)
	}
	if got, want := f.writes(), []string{"UpdateTask t1", "DeleteEntry " + entryID}; !slices.Equal(got, want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	if task, _ := f.tasks.Get("t1"); task.Status != domain.StatusBacklog {
		t.Fatalf("status = %s", task.Status)
	}
	if len(f.entries.Entries()) != 0 {
		t.Fatalf("entry not removed")
	}

	// second drag of the same entry finds nothing
	f.fake.ResetCalls()
	moved, err = f.c.Unschedule(ctx, DragGesture{EntryID: entryID, Release: Point{X: 900, Y: 10}, Bounds: bounds})
	if err != nil || moved || len(f.fake.Calls()) != 0 {
		t.Fatalf("second unschedule should be a no-op: moved=%v err=%v calls=%v", moved, err, f.fake.Calls())
	}
	if task, _ := f.tasks.Get("t1"); task.Status != domain.StatusBacklog {
		t.Fatalf("status changed by no-op: %s", task.Status)
	}
}

func TestUnscheduleInsideBoundsIsNoop(t *testing.T) {
	f, entryID := scheduled(t)
	for _, p := range []Point{{X: 400, Y: 300}, {X: 0, Y: 0}, {X: 800, Y: 600}} {
		moved, err := f.c.Unschedule(context.Background(), DragGesture{EntryID: entryID, Release: p, Bounds: bounds})
		if err != nil || moved {
			t.Fatalf("release at %+v moved=%v err=%v", p, moved, err)
		}
	}
	moved, _ := f.c.Unschedule(context.Background(), DragGesture{EntryID: entryID, Release: Point{X: -1, Y: -1}})
	if moved {
		t.Fatalf("unknown bounds must not transition")
	}
	if len(f.fake.Calls()) != 0 {
		t.Fatalf("unexpected calls %v", f.fake.Calls())
	}
}

func TestDeleteTaskRemovesEntryFirst(t *testing.T) {
	f, entryID := scheduled(t)
	if err := f.c.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if got, want := f.writes(), []string{"DeleteEntry " + entryID, "DeleteTask t1"}; !slices.Equal(got, want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	if len(f.fake.Entries()) != 0 {
		t.Fatalf("orphan entry left remotely")
	}
	if v := f.c.CheckInvariant(); len(v) != 0 {
		t.Fatalf("invariant violated: %v", v)
	}
}

func TestDeleteTaskKeepsTaskWhenEntryRemovalFails(t *testing.T) {
	f, entryID := scheduled(t)
	f.fake.FailNext("DeleteEntry", domain.NewTransport("DELETE /time-entries/"+entryID, 500, nil))
	if err := f.c.DeleteTask(context.Background(), "t1"); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := f.tasks.Get("t1"); !ok {
		t.Fatalf("task must survive a failed entry removal")
	}
	if len(f.entries.FindByTask("t1")) != 1 {
		t.Fatalf("entry should be restored by resync")
	}
}

func TestDeleteEntryFlipsTaskToBacklog(t *testing.T) {
	f, entryID := scheduled(t)
	if err := f.c.DeleteEntry(context.Background(), entryID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if task, _ := f.tasks.Get("t1"); task.Status != domain.StatusBacklog {
		t.Fatalf("status = %s", task.Status)
	}
	if err := f.c.DeleteEntry(context.Background(), entryID); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestEditTaskGuardsProtocolStatuses(t *testing.T) {
	f, _ := scheduled(t)
	ctx := context.Background()
	f.fake.AddTask(domain.Task{ID: "t2", Title: "y", ScopeID: "s1"})
	f.c.Reload(ctx)

	if err := f.c.EditTask(ctx, "t2", domain.TaskFields{}.WithStatus(domain.StatusScheduled)); !domain.IsValidation(err) {
		t.Fatalf("setting scheduled by edit: %v", err)
	}
	if err := f.c.EditTask(ctx, "t1", domain.TaskFields{}.WithStatus(domain.StatusDone)); !domain.IsValidation(err) {
		t.Fatalf("changing a scheduled task's status: %v", err)
	}
	if err := f.c.EditTask(ctx, "t2", domain.TaskFields{DefaultDuration: domain.Ptr("90m")}); !domain.IsValidation(err) {
		t.Fatalf("bad duration label: %v", err)
	}
	if err := f.c.EditTask(ctx, "t2", domain.TaskFields{Title: domain.Ptr("renamed")}.WithStatus(domain.StatusBlocked)); err != nil {
		t.Fatalf("EditTask: %v", err)
	}
	if task, _ := f.tasks.Get("t2"); task.Title != "renamed" || task.Status != domain.StatusBlocked {
		t.Fatalf("edit not applied: %+v", task)
	}
	if err := f.c.EditTask(ctx, "t1", domain.TaskFields{Title: domain.Ptr("still scheduled")}); err != nil {
		t.Fatalf("title edit of scheduled task: %v", err)
	}
}

func TestCheckInvariantAndRepair(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "a", Title: "a", ScopeID: "s1", Status: domain.StatusScheduled})
	f.fake.AddTask(domain.Task{ID: "b", Title: "b", ScopeID: "s1"})
	f.fake.AddEntry(domain.TimeEntry{TaskID: "b", ScopeID: "s1", Start: dropAt, End: dropAt.Add(time.Hour)})
	f.fake.AddEntry(domain.TimeEntry{TaskID: "ghost", ScopeID: "s1", Start: dropAt, End: dropAt.Add(time.Hour)})
	ctx := context.Background()
	f.c.Reload(ctx)

	v := f.c.CheckInvariant()
	reasons := map[string]string{}
	for _, x := range v {
		reasons[x.TaskID] = x.Reason
	}
	want := map[string]string{"a": ReasonScheduledNoEntry, "b": ReasonEntryNotSched, "ghost": ReasonOrphanEntry}
	for id, r := range want {
		if reasons[id] != r {
			t.Fatalf("violation for %s = %q, want %q (all: %v)", id, reasons[id], r, v)
		}
	}

	n, err := f.c.Repair(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Repair = %d, %v", n, err)
	}
	left := f.c.CheckInvariant()
	if len(left) != 1 || left[0].Reason != ReasonOrphanEntry {
		t.Fatalf("after repair: %v", left)
	}
}

func TestTransitionsAreJournaled(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "diskv", Path: filepath.Join(t.TempDir(), "kv")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	f := newFixture(t)
	f.c = New(Deps{Tasks: f.tasks, Entries: f.entries, Scope: f.scope, Journal: st, Bus: f.bus})
	failed, unsub := f.bus.Subscribe(4, eventbus.ActionFailed)
	defer unsub()

	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)
	f.fake.FailNext("CreateEntry", domain.NewTransport("POST /time-entries", 502, nil))
	_ = f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt})
	if err := f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt}); err != nil {
		t.Fatalf("retry: %v", err)
	}

	recs, err := st.Transitions(ctx, 0)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 journal records, got %d", len(recs))
	}
	var ok, bad int
	for _, r := range recs {
		if r.Kind != storage.KindSchedule || r.TaskID != "t1" {
			t.Fatalf("unexpected record %+v", r)
		}
		if r.OK {
			ok++
		} else {
			bad++
		}
	}
	if ok != 1 || bad != 1 {
		t.Fatalf("ok=%d failed=%d", ok, bad)
	}
	if len(failed) != 1 {
		t.Fatalf("expected one action.failed event, got %d", len(failed))
	}
	if _, found, _ := st.GetSnapshot(ctx, "s1", storage.SnapshotEntries); !found {
		t.Fatalf("reload should snapshot entries")
	}
}

func TestPendingVisibleDuringRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)

	var seen []Pending
	f.fake.BeforeCall = func(method string) {
		if method == "CreateEntry" {
			seen = f.c.Pending()
		}
	}
	if err := f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(seen) != 1 || seen[0].TaskID != "t1" || !strings.HasPrefix(seen[0].ID, "pending-") {
		t.Fatalf("placeholder during round trip: %+v", seen)
	}
}

// switchTo mirrors what the sheet service does on a scope change.
func (f *fixture) switchTo(id string) {
	if f.scope.Set(id) {
		f.c.Reset()
	}
}

func TestScopeSwitchDropsPreviousRows(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)

	f.switchTo("s2")
	f.fake.FailNext("ListTasks", domain.NewTransport("GET /tasks", 503, nil))
	f.fake.FailNext("ListEntries", domain.NewTransport("GET /time-entries", 503, nil))
	f.c.Reload(ctx)
	if tasks := f.tasks.Tasks(); len(tasks) != 0 {
		t.Fatalf("rows of s1 survived the switch: %+v", tasks)
	}
	f.fake.ResetCalls()

	if err := f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if w := f.writes(); len(w) != 0 {
		t.Fatalf("no write expected, got %v", w)
	}
	for _, e := range f.fake.Entries() {
		if task, ok := f.fake.Task(e.TaskID); ok && task.ScopeID != e.ScopeID {
			t.Fatalf("entry scope %s != task scope %s", e.ScopeID, task.ScopeID)
		}
	}
}

func TestForeignScopeRowsAreRejected(t *testing.T) {
	f, entryID := scheduled(t)
	f.fake.AddTask(domain.Task{ID: "t2", Title: "y", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)
	// scope moves without a reset; local rows still belong to s1
	f.scope.Set("s2")
	f.fake.ResetCalls()

	if err := f.c.Schedule(ctx, DropGesture{TaskID: "t2", At: dropAt}); !domain.IsValidation(err) {
		t.Fatalf("Schedule: expected validation error, got %v", err)
	}
	if err := f.c.DeleteEntry(ctx, entryID); !domain.IsValidation(err) {
		t.Fatalf("DeleteEntry: expected validation error, got %v", err)
	}
	if err := f.c.DeleteTask(ctx, "t1"); !domain.IsValidation(err) {
		t.Fatalf("DeleteTask: expected validation error, got %v", err)
	}
	if err := f.c.EditTask(ctx, "t2", domain.TaskFields{Title: domain.Ptr("z")}); !domain.IsValidation(err) {
		t.Fatalf("EditTask: expected validation error, got %v", err)
	}
	if calls := f.fake.Calls(); len(calls) != 0 {
		t.Fatalf("rejected actions must not reach the remote: %v", calls)
	}
}

func TestScopeSwitchDuringReloadIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", ScopeID: "s1"})
	f.fake.AddEntry(domain.TimeEntry{TaskID: "t1", ScopeID: "s1", Start: dropAt, End: dropAt.Add(time.Hour)})
	f.fake.BeforeCall = func(method string) {
		if method == "ListTasks" {
			f.switchTo("s2")
		}
	}
	f.c.Reload(context.Background())
	if len(f.tasks.Tasks()) != 0 || len(f.entries.Entries()) != 0 {
		t.Fatalf("reload for s1 committed after switching to s2: tasks=%v entries=%v", f.tasks.Tasks(), f.entries.Entries())
	}
}

func TestScopeSwitchDuringScheduleKeepsEntryInTaskScope(t *testing.T) {
	f := newFixture(t)
	f.fake.AddTask(domain.Task{ID: "t1", Title: "x", ScopeID: "s1"})
	ctx := context.Background()
	f.c.Reload(ctx)
	f.fake.BeforeCall = func(method string) {
		if method == "CreateEntry" {
			f.switchTo("s2")
		}
	}
	if err := f.c.Schedule(ctx, DropGesture{TaskID: "t1", At: dropAt}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	es := f.fake.Entries()
	if len(es) != 1 || es[0].ScopeID != "s1" {
		t.Fatalf("entry should be written under s1: %+v", es)
	}
	if task, _ := f.fake.Task("t1"); task.Status != domain.StatusScheduled {
		t.Fatalf("remote status = %s", task.Status)
	}
	if _, ok := f.tasks.Get("t1"); ok {
		t.Fatalf("s1 task visible after switching to s2")
	}
}
