// Package schedule drives tasks between backlog and scheduled.
//
// A task is scheduled iff exactly one live entry references it. Every
// transition is two strictly ordered remote writes followed by a reload of both
// stores; the coordinator never touches the collections itself.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ontime/internal/domain"
	"ontime/internal/duration"
	"ontime/internal/eventbus"
	"ontime/internal/storage"
	"ontime/internal/store"
	"ontime/pkg/logx"
)

// DropGesture is a backlog task dropped onto the calendar at At.
type DropGesture struct {
	TaskID string
	At     time.Time
}

// DragGesture is a calendar entry released at Release. Bounds is the calendar
// surface at release time.
type DragGesture struct {
	EntryID string
	Release Point
	Bounds  Rect
}

// Pending is a locally rendered entry whose Schedule round trip has not resolved.
type Pending struct {
	ID     string
	TaskID string
	Title  string
	Start  time.Time
	End    time.Time
}

type Deps struct {
	Tasks   *store.TaskStore
	Entries *store.EntryStore
	Scope   *store.Scope
	// Journal and Bus are optional.
	Journal storage.Store
	Bus     eventbus.Bus
	Log     logx.Logger
}

type Coordinator struct {
	tasks   *store.TaskStore
	entries *store.EntryStore
	scope   *store.Scope
	journal storage.Store
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	mu       sync.Mutex
	pending  map[string]Pending
	inflight map[string]struct{}
}

func New(d Deps) *Coordinator {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{
		tasks:    d.Tasks,
		entries:  d.Entries,
		scope:    d.Scope,
		journal:  d.Journal,
		bus:      d.Bus,
		log:      log.With(logx.String("comp", "schedule")),
		now:      time.Now,
		pending:  map[string]Pending{},
		inflight: map[string]struct{}{},
	}
}

// Schedule moves a backlog task onto the calendar.
//
// The entry is created first; the task is marked scheduled only after that
// succeeds. Both stores are reloaded afterwards, also on a failed status update.
func (c *Coordinator) Schedule(ctx context.Context, g DropGesture) (err error) {
	scopeID := c.scope.Active()
	if scopeID == "" {
		return domain.NewMissingScope("schedule")
	}
	task, err := c.validateDrop(scopeID, g)
	if err != nil {
		c.log.Info("drop ignored", logx.String("task_id", g.TaskID), logx.Err(err))
		return err
	}
	if !c.claim(task.ID) {
		return domain.NewValidation("task_id", "transition already in progress")
	}
	defer c.release(task.ID)

	start := c.now()
	defer func() { c.record(ctx, storage.KindSchedule, scopeID, task.ID, "", start, err) }()

	end := g.At.Add(duration.ToDuration(task.DefaultDuration))
	pid := c.addPending(Pending{TaskID: task.ID, Title: task.Title, Start: g.At, End: end})
	defer c.dropPending(pid)

	if err := c.entries.Create(ctx, scopeID, domain.EntryFields{
		TaskID: task.ID,
		Start:  g.At,
		End:    end,
		Title:  task.Title,
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", task.ID, err)
	}
	if err := c.tasks.Update(ctx, scopeID, task.ID, domain.TaskFields{}.WithStatus(domain.StatusScheduled)); err != nil {
		c.Reload(ctx)
		return fmt.Errorf("schedule %s: entry created but status not updated: %w", task.ID, err)
	}
	c.Reload(ctx)
	return nil
}

func (c *Coordinator) validateDrop(scopeID string, g DropGesture) (domain.Task, error) {
	if g.TaskID == "" {
		return domain.Task{}, domain.NewValidation("task_id", "required")
	}
	if g.At.IsZero() {
		return domain.Task{}, domain.NewValidation("at", "drop time required")
	}
	task, ok := c.tasks.Get(g.TaskID)
	if !ok {
		return domain.Task{}, domain.NewValidation("task_id", "unknown task "+g.TaskID)
	}
	if err := checkScope(scopeID, "task "+task.ID, task.ScopeID); err != nil {
		return domain.Task{}, err
	}
	if task.Status != domain.StatusBacklog {
		return domain.Task{}, domain.NewValidation("status", fmt.Sprintf("task %s is %s, not backlog", task.ID, task.Status))
	}
	if n := len(c.entries.FindByTask(task.ID)); n > 0 {
		return domain.Task{}, domain.NewValidation("task_id", fmt.Sprintf("task %s already has %d entry", task.ID, n))
	}
	return task, nil
}

// Unschedule returns an entry's task to the backlog when the entry is released
// outside the calendar bounds. It reports whether a transition ran. Unknown
// entries and releases inside (or without) bounds are no-ops.
func (c *Coordinator) Unschedule(ctx context.Context, g DragGesture) (bool, error) {
	entry, ok := c.entries.Get(g.EntryID)
	if !ok {
		c.log.Debug("unschedule of unknown entry", logx.String("entry_id", g.EntryID))
		return false, nil
	}
	if g.Bounds.IsZero() || g.Bounds.Contains(g.Release) {
		return false, nil
	}
	return true, c.unschedule(ctx, storage.KindUnschedule, entry)
}

// DeleteEntry removes an entry directly and returns its task to the backlog.
func (c *Coordinator) DeleteEntry(ctx context.Context, entryID string) error {
	entry, ok := c.entries.Get(entryID)
	if !ok {
		c.log.Debug("delete of unknown entry", logx.String("entry_id", entryID))
		return nil
	}
	return c.unschedule(ctx, storage.KindDeleteEntry, entry)
}

// unschedule flips the task to backlog, then removes the entry, then reloads.
func (c *Coordinator) unschedule(ctx context.Context, kind string, entry domain.TimeEntry) (err error) {
	scopeID := c.scope.Active()
	if scopeID == "" {
		return domain.NewMissingScope(kind)
	}
	if err := checkScope(scopeID, "entry "+entry.ID, entry.ScopeID); err != nil {
		return err
	}
	if entry.TaskID != "" {
		if !c.claim(entry.TaskID) {
			return domain.NewValidation("task_id", "transition already in progress")
		}
		defer c.release(entry.TaskID)
	}
	start := c.now()
	defer func() { c.record(ctx, kind, scopeID, entry.TaskID, entry.ID, start, err) }()

	// An entry whose task is gone locally is removed without a status update.
	if task, ok := c.tasks.Get(entry.TaskID); ok && task.Status == domain.StatusScheduled {
		if err := c.tasks.Update(ctx, scopeID, task.ID, domain.TaskFields{}.WithStatus(domain.StatusBacklog)); err != nil {
			c.Reload(ctx)
			return fmt.Errorf("%s %s: %w", kind, entry.ID, err)
		}
	}
	if err := c.entries.Remove(ctx, scopeID, entry.ID); err != nil {
		c.Reload(ctx)
		return fmt.Errorf("%s %s: %w", kind, entry.ID, err)
	}
	c.Reload(ctx)
	return nil
}

// DeleteTask removes a task. Entries owned by the task are removed first so no
// entry is left pointing at a deleted task; if that fails the task is kept.
func (c *Coordinator) DeleteTask(ctx context.Context, taskID string) (err error) {
	scopeID := c.scope.Active()
	if scopeID == "" {
		return domain.NewMissingScope("delete task")
	}
	if taskID == "" {
		return domain.NewValidation("task_id", "required")
	}
	if task, ok := c.tasks.Get(taskID); ok {
		if err := checkScope(scopeID, "task "+taskID, task.ScopeID); err != nil {
			return err
		}
	}
	if !c.claim(taskID) {
		return domain.NewValidation("task_id", "transition already in progress")
	}
	defer c.release(taskID)

	start := c.now()
	defer func() { c.record(ctx, storage.KindDeleteTask, scopeID, taskID, "", start, err) }()

	for _, e := range c.entries.FindByTask(taskID) {
		if err := checkScope(scopeID, "entry "+e.ID, e.ScopeID); err != nil {
			return err
		}
		if err := c.entries.Remove(ctx, scopeID, e.ID); err != nil {
			c.Reload(ctx)
			return fmt.Errorf("delete task %s: remove entry %s: %w", taskID, e.ID, err)
		}
	}
	if err := c.tasks.Remove(ctx, scopeID, taskID); err != nil {
		c.Reload(ctx)
		return err
	}
	c.Reload(ctx)
	return nil
}

// CreateTask adds a backlog task to the active scope.
func (c *Coordinator) CreateTask(ctx context.Context, f domain.TaskFields) error {
	if f.DefaultDuration != nil && !duration.Valid(*f.DefaultDuration) {
		return domain.NewValidation("default_duration", "unknown label "+*f.DefaultDuration)
	}
	if f.Status != nil && *f.Status != domain.StatusBacklog {
		return domain.NewValidation("status", "new tasks start in backlog")
	}
	return c.tasks.Create(ctx, c.scope.Active(), f.WithStatus(domain.StatusBacklog))
}

// EditTask updates task fields outside the scheduling protocol. Status
// scheduled cannot be set here, and a scheduled task keeps its status.
func (c *Coordinator) EditTask(ctx context.Context, taskID string, f domain.TaskFields) (err error) {
	scopeID := c.scope.Active()
	if scopeID == "" {
		return domain.NewMissingScope("edit task")
	}
	task, ok := c.tasks.Get(taskID)
	if !ok {
		return domain.NewValidation("task_id", "unknown task "+taskID)
	}
	if err := checkScope(scopeID, "task "+taskID, task.ScopeID); err != nil {
		return err
	}
	if f.DefaultDuration != nil && !duration.Valid(*f.DefaultDuration) {
		return domain.NewValidation("default_duration", "unknown label "+*f.DefaultDuration)
	}
	if f.Title != nil && *f.Title == "" {
		return domain.NewValidation("title", "required")
	}
	if f.Status != nil && *f.Status != task.Status {
		switch {
		case *f.Status == domain.StatusScheduled:
			return domain.NewValidation("status", "schedule the task instead")
		case task.Status == domain.StatusScheduled:
			return domain.NewValidation("status", "unschedule the task first")
		case !f.Status.Known():
			return domain.NewValidation("status", "unknown status "+string(*f.Status))
		}
	}
	start := c.now()
	defer func() { c.record(ctx, storage.KindEditTask, scopeID, taskID, "", start, err) }()
	return c.tasks.Update(ctx, scopeID, taskID, f)
}

// checkScope rejects rows that belong to a scope other than the active one.
// An empty owner is accepted.
func checkScope(active, what, owner string) error {
	if owner == "" || owner == active {
		return nil
	}
	return domain.NewValidation("scope", fmt.Sprintf("%s belongs to sheet %s, not %s", what, owner, active))
}

// Reset drops both local collections and any placeholders. The sheet service
// calls it on every scope switch, before the reload of the new scope.
func (c *Coordinator) Reset() {
	c.tasks.Reset()
	c.entries.Reset()
	c.mu.Lock()
	clear(c.pending)
	c.mu.Unlock()
}

// Reload refreshes both stores concurrently for the active scope and writes
// the result to the snapshot store when one is configured.
func (c *Coordinator) Reload(ctx context.Context) {
	scopeID := c.scope.Active()
	if scopeID == "" {
		return
	}
	var (
		wg      sync.WaitGroup
		tasks   []domain.Task
		entries []domain.TimeEntry
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tasks = c.tasks.List(ctx, scopeID)
	}()
	go func() {
		defer wg.Done()
		entries = c.entries.List(ctx, scopeID)
	}()
	wg.Wait()

	if c.journal == nil || c.scope.Active() != scopeID {
		return
	}
	c.snapshot(ctx, scopeID, storage.SnapshotTasks, tasks)
	c.snapshot(ctx, scopeID, storage.SnapshotEntries, entries)
}

func (c *Coordinator) snapshot(ctx context.Context, scopeID, kind string, v any) {
	b, err := json.Marshal(v)
	if err == nil {
		err = c.journal.PutSnapshot(ctx, scopeID, kind, b)
	}
	if err != nil {
		c.log.Debug("snapshot write failed", logx.String("kind", kind), logx.Err(err))
	}
}

// Pending returns placeholders for Schedule calls still in flight.
func (c *Coordinator) Pending() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Pending, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	return out
}

func (c *Coordinator) addPending(p Pending) string {
	p.ID = "pending-" + uuid.NewString()
	c.mu.Lock()
	c.pending[p.ID] = p
	c.mu.Unlock()
	return p.ID
}

func (c *Coordinator) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// claim marks taskID as having a transition in flight.
func (c *Coordinator) claim(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[taskID]; busy {
		return false
	}
	c.inflight[taskID] = struct{}{}
	return true
}

func (c *Coordinator) release(taskID string) {
	c.mu.Lock()
	delete(c.inflight, taskID)
	c.mu.Unlock()
}

func (c *Coordinator) record(ctx context.Context, kind, scopeID, taskID, entryID string, start time.Time, err error) {
	took := c.now().Sub(start)
	data := eventbus.TransitionData{Kind: kind, TaskID: taskID, EntryID: entryID}
	if err != nil {
		data.Err = err.Error()
		c.log.Warn("transition failed",
			logx.String("kind", kind),
			logx.String("task_id", taskID),
			logx.String("entry_id", entryID),
			logx.Err(err),
		)
	} else {
		c.log.Info("transition done",
			logx.String("kind", kind),
			logx.String("task_id", taskID),
			logx.Duration("took", took),
		)
	}
	if c.bus != nil {
		typ := eventbus.Transition
		if err != nil && !errors.Is(err, domain.ErrValidation) {
			typ = eventbus.ActionFailed
		}
		c.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
	if c.journal == nil {
		return
	}
	rec := storage.Transition{
		At:      start,
		Kind:    kind,
		ScopeID: scopeID,
		TaskID:  taskID,
		EntryID: entryID,
		OK:      err == nil,
		TookMS:  took.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jerr := c.journal.AppendTransition(context.WithoutCancel(ctx), rec); jerr != nil {
		c.log.Debug("journal append failed", logx.Err(jerr))
	}
}
