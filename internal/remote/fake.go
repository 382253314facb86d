package remote

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ontime/internal/domain"
	"ontime/internal/duration"
)

// Fake is an in-memory Client. It records every call in order and can be told
// to fail specific methods, which makes it the remote for store and
// coordinator tests and the backing state of the dev server.
type Fake struct {
	// CascadeDeletes makes DeleteTask also drop the task's entries.
	CascadeDeletes bool
	// BeforeCall, when set, runs at the start of every method with its name.
	BeforeCall func(method string)

	mu       sync.Mutex
	seq      int
	tasks    []domain.Task
	entries  []domain.TimeEntry
	sheets   []domain.Sheet
	projects []domain.Project
	reports  []Report
	calls    []string
	failNext map[string]error
	failAll  map[string]error
	now      func() time.Time
}

var _ Client = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		failNext: map[string]error{},
		failAll:  map[string]error{},
		now:      time.Now,
	}
}

// FailNext makes the next call to method return err.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	f.failNext[method] = err
	f.mu.Unlock()
}

// FailAlways makes every call to method return err until ClearFailures.
func (f *Fake) FailAlways(method string, err error) {
	f.mu.Lock()
	f.failAll[method] = err
	f.mu.Unlock()
}

func (f *Fake) ClearFailures() {
	f.mu.Lock()
	f.failNext = map[string]error{}
	f.failAll = map[string]error{}
	f.mu.Unlock()
}

// Calls returns the recorded call log, e.g. "CreateEntry t1" or "ListTasks s1".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) ResetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// AddTask seeds a task and returns its id. Empty fields get the usual defaults.
func (f *Fake) AddTask(t domain.Task) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = f.nextID("t")
	}
	if t.Status == "" {
		t.Status = domain.StatusBacklog
	}
	if t.DefaultDuration == "" {
		t.DefaultDuration = duration.DefaultTaskLabel
	}
	f.tasks = append(f.tasks, t)
	return t.ID
}

// AddEntry seeds an entry and returns its id.
func (f *Fake) AddEntry(e domain.TimeEntry) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == "" {
		e.ID = f.nextID("e")
	}
	f.entries = append(f.entries, e)
	return e.ID
}

func (f *Fake) AddSheet(s domain.Sheet) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = f.nextID("s")
	}
	f.sheets = append(f.sheets, s)
	return s.ID
}

func (f *Fake) AddProject(p domain.Project) {
	f.mu.Lock()
	f.projects = append(f.projects, p)
	f.mu.Unlock()
}

// Task returns the remote copy of a task.
func (f *Fake) Task(id string) (domain.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.taskIndex(id); i >= 0 {
		return f.tasks[i], true
	}
	return domain.Task{}, false
}

// Entries returns all remote entries regardless of scope.
func (f *Fake) Entries() []domain.TimeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TimeEntry(nil), f.entries...)
}

// ---- Client ----

func (f *Fake) ListTasks(ctx context.Context, scopeID string) ([]domain.Task, error) {
	if err := f.enter(ctx, "ListTasks", scopeID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if t.ScopeID == scopeID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *Fake) CreateTask(ctx context.Context, scopeID string, tf domain.TaskFields) error {
	if err := f.enter(ctx, "CreateTask", scopeID); err != nil {
		return err
	}
	t := domain.Task{ScopeID: scopeID, Billable: true}
	applyTaskFields(&t, tf)
	f.AddTask(t)
	return nil
}

func (f *Fake) UpdateTask(ctx context.Context, scopeID, id string, tf domain.TaskFields) error {
	if err := f.enter(ctx, "UpdateTask", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(id)
	if i < 0 {
		return domain.NewTransport("PUT /tasks/"+id, 404, nil)
	}
	applyTaskFields(&f.tasks[i], tf)
	if scopeID != "" {
		f.tasks[i].ScopeID = scopeID
	}
	return nil
}

func (f *Fake) DeleteTask(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteTask", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.taskIndex(id)
	if i < 0 {
		return domain.NewTransport("DELETE /tasks/"+id, 404, nil)
	}
	f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
	if f.CascadeDeletes {
		kept := f.entries[:0]
		for _, e := range f.entries {
			if e.TaskID != id {
				kept = append(kept, e)
			}
		}
		f.entries = kept
	}
	return nil
}

func (f *Fake) ListEntries(ctx context.Context, scopeID string) ([]domain.TimeEntry, error) {
	if err := f.enter(ctx, "ListEntries", scopeID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TimeEntry, 0, len(f.entries))
	for _, e := range f.entries {
		if e.ScopeID == scopeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) CreateEntry(ctx context.Context, scopeID string, ef domain.EntryFields) error {
	if err := f.enter(ctx, "CreateEntry", ef.TaskID); err != nil {
		return err
	}
	if !ef.End.After(ef.Start) {
		return domain.NewTransport("POST /time-entries", 400, fmt.Errorf("end must be after start"))
	}
	f.AddEntry(domain.TimeEntry{
		TaskID:  ef.TaskID,
		ScopeID: scopeID,
		Start:   ef.Start,
		End:     ef.End,
		Title:   ef.Title,
	})
	return nil
}

func (f *Fake) DeleteEntry(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteEntry", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return domain.NewTransport("DELETE /time-entries/"+id, 404, nil)
}

func (f *Fake) ListSheets(ctx context.Context) ([]domain.Sheet, error) {
	if err := f.enter(ctx, "ListSheets", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Sheet(nil), f.sheets...), nil
}

func (f *Fake) CreateSheet(ctx context.Context, sf domain.SheetFields) (domain.Sheet, error) {
	if err := f.enter(ctx, "CreateSheet", ""); err != nil {
		return domain.Sheet{}, err
	}
	if sf.Name == nil || *sf.Name == "" {
		return domain.Sheet{}, domain.NewTransport("POST /sheets", 400, fmt.Errorf("name is required"))
	}
	now := f.now()
	s := domain.Sheet{CreatedAt: now, UpdatedAt: now}
	applySheetFields(&s, sf)
	f.mu.Lock()
	s.ID = f.nextID("s")
	f.sheets = append(f.sheets, s)
	f.mu.Unlock()
	return s, nil
}

func (f *Fake) UpdateSheet(ctx context.Context, id string, sf domain.SheetFields) error {
	if err := f.enter(ctx, "UpdateSheet", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sheets {
		if f.sheets[i].ID == id {
			applySheetFields(&f.sheets[i], sf)
			f.sheets[i].UpdatedAt = f.now()
			return nil
		}
	}
	return domain.NewTransport("PUT /sheets/"+id, 404, nil)
}

func (f *Fake) DeleteSheet(ctx context.Context, id string) error {
	if err := f.enter(ctx, "DeleteSheet", id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sheets {
		if f.sheets[i].ID == id {
			f.sheets = append(f.sheets[:i], f.sheets[i+1:]...)
			return nil
		}
	}
	return domain.NewTransport("DELETE /sheets/"+id, 404, nil)
}

func (f *Fake) ListProjects(ctx context.Context) ([]domain.Project, error) {
	if err := f.enter(ctx, "ListProjects", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Project(nil), f.projects...), nil
}

// SendReport renders a trivial CSV/PDF pair so callers can exercise attachment handling.
func (f *Fake) SendReport(ctx context.Context, req ReportRequest) (ReportResult, error) {
	if err := f.enter(ctx, "SendReport", req.ScopeID); err != nil {
		return ReportResult{}, err
	}
	if req.ScopeID == "" || !req.Format.Valid() {
		return ReportResult{}, domain.NewTransport("POST /reports/send", 400, fmt.Errorf("invalid report request"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("r")
	res := ReportResult{ID: id, Message: "report sent", DestinationEmail: req.SenderEmail}
	if req.Format == FormatCSV || req.Format == FormatPDFCSV {
		res.CSV = []byte("date,task,hours\n")
	}
	if req.Format == FormatPDF || req.Format == FormatPDFCSV {
		res.PDF = []byte("%PDF-1.4\n%%EOF\n")
	}
	f.reports = append(f.reports, Report{
		ID:               id,
		ScopeID:          req.ScopeID,
		SenderEmail:      req.SenderEmail,
		DestinationEmail: req.SenderEmail,
		PeriodStart:      req.PeriodStart.Format(dateLayout),
		PeriodEnd:        req.PeriodEnd.Format(dateLayout),
		Format:           req.Format,
		CreatedAt:        f.now(),
	})
	return res, nil
}

func (f *Fake) ListReports(ctx context.Context) ([]Report, error) {
	if err := f.enter(ctx, "ListReports", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Report, len(f.reports))
	// newest first, like the history endpoint
	for i, r := range f.reports {
		out[len(f.reports)-1-i] = r
	}
	return out, nil
}

// ---- helpers ----

func (f *Fake) enter(ctx context.Context, method, arg string) error {
	if hook := f.BeforeCall; hook != nil {
		hook(method)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if arg != "" {
		f.calls = append(f.calls, method+" "+arg)
	} else {
		f.calls = append(f.calls, method)
	}
	if err := ctx.Err(); err != nil {
		return domain.NewTransport(method, 0, err)
	}
	if err, ok := f.failNext[method]; ok {
		delete(f.failNext, method)
		return err
	}
	if err, ok := f.failAll[method]; ok {
		return err
	}
	return nil
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return prefix + strconv.Itoa(f.seq)
}

func (f *Fake) taskIndex(id string) int {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func applyTaskFields(t *domain.Task, tf domain.TaskFields) {
	if tf.Title != nil {
		t.Title = *tf.Title
	}
	if tf.Project != nil {
		t.Project = *tf.Project
	}
	if tf.Status != nil {
		t.Status = *tf.Status
	}
	if tf.Billable != nil {
		t.Billable = *tf.Billable
	}
	if tf.DefaultDuration != nil {
		t.DefaultDuration = *tf.DefaultDuration
	}
}

func applySheetFields(s *domain.Sheet, sf domain.SheetFields) {
	if sf.Name != nil {
		s.Name = *sf.Name
	}
	if sf.Description != nil {
		s.Description = *sf.Description
	}
	if sf.Color != nil {
		s.Color = *sf.Color
	}
}
