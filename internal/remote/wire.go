package remote

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ontime/internal/domain"
	"ontime/internal/duration"
)

// This file is the only place that knows remote field names. Remote rows may use
// snake_case or camelCase for the same logical field; each *Wire struct carries
// both spellings and its domain() method picks the first non-empty one.

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = flexString(n.String())
	return nil
}

func first[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}

// Layouts accepted for remote timestamps. Zone-less values are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime parses a remote timestamp. Empty input yields the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTime renders t the way the remote expects it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

const dateLayout = "2006-01-02"

// decodeRows unwraps a list body: either a bare array or {rows: [...]}.
// Any other shape decodes as an empty list.
func decodeRows(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var env struct {
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	return env.Rows, nil
}

// ---- tasks ----

type taskWire struct {
	ID                   flexString `json:"id"`
	Title                string     `json:"title"`
	Project              flexString `json:"project"`
	Status               string     `json:"status"`
	Billable             *bool      `json:"billable"`
	DefaultDuration      string     `json:"defaultDuration"`
	DefaultDurationSnake string     `json:"default_duration"`
	ScopeID              flexString `json:"scopeId"`
	ScopeIDSnake         flexString `json:"scope_id"`
	UserID               flexString `json:"userId"`
	UserIDSnake          flexString `json:"user_id"`
}

func (w taskWire) domain() domain.Task {
	t := domain.Task{
		ID:              string(w.ID),
		Title:           w.Title,
		Project:         string(w.Project),
		Status:          domain.Status(strings.TrimSpace(w.Status)),
		Billable:        true,
		DefaultDuration: strings.TrimSpace(first(w.DefaultDuration, w.DefaultDurationSnake)),
		ScopeID:         string(first(w.ScopeID, w.ScopeIDSnake, w.UserID, w.UserIDSnake)),
	}
	if w.Billable != nil {
		t.Billable = *w.Billable
	}
	if t.Status == "" {
		t.Status = domain.StatusBacklog
	}
	if t.DefaultDuration == "" {
		t.DefaultDuration = duration.DefaultTaskLabel
	}
	return t
}

// DecodeTasks normalizes a task list body. Rows that fail to decode or carry no id
// are skipped and counted.
func DecodeTasks(body []byte) (tasks []domain.Task, skipped int, err error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, 0, err
	}
	tasks = make([]domain.Task, 0, len(rows))
	for _, raw := range rows {
		var w taskWire
		if err := json.Unmarshal(raw, &w); err != nil || w.ID == "" {
			skipped++
			continue
		}
		tasks = append(tasks, w.domain())
	}
	return tasks, skipped, nil
}

func encodeTask(scopeID string, f domain.TaskFields) map[string]any {
	m := map[string]any{
		"scopeId": scopeID,
		"userId":  scopeID,
	}
	if f.Title != nil {
		m["title"] = *f.Title
	}
	if f.Project != nil {
		m["project"] = *f.Project
	}
	if f.Status != nil {
		m["status"] = string(*f.Status)
	}
	if f.Billable != nil {
		m["billable"] = *f.Billable
	}
	if f.DefaultDuration != nil {
		m["defaultDuration"] = *f.DefaultDuration
	}
	return m
}

// ---- time entries ----

type entryWire struct {
	ID             flexString `json:"id"`
	TaskID         flexString `json:"taskId"`
	TaskIDSnake    flexString `json:"task_id"`
	ScopeID        flexString `json:"scopeId"`
	ScopeIDSnake   flexString `json:"scope_id"`
	UserID         flexString `json:"userId"`
	UserIDSnake    flexString `json:"user_id"`
	Start          string     `json:"start"`
	End            string     `json:"end"`
	TaskTitleSnake string     `json:"task_title"`
	TaskTitle      string     `json:"taskTitle"`
	Title          string     `json:"title"`
}

func (w entryWire) domain() (domain.TimeEntry, error) {
	start, err := ParseTime(w.Start)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	end, err := ParseTime(w.End)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return domain.TimeEntry{}, fmt.Errorf("entry %s: end %s not after start %s", w.ID, w.End, w.Start)
	}
	return domain.TimeEntry{
		ID:      string(w.ID),
		TaskID:  string(first(w.TaskID, w.TaskIDSnake)),
		ScopeID: string(first(w.ScopeID, w.ScopeIDSnake, w.UserID, w.UserIDSnake)),
		Start:   start,
		End:     end,
		Title:   first(w.TaskTitleSnake, w.TaskTitle, w.Title),
	}, nil
}

// DecodeEntries normalizes a time-entry list body. Rows that fail to decode,
// carry no id, or have end <= start are skipped and counted.
func DecodeEntries(body []byte) (entries []domain.TimeEntry, skipped int, err error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, 0, err
	}
	entries = make([]domain.TimeEntry, 0, len(rows))
	for _, raw := range rows {
		var w entryWire
		if err := json.Unmarshal(raw, &w); err != nil || w.ID == "" {
			skipped++
			continue
		}
		e, err := w.domain()
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

func encodeEntry(scopeID string, f domain.EntryFields) map[string]any {
	return map[string]any{
		"taskId":  f.TaskID,
		"scopeId": scopeID,
		"userId":  scopeID,
		"start":   FormatTime(f.Start),
		"end":     FormatTime(f.End),
		"title":   f.Title,
	}
}

// ---- sheets / projects ----

type sheetWire struct {
	ID             flexString `json:"id"`
	Name           string     `json:"name"`
	Description    *string    `json:"description"`
	Color          *string    `json:"color"`
	CreatedAtSnake string     `json:"created_at"`
	CreatedAt      string     `json:"createdAt"`
	UpdatedAtSnake string     `json:"updated_at"`
	UpdatedAt      string     `json:"updatedAt"`
}

func (w sheetWire) domain() domain.Sheet {
	s := domain.Sheet{ID: string(w.ID), Name: w.Name}
	if w.Description != nil {
		s.Description = *w.Description
	}
	if w.Color != nil {
		s.Color = *w.Color
	}
	s.CreatedAt, _ = ParseTime(first(w.CreatedAtSnake, w.CreatedAt))
	s.UpdatedAt, _ = ParseTime(first(w.UpdatedAtSnake, w.UpdatedAt))
	return s
}

// DecodeSheets normalizes a sheet list body.
func DecodeSheets(body []byte) ([]domain.Sheet, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Sheet, 0, len(rows))
	for _, raw := range rows {
		var w sheetWire
		if err := json.Unmarshal(raw, &w); err != nil || w.ID == "" {
			continue
		}
		out = append(out, w.domain())
	}
	return out, nil
}

func decodeSheet(body []byte) (domain.Sheet, error) {
	var w sheetWire
	if err := json.Unmarshal(body, &w); err != nil {
		return domain.Sheet{}, err
	}
	return w.domain(), nil
}

func encodeSheet(f domain.SheetFields) map[string]any {
	m := map[string]any{}
	if f.Name != nil {
		m["name"] = *f.Name
	}
	if f.Description != nil {
		m["description"] = *f.Description
	}
	if f.Color != nil {
		m["color"] = *f.Color
	}
	return m
}

type projectWire struct {
	ID    flexString `json:"id"`
	Label string     `json:"label"`
	Name  string     `json:"name"`
}

// DecodeProjects normalizes a project list body.
func DecodeProjects(body []byte) ([]domain.Project, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(rows))
	for _, raw := range rows {
		var w projectWire
		if err := json.Unmarshal(raw, &w); err != nil || w.ID == "" {
			continue
		}
		out = append(out, domain.Project{ID: string(w.ID), Label: first(w.Label, w.Name, string(w.ID))})
	}
	return out, nil
}

// ---- reports ----

func encodeReport(req ReportRequest) map[string]any {
	return map[string]any{
		"userId":      req.ScopeID,
		"scopeId":     req.ScopeID,
		"senderEmail": req.SenderEmail,
		"periodStart": req.PeriodStart.Format(dateLayout),
		"periodEnd":   req.PeriodEnd.Format(dateLayout),
		"format":      string(req.Format),
	}
}

type reportResultWire struct {
	ID                    flexString `json:"id"`
	Message               string     `json:"message"`
	DestinationEmail      string     `json:"destinationEmail"`
	DestinationEmailSnake string     `json:"destination_email"`
	Files                 struct {
		CSVBase64      *string `json:"csvBase64"`
		CSVBase64Snake *string `json:"csv_base64"`
		PDFBase64      *string `json:"pdfBase64"`
		PDFBase64Snake *string `json:"pdf_base64"`
	} `json:"files"`
}

func decodeReportResult(body []byte) (ReportResult, error) {
	var w reportResultWire
	if err := json.Unmarshal(body, &w); err != nil {
		return ReportResult{}, err
	}
	res := ReportResult{
		ID:               string(w.ID),
		Message:          w.Message,
		DestinationEmail: first(w.DestinationEmail, w.DestinationEmailSnake),
	}
	var err error
	if res.CSV, err = decodeBase64(w.Files.CSVBase64, w.Files.CSVBase64Snake); err != nil {
		return ReportResult{}, fmt.Errorf("csv attachment: %w", err)
	}
	if res.PDF, err = decodeBase64(w.Files.PDFBase64, w.Files.PDFBase64Snake); err != nil {
		return ReportResult{}, fmt.Errorf("pdf attachment: %w", err)
	}
	return res, nil
}

func decodeBase64(vals ...*string) ([]byte, error) {
	for _, v := range vals {
		if v == nil || strings.TrimSpace(*v) == "" {
			continue
		}
		return base64.StdEncoding.DecodeString(strings.TrimSpace(*v))
	}
	return nil, nil
}

type reportWire struct {
	ID                    flexString `json:"id"`
	UserIDSnake           flexString `json:"user_id"`
	UserID                flexString `json:"userId"`
	SenderEmailSnake      string     `json:"sender_email"`
	SenderEmail           string     `json:"senderEmail"`
	DestinationEmailSnake string     `json:"destination_email"`
	DestinationEmail      string     `json:"destinationEmail"`
	PeriodStartSnake      string     `json:"period_start"`
	PeriodStart           string     `json:"periodStart"`
	PeriodEndSnake        string     `json:"period_end"`
	PeriodEnd             string     `json:"periodEnd"`
	Format                string     `json:"format"`
	CreatedAtSnake        string     `json:"created_at"`
	CreatedAt             string     `json:"createdAt"`
}

// DecodeReports normalizes the report history body.
func DecodeReports(body []byte) ([]Report, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0, len(rows))
	for _, raw := range rows {
		var w reportWire
		if err := json.Unmarshal(raw, &w); err != nil || w.ID == "" {
			continue
		}
		created, _ := ParseTime(first(w.CreatedAtSnake, w.CreatedAt))
		out = append(out, Report{
			ID:               string(w.ID),
			ScopeID:          string(first(w.UserIDSnake, w.UserID)),
			SenderEmail:      first(w.SenderEmailSnake, w.SenderEmail),
			DestinationEmail: first(w.DestinationEmailSnake, w.DestinationEmail),
			PeriodStart:      first(w.PeriodStartSnake, w.PeriodStart),
			PeriodEnd:        first(w.PeriodEndSnake, w.PeriodEnd),
			Format:           ReportFormat(w.Format),
			CreatedAt:        created,
		})
	}
	return out, nil
}

func idPath(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}
