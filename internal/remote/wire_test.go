package remote

import (
	"encoding/base64"
	"testing"
	"time"

	"ontime/internal/domain"
)

func TestDecodeTasksAcceptsBothEnvelopes(t *testing.T) {
	bare := []byte(`[{"id":1,"title":"A","default_duration":"2h","user_id":"s1"}]`)
	rows := []byte(`{"rows":[{"id":"1","title":"A","defaultDuration":"2h","scopeId":"s1"}]}`)

	a, _, err := DecodeTasks(bare)
	if err != nil {
		t.Fatalf("bare: %v", err)
	}
	b, _, err := DecodeTasks(rows)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected one task each, got %d and %d", len(a), len(b))
	}
	if a[0] != b[0] {
		t.Fatalf("envelopes decoded differently:\n%+v\n%+v", a[0], b[0])
	}
	if a[0].ID != "1" || a[0].ScopeID != "s1" || a[0].DefaultDuration != "2h" {
		t.Fatalf("unexpected task: %+v", a[0])
	}
}

func TestDecodeTasksDefaults(t *testing.T) {
	tasks, skipped, err := DecodeTasks([]byte(`[{"id":"t1","title":"x"},{"title":"no id"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	got := tasks[0]
	if got.Status != domain.StatusBacklog {
		t.Fatalf("status = %q, want backlog", got.Status)
	}
	if got.DefaultDuration != "8h" {
		t.Fatalf("duration = %q, want 8h", got.DefaultDuration)
	}
	if !got.Billable {
		t.Fatalf("billable should default to true")
	}
}

func TestDecodeUnknownShapeIsEmpty(t *testing.T) {
	for _, body := range []string{``, `null`, `{}`, `{"data":[1]}`} {
		tasks, _, err := DecodeTasks([]byte(body))
		if err != nil {
			t.Fatalf("%q: %v", body, err)
		}
		if len(tasks) != 0 {
			t.Fatalf("%q: expected empty, got %d", body, len(tasks))
		}
	}
	if _, _, err := DecodeTasks([]byte(`[{`)); err == nil {
		t.Fatalf("expected error for truncated body")
	}
}

func TestDecodeEntriesAliases(t *testing.T) {
	body := []byte(`{"rows":[
		{"id":"e1","task_id":"t1","user_id":"s1","start":"2024-02-01T10:00","end":"2024-02-01T12:00","task_title":"Write"},
		{"id":"e2","taskId":"t2","scopeId":"s1","start":"2024-02-01T10:00:00Z","end":"2024-02-01T11:00:00Z","taskTitle":"Read"},
		{"id":"e3","taskId":"t3","start":"2024-02-01T12:00","end":"2024-02-01T11:00"}
	]}`)
	entries, skipped, err := DecodeEntries(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("inverted entry should be skipped, skipped=%d", skipped)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].TaskID != "t1" || entries[0].Title != "Write" || entries[0].ScopeID != "s1" {
		t.Fatalf("snake entry: %+v", entries[0])
	}
	if entries[1].TaskID != "t2" || entries[1].Title != "Read" {
		t.Fatalf("camel entry: %+v", entries[1])
	}
	if d := entries[0].Duration(); d != 2*time.Hour {
		t.Fatalf("duration = %v", d)
	}
}

func TestEncodeTaskCarriesScopeUnderBothNames(t *testing.T) {
	m := encodeTask("s1", domain.TaskFields{}.WithStatus(domain.StatusScheduled))
	if m["scopeId"] != "s1" || m["userId"] != "s1" {
		t.Fatalf("scope missing: %v", m)
	}
	if m["status"] != "scheduled" {
		t.Fatalf("status = %v", m["status"])
	}
	if _, ok := m["title"]; ok {
		t.Fatalf("nil fields must be omitted: %v", m)
	}
}

func TestDecodeReportResult(t *testing.T) {
	csv := base64.StdEncoding.EncodeToString([]byte("a,b\n"))
	body := []byte(`{"id":42,"destinationEmail":"boss@example.com","files":{"csvBase64":"` + csv + `"}}`)
	res, err := decodeReportResult(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ID != "42" || res.DestinationEmail != "boss@example.com" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if string(res.CSV) != "a,b\n" || res.PDF != nil {
		t.Fatalf("attachments: csv=%q pdf=%v", res.CSV, res.PDF)
	}
	if _, err := decodeReportResult([]byte(`{"files":{"pdfBase64":"!!"}}`)); err == nil {
		t.Fatalf("expected base64 error")
	}
}

func TestEncodeReportDates(t *testing.T) {
	req := ReportRequest{
		ScopeID:     "s1",
		PeriodStart: time.Date(2024, 2, 1, 15, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		Format:      FormatPDFCSV,
	}
	m := encodeReport(req)
	if m["periodStart"] != "2024-02-01" || m["periodEnd"] != "2024-02-29" {
		t.Fatalf("dates: %v %v", m["periodStart"], m["periodEnd"])
	}
	if m["userId"] != "s1" || m["format"] != "pdf+csv" {
		t.Fatalf("payload: %v", m)
	}
}

func TestDecodeProjectsLabelFallback(t *testing.T) {
	ps, err := DecodeProjects([]byte(`[{"id":"p1","label":"Alpha"},{"id":"p2","name":"Beta"},{"id":"p3"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"Alpha", "Beta", "p3"}
	for i, p := range ps {
		if p.Label != want[i] {
			t.Fatalf("project %d label = %q, want %q", i, p.Label, want[i])
		}
	}
}
