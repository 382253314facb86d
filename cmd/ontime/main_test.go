package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ontime/internal/devserver"
	"ontime/internal/domain"
	"ontime/internal/remote"
	"ontime/pkg/logx"
)

type harness struct {
	fake *remote.Fake
	cfg  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := remote.NewFake()
	srv := httptest.NewServer(devserver.New(fake, logx.Nop()).Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	body := fmt.Sprintf(`{
  "api": {"base_url": %q, "retry_max": 0},
  "logging": {"level": "error", "console": false},
  "storage": {"driver": "diskv", "path": %q},
  "reconcile": {"enabled": false},
  "notifier": {"enabled": false},
  "reports": {"output_dir": %q, "sender_email": "me@example.com"}
}`, srv.URL, filepath.Join(dir, "journal"), dir)
	cfg := filepath.Join(dir, "ontime.json")
	if err := os.WriteFile(cfg, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &harness{fake: fake, cfg: cfg}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := h.run(t, append([]string{"--json"}, args...)...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("%s: decode %q: %v", strings.Join(args, " "), out, err)
	}
}

func TestSheetsListMarksActive(t *testing.T) {
	h := newHarness(t)
	h.fake.AddSheet(domain.Sheet{ID: "s1", Name: "Work"})
	h.fake.AddSheet(domain.Sheet{ID: "s2", Name: "Home"})

	var got []sheetView
	h.runJSON(t, &got, "--sheet", "s2", "sheets", "list")
	if len(got) != 2 {
		t.Fatalf("sheets = %+v", got)
	}
	if got[0].Active || !got[1].Active {
		t.Fatalf("active flags = %+v", got)
	}
}

func TestScheduleThenHours(t *testing.T) {
	h := newHarness(t)
	h.fake.AddSheet(domain.Sheet{ID: "s1", Name: "Work"})
	h.fake.AddTask(domain.Task{ID: "t1", Title: "Review", ScopeID: "s1", DefaultDuration: "30m", Billable: true})

	var done map[string]any
	h.runJSON(t, &done, "schedule", "t1", "--at", "2026-10-19T12:00:00Z")
	if done["ok"] != true || done["entry_id"] == "" {
		t.Fatalf("schedule = %+v", done)
	}
	if tk, _ := h.fake.Task("t1"); tk.Status != domain.StatusScheduled {
		t.Fatalf("remote status = %q", tk.Status)
	}

	var hv hoursView
	h.runJSON(t, &hv, "hours", "--from", "2026-10-19", "--to", "2026-10-19")
	if hv.Total != 0.5 || len(hv.Rows) != 1 || hv.Rows[0].Key != "2026-10-19" {
		t.Fatalf("hours = %+v", hv)
	}

	var backlog []taskView
	h.runJSON(t, &backlog, "tasks", "list", "--backlog")
	if len(backlog) != 0 {
		t.Fatalf("backlog = %+v", backlog)
	}
}

func TestUnscheduleReturnsTaskToBacklog(t *testing.T) {
	h := newHarness(t)
	h.fake.AddSheet(domain.Sheet{ID: "s1", Name: "Work"})
	h.fake.AddTask(domain.Task{ID: "t1", Title: "Review", ScopeID: "s1", Status: domain.StatusScheduled})
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	h.fake.AddEntry(domain.TimeEntry{ID: "e1", TaskID: "t1", ScopeID: "s1", Start: start, End: start.Add(time.Hour)})

	var done map[string]any
	h.runJSON(t, &done, "unschedule", "e1")
	if done["moved"] != true {
		t.Fatalf("unschedule = %+v", done)
	}
	if tk, _ := h.fake.Task("t1"); tk.Status != domain.StatusBacklog {
		t.Fatalf("remote status = %q", tk.Status)
	}
	if len(h.fake.Entries()) != 0 {
		t.Fatalf("entries left = %+v", h.fake.Entries())
	}
}

func TestTasksAddRejectsUnknownDuration(t *testing.T) {
	h := newHarness(t)
	h.fake.AddSheet(domain.Sheet{ID: "s1", Name: "Work"})
	if _, err := h.run(t, "tasks", "add", "Write docs", "--duration", "90m"); err == nil {
		t.Fatalf("unknown duration accepted")
	}
}

func TestCheckReportsMissingEntry(t *testing.T) {
	h := newHarness(t)
	h.fake.AddSheet(domain.Sheet{ID: "s1", Name: "Work"})
	h.fake.AddTask(domain.Task{ID: "t1", Title: "Orphan", ScopeID: "s1", Status: domain.StatusScheduled})

	out, err := h.run(t, "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "t1") {
		t.Fatalf("check output = %q", out)
	}
}

func TestPeriodDefaultsToCurrentWeek(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 0, 0, 0, time.Local) // Saturday
	start, end, err := period("", "", now)
	if err != nil {
		t.Fatalf("period: %v", err)
	}
	if start.Weekday() != time.Monday || !end.Equal(start.AddDate(0, 0, 7)) {
		t.Fatalf("period = %v .. %v", start, end)
	}
}

func TestParseWhen(t *testing.T) {
	got, err := parseWhen("2026-10-19 09:30")
	if err != nil {
		t.Fatalf("parseWhen: %v", err)
	}
	if got.Hour() != 9 || got.Minute() != 30 || got.Location() != time.Local {
		t.Fatalf("parseWhen = %v", got)
	}
	if _, err := parseWhen("tomorrow"); err == nil {
		t.Fatalf("garbage accepted")
	}
}
