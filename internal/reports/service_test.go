package reports

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ontime/internal/domain"
	"ontime/internal/notifier"
	"ontime/internal/remote"
	"ontime/internal/store"
	"ontime/pkg/logx"
)

type recNotifier struct{ texts []string }

func (r *recNotifier) Notify(ctx context.Context, n notifier.Notification) error {
	r.texts = append(r.texts, n.Text)
	return nil
}

func week() (time.Time, time.Time) {
	start := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 6)
}

func TestSendWritesAttachments(t *testing.T) {
	dir := t.TempDir()
	fake := remote.NewFake()
	svc := New(Deps{API: fake, Scope: store.NewScope("s1"), OutputDir: dir, Log: logx.Nop()})
	from, to := week()

	sent, err := svc.Send(context.Background(), Request{SenderEmail: "me@example.com", PeriodStart: from, PeriodEnd: to, Format: remote.FormatPDFCSV})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sent.Files) != 2 {
		t.Fatalf("files = %v", sent.Files)
	}
	for _, ext := range []string{"pdf", "csv"} {
		p := filepath.Join(dir, FileName(sent.Result.ID, ext))
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
	if h := svc.Cached(); len(h) != 1 || h[0].PeriodStart != "2026-10-12" || h[0].ScopeID != "s1" {
		t.Fatalf("history = %+v", h)
	}
}

func TestSendCSVOnly(t *testing.T) {
	dir := t.TempDir()
	svc := New(Deps{API: remote.NewFake(), Scope: store.NewScope("s1"), OutputDir: dir})
	from, to := week()
	sent, err := svc.Send(context.Background(), Request{SenderEmail: "me@example.com", PeriodStart: from, PeriodEnd: to, Format: remote.FormatCSV})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sent.Files) != 1 || filepath.Ext(sent.Files[0]) != ".csv" {
		t.Fatalf("files = %v", sent.Files)
	}
}

func TestSendValidation(t *testing.T) {
	fake := remote.NewFake()
	from, to := week()
	cases := []struct {
		name  string
		scope string
		req   Request
		check func(error) bool
	}{
		{"no scope", "", Request{SenderEmail: "a@b", PeriodStart: from, PeriodEnd: to, Format: remote.FormatCSV}, domain.IsMissingScope},
		{"bad format", "s1", Request{SenderEmail: "a@b", PeriodStart: from, PeriodEnd: to, Format: "xls"}, domain.IsValidation},
		{"no sender", "s1", Request{PeriodStart: from, PeriodEnd: to, Format: remote.FormatCSV}, domain.IsValidation},
		{"reversed", "s1", Request{SenderEmail: "a@b", PeriodStart: to, PeriodEnd: from, Format: remote.FormatCSV}, domain.IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(Deps{API: fake, Scope: store.NewScope(tc.scope)})
			if _, err := svc.Send(context.Background(), tc.req); !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
	if calls := fake.Calls(); len(calls) != 0 {
		t.Fatalf("invalid requests reached the remote: %v", calls)
	}
}

func TestSendFailureNotifies(t *testing.T) {
	fake := remote.NewFake()
	fake.FailNext("SendReport", domain.NewTransport("POST /reports/send", 502, nil))
	nt := &recNotifier{}
	svc := New(Deps{API: fake, Scope: store.NewScope("s1"), Notify: nt})
	from, to := week()
	_, err := svc.Send(context.Background(), Request{SenderEmail: "a@b", PeriodStart: from, PeriodEnd: to, Format: remote.FormatPDF})
	if !domain.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(nt.texts) != 1 || nt.texts[0] != "action failed: send report" {
		t.Fatalf("notifications = %v", nt.texts)
	}
}

func TestHistoryFailSoft(t *testing.T) {
	fake := remote.NewFake()
	fake.FailNext("ListReports", domain.NewTransport("GET /reports", 500, nil))
	svc := New(Deps{API: fake, Scope: store.NewScope("s1")})
	if h := svc.History(context.Background()); h == nil || len(h) != 0 {
		t.Fatalf("history = %+v", h)
	}
}
