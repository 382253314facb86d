// Package reports sends timesheet reports for the active sheet and saves the
// returned attachments locally.
package reports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ontime/internal/domain"
	"ontime/internal/notifier"
	"ontime/internal/remote"
	"ontime/internal/store"
	"ontime/pkg/logx"
)

type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

type Deps struct {
	API   remote.ReportAPI
	Scope *store.Scope
	// OutputDir receives timesheet-<id>.pdf/.csv. Empty disables saving.
	OutputDir string
	Notify    Notifier
	Log       logx.Logger
}

type Service struct {
	api    remote.ReportAPI
	scope  *store.Scope
	outDir string
	notify Notifier
	log    logx.Logger

	mu      sync.Mutex
	history []remote.Report
}

// Request is what the caller fills in; the scope comes from the active sheet.
type Request struct {
	SenderEmail string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Format      remote.ReportFormat
}

// Sent describes a delivered report and the files written for it.
type Sent struct {
	Result remote.ReportResult
	Files  []string
}

func New(d Deps) *Service {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		api:    d.API,
		scope:  d.Scope,
		outDir: d.OutputDir,
		notify: d.Notify,
		log:    log.With(logx.String("comp", "reports")),
	}
}

func (s *Service) Send(ctx context.Context, req Request) (Sent, error) {
	scopeID := s.scope.Active()
	if scopeID == "" {
		return Sent{}, domain.NewMissingScope("send report")
	}
	if err := validate(req); err != nil {
		return Sent{}, err
	}

	res, err := s.api.SendReport(ctx, remote.ReportRequest{
		ScopeID:     scopeID,
		SenderEmail: strings.TrimSpace(req.SenderEmail),
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Format:      req.Format,
	})
	if err != nil {
		s.log.Warn("send report failed", logx.String("scope", scopeID), logx.Err(err))
		s.failed(ctx)
		return Sent{}, fmt.Errorf("send report: %w", err)
	}

	out := Sent{Result: res}
	files, err := s.save(res)
	out.Files = files
	if err != nil {
		return out, err
	}
	s.log.Info("report sent",
		logx.String("id", res.ID),
		logx.String("to", res.DestinationEmail),
		logx.Int("files", len(files)),
	)
	s.History(ctx)
	return out, nil
}

// History reloads the sent-report list. Failures yield an empty list.
func (s *Service) History(ctx context.Context) []remote.Report {
	rs, err := s.api.ListReports(ctx)
	if err != nil {
		s.log.Warn("list reports failed", logx.Err(err))
		return []remote.Report{}
	}
	s.mu.Lock()
	s.history = rs
	s.mu.Unlock()
	return rs
}

// Cached returns the last loaded history without a remote call.
func (s *Service) Cached() []remote.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Report(nil), s.history...)
}

func (s *Service) save(res remote.ReportResult) ([]string, error) {
	if s.outDir == "" || (len(res.PDF) == 0 && len(res.CSV) == 0) {
		return nil, nil
	}
	if res.ID == "" {
		return nil, errors.New("report result has no id")
	}
	if err := os.MkdirAll(s.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	var files []string
	for _, f := range []struct {
		ext  string
		data []byte
	}{{"pdf", res.PDF}, {"csv", res.CSV}} {
		if len(f.data) == 0 {
			continue
		}
		path := filepath.Join(s.outDir, FileName(res.ID, f.ext))
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return files, fmt.Errorf("write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func (s *Service) failed(ctx context.Context) {
	if s.notify == nil {
		return
	}
	n := notifier.Notification{Priority: notifier.PriorityError, Text: "action failed: send report"}
	if err := s.notify.Notify(ctx, n); err != nil && !errors.Is(err, notifier.ErrDisabled) {
		s.log.Debug("failure notification not queued", logx.Err(err))
	}
}

// FileName is the local name of a saved attachment.
func FileName(id, ext string) string {
	return "timesheet-" + id + "." + ext
}

func validate(req Request) error {
	if !req.Format.Valid() {
		return domain.NewValidation("format", fmt.Sprintf("unsupported format %q", req.Format))
	}
	if strings.TrimSpace(req.SenderEmail) == "" {
		return domain.NewValidation("sender_email", "required")
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
		return domain.NewValidation("period", "start and end are required")
	}
	if req.PeriodEnd.Before(req.PeriodStart) {
		return domain.NewValidation("period", "end before start")
	}
	return nil
}
