// Package remote is the request/response boundary to the task/entry store.
//
// Contract:
//   - Every call takes a context and returns *domain.TransportError on failure.
//   - Scope-bound calls take the scope explicitly; the client holds no scope state.
//   - Wire shapes (snake_case or camelCase, bare array or {rows}) are normalized
//     in wire.go and nowhere else.
package remote

import (
	"context"
	"time"

	"ontime/internal/domain"
)

type TaskAPI interface {
	ListTasks(ctx context.Context, scopeID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, scopeID string, f domain.TaskFields) error
	UpdateTask(ctx context.Context, scopeID, id string, f domain.TaskFields) error
	DeleteTask(ctx context.Context, id string) error
}

type EntryAPI interface {
	ListEntries(ctx context.Context, scopeID string) ([]domain.TimeEntry, error)
	CreateEntry(ctx context.Context, scopeID string, f domain.EntryFields) error
	DeleteEntry(ctx context.Context, id string) error
}

type SheetAPI interface {
	ListSheets(ctx context.Context) ([]domain.Sheet, error)
	CreateSheet(ctx context.Context, f domain.SheetFields) (domain.Sheet, error)
	UpdateSheet(ctx context.Context, id string, f domain.SheetFields) error
	DeleteSheet(ctx context.Context, id string) error
}

type ProjectAPI interface {
	ListProjects(ctx context.Context) ([]domain.Project, error)
}

type ReportAPI interface {
	SendReport(ctx context.Context, req ReportRequest) (ReportResult, error)
	ListReports(ctx context.Context) ([]Report, error)
}

// Client is the full remote surface.
type Client interface {
	TaskAPI
	EntryAPI
	SheetAPI
	ProjectAPI
	ReportAPI
}

type ReportFormat string

const (
	FormatCSV    ReportFormat = "csv"
	FormatPDF    ReportFormat = "pdf"
	FormatPDFCSV ReportFormat = "pdf+csv"
)

func (f ReportFormat) Valid() bool {
	return f == FormatCSV || f == FormatPDF || f == FormatPDFCSV
}

// ReportRequest asks the remote to render and mail a timesheet for one scope.
// Period bounds are sent as calendar dates.
type ReportRequest struct {
	ScopeID     string
	SenderEmail string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Format      ReportFormat
}

// ReportResult carries the decoded attachments of a sent report.
type ReportResult struct {
	ID               string
	Message          string
	DestinationEmail string
	CSV              []byte
	PDF              []byte
}

// Report is one row of the sent-report history.
type Report struct {
	ID               string
	ScopeID          string
	SenderEmail      string
	DestinationEmail string
	PeriodStart      string
	PeriodEnd        string
	Format           ReportFormat
	CreatedAt        time.Time
}
