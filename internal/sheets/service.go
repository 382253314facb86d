// Package sheets manages scopes (sheets) and which one is active.
//
// The active sheet is the explicit selection when it still exists, otherwise
// the first sheet returned by the remote. Switching the active sheet updates
// the shared store.Scope, resets both stores and reloads them before returning.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ontime/internal/domain"
	"ontime/internal/eventbus"
	"ontime/internal/notifier"
	"ontime/internal/remote"
	"ontime/internal/store"
	"ontime/pkg/logx"
)

// Reloader resets and reloads the collections of the active scope.
type Reloader interface {
	Reset()
	Reload(ctx context.Context)
}

// Notifier receives user-facing failure messages.
type Notifier interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

type Service struct {
	api      remote.SheetAPI
	projects remote.ProjectAPI
	scope    *store.Scope
	reloader Reloader
	bus      eventbus.Bus
	notify   Notifier
	log      logx.Logger

	mu       sync.Mutex
	sheets   []domain.Sheet
	selected string
}

type Deps struct {
	API      remote.SheetAPI
	Projects remote.ProjectAPI
	Scope    *store.Scope
	Reloader Reloader
	// Selected is the initial selection. An unknown id falls back like any
	// stale selection.
	Selected string
	// Bus and Notify are optional.
	Bus    eventbus.Bus
	Notify Notifier
	Log    logx.Logger
}

func New(d Deps) *Service {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		api:      d.API,
		projects: d.Projects,
		scope:    d.Scope,
		reloader: d.Reloader,
		selected: strings.TrimSpace(d.Selected),
		bus:      d.Bus,
		notify:   d.Notify,
		log:      log.With(logx.String("comp", "sheets")),
	}
}

// List fetches the sheets and re-resolves the active one.
func (s *Service) List(ctx context.Context) ([]domain.Sheet, error) {
	sheets, err := s.api.ListSheets(ctx)
	if err != nil {
		s.log.Warn("list sheets failed", logx.Err(err))
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	s.mu.Lock()
	s.sheets = sheets
	s.mu.Unlock()
	s.activate(ctx)
	return sheets, nil
}

// Sheets returns the last listed sheets.
func (s *Service) Sheets() []domain.Sheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Sheet(nil), s.sheets...)
}

// Create adds a sheet and selects it. Failures are also reported to the user.
func (s *Service) Create(ctx context.Context, f domain.SheetFields) (domain.Sheet, error) {
	if f.Name == nil || strings.TrimSpace(*f.Name) == "" {
		return domain.Sheet{}, domain.NewValidation("name", "required")
	}
	created, err := s.api.CreateSheet(ctx, f)
	if err != nil {
		s.failed(ctx, "create sheet", err)
		return domain.Sheet{}, fmt.Errorf("create sheet: %w", err)
	}
	if created.ID != "" {
		s.mu.Lock()
		s.selected = created.ID
		s.mu.Unlock()
	}
	if _, err := s.List(ctx); err != nil {
		return created, err
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, id string, f domain.SheetFields) error {
	if id == "" {
		return domain.NewValidation("id", "required")
	}
	if f.Name != nil && strings.TrimSpace(*f.Name) == "" {
		return domain.NewValidation("name", "must not be empty")
	}
	if err := s.api.UpdateSheet(ctx, id, f); err != nil {
		return fmt.Errorf("update sheet %s: %w", id, err)
	}
	_, err := s.List(ctx)
	return err
}

// Remove deletes a sheet. If it was active, the next resolution falls back to
// the first remaining sheet.
func (s *Service) Remove(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewValidation("id", "required")
	}
	if err := s.api.DeleteSheet(ctx, id); err != nil {
		return fmt.Errorf("delete sheet %s: %w", id, err)
	}
	s.mu.Lock()
	if s.selected == id {
		s.selected = ""
	}
	s.mu.Unlock()
	_, err := s.List(ctx)
	return err
}

// Select makes id the explicit selection; an empty id clears it.
func (s *Service) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	if id != "" && !containsSheet(s.sheets, id) {
		s.mu.Unlock()
		return domain.NewValidation("sheet", "unknown sheet "+id)
	}
	s.selected = id
	s.mu.Unlock()
	s.activate(ctx)
	return nil
}

// Active returns the resolved active sheet id, or "" when there are no sheets.
func (s *Service) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resolve(s.sheets, s.selected)
}

// Projects lists project labels. Failures yield an empty list.
func (s *Service) Projects(ctx context.Context) []domain.Project {
	if s.projects == nil {
		return nil
	}
	ps, err := s.projects.ListProjects(ctx)
	if err != nil {
		s.log.Warn("list projects failed", logx.Err(err))
		return []domain.Project{}
	}
	return ps
}

func (s *Service) activate(ctx context.Context) {
	id := s.Active()
	if !s.scope.Set(id) {
		return
	}
	s.log.Info("active sheet changed", logx.String("sheet", id))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.ScopeChanged, Data: id})
	}
	if s.reloader == nil {
		return
	}
	s.reloader.Reset()
	if id != "" {
		s.reloader.Reload(ctx)
	}
}

func (s *Service) failed(ctx context.Context, action string, err error) {
	if s.notify == nil {
		return
	}
	n := notifier.Notification{Priority: notifier.PriorityError, Text: "action failed: " + action}
	if nerr := s.notify.Notify(ctx, n); nerr != nil && !errors.Is(nerr, notifier.ErrDisabled) {
		s.log.Debug("failure notification not queued", logx.Err(nerr))
	}
}

func resolve(sheets []domain.Sheet, selected string) string {
	if selected != "" && containsSheet(sheets, selected) {
		return selected
	}
	if len(sheets) > 0 {
		return sheets[0].ID
	}
	return ""
}

func containsSheet(sheets []domain.Sheet, id string) bool {
	for _, sh := range sheets {
		if sh.ID == id {
			return true
		}
	}
	return false
}
