package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"ontime/internal/domain"
)

// Extended property keys stamped on mirrored events.
const (
	propScope = "ontime_scope"
	propEntry = "ontime_entry"
	propTask  = "ontime_task"
)

// Calendar is the subset of the Calendar API the mirror uses.
type Calendar interface {
	// Mirrored lists events previously created for scopeID.
	Mirrored(ctx context.Context, scopeID string) ([]*calendar.Event, error)
	Insert(ctx context.Context, ev *calendar.Event) (*calendar.Event, error)
	Patch(ctx context.Context, eventID string, ev *calendar.Event) error
	Delete(ctx context.Context, eventID string) error
}

// GoogleCalendar talks to one calendar through the Calendar v3 API.
type GoogleCalendar struct {
	srv        *calendar.Service
	calendarID string
}

func NewGoogleCalendar(srv *calendar.Service, calendarID string) *GoogleCalendar {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleCalendar{srv: srv, calendarID: calendarID}
}

func (g *GoogleCalendar) Mirrored(ctx context.Context, scopeID string) ([]*calendar.Event, error) {
	var out []*calendar.Event
	call := g.srv.Events.List(g.calendarID).
		PrivateExtendedProperty(propScope + "=" + scopeID).
		ShowDeleted(false).
		SingleEvents(true).
		MaxResults(250)
	err := call.Pages(ctx, func(page *calendar.Events) error {
		out = append(out, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list mirrored events: %w", err)
	}
	return out, nil
}

func (g *GoogleCalendar) Insert(ctx context.Context, ev *calendar.Event) (*calendar.Event, error) {
	return g.srv.Events.Insert(g.calendarID, ev).Context(ctx).Do()
}

func (g *GoogleCalendar) Patch(ctx context.Context, eventID string, ev *calendar.Event) error {
	_, err := g.srv.Events.Patch(g.calendarID, eventID, ev).Context(ctx).Do()
	return err
}

func (g *GoogleCalendar) Delete(ctx context.Context, eventID string) error {
	return g.srv.Events.Delete(g.calendarID, eventID).Context(ctx).Do()
}

// Scopes requested for the OAuth token.
var Scopes = []string{calendar.CalendarEventsScope}

// OAuthConfig reads a client secrets file downloaded from the Google console.
func OAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read client secrets %s: %w", credentialsPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	return cfg, nil
}

// AuthURL returns the consent page URL for an offline token.
func AuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeAndSave trades an authorization code for a token and stores it.
func ExchangeAndSave(ctx context.Context, cfg *oauth2.Config, code, tokenPath string) error {
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	return saveToken(tokenPath, tok)
}

// NewService builds a Calendar client from stored credentials. The token must
// already exist; run the auth flow first.
func NewService(ctx context.Context, credentialsPath, tokenPath string) (*calendar.Service, error) {
	cfg, err := OAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}
	tok, err := loadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no calendar token at %s: authorize first", path)
	}
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// EventFor renders an entry as a calendar event.
func EventFor(e domain.TimeEntry) *calendar.Event {
	title := e.Title
	if title == "" {
		title = "Task " + e.TaskID
	}
	return &calendar.Event{
		Summary: title,
		Start:   &calendar.EventDateTime{DateTime: e.Start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: e.End.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				propScope: e.ScopeID,
				propEntry: e.ID,
				propTask:  e.TaskID,
			},
		},
	}
}

func entryIDOf(ev *calendar.Event) string {
	if ev == nil || ev.ExtendedProperties == nil {
		return ""
	}
	return ev.ExtendedProperties.Private[propEntry]
}

// sameSlot reports whether ev already shows e's title and times.
func sameSlot(ev *calendar.Event, e domain.TimeEntry) bool {
	want := EventFor(e)
	if ev.Summary != want.Summary || ev.Start == nil || ev.End == nil {
		return false
	}
	return sameInstant(ev.Start.DateTime, e.Start) && sameInstant(ev.End.DateTime, e.End)
}

func sameInstant(s string, t time.Time) bool {
	got, err := time.Parse(time.RFC3339, s)
	return err == nil && got.Equal(t)
}
