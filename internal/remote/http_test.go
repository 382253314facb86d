package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ontime/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func TestListTasksSendsScope(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id header")
		}
		_, _ = w.Write([]byte(`{"rows":[{"id":"t1","title":"A","status":"scheduled","user_id":"s1"}]}`))
	}))

	tasks, err := c.ListTasks(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if gotQuery != "scopeId=s1&userId=s1" {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(tasks) != 1 || tasks[0].Status != domain.StatusScheduled {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestCreateEntryPayload(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/time-entries" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))

	start := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	err := c.CreateEntry(context.Background(), "s1", domain.EntryFields{
		TaskID: "t1", Start: start, End: start.Add(2 * time.Hour), Title: "Write",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if got["taskId"] != "t1" || got["userId"] != "s1" || got["scopeId"] != "s1" {
		t.Fatalf("payload: %v", got)
	}
	if got["start"] != "2024-02-01T10:00:00Z" || got["end"] != "2024-02-01T12:00:00Z" {
		t.Fatalf("times: %v %v", got["start"], got["end"])
	}
}

func TestNon2xxBecomesTransportError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"task is locked"}`))
	}))

	err := c.UpdateTask(context.Background(), "s1", "t1", domain.TaskFields{}.WithStatus(domain.StatusBacklog))
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Status != http.StatusConflict || te.Op != "PUT /tasks/t1" {
		t.Fatalf("unexpected error fields: %+v", te)
	}
	if te.Err == nil || te.Err.Error() != "task is locked" {
		t.Fatalf("remote message lost: %v", te.Err)
	}
}

func TestGetRetriesButWritesDoNot(t *testing.T) {
	var gets, posts atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if gets.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`[]`))
		default:
			posts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}), WithRetries(3, time.Millisecond))

	if _, err := c.ListEntries(context.Background(), "s1"); err != nil {
		t.Fatalf("ListEntries should succeed after retries: %v", err)
	}
	if gets.Load() != 3 {
		t.Fatalf("gets = %d, want 3", gets.Load())
	}
	if err := c.CreateTask(context.Background(), "s1", domain.TaskFields{Title: domain.Ptr("x")}); err == nil {
		t.Fatalf("expected create to fail")
	}
	if posts.Load() != 1 {
		t.Fatalf("posts = %d, want exactly 1", posts.Load())
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var n atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}), WithRetries(3, time.Millisecond))

	if _, err := c.ListProjects(context.Background()); !domain.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if n.Load() != 1 {
		t.Fatalf("400 retried %d times", n.Load())
	}
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://x", "::"} {
		if _, err := NewHTTPClient(u); err == nil {
			t.Fatalf("expected error for %q", u)
		}
	}
}
