package sheets

import (
	"context"
	"sync"
	"testing"

	"ontime/internal/domain"
	"ontime/internal/notifier"
	"ontime/internal/remote"
	"ontime/internal/store"
	"ontime/pkg/logx"
)

type countingReloader struct {
	scope  *store.Scope
	scopes []string
	resets int
}

func (r *countingReloader) Reset()                     { r.resets++ }
func (r *countingReloader) Reload(ctx context.Context) { r.scopes = append(r.scopes, r.scope.Active()) }

type recNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (r *recNotifier) Notify(ctx context.Context, n notifier.Notification) error {
	r.mu.Lock()
	r.texts = append(r.texts, n.Text)
	r.mu.Unlock()
	return nil
}

func newService(t *testing.T) (*remote.Fake, *store.Scope, *countingReloader, *recNotifier, *Service) {
	t.Helper()
	fake := remote.NewFake()
	scope := store.NewScope("")
	rl := &countingReloader{scope: scope}
	nt := &recNotifier{}
	svc := New(Deps{API: fake, Projects: fake, Scope: scope, Reloader: rl, Notify: nt, Log: logx.Nop()})
	return fake, scope, rl, nt, svc
}

func TestActiveFallsBackToFirstSheet(t *testing.T) {
	fake, scope, rl, _, svc := newService(t)
	fake.AddSheet(domain.Sheet{ID: "a", Name: "Alpha"})
	fake.AddSheet(domain.Sheet{ID: "b", Name: "Beta"})

	if _, err := svc.List(context.Background()); err != nil {
		t.Fatalf("List: %v", err)
	}
	if svc.Active() != "a" || scope.Active() != "a" {
		t.Fatalf("active = %q scope = %q", svc.Active(), scope.Active())
	}
	if err := svc.Select(context.Background(), "b"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if scope.Active() != "b" {
		t.Fatalf("scope = %q", scope.Active())
	}
	if len(rl.scopes) != 2 || rl.scopes[1] != "b" {
		t.Fatalf("reloads = %v", rl.scopes)
	}
	if err := svc.Select(context.Background(), "zzz"); !domain.IsValidation(err) {
		t.Fatalf("unknown sheet: %v", err)
	}
}

func TestCreateSelectsNewSheet(t *testing.T) {
	fake, scope, _, _, svc := newService(t)
	fake.AddSheet(domain.Sheet{ID: "a", Name: "Alpha"})
	created, err := svc.Create(context.Background(), domain.SheetFields{Name: domain.Ptr("Gamma")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if scope.Active() != created.ID {
		t.Fatalf("new sheet %q not active, scope = %q", created.ID, scope.Active())
	}
}

func TestCreateFailureNotifiesUser(t *testing.T) {
	fake, _, _, nt, svc := newService(t)
	fake.FailNext("CreateSheet", domain.NewTransport("POST /sheets", 500, nil))
	if _, err := svc.Create(context.Background(), domain.SheetFields{Name: domain.Ptr("x")}); err == nil {
		t.Fatalf("expected error")
	}
	if len(nt.texts) != 1 || nt.texts[0] != "action failed: create sheet" {
		t.Fatalf("notifications = %v", nt.texts)
	}
	if _, err := svc.Create(context.Background(), domain.SheetFields{}); !domain.IsValidation(err) {
		t.Fatalf("empty name: %v", err)
	}
}

func TestRemoveActiveSheetFallsBack(t *testing.T) {
	fake, scope, _, _, svc := newService(t)
	fake.AddSheet(domain.Sheet{ID: "a", Name: "Alpha"})
	fake.AddSheet(domain.Sheet{ID: "b", Name: "Beta"})
	ctx := context.Background()
	_, _ = svc.List(ctx)
	_ = svc.Select(ctx, "b")

	if err := svc.Remove(ctx, "b"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if scope.Active() != "a" {
		t.Fatalf("scope = %q, want a", scope.Active())
	}
	if err := svc.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if scope.Active() != "" {
		t.Fatalf("no sheets left, scope = %q", scope.Active())
	}
}

func TestSwitchResetsBeforeReload(t *testing.T) {
	fake, _, rl, _, svc := newService(t)
	fake.AddSheet(domain.Sheet{ID: "a", Name: "Alpha"})
	fake.AddSheet(domain.Sheet{ID: "b", Name: "Beta"})
	ctx := context.Background()
	_, _ = svc.List(ctx)
	_ = svc.Select(ctx, "b")
	_ = svc.Select(ctx, "b")
	if rl.resets != 2 || len(rl.scopes) != 2 {
		t.Fatalf("resets = %d reloads = %v, want one of each per switch", rl.resets, rl.scopes)
	}

	_ = svc.Remove(ctx, "a")
	_ = svc.Remove(ctx, "b")
	if rl.resets != 3 {
		t.Fatalf("dropping the last sheet must still reset, resets = %d", rl.resets)
	}
	if len(rl.scopes) != 2 {
		t.Fatalf("no reload expected without a scope, reloads = %v", rl.scopes)
	}
}

func TestProjectsFailSoft(t *testing.T) {
	fake, _, _, _, svc := newService(t)
	fake.AddProject(domain.Project{ID: "p1", Label: "Internal"})
	if ps := svc.Projects(context.Background()); len(ps) != 1 || ps[0].Label != "Internal" {
		t.Fatalf("projects = %+v", ps)
	}
	fake.FailNext("ListProjects", domain.NewTransport("GET /projects", 0, context.DeadlineExceeded))
	if ps := svc.Projects(context.Background()); ps == nil || len(ps) != 0 {
		t.Fatalf("expected empty list, got %+v", ps)
	}
}
