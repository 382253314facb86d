package eventbus

import "testing"

func TestSubscribeFiltersByType(t *testing.T) {
	b := New()
	tasks, unsubTasks := b.Subscribe(4, TasksRefreshed)
	defer unsubTasks()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: EntriesRefreshed, Data: Refreshed{ScopeID: "s1", Count: 2}})
	b.Publish(Event{Type: TasksRefreshed, Data: Refreshed{ScopeID: "s1", Count: 3}})

	if got := len(tasks); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	e := <-tasks
	if r, ok := e.Data.(Refreshed); !ok || r.Count != 3 || e.Time.IsZero() {
		t.Fatalf("unexpected event: %+v", e)
	}
	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	b.Publish(Event{Type: ScopeChanged})
	b.Publish(Event{Type: ScopeChanged})
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
	unsub()
	unsub()
	// publishing after unsubscribe must not panic
	b.Publish(Event{Type: ScopeChanged})
}
