package notifier

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ontime/internal/eventbus"
	"ontime/pkg/logx"
)

type recSender struct {
	mu    sync.Mutex
	texts []string
	fails int
}

func (r *recSender) SendText(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("boom")
	}
	r.texts = append(r.texts, text)
	return nil
}

func (r *recSender) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestNotifyDeliversWithRetryAndDedup(t *testing.T) {
	snd := &recSender{fails: 1}
	s := New(Config{Enabled: true, RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond, DedupWindow: time.Minute}, logx.Nop(), snd)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	n := Notification{Priority: PriorityError, Text: "action failed: schedule t1"}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("duplicate Notify: %v", err)
	}
	waitFor(t, func() bool { return len(snd.got()) == 1 })

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	if got := snd.got(); got[0] != "[!] action failed: schedule t1" {
		t.Fatalf("text = %q", got[0])
	}
	if len(s.Snapshot()) != 1 {
		t.Fatalf("history = %+v", s.Snapshot())
	}
	if err := s.Notify(context.Background(), n); !errors.Is(err, ErrStopped) {
		t.Fatalf("after stop: %v", err)
	}
}

func TestDisabledNotifier(t *testing.T) {
	s := New(Config{}, logx.Nop(), &recSender{})
	s.Start(context.Background())
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestWatchBusTurnsFailuresIntoNotifications(t *testing.T) {
	snd := &recSender{}
	s := New(Config{Enabled: true, RatePerSec: 100}, logx.Nop(), snd)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	bus := eventbus.New()
	s.WatchBus(ctx, bus)
	bus.Publish(eventbus.Event{Type: eventbus.Transition, Data: eventbus.TransitionData{Kind: "schedule", TaskID: "ok"}})
	bus.Publish(eventbus.Event{Type: eventbus.ActionFailed, Data: eventbus.TransitionData{Kind: "unschedule", EntryID: "e7"}})

	waitFor(t, func() bool { return len(snd.got()) == 1 })
	if got := snd.got()[0]; !strings.HasSuffix(got, "action failed: unschedule e7") {
		t.Fatalf("text = %q", got)
	}
}

func TestConsoleSender(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	if err := c.SendText(context.Background(), "hello"); err != nil || buf.String() != "hello\n" {
		t.Fatalf("console: %q %v", buf.String(), err)
	}
}
