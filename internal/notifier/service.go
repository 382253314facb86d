package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ontime/internal/eventbus"
	"ontime/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	senders []Sender
	cfg     Config
	limiter *rate.Limiter

	queue chan Notification
	done  chan struct{}

	dmu   sync.Mutex
	dedup map[uint64]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, senders ...Sender) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log.With(logx.String("comp", "notifier")),
		dedup: map[uint64]time.Time{},
	}
	for _, snd := range senders {
		if snd != nil {
			s.senders = append(s.senders, snd)
		}
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config live. The queue keeps its size until the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(cfg)
}

// Start launches the worker. It is a no-op when disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled || len(s.senders) == 0 {
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.done = make(chan struct{})
	go s.worker(ctx, s.queue, s.done)
}

// Stop closes intake and waits for the queue to drain or ctx to expire.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, done := s.queue, s.done
	s.queue = nil
	s.mu.Unlock()
	if q == nil {
		return
	}
	close(q)
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Notify queues n. Duplicates within the dedup window are dropped silently.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if s.queue == nil {
		return ErrStopped
	}
	if s.cfg.DedupWindow > 0 && !s.dedupAllow(n, s.cfg.DedupWindow) {
		return nil
	}
	select {
	case s.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// WatchBus notifies on every action.failed event until ctx is done.
func (s *Service) WatchBus(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(32, eventbus.ActionFailed)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				d, _ := e.Data.(eventbus.TransitionData)
				if err := s.Notify(ctx, Notification{Priority: PriorityError, Text: FailureText(d)}); err != nil && !errors.Is(err, ErrDisabled) {
					s.log.Debug("failure notification not queued", logx.Err(err))
				}
			}
		}
	}()
}

// FailureText renders a transition failure for the user.
func FailureText(d eventbus.TransitionData) string {
	subject := d.TaskID
	if subject == "" {
		subject = d.EntryID
	}
	if subject == "" {
		return fmt.Sprintf("action failed: %s", d.Kind)
	}
	return fmt.Sprintf("action failed: %s %s", d.Kind, subject)
}

func (s *Service) worker(ctx context.Context, q <-chan Notification, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	text := prefixForPriority(n.Priority) + n.Text
	var lastErr error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(retryDelay(cfg.RetryBase, attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if err := lim.Wait(ctx); err != nil {
			return
		}
		lastErr = s.sendAll(ctx, text)
		if lastErr == nil {
			break
		}
		s.log.Debug("notify send failed", logx.Err(lastErr), logx.Int("attempt", attempt+1))
	}
	item := HistoryItem{At: time.Now(), Text: text}
	if lastErr != nil {
		item.Err = lastErr.Error()
		s.log.Warn("notification dropped", logx.Err(lastErr))
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > 200 {
		s.history = s.history[len(s.history)-200:]
	}
	s.hmu.Unlock()
}

func (s *Service) sendAll(ctx context.Context, text string) error {
	var errs []error
	for _, snd := range s.senders {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := snd.SendText(cctx, text); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}

func (s *Service) dedupAllow(n Notification, window time.Duration) bool {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d|%s", n.Priority, n.Text)
	key := h.Sum64()
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}

func prefixForPriority(p int) string {
	switch {
	case p >= PriorityError:
		return "[!] "
	case p >= PriorityWarn:
		return "[~] "
	default:
		return ""
	}
}

// retryDelay is base * 2^(attempt-1) with 0.7..1.3 jitter, capped at 10s.
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d <= 0 || d > 10*time.Second {
		d = 10 * time.Second
	}
	return time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
}
