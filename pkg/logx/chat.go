package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	chatMaxLen     = 3500
	chatValueLen   = 600
	chatRepeatHold = time.Minute
)

// chatWriter is a zerolog.LevelWriter that queues records for a ChatSink.
// It never blocks logging: over the rate limit or with a full queue the
// record is dropped. A record repeating the previous level and message
// within a minute is dropped too, so a remote outage does not flood the chat.
type chatWriter struct {
	sink  ChatSink
	queue chan string

	mu       sync.Mutex
	limiter  *rate.Limiter
	minLevel zerolog.Level
	lastKey  string
	lastAt   time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func newChatWriter(sink ChatSink) *chatWriter {
	return &chatWriter{
		sink:     sink,
		queue:    make(chan string, 128),
		limiter:  rate.NewLimiter(1, 1),
		minLevel: zerolog.WarnLevel,
		done:     make(chan struct{}),
	}
}

func (w *chatWriter) configure(cfg ChatConfig) {
	rps := max(1, cfg.RatePerSec)
	w.mu.Lock()
	w.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	w.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	w.mu.Unlock()

	w.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		w.mu.Lock()
		w.cancel = cancel
		w.mu.Unlock()
		go w.run(ctx)
	})
}

func (w *chatWriter) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-w.queue:
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = w.sink.SendText(sctx, text)
			cancel()
		}
	}
}

func (w *chatWriter) stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		cancel := w.cancel
		w.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-w.done
	})
}

func (w *chatWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w *chatWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	rec, ok := parseRecord(p)
	if !ok {
		return len(p), nil
	}
	if level == zerolog.NoLevel {
		level = parseLevel(rec.level, zerolog.InfoLevel)
	}
	now := time.Now()
	key := rec.level + "|" + rec.message

	w.mu.Lock()
	drop := level < w.minLevel ||
		(key == w.lastKey && now.Sub(w.lastAt) < chatRepeatHold) ||
		!w.limiter.AllowN(now, 1)
	if !drop {
		w.lastKey, w.lastAt = key, now
	}
	w.mu.Unlock()
	if drop {
		return len(p), nil
	}

	select {
	case w.queue <- rec.format():
	default:
	}
	return len(p), nil
}

type record struct {
	level   string
	message string
	fields  map[string]any
}

func parseRecord(p []byte) (record, bool) {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return record{}, false
	}
	r := record{fields: m}
	r.level, _ = m[zerolog.LevelFieldName].(string)
	r.message, _ = m[zerolog.MessageFieldName].(string)
	delete(m, zerolog.LevelFieldName)
	delete(m, zerolog.MessageFieldName)
	delete(m, zerolog.TimestampFieldName)
	delete(m, zerolog.CallerFieldName)
	return r, true
}

// leadKeys are rendered first, in this order; the rest follow sorted.
var leadKeys = []string{"comp", "scope", "task_id", "entry_id", "err"}

func (r record) format() string {
	var b strings.Builder
	if r.level != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(r.level))
	}
	b.WriteString(r.message)

	seen := map[string]bool{}
	keys := make([]string, 0, len(r.fields))
	for _, k := range leadKeys {
		if _, ok := r.fields[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(r.fields))
	for k := range r.fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range append(keys, rest...) {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(r.fields[k]), chatValueLen))
	}
	return clip(b.String(), chatMaxLen)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
