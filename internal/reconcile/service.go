// Package reconcile periodically reloads the active sheet and audits the
// "scheduled iff exactly one entry" invariant.
//
// It is trigger-only: each run calls into the coordinator and logs what it
// found. Runs never overlap; a tick that fires while a run is in progress is
// skipped.
package reconcile

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"ontime/internal/schedule"
	"ontime/pkg/logx"
)

const DefaultSpec = "@every 5m"

type Config struct {
	Enabled bool
	// Spec is a cron expression (5 or 6 fields) or a descriptor like "@every 5m".
	Spec     string
	Timezone string
	// Repair fixes violations that can be fixed by a single status update.
	Repair  bool
	Timeout time.Duration
}

// Target is the part of the coordinator a reconcile run needs.
type Target interface {
	Reload(ctx context.Context)
	CheckInvariant() []schedule.Violation
	Repair(ctx context.Context) (int, error)
}

// Result describes one run.
type Result struct {
	At         time.Time
	Took       time.Duration
	Violations []schedule.Violation
	Repaired   int
	Err        error
}

type Service struct {
	target Target
	log    logx.Logger
	parser cron.Parser

	mu   sync.Mutex
	cfg  Config
	c    *cron.Cron
	loc  *time.Location
	last Result

	running atomic.Bool
	// OnRun, if set, is called after every completed run.
	OnRun func(Result)
}

func New(cfg Config, target Target, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		target: target,
		log:    log.With(logx.String("comp", "reconcile")),
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate reports whether spec parses.
func (s *Service) Validate(spec string) error {
	_, err := s.parser.Parse(specOrDefault(spec))
	return err
}

// Start begins periodic runs. It is a no-op when disabled or already started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	spec := specOrDefault(s.cfg.Spec)
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return err
	}
	loc := loadLocation(s.cfg.Timezone, s.log)
	s.loc = loc
	if every, ok := everyOf(spec); ok {
		// spread the first tick so several instances do not reload in lockstep
		var jitter time.Duration
		sched, jitter = withStartupSpread(every, time.Now().In(loc), spec)
		s.log.Debug("startup spread", logx.Duration("jitter", jitter))
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	runCtx := context.WithoutCancel(ctx)
	s.c.Schedule(sched, cron.FuncJob(func() { s.RunOnce(runCtx) }))
	s.c.Start()
	s.log.Info("service started", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

// Stop halts periodic runs and waits for an in-flight run or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

// Apply swaps the config, restarting the cron when spec, zone or enabled changed.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	restart := old.Enabled != cfg.Enabled ||
		strings.TrimSpace(old.Spec) != strings.TrimSpace(cfg.Spec) ||
		strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone)
	if !restart {
		return nil
	}
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	if !cfg.Enabled {
		s.log.Info("service disabled")
		return nil
	}
	return s.startLocked(ctx)
}

// RunOnce reloads, audits and optionally repairs. Concurrent calls collapse
// into the one already running, which returns ok=false.
func (s *Service) RunOnce(ctx context.Context) (Result, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("run skipped, previous still running")
		return Result{}, false
	}
	defer s.running.Store(false)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res := Result{At: start}
	s.target.Reload(ctx)
	res.Violations = s.target.CheckInvariant()
	if len(res.Violations) > 0 && cfg.Repair {
		res.Repaired, res.Err = s.target.Repair(ctx)
		s.target.Reload(ctx)
		res.Violations = s.target.CheckInvariant()
	}
	res.Took = time.Since(start)

	for _, v := range res.Violations {
		s.log.Warn("invariant violation", logx.String("task", v.TaskID), logx.String("reason", v.Reason))
	}
	fields := []logx.Field{
		logx.Int("violations", len(res.Violations)),
		logx.Int("repaired", res.Repaired),
		logx.Duration("took", res.Took),
	}
	if res.Err != nil {
		s.log.Warn("reconcile finished with errors", append(fields, logx.Err(res.Err))...)
	} else {
		s.log.Debug("reconcile finished", fields...)
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	if s.OnRun != nil {
		s.OnRun(res)
	}
	return res, true
}

// Last returns the most recent run result.
func (s *Service) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func specOrDefault(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultSpec
	}
	return spec
}

func everyOf(spec string) (time.Duration, bool) {
	if !strings.HasPrefix(spec, "@every") {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every")))
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
