package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ontime/internal/config"
	"ontime/internal/eventbus"
	"ontime/internal/mirror/gcal"
	"ontime/internal/notifier"
	"ontime/internal/observability/pprof"
	"ontime/internal/reconcile"
	"ontime/internal/remote"
	"ontime/internal/reports"
	"ontime/internal/runtime/supervisor"
	"ontime/internal/schedule"
	"ontime/internal/sheets"
	"ontime/internal/storage"
	"ontime/internal/store"
	"ontime/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	journal storage.Store
	api     remote.Client

	scope   *store.Scope
	tasks   *store.TaskStore
	entries *store.EntryStore
	coord   *schedule.Coordinator
	sheets  *sheets.Service
	reports *reports.Service
	notif   *notifier.Service
	recon   *reconcile.Service
	mirror  *gcal.Mirror
	debug   *pprof.Service
}

// NewApp loads the config and wires every component. Nothing runs until
// Start or Bootstrap.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The telegram bot is shared by the log sink and the notifier.
	var tg *notifier.Telegram
	if cfg.Telegram.Configured() {
		tg, err = notifier.NewTelegram(notifier.TelegramConfig{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
	}
	var sink logx.ChatSink
	if tg != nil {
		sink = tg
	}
	logSvc, root := logx.New(mapLogConfig(cfg), sink)
	log := root.With(logx.String("comp", "app"))

	a := &App{cfgPath: cfgPath, cfgm: cfgm, log: log, logs: logSvc, bus: eventbus.New()}
	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return fail(err)
	} else if enabled {
		st, err := storage.Open(sc, root)
		if err != nil {
			return fail(err)
		}
		a.journal = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	opts, err := remoteOptions(cfg, root)
	if err != nil {
		return fail(err)
	}
	api, err := remote.NewHTTPClient(cfg.API.BaseURL, opts...)
	if err != nil {
		return fail(err)
	}
	a.api = api

	ns, err := mapNotifierConfig(cfg)
	if err != nil {
		return fail(err)
	}
	var senders []notifier.Sender
	if ns.console {
		senders = append(senders, notifier.NewConsole(os.Stdout))
	}
	if ns.telegram && tg != nil {
		senders = append(senders, tg)
	}
	a.notif = notifier.New(ns.cfg, root, senders...)

	a.scope = store.NewScope("")
	a.tasks = store.NewTaskStore(api, a.scope, a.bus, root)
	a.entries = store.NewEntryStore(api, a.scope, a.bus, root)
	a.coord = schedule.New(schedule.Deps{
		Tasks:   a.tasks,
		Entries: a.entries,
		Scope:   a.scope,
		Journal: a.journal,
		Bus:     a.bus,
		Log:     root,
	})
	a.sheets = sheets.New(sheets.Deps{
		API:      api,
		Projects: api,
		Scope:    a.scope,
		Reloader: a.coord,
		Selected: cfg.Sheet.Active,
		Bus:      a.bus,
		Notify:   a.notif,
		Log:      root,
	})
	a.reports = reports.New(reports.Deps{
		API:       api,
		Scope:     a.scope,
		OutputDir: cfg.Reports.OutputDir,
		Notify:    a.notif,
		Log:       root,
	})

	rc, err := mapReconcileConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.recon = reconcile.New(rc, a.coord, root)
	if err := a.recon.Validate(rc.Spec); err != nil {
		return fail(fmt.Errorf("reconcile.spec: %w", err))
	}

	pc, err := mapPprofConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.debug = pprof.New(pc, root, func() any { return a.Status() })

	if g := cfg.Mirror.GCal; g.Enabled {
		srv, err := gcal.NewService(context.Background(), g.Credentials, g.Token)
		if err != nil {
			return fail(fmt.Errorf("mirror.gcal: %w", err))
		}
		a.mirror = gcal.New(gcal.NewGoogleCalendar(srv, g.CalendarID), a.entries, root)
		log.Info("calendar mirror enabled", logx.String("calendar", g.CalendarID))
	}
	return a, nil
}

func (a *App) Config() *config.Config             { return a.cfgm.Get() }
func (a *App) Log() logx.Logger                   { return a.log }
func (a *App) Bus() eventbus.Bus                  { return a.bus }
func (a *App) API() remote.Client                 { return a.api }
func (a *App) Journal() storage.Store             { return a.journal }
func (a *App) Tasks() *store.TaskStore            { return a.tasks }
func (a *App) Entries() *store.EntryStore         { return a.entries }
func (a *App) Coordinator() *schedule.Coordinator { return a.coord }
func (a *App) Sheets() *sheets.Service            { return a.sheets }
func (a *App) Reports() *reports.Service          { return a.reports }
func (a *App) Notifier() *notifier.Service        { return a.notif }
func (a *App) Reconcile() *reconcile.Service      { return a.recon }

// Mirror is nil unless mirror.gcal is enabled.
func (a *App) Mirror() *gcal.Mirror { return a.mirror }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Goroutines reports the supervised goroutines, running ones first.
func (a *App) Goroutines() []supervisor.Stats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

// Status is the document served by the debug server at /status.
type Status struct {
	Sheet         string                 `json:"sheet"`
	Tasks         int                    `json:"tasks"`
	Entries       int                    `json:"entries"`
	Pending       int                    `json:"pending"`
	BusDropped    uint64                 `json:"bus_dropped"`
	Goroutines    []supervisor.Stats     `json:"goroutines"`
	Reconcile     ReconcileStatus        `json:"reconcile"`
	Notifications []notifier.HistoryItem `json:"notifications,omitempty"`
}

type ReconcileStatus struct {
	At         time.Time `json:"at,omitzero"`
	TookMS     int64     `json:"took_ms"`
	Violations int       `json:"violations"`
	Repaired   int       `json:"repaired"`
	Err        string    `json:"err,omitempty"`
}

func (a *App) Status() Status {
	last := a.recon.Last()
	st := Status{
		Sheet:         a.scope.Active(),
		Tasks:         len(a.tasks.Tasks()),
		Entries:       len(a.entries.Entries()),
		Pending:       len(a.coord.Pending()),
		BusDropped:    a.bus.Dropped(),
		Goroutines:    a.Goroutines(),
		Notifications: a.notif.Snapshot(),
		Reconcile: ReconcileStatus{
			At:         last.At,
			TookMS:     last.Took.Milliseconds(),
			Violations: len(last.Violations),
			Repaired:   last.Repaired,
		},
	}
	if last.Err != nil {
		st.Reconcile.Err = last.Err.Error()
	}
	return st
}

// Bootstrap lists the sheets, which activates one and loads its tasks and
// entries. One-shot commands call it instead of Start.
func (a *App) Bootstrap(ctx context.Context) error {
	if _, err := a.sheets.List(ctx); err != nil {
		return err
	}
	if a.scope.Active() == "" {
		a.log.Warn("no sheets; create one first")
	}
	return nil
}

// Start runs the sync loop: initial load, notifier, reconcile, calendar
// mirror and config hot reload.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		rc, err := mapReconcileConfig(cfg)
		if err != nil {
			return err
		}
		if err := a.recon.Validate(rc.Spec); err != nil {
			return fmt.Errorf("reconcile.spec: %w", err)
		}
		if _, err := remoteOptions(cfg, a.log); err != nil {
			return err
		}
		_, err = mapPprofConfig(cfg)
		return err
	})

	a.notif.Start(runCtx)
	a.notif.WatchBus(runCtx, a.bus)
	a.debug.Start(runCtx)
	if a.mirror != nil {
		a.mirror.Watch(runCtx, a.bus)
	}

	// A remote that is down at boot is retried until the first listing succeeds.
	a.sup.GoRestart("sheets.bootstrap", func(c context.Context) error {
		return a.Bootstrap(c)
	}, supervisor.WithRestartBackoff(time.Second, time.Minute))

	if err := a.recon.Start(runCtx); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts; only the latest config matters
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// restartOnly lists sections read once at startup.
var restartOnly = map[string]bool{
	"api":       true,
	"storage":   true,
	"telegram":  true,
	"mirror":    true,
	"reports":   true,
	"devserver": true,
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		if restartOnly[s] {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if strings.TrimSpace(oldCfg.Sheet.Active) != strings.TrimSpace(newCfg.Sheet.Active) {
		if err := a.sheets.Select(ctx, strings.TrimSpace(newCfg.Sheet.Active)); err != nil {
			a.log.Warn("sheet.active not applied", logx.Err(err))
		}
	}

	if rc, err := mapReconcileConfig(newCfg); err != nil {
		a.log.Warn("invalid reconcile config; keeping previous", logx.Err(err))
	} else if err := a.recon.Apply(ctx, rc); err != nil {
		a.log.Warn("reconcile apply failed", logx.Err(err))
	}

	if ns, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ns.cfg)
		switch {
		case wasEnabled && !ns.cfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ns.cfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if oldCfg.Pprof != newCfg.Pprof {
		if pc, err := mapPprofConfig(newCfg); err != nil {
			a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
		} else {
			a.debug.Reconfigure(ctx, pc)
		}
	}

	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in order. Every step is bounded so one stuck
// component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
			}()
		}
	}

	step("reconcile", 2*time.Second, func(c context.Context) error { a.recon.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("pprof", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	a.log.Info("stopped")
	a.Close()
	return nil
}

// Close releases the journal and log outputs. One-shot commands call it
// instead of Stop.
func (a *App) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
