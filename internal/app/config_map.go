package app

import (
	"fmt"
	"net"
	"strings"
	"time"

	"ontime/internal/config"
	"ontime/internal/notifier"
	"ontime/internal/observability/pprof"
	"ontime/internal/reconcile"
	"ontime/internal/remote"
	"ontime/internal/storage"
	"ontime/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "diskv", "file":
		if path == "" {
			path = "./ontime-journal"
		}
		return storage.Config{Driver: "diskv", Path: path, MaxTransitions: sc.MaxTransitions}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy, MaxTransitions: sc.MaxTransitions}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// notifierSetup is the notifier config plus the senders it should use.
type notifierSetup struct {
	cfg      notifier.Config
	console  bool
	telegram bool
}

// mapNotifierConfig enables console notifications when the section is omitted.
func mapNotifierConfig(cfg *config.Config) (notifierSetup, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifierSetup{cfg: notifier.Config{Enabled: true}, console: true}, nil
	}
	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifierSetup{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notifierSetup{}, err
	}
	if nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 {
		return notifierSetup{}, fmt.Errorf("notifier: queue_size, rate_per_sec and retry_max must be >= 0")
	}
	return notifierSetup{
		cfg: notifier.Config{
			Enabled:     nc.Enabled,
			QueueSize:   nc.QueueSize,
			RatePerSec:  nc.RatePerSec,
			RetryMax:    nc.RetryMax,
			RetryBase:   retryBase,
			DedupWindow: dedup,
		},
		console:  nc.Console,
		telegram: nc.Telegram,
	}, nil
}

func mapReconcileConfig(cfg *config.Config) (reconcile.Config, error) {
	rc := cfg.Reconcile
	timeout, err := config.ParseDurationOrDefault("reconcile.timeout", rc.Timeout, time.Minute)
	if err != nil {
		return reconcile.Config{}, err
	}
	if tz := strings.TrimSpace(rc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return reconcile.Config{}, fmt.Errorf("reconcile.timezone: invalid %q: %w", tz, err)
		}
	}
	return reconcile.Config{
		Enabled:  rc.Enabled,
		Spec:     rc.Spec,
		Timezone: rc.Timezone,
		Repair:   rc.Repair,
		Timeout:  timeout,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func remoteOptions(cfg *config.Config, log logx.Logger) ([]remote.Option, error) {
	timeout, err := config.ParseDurationOrDefault("api.timeout", cfg.API.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	retryBase, err := config.ParseDurationOrDefault("api.retry_base", cfg.API.RetryBase, 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	retries := 2
	if cfg.API.RetryMax != nil {
		retries = *cfg.API.RetryMax
	}
	return []remote.Option{
		remote.WithTimeout(timeout),
		remote.WithRateLimit(cfg.API.RatePerSec, cfg.API.Burst),
		remote.WithRetries(retries, retryBase),
		remote.WithLogger(log),
	}, nil
}

// mapPprofConfig validates the pprof section. It never starts the server.
func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	pc := cfg.Pprof
	out := pprof.Config{
		Enabled:              pc.Enabled,
		Addr:                 strings.TrimSpace(pc.Addr),
		Prefix:               strings.TrimSpace(pc.Prefix),
		Token:                strings.TrimSpace(pc.Token),
		AllowInsecure:        pc.AllowInsecure,
		MutexProfileFraction: pc.MutexProfileFraction,
		BlockProfileRate:     pc.BlockProfileRate,
	}
	if out.Addr == "" {
		out.Addr = pprof.DefaultAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("pprof.read_timeout", pc.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("pprof.idle_timeout", pc.IdleTimeout, 2*time.Minute); err != nil {
		return out, err
	}
	if out.Enabled {
		if _, _, err := net.SplitHostPort(out.Addr); err != nil {
			return out, fmt.Errorf("pprof.addr: %q is not host:port: %w", out.Addr, err)
		}
		if out.Token == "" && !out.AllowInsecure && !pprof.IsLoopbackAddr(out.Addr) {
			return out, fmt.Errorf("pprof: non-loopback addr %q requires token or allow_insecure", out.Addr)
		}
	}
	return out, nil
}
