package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	API       APIConfig       `json:"api"`
	Sheet     SheetConfig     `json:"sheet"`
	Logging   LoggingConfig   `json:"logging"`
	Telegram  TelegramConfig  `json:"telegram"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Mirror    MirrorConfig    `json:"mirror"`
	Reports   ReportsConfig   `json:"reports"`
	DevServer DevServerConfig `json:"devserver"`
	Pprof     PprofConfig     `json:"pprof"`
}

// APIConfig points at the remote task/entry store.
//
// Durations are Go duration strings (e.g. "500ms", "10s").
//
// Defaults:
//   - timeout: "15s"
//   - rate_per_sec: 0 (unlimited)
//   - retry_max: 2 (GET only)
//   - retry_base: "200ms"
type APIConfig struct {
	BaseURL    string  `json:"base_url"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	RetryMax   *int    `json:"retry_max,omitempty"`
	RetryBase  string  `json:"retry_base,omitempty"`
}

// SheetConfig selects the sheet to activate on start. Empty means the first sheet.
type SheetConfig struct {
	Active string `json:"active,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings and errors to the telegram chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig is shared by the notifier and the log sink.
// The bot only sends; it never polls for updates.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

func (t TelegramConfig) Configured() bool {
	return strings.TrimSpace(t.Token) != "" && t.ChatID != 0
}

// StorageConfig controls the local transition journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./ontime.db" }
type StorageConfig struct {
	Driver         string `json:"driver"`
	Path           string `json:"path"`
	BusyTimeout    string `json:"busy_timeout,omitempty"` // sqlite only
	MaxTransitions int    `json:"max_transitions,omitempty"`
}

// ReconcileConfig controls the periodic reload/audit.
type ReconcileConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a cron expression or "@every <duration>". Default "@every 5m".
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Repair   bool   `json:"repair,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// NotifierConfig controls "action failed" notifications.
//
// If the whole section is omitted, the notifier is enabled with console output.
type NotifierConfig struct {
	Enabled     bool   `json:"enabled"`
	Console     bool   `json:"console"`
	Telegram    bool   `json:"telegram"`
	QueueSize   int    `json:"queue_size,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
	RetryBase   string `json:"retry_base,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
}

type MirrorConfig struct {
	GCal GCalConfig `json:"gcal"`
}

// GCalConfig mirrors entries into a Google Calendar.
type GCalConfig struct {
	Enabled     bool   `json:"enabled"`
	CalendarID  string `json:"calendar_id,omitempty"` // default "primary"
	Credentials string `json:"credentials"`           // client secrets json
	Token       string `json:"token"`                 // stored oauth token
}

type ReportsConfig struct {
	OutputDir   string `json:"output_dir,omitempty"`
	SenderEmail string `json:"sender_email,omitempty"`
}

type DevServerConfig struct {
	Addr string `json:"addr,omitempty"` // default "127.0.0.1:8787"
}

// PprofConfig controls the debug HTTP server of the sync daemon. A
// non-loopback addr needs a token or allow_insecure.
type PprofConfig struct {
	Enabled              bool   `json:"enabled"`
	Addr                 string `json:"addr,omitempty"`   // default "127.0.0.1:6060"
	Prefix               string `json:"prefix,omitempty"` // default "/debug/pprof/"
	Token                string `json:"token,omitempty"`
	AllowInsecure        bool   `json:"allow_insecure,omitempty"`
	ReadTimeout          string `json:"read_timeout,omitempty"`
	IdleTimeout          string `json:"idle_timeout,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
}

var knownDrivers = map[string]bool{"": true, "none": true, "diskv": true, "file": true, "sqlite": true, "sqlite3": true}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url: %q is not an http(s) url", c.API.BaseURL))
	}
	if c.API.RatePerSec < 0 {
		errs = append(errs, errors.New("api.rate_per_sec must be >= 0"))
	}
	if c.API.RetryMax != nil && *c.API.RetryMax < 0 {
		errs = append(errs, errors.New("api.retry_max must be >= 0"))
	}
	durations := map[string]string{
		"api.timeout":        c.API.Timeout,
		"api.retry_base":     c.API.RetryBase,
		"reconcile.timeout":  c.Reconcile.Timeout,
		"pprof.read_timeout": c.Pprof.ReadTimeout,
		"pprof.idle_timeout": c.Pprof.IdleTimeout,
	}
	if c.Storage != nil {
		durations["storage.busy_timeout"] = c.Storage.BusyTimeout
		if !knownDrivers[strings.ToLower(strings.TrimSpace(c.Storage.Driver))] {
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
	}
	if c.Notifier != nil {
		durations["notifier.retry_base"] = c.Notifier.RetryBase
		durations["notifier.dedup_window"] = c.Notifier.DedupWindow
		if c.Notifier.Telegram && !c.Telegram.Configured() {
			errs = append(errs, errors.New("notifier.telegram requires telegram.token and telegram.chat_id"))
		}
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Logging.Telegram.Enabled && !c.Telegram.Configured() {
		errs = append(errs, errors.New("logging.telegram requires telegram.token and telegram.chat_id"))
	}
	if g := c.Mirror.GCal; g.Enabled && (strings.TrimSpace(g.Credentials) == "" || strings.TrimSpace(g.Token) == "") {
		errs = append(errs, errors.New("mirror.gcal requires credentials and token paths"))
	}
	if c.Pprof.MutexProfileFraction < 0 || c.Pprof.BlockProfileRate < 0 {
		errs = append(errs, errors.New("pprof profile rates must be >= 0"))
	}
	return errors.Join(errs...)
}

// Default returns a config that runs against a local dev server.
func Default() *Config {
	return &Config{
		API:       APIConfig{BaseURL: "http://127.0.0.1:8787", Timeout: "15s"},
		Logging:   LoggingConfig{Level: "info", Console: true},
		Reconcile: ReconcileConfig{Spec: "@every 5m"},
		Reports:   ReportsConfig{OutputDir: "."},
		DevServer: DevServerConfig{Addr: "127.0.0.1:8787"},
	}
}
