package config

import (
	"reflect"
	"sort"
	"strings"

	"ontime/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe attrs for
// logging. Tokens and credential paths are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.API, newCfg.API) {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.String("api.base_url", newCfg.API.BaseURL),
			logx.String("api.timeout", newCfg.API.Timeout),
			logx.Float64("api.rate_per_sec", newCfg.API.RatePerSec),
		)
	}
	if strings.TrimSpace(oldCfg.Sheet.Active) != strings.TrimSpace(newCfg.Sheet.Active) {
		changed = append(changed, "sheet")
		attrs = append(attrs, logx.String("sheet.active", newCfg.Sheet.Active))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.chat_set", newCfg.Telegram.ChatID != 0),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		var driver string
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}
	if oldCfg.Reconcile != newCfg.Reconcile {
		changed = append(changed, "reconcile")
		attrs = append(attrs,
			logx.Bool("reconcile.enabled", newCfg.Reconcile.Enabled),
			logx.String("reconcile.spec", newCfg.Reconcile.Spec),
			logx.Bool("reconcile.repair", newCfg.Reconcile.Repair),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Bool("notifier.telegram", n.Telegram),
			)
		}
	}
	if oldCfg.Mirror != newCfg.Mirror {
		changed = append(changed, "mirror")
		attrs = append(attrs, logx.Bool("mirror.gcal_enabled", newCfg.Mirror.GCal.Enabled))
	}
	if oldCfg.Reports != newCfg.Reports {
		changed = append(changed, "reports")
		attrs = append(attrs, logx.String("reports.output_dir", newCfg.Reports.OutputDir))
	}
	if oldCfg.DevServer != newCfg.DevServer {
		changed = append(changed, "devserver")
	}
	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", newCfg.Pprof.Addr),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}
	sort.Strings(changed)
	return changed, attrs
}
