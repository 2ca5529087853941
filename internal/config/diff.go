package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

// Sections that only take effect after a restart.
var restartSections = map[string]bool{
	"account":   true,
	"embassy":   true,
	"window":    true,
	"timing":    true,
	"gateway":   true,
	"telegram":  true,
	"audit":     true,
	"heartbeat": true,
	"metrics":   true,
}

// RequiresRestart reports whether a changed section is not hot-applied.
func RequiresRestart(section string) bool { return restartSections[section] }

// SummarizeConfigChange returns the sorted list of changed sections and safe
// structured attrs for logging. Secrets (passwords, tokens) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Account != newCfg.Account {
		changed = append(changed, "account")
		attrs = append(attrs,
			logx.Bool("account.username_changed", oldCfg.Account.Username != newCfg.Account.Username),
			logx.Bool("account.password_changed", oldCfg.Account.Password != newCfg.Account.Password),
		)
	}
	if oldCfg.Embassy != newCfg.Embassy {
		changed = append(changed, "embassy")
		attrs = append(attrs, logx.String("embassy.code", newCfg.Embassy.Code))
	}
	if oldCfg.Window != newCfg.Window {
		changed = append(changed, "window")
		attrs = append(attrs,
			logx.String("window.start", newCfg.Window.Start),
			logx.String("window.end", newCfg.Window.End),
		)
	}
	if oldCfg.Timing != newCfg.Timing {
		changed = append(changed, "timing")
	}
	if oldCfg.Gateway != newCfg.Gateway {
		changed = append(changed, "gateway")
		attrs = append(attrs, logx.String("gateway.mode", newCfg.Gateway.Mode))
	}

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) ||
		oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
			)
		}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Audit, newCfg.Audit) {
		changed = append(changed, "audit")
	}
	if oldCfg.Heartbeat != newCfg.Heartbeat {
		changed = append(changed, "heartbeat")
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
	}

	sort.Strings(changed)
	return changed, attrs
}
