package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/config"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway/ais"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/heartbeat"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/metrics"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/notifier"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/storage"
	kit "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport"
	telegram "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport/telegram/adapter"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

const heartbeatOff = "off"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig defaults to per-day text files in the working directory
// when the audit section is omitted.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Audit == nil {
		return storage.Config{Driver: "file", Path: "."}, nil
	}
	sc := cfg.Audit
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{Driver: "none"}, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("audit.path is required when audit.driver=sqlite")
		}
		busy, err := config.DurationOr("audit.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown audit.driver: %s", sc.Driver)
	}
}

// ResolveEmbassy looks up embassy.code and applies the per-field overrides.
func ResolveEmbassy(cfg *config.Config) (ais.Embassy, error) {
	ec := cfg.Embassy
	var e ais.Embassy
	if code := strings.TrimSpace(ec.Code); code != "" {
		found, ok := ais.LookupEmbassy(code)
		if !ok && (strings.TrimSpace(ec.Locale) == "" || ec.FacilityID <= 0) {
			return ais.Embassy{}, fmt.Errorf("embassy.code: unknown %q", code)
		}
		e = found
	}
	if v := strings.TrimSpace(ec.Locale); v != "" {
		e.Locale = v
	}
	if ec.FacilityID > 0 {
		e.FacilityID = ec.FacilityID
	}
	if v := strings.TrimSpace(ec.ContinueText); v != "" {
		e.ContinueText = v
	}
	if e.ContinueText == "" {
		e.ContinueText = "Continue"
	}
	if e.Locale == "" || e.FacilityID <= 0 {
		return ais.Embassy{}, fmt.Errorf("embassy: locale and facility_id are required")
	}
	return e, nil
}

func embassyLabel(cfg *config.Config, e ais.Embassy) string {
	if code := strings.TrimSpace(cfg.Embassy.Code); code != "" {
		return code
	}
	return fmt.Sprintf("%s/%d", e.Locale, e.FacilityID)
}

func mapGatewayConfig(cfg *config.Config, t config.Timing) (ais.Config, error) {
	emb, err := ResolveEmbassy(cfg)
	if err != nil {
		return ais.Config{}, err
	}
	timeout, err := config.DurationAt("gateway.request_timeout", cfg.Gateway.RequestTimeout)
	if err != nil {
		return ais.Config{}, err
	}
	mode := ais.ModeLocal
	if strings.EqualFold(strings.TrimSpace(cfg.Gateway.Mode), string(ais.ModeRemote)) {
		mode = ais.ModeRemote
	}
	return ais.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		Embassy:        emb,
		Username:       cfg.Account.Username,
		Password:       cfg.Account.Password,
		ScheduleID:     cfg.Account.ScheduleID,
		GroupID:        cfg.Account.GroupID,
		UserAgent:      cfg.Gateway.UserAgent,
		Mode:           mode,
		HubAddress:     cfg.Gateway.HubAddress,
		RequestTimeout: timeout,
		StepInterval:   t.StepInterval,
		RetryMax:       cfg.Gateway.RetryMax,
	}, nil
}

func mapOrchestratorConfig(cfg *config.Config, label string) (orchestrator.Config, config.Timing, error) {
	t, err := cfg.ResolveTiming()
	if err != nil {
		return orchestrator.Config{}, config.Timing{}, err
	}
	w, err := cfg.ResolveWindow()
	if err != nil {
		return orchestrator.Config{}, config.Timing{}, err
	}
	return orchestrator.Config{
		Window:       w,
		Embassy:      label,
		RetryLower:   t.RetryLower,
		RetryUpper:   t.RetryUpper,
		WorkLimit:    t.WorkLimit,
		WorkCooldown: t.WorkCooldown,
		BanCooldown:  t.BanCooldown,
	}, t, nil
}

// mapNotifierConfig enables delivery whenever Telegram is configured and the
// notifier section is omitted.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	target := kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID}
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{
			Enabled:       cfg.TelegramEnabled(),
			QueueSize:     64,
			RatePerSec:    1,
			RetryMax:      3,
			RetryBase:     time.Second,
			RetryMaxDelay: 30 * time.Second,
			Target:        target,
		}, nil
	}
	if nc.QueueSize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	}
	if nc.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if nc.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.retry_max must be >= 0")
	}
	base, err := config.DurationOr("notifier.retry_base", nc.RetryBase, time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.DurationOr("notifier.retry_max_delay", nc.RetryMaxDelay, 30*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       nc.Enabled && cfg.TelegramEnabled(),
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		Target:        target,
	}, nil
}

// mapHeartbeatConfig reports false when the heartbeat is switched off.
func mapHeartbeatConfig(cfg *config.Config) (heartbeat.Config, bool, error) {
	spec := strings.TrimSpace(cfg.Heartbeat.Schedule)
	if strings.EqualFold(spec, heartbeatOff) {
		return heartbeat.Config{}, false, nil
	}
	loc, err := cfg.HeartbeatLocation()
	if err != nil {
		return heartbeat.Config{}, false, err
	}
	return heartbeat.Config{Schedule: spec, Location: loc}, true, nil
}

func mapMetricsConfig(cfg *config.Config) metrics.ServerConfig {
	return metrics.ServerConfig{
		Addr:  strings.TrimSpace(cfg.Metrics.Listen),
		Token: strings.TrimSpace(cfg.Metrics.Token),
		Pprof: cfg.Metrics.Pprof,
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, nil
}

// Validate is the gate every loaded or reloaded file passes before commit.
func Validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := ResolveEmbassy(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if hc, on, err := mapHeartbeatConfig(cfg); err != nil {
		return err
	} else if on {
		if _, err := heartbeat.New(hc, nil, nil, logx.Nop()); err != nil {
			return err
		}
	}
	return nil
}
