package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/appointment"
)

// Timing defaults.
const (
	DefaultRetryLower   = 60 * time.Second
	DefaultRetryUpper   = 90 * time.Second
	DefaultWorkLimit    = 90 * time.Minute
	DefaultWorkCooldown = 15 * time.Minute
	DefaultBanCooldown  = 30 * time.Minute
	DefaultStepInterval = 500 * time.Millisecond
)

// Timing is TimingConfig with durations parsed and defaults applied.
type Timing struct {
	RetryLower   time.Duration
	RetryUpper   time.Duration
	WorkLimit    time.Duration
	WorkCooldown time.Duration
	BanCooldown  time.Duration
	StepInterval time.Duration
}

func (c *Config) ResolveTiming() (Timing, error) {
	t := c.Timing
	var (
		out  Timing
		errs []error
	)
	parse := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := DurationOr(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}
	parse(&out.RetryLower, "timing.retry_lower", t.RetryLower, DefaultRetryLower)
	parse(&out.RetryUpper, "timing.retry_upper", t.RetryUpper, DefaultRetryUpper)
	parse(&out.WorkLimit, "timing.work_limit", t.WorkLimit, DefaultWorkLimit)
	parse(&out.WorkCooldown, "timing.work_cooldown", t.WorkCooldown, DefaultWorkCooldown)
	parse(&out.BanCooldown, "timing.ban_cooldown", t.BanCooldown, DefaultBanCooldown)
	// "0s" is a valid step interval (no pacing), so no default substitution here.
	if strings.TrimSpace(t.StepInterval) == "" {
		out.StepInterval = DefaultStepInterval
	} else {
		parse(&out.StepInterval, "timing.step_interval", t.StepInterval, 0)
	}
	if len(errs) > 0 {
		return Timing{}, errors.Join(errs...)
	}
	if out.RetryLower > out.RetryUpper {
		return Timing{}, fmt.Errorf("timing.retry_lower (%s) must not exceed timing.retry_upper (%s)", out.RetryLower, out.RetryUpper)
	}
	return out, nil
}

func (c *Config) ResolveWindow() (appointment.Window, error) {
	w, err := appointment.ParseWindow(c.Window.Start, c.Window.End)
	if err != nil {
		return appointment.Window{}, fmt.Errorf("window: %w", err)
	}
	return w, nil
}

// HeartbeatLocation returns the configured timezone, or time.Local.
func (c *Config) HeartbeatLocation() (*time.Location, error) {
	tz := strings.TrimSpace(c.Heartbeat.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("heartbeat.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// TelegramEnabled reports whether enough is configured to deliver messages.
func (c *Config) TelegramEnabled() bool {
	return strings.TrimSpace(c.Telegram.Token) != "" && c.Telegram.ChatID != 0
}

// Validate checks everything the process needs before it starts polling.
// Sections that are only consumed by adapters (notifier, audit) are also
// checked by their mapping code.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Account.Username) == "" || cfg.Account.Password == "" {
		errs = append(errs, fmt.Errorf("account.username and account.password are required (or set %s/%s)", EnvUsername, EnvPassword))
	}
	if strings.TrimSpace(cfg.Account.ScheduleID) == "" {
		errs = append(errs, errors.New("account.schedule_id is required"))
	}
	if strings.TrimSpace(cfg.Account.GroupID) == "" {
		errs = append(errs, errors.New("account.group_id is required"))
	}
	if strings.TrimSpace(cfg.Embassy.Code) == "" && (strings.TrimSpace(cfg.Embassy.Locale) == "" || cfg.Embassy.FacilityID <= 0) {
		errs = append(errs, errors.New("embassy.code or embassy.locale+facility_id is required"))
	}
	if cfg.Embassy.FacilityID < 0 {
		errs = append(errs, errors.New("embassy.facility_id must be > 0"))
	}
	if _, err := cfg.ResolveWindow(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.ResolveTiming(); err != nil {
		errs = append(errs, err)
	}
	switch m := strings.ToLower(strings.TrimSpace(cfg.Gateway.Mode)); m {
	case "", "local":
	case "remote":
		if strings.TrimSpace(cfg.Gateway.HubAddress) == "" {
			errs = append(errs, errors.New("gateway.hub_address is required when gateway.mode=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.mode: unknown %q", cfg.Gateway.Mode))
	}
	if cfg.Gateway.RetryMax < 0 {
		errs = append(errs, errors.New("gateway.retry_max must be >= 0"))
	}
	if _, err := DurationAt("gateway.request_timeout", cfg.Gateway.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := DurationAt("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if (strings.TrimSpace(cfg.Telegram.Token) == "") != (cfg.Telegram.ChatID == 0) {
		errs = append(errs, fmt.Errorf("telegram.token and telegram.chat_id must be set together (or set %s/%s)", EnvTelegramToken, EnvTelegramChatID))
	}
	if _, err := cfg.HeartbeatLocation(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
