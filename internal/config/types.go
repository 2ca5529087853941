package config

// Config is the on-disk configuration. JSON and YAML are both accepted; YAML is
// coerced to JSON and decoded strictly, so unknown keys are rejected.
//
// All durations are Go duration strings (e.g. "90s", "1h30m").
type Config struct {
	Account   AccountConfig   `json:"account"`
	Embassy   EmbassyConfig   `json:"embassy"`
	Window    WindowConfig    `json:"window"`
	Timing    TimingConfig    `json:"timing"`
	Gateway   GatewayConfig   `json:"gateway,omitempty"`
	Telegram  TelegramConfig  `json:"telegram,omitempty"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
	Audit     *AuditConfig    `json:"audit,omitempty"`
	Heartbeat HeartbeatConfig `json:"heartbeat,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

// AccountConfig identifies the applicant on the portal. Username and password
// are usually supplied through VISA_USERNAME / VISA_PASSWORD instead.
type AccountConfig struct {
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	ScheduleID string `json:"schedule_id"`
	GroupID    string `json:"group_id"`
}

// EmbassyConfig selects a consulate. Code looks up the built-in table; the
// remaining fields override the looked-up entry one by one.
//
// Example:
//
//	"embassy": { "code": "en-il" }
type EmbassyConfig struct {
	Code         string `json:"code,omitempty"`
	Locale       string `json:"locale,omitempty"`
	FacilityID   int    `json:"facility_id,omitempty"`
	ContinueText string `json:"continue_text,omitempty"`
}

// WindowConfig is the acceptance range, both bounds exclusive, as YYYY-MM-DD.
type WindowConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TimingConfig controls polling cadence.
//
// Defaults (when fields are omitted/zero):
//   - retry_lower: "60s"
//   - retry_upper: "90s"
//   - work_limit: "1h30m"
//   - work_cooldown: "15m"
//   - ban_cooldown: "30m"
//   - step_interval: "500ms"
type TimingConfig struct {
	RetryLower   string `json:"retry_lower,omitempty"`
	RetryUpper   string `json:"retry_upper,omitempty"`
	WorkLimit    string `json:"work_limit,omitempty"`
	WorkCooldown string `json:"work_cooldown,omitempty"`
	BanCooldown  string `json:"ban_cooldown,omitempty"`
	StepInterval string `json:"step_interval,omitempty"`
}

// GatewayConfig controls the portal HTTP client.
type GatewayConfig struct {
	// Mode is "local" (default) or "remote".
	Mode string `json:"mode,omitempty"`
	// HubAddress is the HTTP proxy used in remote mode.
	HubAddress     string `json:"hub_address,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout  string  `json:"poll_timeout,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// If the whole section is omitted, the notifier is enabled whenever a
// Telegram token and chat are configured.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// AuditConfig controls the per-day audit record.
//
// Example:
//
//	"audit": { "driver": "file", "path": "./logs" }
type AuditConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// HeartbeatConfig schedules the "still working" notification.
type HeartbeatConfig struct {
	// Schedule is a cron spec; empty means "@midnight". "off" disables it.
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint; empty disables it.
	Listen string `json:"listen,omitempty"`
	// Token, when set, is required as "Authorization: Bearer <token>" or ?token=.
	Token string `json:"token,omitempty"`
	// Pprof mounts /debug/pprof/ next to /metrics. Non-loopback binds need Token.
	Pprof bool `json:"pprof,omitempty"`
}
