package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/config"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway/ais"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
)

func baseConfig() *config.Config {
	return &config.Config{
		Account: config.AccountConfig{Username: "u@example.com", Password: "p", ScheduleID: "1", GroupID: "2"},
		Embassy: config.EmbassyConfig{Code: "en-il"},
		Window:  config.WindowConfig{Start: "2025-01-01", End: "2025-06-30"},
	}
}

func TestResolveEmbassy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		ec      config.EmbassyConfig
		want    ais.Embassy
		wantErr bool
	}{
		{"lookup", config.EmbassyConfig{Code: "en-il"}, ais.Embassy{Locale: "en-il", FacilityID: 97, ContinueText: "Continue"}, false},
		{"case insensitive", config.EmbassyConfig{Code: " EN-CA-TOR "}, ais.Embassy{Locale: "en-ca", FacilityID: 94, ContinueText: "Continue"}, false},
		{"override facility", config.EmbassyConfig{Code: "en-il", FacilityID: 5}, ais.Embassy{Locale: "en-il", FacilityID: 5, ContinueText: "Continue"}, false},
		{"custom", config.EmbassyConfig{Locale: "es-mx", FacilityID: 65, ContinueText: "Continuar"}, ais.Embassy{Locale: "es-mx", FacilityID: 65, ContinueText: "Continuar"}, false},
		{"unknown code with override", config.EmbassyConfig{Code: "xx", Locale: "en-xx", FacilityID: 1}, ais.Embassy{Locale: "en-xx", FacilityID: 1, ContinueText: "Continue"}, false},
		{"unknown code", config.EmbassyConfig{Code: "xx"}, ais.Embassy{}, true},
		{"nothing", config.EmbassyConfig{}, ais.Embassy{}, true},
	}
	for _, tt := range tests {
		cfg := baseConfig()
		cfg.Embassy = tt.ec
		got, err := ResolveEmbassy(cfg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("%s: got %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		audit      *config.AuditConfig
		wantDriver string
		wantErr    bool
	}{
		{"omitted", nil, "file", false},
		{"none", &config.AuditConfig{Driver: "none"}, "none", false},
		{"file", &config.AuditConfig{Driver: "File", Path: "./logs"}, "file", false},
		{"sqlite", &config.AuditConfig{Driver: "sqlite3", Path: "audit.db", BusyTimeout: "2s"}, "sqlite", false},
		{"sqlite without path", &config.AuditConfig{Driver: "sqlite"}, "", true},
		{"bad busy timeout", &config.AuditConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "soon"}, "", true},
		{"unknown", &config.AuditConfig{Driver: "postgres"}, "", true},
	}
	for _, tt := range tests {
		cfg := baseConfig()
		cfg.Audit = tt.audit
		sc, err := mapStorageConfig(cfg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err == nil && sc.Driver != tt.wantDriver {
			t.Fatalf("%s: driver = %q, want %q", tt.name, sc.Driver, tt.wantDriver)
		}
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if nc.Enabled {
		t.Fatal("notifier enabled without telegram")
	}

	cfg.Telegram = config.TelegramConfig{Token: "t", ChatID: -100, ThreadID: 7}
	nc, err = mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if !nc.Enabled || nc.Target.ChatID != -100 || nc.Target.ThreadID != 7 || nc.RetryMax != 3 {
		t.Fatalf("implicit notifier = %+v", nc)
	}

	cfg.Notifier = &config.NotifierConfig{Enabled: true, RetryBase: "250ms", RetryMaxDelay: "5s"}
	nc, err = mapNotifierConfig(cfg)
	if err != nil {
		t.Fatalf("mapNotifierConfig: %v", err)
	}
	if nc.RetryBase != 250*time.Millisecond || nc.RetryMaxDelay != 5*time.Second {
		t.Fatalf("explicit notifier = %+v", nc)
	}

	cfg.Notifier = &config.NotifierConfig{Enabled: true, RetryBase: "fast"}
	if _, err := mapNotifierConfig(cfg); err == nil {
		t.Fatal("bad retry_base accepted")
	}
}

func TestMapHeartbeatConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Heartbeat.Schedule = "OFF"
	if _, on, err := mapHeartbeatConfig(cfg); err != nil || on {
		t.Fatalf("off: on=%v err=%v", on, err)
	}
	cfg.Heartbeat = config.HeartbeatConfig{Schedule: "0 9 * * *", Timezone: "UTC"}
	hc, on, err := mapHeartbeatConfig(cfg)
	if err != nil || !on {
		t.Fatalf("on=%v err=%v", on, err)
	}
	if hc.Location != time.UTC || hc.Schedule != "0 9 * * *" {
		t.Fatalf("heartbeat = %+v", hc)
	}
}

func TestMapGatewayAndOrchestrator(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Gateway = config.GatewayConfig{Mode: "Remote", HubAddress: "http://hub:4444", RequestTimeout: "20s", RetryMax: 2}
	cfg.Timing = config.TimingConfig{RetryLower: "10s", RetryUpper: "20s", StepInterval: "0s"}

	oc, timing, err := mapOrchestratorConfig(cfg, "en-il")
	if err != nil {
		t.Fatalf("mapOrchestratorConfig: %v", err)
	}
	want := orchestrator.Config{
		Window:       oc.Window,
		Embassy:      "en-il",
		RetryLower:   10 * time.Second,
		RetryUpper:   20 * time.Second,
		WorkLimit:    config.DefaultWorkLimit,
		WorkCooldown: config.DefaultWorkCooldown,
		BanCooldown:  config.DefaultBanCooldown,
	}
	if oc != want || oc.Window.String() != "(2025-01-01, 2025-06-30)" {
		t.Fatalf("orchestrator config = %+v", oc)
	}

	gc, err := mapGatewayConfig(cfg, timing)
	if err != nil {
		t.Fatalf("mapGatewayConfig: %v", err)
	}
	if gc.Mode != ais.ModeRemote || gc.HubAddress != "http://hub:4444" || gc.RequestTimeout != 20*time.Second ||
		gc.StepInterval != 0 || gc.RetryMax != 2 || gc.Embassy.FacilityID != 97 {
		t.Fatalf("gateway config = %+v", gc)
	}
}

func TestValidateRejectsBadSections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		substr string
	}{
		{"unknown embassy", func(c *config.Config) { c.Embassy.Code = "zz" }, "embassy.code"},
		{"bad audit", func(c *config.Config) { c.Audit = &config.AuditConfig{Driver: "nope"} }, "audit.driver"},
		{"bad heartbeat", func(c *config.Config) { c.Heartbeat.Schedule = "sometimes" }, "heartbeat schedule"},
		{"bad notifier", func(c *config.Config) { c.Notifier = &config.NotifierConfig{QueueSize: -1} }, "notifier.queue_size"},
	}
	if err := Validate(baseConfig()); err != nil {
		t.Fatalf("base config rejected: %v", err)
	}
	for _, tt := range tests {
		cfg := baseConfig()
		tt.mutate(cfg)
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), tt.substr) {
			t.Fatalf("%s: err = %v, want substring %q", tt.name, err, tt.substr)
		}
	}
}

func TestNewAppWithoutTelegram(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
account:
  schedule_id: "1"
  group_id: "2"
embassy:
  code: en-il
window:
  start: 2025-01-01
  end: 2025-06-30
audit:
  driver: file
  path: ` + filepath.Join(dir, "audit") + `
heartbeat:
  schedule: "off"
logging:
  level: error
  console: true
  file:
    enabled: false
    path: ""
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewApp(path, config.Env{}); err == nil || !strings.Contains(err.Error(), "account.username") {
		t.Fatalf("missing credentials: err = %v", err)
	}

	a, err := NewApp(path, config.Env{Username: "u@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if a.adapter != nil || a.cmdm != nil || a.beat != nil {
		t.Fatalf("unexpected optional components: adapter=%v cmdm=%v beat=%v", a.adapter, a.cmdm, a.beat)
	}
	if a.notif.Enabled() {
		t.Fatal("notifier enabled without telegram")
	}
	if st := a.Status(); st.State != orchestrator.StateBootstrapping {
		t.Fatalf("initial state = %s", st.State)
	}
	if err := a.Stop(t.Context(), StopAppStop); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	_ = a.store.Close()
}
