package app

import (
	"fmt"
	"io"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/config"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway/ais"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/heartbeat"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
)

// Plan is the resolved view of a config, as the daemon would run it.
type Plan struct {
	Embassy      ais.Embassy
	Orchestrator orchestrator.Config
	Timing       config.Timing
	Telegram     bool
	Heartbeat    string
	Audit        string
}

func Resolve(cfg *config.Config) (Plan, error) {
	if err := Validate(cfg); err != nil {
		return Plan{}, err
	}
	emb, err := ResolveEmbassy(cfg)
	if err != nil {
		return Plan{}, err
	}
	oc, timing, err := mapOrchestratorConfig(cfg, embassyLabel(cfg, emb))
	if err != nil {
		return Plan{}, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return Plan{}, err
	}
	p := Plan{
		Embassy:      emb,
		Orchestrator: oc,
		Timing:       timing,
		Telegram:     cfg.TelegramEnabled(),
		Heartbeat:    heartbeatOff,
		Audit:        sc.Driver,
	}
	if sc.Path != "" {
		p.Audit += " " + sc.Path
	}
	if hc, on, err := mapHeartbeatConfig(cfg); err != nil {
		return Plan{}, err
	} else if on {
		spec := hc.Schedule
		if spec == "" {
			spec = heartbeat.DefaultSchedule
		}
		p.Heartbeat = spec + " " + hc.Location.String()
	}
	return p, nil
}

func (p Plan) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, `embassy:   %s (locale %s, facility %d)
window:    %s
retry:     %s..%s
work:      %s, then cooldown %s
ban:       cooldown %s
step:      %s
telegram:  %t
heartbeat: %s
audit:     %s
`,
		p.Orchestrator.Embassy, p.Embassy.Locale, p.Embassy.FacilityID,
		p.Orchestrator.Window,
		p.Timing.RetryLower, p.Timing.RetryUpper,
		p.Timing.WorkLimit, p.Timing.WorkCooldown,
		p.Timing.BanCooldown,
		p.Timing.StepInterval,
		p.Telegram,
		p.Heartbeat,
		p.Audit,
	)
	return err
}
