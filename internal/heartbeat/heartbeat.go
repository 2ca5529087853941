// Package heartbeat sends a periodic "still working" notification so that
// silence on the channel keeps meaning "nothing to report".
package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

const (
	DefaultSchedule = "@midnight"
	Title           = "NEW_DAY"
	message         = "Its a new day. No news. Still working..."
)

type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

type StatusSource interface {
	Status() orchestrator.Status
}

type Config struct {
	// Schedule is a 5-field cron spec or descriptor; empty means DefaultSchedule.
	Schedule string
	Location *time.Location
}

type Heartbeat struct {
	sched  cron.Schedule
	loc    *time.Location
	notif  Notifier
	status StatusSource
	log    logx.Logger

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(cfg Config, notif Notifier, status StatusSource, log logx.Logger) (*Heartbeat, error) {
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("heartbeat schedule %q: %w", spec, err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Heartbeat{
		sched:  sched,
		loc:    loc,
		notif:  notif,
		status: status,
		log:    log.With(logx.String("comp", "heartbeat")),
	}, nil
}

// Next reports the first beat after t.
func (h *Heartbeat) Next(t time.Time) time.Time { return h.sched.Next(t.In(h.loc)) }

func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.c != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.c = cron.New(cron.WithLocation(h.loc))
	h.c.Schedule(h.sched, cron.FuncJob(func() { h.Beat(runCtx) }))
	h.c.Start()
	h.log.Info("heartbeat scheduled", logx.Time("next", h.Next(time.Now())), logx.String("tz", h.loc.String()))
}

func (h *Heartbeat) Stop(ctx context.Context) {
	h.mu.Lock()
	c, cancel := h.c, h.cancel
	h.c, h.cancel = nil, nil
	h.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Beat sends one heartbeat now.
func (h *Heartbeat) Beat(ctx context.Context) {
	body := message
	if h.status != nil {
		st := h.status.Status()
		held := "none"
		if st.Held.IsValid() {
			held = st.Held.String()
		}
		body += fmt.Sprintf("\nstate: %s, held: %s, requests this cycle: %d", st.State, held, st.Cycle.Requests)
	}
	h.log.Info("heartbeat")
	h.notif.Notify(ctx, Title, body)
}
