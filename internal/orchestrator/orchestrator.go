// Package orchestrator drives the booking session: authenticate, poll for
// availability, claim a better date when one shows up, and back off when the
// service throttles.
//
// One goroutine owns the state machine and the session handle. Everything
// else reads it through Status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/appointment"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/clock"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/eventbus"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/storage"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

// Notifier is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

type AuditLog interface {
	AppendLog(ctx context.Context, day, text string) error
}

// Config is fixed for the orchestrator's lifetime.
type Config struct {
	Window appointment.Window
	// Embassy labels availability messages.
	Embassy string

	RetryLower   time.Duration
	RetryUpper   time.Duration
	WorkLimit    time.Duration
	WorkCooldown time.Duration
	BanCooldown  time.Duration
}

// Deps are the orchestrator's collaborators. Only Gateway is required.
type Deps struct {
	Gateway  gateway.Gateway
	Notifier Notifier
	Audit    AuditLog
	Clock    clock.Clock
	// Backoff defaults to a uniform draw in [RetryLower, RetryUpper].
	Backoff *clock.Backoff
	Bus     eventbus.Bus
	Logger  logx.Logger
}

type Orchestrator struct {
	cfg   Config
	gw    gateway.Gateway
	notif Notifier
	audit AuditLog
	clk   clock.Clock
	wait  *clock.Backoff
	bus   eventbus.Bus
	log   logx.Logger

	// Owned by the Run goroutine.
	sess     gateway.Session
	target   civil.Date
	prev     []civil.Date
	havePrev bool

	mu     sync.RWMutex
	status Status
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Gateway == nil {
		return nil, errors.New("orchestrator: gateway is required")
	}
	if !cfg.Window.Start.Before(cfg.Window.End) {
		return nil, fmt.Errorf("orchestrator: %w", appointment.ErrInvalidWindow)
	}
	if cfg.WorkLimit <= 0 || cfg.WorkCooldown < 0 || cfg.BanCooldown < 0 {
		return nil, errors.New("orchestrator: durations must be positive")
	}
	o := &Orchestrator{
		cfg:   cfg,
		gw:    deps.Gateway,
		notif: deps.Notifier,
		audit: deps.Audit,
		clk:   deps.Clock,
		wait:  deps.Backoff,
		bus:   deps.Bus,
		log:   deps.Logger,
	}
	if o.notif == nil {
		o.notif = nopNotifier{}
	}
	if o.audit == nil {
		o.audit = storage.Discard{}
	}
	if o.clk == nil {
		o.clk = clock.Real{}
	}
	if o.wait == nil {
		b, err := clock.NewBackoff(cfg.RetryLower, cfg.RetryUpper, nil)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		o.wait = b
	}
	if o.bus == nil {
		o.bus = eventbus.Nop{}
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	o.log = o.log.With(logx.String("comp", "orchestrator"))
	o.status = Status{State: StateBootstrapping, Since: o.clk.Now()}
	return o, nil
}

// Status is safe to call from any goroutine.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := o.status
	st.LastListing = append([]civil.Date(nil), o.status.LastListing...)
	if o.status.LastOutcome != nil {
		oc := *o.status.LastOutcome
		st.LastOutcome = &oc
	}
	return st
}

// Run blocks until ctx is done. Faults never end it; they re-bootstrap the
// session after the ban cooldown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("orchestrator started",
		logx.Stringer("window", o.cfg.Window),
		logx.Duration("retry_lower", o.cfg.RetryLower),
		logx.Duration("retry_upper", o.cfg.RetryUpper),
		logx.Duration("work_limit", o.cfg.WorkLimit),
	)
	defer o.finalSignOut()

	for {
		if ctx.Err() != nil {
			o.log.Info("orchestrator stopped", logx.Err(ctx.Err()))
			return nil
		}
		err := o.step(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		o.fault(ctx, err)
	}
}

func (o *Orchestrator) step(ctx context.Context) (err error) {
	state := o.state()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("panic in state step",
				logx.Stringer("state", state),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", state, r)
		}
	}()

	switch state {
	case StateBootstrapping:
		return o.bootstrap(ctx)
	case StateAuthenticated:
		o.setState(StatePolling)
		return nil
	case StatePolling:
		return o.poll(ctx)
	case StateRescheduling:
		return o.reschedule(ctx)
	case StateBanCooldown:
		return o.cooldown(ctx, o.cfg.BanCooldown)
	case StateWorkCooldown:
		return o.cooldown(ctx, o.cfg.WorkCooldown)
	default:
		return fmt.Errorf("unknown state %d", int(state))
	}
}

// fault is the recovery path for any error escaping a step.
func (o *Orchestrator) fault(ctx context.Context, err error) {
	o.log.Error("transient fault, re-bootstrapping",
		logx.Stringer("state", o.state()),
		logx.Err(err),
		logx.Duration("cooldown", o.cfg.BanCooldown),
	)
	o.appendAudit(ctx, fmt.Sprintf("Transient fault in %s: %v", o.state(), err))
	o.mu.Lock()
	o.status.LastError = err.Error()
	o.status.Faults++
	o.mu.Unlock()
	o.bus.Publish(eventbus.Event{Type: EventFault, Data: err.Error()})

	o.signOut(ctx)
	o.setState(StateBootstrapping)
	_ = o.clk.Sleep(ctx, o.cfg.BanCooldown)
}

func (o *Orchestrator) bootstrap(ctx context.Context) error {
	sess, err := o.gw.Authenticate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.log.Warn("authentication failed", logx.Err(err), logx.Duration("retry_in", o.cfg.BanCooldown))
		o.appendAudit(ctx, fmt.Sprintf("Authentication failed: %v", err))
		o.bus.Publish(eventbus.Event{Type: EventAuthFailed, Data: err.Error()})
		return o.clk.Sleep(ctx, o.cfg.BanCooldown)
	}
	o.sess = sess

	held, ok, err := o.gw.FetchCurrentAppointment(ctx, sess)
	if err != nil {
		return fmt.Errorf("fetch current appointment: %w", err)
	}
	if !ok {
		held = civil.Date{}
	}

	cycle := WorkCycle{ID: uuid.New(), Start: o.clk.Now()}
	o.mu.Lock()
	o.status.Held = held
	o.status.Cycle = cycle
	o.mu.Unlock()

	heldText := "none"
	if held.IsValid() {
		heldText = held.String()
	}
	o.log.Info("session started",
		logx.String("cycle", cycle.ID.String()),
		logx.String("held", heldText),
		logx.String("effective_end", appointment.EffectiveEnd(o.cfg.Window, held).String()),
	)
	o.appendAudit(ctx, fmt.Sprintf("Current appointment date: %s. Working...", heldText))
	o.setState(StateAuthenticated)
	return nil
}

func (o *Orchestrator) poll(ctx context.Context) error {
	now := o.clk.Now()
	o.mu.Lock()
	o.status.Cycle.Requests++
	o.status.LastPoll = now
	n := o.status.Cycle.Requests
	o.mu.Unlock()

	header := fmt.Sprintf("%s\nRequest count: %d, Log time: %s\n", dashes, n, now.Format(logTimeLayout))
	o.log.Info("polling", logx.Int("request", n))
	o.appendAudit(ctx, header)

	dates, err := o.gw.FetchAvailableDates(ctx, o.sess)
	if err != nil {
		return fmt.Errorf("fetch available dates: %w", err)
	}

	if len(dates) == 0 {
		o.log.Warn("empty listing, cooling down", logx.Duration("cooldown", o.cfg.BanCooldown))
		o.appendAudit(ctx, header)
		o.notif.Notify(ctx, TitleBan, header)
		o.bus.Publish(eventbus.Event{Type: EventBan, Data: PollResult{Requests: n}})
		o.signOut(ctx)
		o.setState(StateBanCooldown)
		return nil
	}

	changed := !o.havePrev || !appointment.SameListing(o.prev, dates)
	listing := o.formatListing(dates)
	if changed {
		o.notif.Notify(ctx, TitleDatesAvailable, listing)
	}
	o.appendAudit(ctx, listing)
	o.prev = append(o.prev[:0], dates...)
	o.havePrev = true

	o.mu.Lock()
	o.status.LastListing = append([]civil.Date(nil), dates...)
	held := o.status.Held
	o.mu.Unlock()
	o.bus.Publish(eventbus.Event{Type: EventPoll, Data: PollResult{Requests: n, Dates: len(dates), Changed: changed}})

	if d, ok := appointment.SelectBestDate(dates, o.cfg.Window, held); ok {
		o.log.Info("qualifying date found", logx.String("date", d.String()))
		o.target = d
		o.setState(StateRescheduling)
		return nil
	}
	return o.pace(ctx)
}

func (o *Orchestrator) reschedule(ctx context.Context) error {
	d := o.target
	times, err := o.gw.FetchAvailableTimes(ctx, o.sess, d)
	if err != nil {
		return fmt.Errorf("fetch available times for %s: %w", d, err)
	}

	var outcome appointment.Outcome
	tod, ok := appointment.PreferredTime(times)
	if !ok {
		outcome = appointment.Outcome{Kind: appointment.OutcomeFailure, Date: d, Reason: "no time slots offered"}
	} else {
		body, err := o.gw.SubmitReschedule(ctx, o.sess, d, tod)
		switch {
		case err == nil:
			outcome = appointment.ClassifySubmission(d, tod, body)
		case errors.Is(err, gateway.ErrSessionExpired), ctx.Err() != nil:
			return fmt.Errorf("submit reschedule: %w", err)
		default:
			outcome = appointment.Outcome{Kind: appointment.OutcomeFailure, Date: d, Time: tod, Reason: err.Error()}
		}
	}
	o.record(ctx, outcome)

	o.setState(StatePolling)
	return o.pace(ctx)
}

func (o *Orchestrator) record(ctx context.Context, oc appointment.Outcome) {
	o.mu.Lock()
	if oc.Succeeded() {
		o.status.Held = oc.Date
	}
	o.status.LastOutcome = &oc
	o.mu.Unlock()

	if oc.Succeeded() {
		o.log.Info("rescheduled", logx.String("date", oc.Date.String()), logx.String("time", oc.Time))
		o.notif.Notify(ctx, TitleSuccess, oc.String())
		o.appendAudit(ctx, oc.String())
	} else {
		o.log.Warn("reschedule failed", logx.String("date", oc.Date.String()), logx.String("time", oc.Time), logx.Int("reason_len", len(oc.Reason)))
		o.notif.Notify(ctx, TitleFail, oc.String()+"\n"+truncate(oc.Reason, notifyReasonLimit))
		o.appendAudit(ctx, oc.String()+"\n"+oc.Reason)
	}
	o.bus.Publish(eventbus.Event{Type: EventOutcome, Data: oc})
}

// pace ends every poll: either rest after the work limit or wait a random interval.
func (o *Orchestrator) pace(ctx context.Context) error {
	o.mu.RLock()
	cycle := o.status.Cycle
	o.mu.RUnlock()

	elapsed := o.clk.Now().Sub(cycle.Start)
	o.appendAudit(ctx, fmt.Sprintf("\nWorking Time:  ~ %.2f minutes", elapsed.Minutes()))
	if elapsed > o.cfg.WorkLimit {
		o.log.Info("work limit reached, resting",
			logx.Duration("elapsed", elapsed),
			logx.Int("requests", cycle.Requests),
			logx.Duration("cooldown", o.cfg.WorkCooldown),
		)
		o.signOut(ctx)
		o.setState(StateWorkCooldown)
		return nil
	}

	wait := o.wait.Next()
	o.appendAudit(ctx, fmt.Sprintf("Retry Wait Time: %d seconds", int(wait.Seconds())))
	o.log.Debug("waiting", logx.Duration("wait", wait))
	return o.clk.Sleep(ctx, wait)
}

func (o *Orchestrator) cooldown(ctx context.Context, d time.Duration) error {
	if err := o.clk.Sleep(ctx, d); err != nil {
		return err
	}
	o.setState(StateBootstrapping)
	return nil
}

func (o *Orchestrator) signOut(ctx context.Context) {
	if o.sess == nil {
		return
	}
	sess := o.sess
	o.sess = nil
	if err := o.gw.SignOut(ctx, sess); err != nil {
		o.log.Warn("sign out failed", logx.Err(err))
	}
}

func (o *Orchestrator) finalSignOut() {
	if o.sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.signOut(ctx)
}

func (o *Orchestrator) state() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status.State
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	from := o.status.State
	o.status.State = s
	o.status.Since = o.clk.Now()
	o.mu.Unlock()
	if from == s {
		return
	}
	o.log.Debug("state change", logx.Stringer("from", from), logx.Stringer("to", s))
	o.bus.Publish(eventbus.Event{Type: EventState, Data: StateChange{From: from, To: s}})
}

func (o *Orchestrator) appendAudit(ctx context.Context, text string) {
	day := storage.DayKey(o.clk.Now())
	if err := o.audit.AppendLog(ctx, day, text); err != nil && !errors.Is(err, context.Canceled) {
		o.log.Warn("audit append failed", logx.Err(err))
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) {}
