package notifier

import (
	"context"
	"errors"
	"html"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/eventbus"
	rtsup "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/runtime/supervisor"
	kit "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historyCap = 50

type job struct {
	title, body string
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan job
	sup       *rtsup.Supervisor

	hmu     sync.Mutex
	history []HistoryItem
}

// New returns a stopped service. A nil sender yields a service that only
// records history, which is what runs when Telegram is not configured.
func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Apply swaps the delivery settings. The queue keeps its size until restart.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the delivery worker. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || s.sender == nil {
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	q := s.queue
	s.sup.GoRestart("worker", func(c context.Context) error {
		s.workerLoop(c, q)
		return nil
	}, rtsup.WithPublishFirstError(true))
}

// Stop refuses new messages and drains the queue until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil || !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	s.sendWG.Wait()
	close(q)
	_ = sup.Wait(ctx)
	sup.Cancel()
	if err := ctx.Err(); err != nil {
		s.log.Warn("notifier stop timed out; pending messages dropped", logx.Err(err))
	}

	s.mu.Lock()
	s.queue = nil
	s.sup = nil
	s.mu.Unlock()
}

// Notify queues a message and returns immediately. Failures are logged, never returned.
func (s *Service) Notify(ctx context.Context, title, body string) {
	if err := s.enqueue(ctx, title, body); err != nil && !errors.Is(err, ErrDisabled) {
		s.log.Debug("notification not queued", logx.String("title", title), logx.Err(err))
	}
}

func (s *Service) enqueue(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled || s.sender == nil {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- job{title: title, body: body}:
		return nil
	default:
		s.bus.Publish(eventbus.Event{Type: EventDropped, Data: Event{Title: title, At: time.Now(), Error: ErrQueueFull.Error()}})
		return ErrQueueFull
	}
}

// History returns delivered messages, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(j job) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Title: j.title, Body: j.body})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.RetryBase
	bo.MaxInterval = cfg.RetryMaxDelay
	bo.RandomizationFactor = 0.3

	text := format(j.title, j.body)
	opts := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	attempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := sender.SendText(callCtx, cfg.Target, text, opts)
		cancel()
		if err == nil {
			s.appendHistory(j)
			s.bus.Publish(eventbus.Event{Type: EventSent, Data: Event{Title: j.title, At: time.Now()}})
			return
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			wait = bo.MaxInterval
		}
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Duration("wait", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	s.log.Warn("notification dropped after retries", logx.String("title", j.title), logx.Int("attempts", attempts), logx.Err(lastErr))
	s.bus.Publish(eventbus.Event{Type: EventFailed, Data: Event{Title: j.title, At: time.Now(), Error: lastErr.Error()}})
}

func format(title, body string) string {
	if body == "" {
		return "<b>" + html.EscapeString(title) + "</b>"
	}
	return "<b>" + html.EscapeString(title) + "</b>\n" + html.EscapeString(body)
}
