package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/config"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/eventbus"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/gateway/ais"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/heartbeat"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/metrics"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/notifier"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/runtime/supervisor"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/storage"
	kit "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport"
	telegram "github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport/telegram/adapter"
	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/transport/telegram/router"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	// adapter is nil when Telegram is not configured.
	adapter kit.Adapter
	cmdm    *router.CommandManager

	notif   *notifier.Service
	orch    *orchestrator.Orchestrator
	beat    *heartbeat.Heartbeat
	metrics *metrics.Metrics

	metricsCfg metrics.ServerConfig
	updates    chan kit.Message

	orchStarted bool
	orchExit    chan struct{}
}

// NewApp loads the config at cfgPath (with env overrides) and builds every
// component. Nothing runs until Start.
func NewApp(cfgPath string, env config.Env) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath, env)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("audit log ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	var (
		ad     *telegram.Adapter
		sender kit.Sender
	)
	if cfg.TelegramEnabled() {
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		ad, err = telegram.New(tc, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		sender = ad
	} else {
		log.Warn("telegram not configured; notifications are recorded but not delivered")
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notifSvc := notifier.New(ncfg, sender, log, bus)

	emb, err := ResolveEmbassy(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ocfg, timing, err := mapOrchestratorConfig(cfg, embassyLabel(cfg, emb))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	gcfg, err := mapGatewayConfig(cfg, timing)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	gw, err := ais.New(gcfg, log.With(logx.String("comp", "gateway")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	orch, err := orchestrator.New(ocfg, orchestrator.Deps{
		Gateway:  gw,
		Notifier: notifSvc,
		Audit:    store,
		Bus:      bus,
		Logger:   log,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var beat *heartbeat.Heartbeat
	if hc, on, err := mapHeartbeatConfig(cfg); err != nil {
		_ = store.Close()
		return nil, err
	} else if on {
		beat, err = heartbeat.New(hc, notifSvc, orch, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	a := &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		notif:      notifSvc,
		orch:       orch,
		beat:       beat,
		metrics:    metrics.New(),
		metricsCfg: mapMetricsConfig(cfg),
		updates:    make(chan kit.Message, 64),
		orchExit:   make(chan struct{}),
	}
	if ad != nil {
		a.adapter = ad
		a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
		a.cmdm.SetCommands(context.Background(), router.Builtins(router.Deps{
			Status:  orch,
			History: notifSvc,
			Audit:   store,
			Window:  ocfg.Window,
		}))
	}
	log.Info("configured",
		logx.String("embassy", ocfg.Embassy),
		logx.Stringer("window", ocfg.Window),
		logx.Duration("retry_lower", ocfg.RetryLower),
		logx.Duration("retry_upper", ocfg.RetryUpper),
		logx.Bool("telegram", ad != nil),
		logx.Bool("heartbeat", beat != nil),
	)
	return a, nil
}

// Status exposes the orchestrator snapshot.
func (a *App) Status() orchestrator.Status { return a.orch.Status() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return Validate(cfg) })

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.cmdm.DispatchLoop(c, a.updates)
		})
	}
	a.notif.Start(a.sup.Context())

	a.sup.Go0("metrics.consume", func(c context.Context) { a.metrics.Consume(c, a.bus) })
	if a.metricsCfg.Addr != "" {
		a.sup.Go("metrics.serve", func(c context.Context) error {
			return a.metrics.Serve(c, a.metricsCfg, a.log.With(logx.String("comp", "metrics")))
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.startSystemd()

	if a.beat != nil {
		a.beat.Start(a.sup.Context())
	}

	a.orchStarted = true
	a.sup.Go("orchestrator", func(c context.Context) error {
		defer close(a.orchExit)
		return a.orch.Run(c)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig hot-applies logging, notifier and owner changes. Everything
// else is only logged as pending a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	var pending []string
	for _, s := range sections {
		if config.RequiresRestart(s) {
			pending = append(pending, s)
		}
	}
	if len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strings("sections", pending))
	}

	if err := a.logs.Apply(mapLogConfig(newCfg)); err != nil {
		a.log.Warn("log file disabled", logx.Err(err))
	}

	if a.cmdm != nil {
		a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)
	}

	prev := a.notif.Enabled()
	ncfg, err := mapNotifierConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		// The target chat is bound to the running adapter.
		ncfg.Target = kit.ChatTarget{ChatID: oldCfg.Telegram.ChatID, ThreadID: oldCfg.Telegram.ThreadID}
		a.notif.Apply(ncfg)
		switch now := a.notif.Enabled(); {
		case prev && !now:
			a.log.Info("notifier disabled via config")
		case !prev && now:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notifySystemdStopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The orchestrator signs out on its way out; give it time before the rest goes away.
	step("orchestrator", 6*time.Second, func(c context.Context) error {
		if !a.orchStarted {
			return nil
		}
		select {
		case <-a.orchExit:
		case <-c.Done():
			return c.Err()
		}
		return nil
	})
	step("heartbeat", time.Second, func(c context.Context) error {
		if a.beat != nil {
			a.beat.Stop(c)
		}
		return nil
	})
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter != nil {
			return a.adapter.Stop(c)
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
