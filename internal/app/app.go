package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/observability/httpapi"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor
	sups *rtsup.Registry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	router  *router.Router
	rem     *reminder.Service
	janitor *reminder.Janitor
	http    *httpapi.Server

	// applied reminders section, owned by the config.reload goroutine after
	// Start
	remCfg config.Reminders

	updates chan kit.Update
}

// New loads the config and builds every component. Opening the store is
// the only step allowed to fail on environment problems.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	remCfg, err := config.ResolveReminders(cfg.Reminders)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies immediately; enabling the ops chat before its target
	// is set would warn, so the target goes in between.
	logSvc, log := logx.New(mapLogConfig(cfg, false), ad)
	applyOpsTarget(logSvc, cfg)
	logSvc.Apply(mapLogConfig(cfg, true))
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver))

	bus := eventbus.New()
	sups := rtsup.NewRegistry()

	rem := reminder.NewService(store, router.NewDelivery(ad), reminder.Options{
		Bus:    bus,
		Log:    log,
		Limits: mapLimits(remCfg),
	})

	rt := router.New(router.Options{
		Log:              log,
		Adapter:          ad,
		Service:          rem,
		Supervisors:      sups,
		CreateRatePerMin: remCfg.CreateRatePerMin,
	})

	var hs *httpapi.Server
	if cfg.HTTP.Enabled {
		hs = httpapi.New(mapHTTPConfig(cfg), rem, sups, log).WithEvents(bus)
	}

	return &App{
		cfgm:    cfgm,
		sups:    sups,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		router:  rt,
		rem:     rem,
		janitor: reminder.NewJanitor(rem, log),
		http:    hs,
		remCfg:  remCfg,
		updates: make(chan kit.Update, 256),
	}, nil
}

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
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.sups.Set("app", a.sup)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		r, err := config.ResolveReminders(cfg.Reminders)
		if err != nil {
			return err
		}
		if err := reminder.ValidateSchedule(r.SweepSchedule); err != nil {
			return fmt.Errorf("reminders.sweep_schedule: %w", err)
		}
		return nil
	})

	// Timers must exist before the first command can cancel anything.
	a.startReminders()

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *rtsup.Supervisor }); ok {
		a.sups.Set("telegram.adapter", sp.Supervisor())
	}
	a.router.PublishMenu(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if err := a.janitor.Start(a.sup.Context(), a.remCfg.SweepSchedule, a.remCfg.Location); err != nil {
		a.log.Warn("janitor not started", logx.Err(err))
	}

	if a.http != nil {
		if err := a.http.Start(a.sup.Context()); err != nil {
			a.log.Error("http server not started", logx.Err(err))
		} else {
			a.sups.Set("httpapi", a.http.Supervisor())
		}
	}

	a.sup.Go0("eventbus.log", a.logEvents)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// startReminders reconciles synchronously once. When the store is not
// ready yet the reconcile keeps retrying in the background; commands get a
// "not ready" answer meanwhile.
func (a *App) startReminders() {
	sctx, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
	err := a.rem.Startup(sctx)
	cancel()
	if err == nil {
		return
	}
	a.log.Error("reminder startup failed; retrying", logx.Err(err))
	a.sup.GoRestart("reminders.startup", func(c context.Context) error {
		sctx, cancel := context.WithTimeout(c, 30*time.Second)
		defer cancel()
		return a.rem.Startup(sctx)
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
}

func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
			if re, ok := e.Data.(eventbus.ReminderEvent); ok {
				fields = append(fields, logx.Int64("id", re.ID), logx.Int64("owner", re.Owner))
			}
			a.log.Debug("event", fields...)
		}
	}
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
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
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the live-reloadable parts of newCfg into the running
// components and warns about sections that need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range config.RestartRequired(sections) {
		a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
	}

	// target first so Apply doesn't warn when ops logging gets enabled
	applyOpsTarget(a.logs, newCfg)
	a.logs.Apply(mapLogConfig(newCfg, true))

	r, err := config.ResolveReminders(newCfg.Reminders)
	if err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
	} else {
		a.rem.ApplyLimits(mapLimits(r))
		a.router.SetCreateRate(r.CreateRatePerMin)
		if err := a.janitor.Apply(r.SweepSchedule, r.Location); err != nil {
			a.log.Warn("janitor reschedule failed", logx.Err(err))
		}
		a.remCfg = r
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// cancel first so background loops start unwinding immediately
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			if max <= 0 {
				max = time.Millisecond
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	step("http", time.Second, func(c context.Context) error {
		if a.http == nil {
			return nil
		}
		return a.http.Stop(c)
	})
	step("janitor", time.Second, func(c context.Context) error { a.janitor.Stop(c); return nil })
	// in-flight deliveries still need the adapter
	step("reminders", 3*time.Second, a.rem.Stop)
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
