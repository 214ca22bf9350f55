package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mqwatch/internal/broker"
	"mqwatch/internal/config"
	"mqwatch/internal/eventbus"
	"mqwatch/internal/monitor"
	"mqwatch/internal/notify"
	"mqwatch/internal/ops"
	"mqwatch/internal/registry"
	"mqwatch/internal/runtime/supervisor"
	"mqwatch/internal/scheduler"
	"mqwatch/internal/transport/smtp"
	logx "mqwatch/pkg/logx"
)

// ScanJob is the scheduler name of the consumer-group scan.
const ScanJob = "consumer-scan"

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	registry   registry.Registry
	dispatcher *notify.Dispatcher
	scanner    *monitor.Scanner
	sched      *scheduler.Service
	ops        *ops.Server
}

// Options overrides collaborators; zero values build the real ones.
type Options struct {
	Notify notify.Deps
}

func New(cfgPath string) (*App, error) {
	return NewWithOptions(cfgPath, Options{})
}

func NewWithOptions(cfgPath string, opt Options) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	logSvc, root := logx.New(mapLoggingConfig(cfg.Logging))
	log := root.With(logx.String("comp", "app"))
	bus := eventbus.New()

	a := &App{cfgPath: cfgPath, cfgm: cfgm, log: log, logs: logSvc, bus: bus}
	if err := a.build(cfg, root, opt); err != nil {
		if a.registry != nil {
			_ = a.registry.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *Config, root logx.Logger, opt Options) error {
	loc, err := loadLocation(cfg.Monitor.Timezone)
	if err != nil {
		return fmt.Errorf("monitor.timezone: %w", err)
	}

	rc, err := mapRegistryConfig(cfg)
	if err != nil {
		return err
	}
	reg, err := registry.Open(rc, root.With(logx.String("comp", "registry")))
	if err != nil {
		return err
	}
	a.registry = reg

	bc, err := mapBrokerConfig(cfg)
	if err != nil {
		return err
	}
	prov, err := broker.Open(bc, nil)
	if err != nil {
		return err
	}

	nc, err := mapNotifyConfig(cfg)
	if err != nil {
		return err
	}
	formatter := monitor.NewFormatter(cfg.Monitor.Product, loc)
	deps := opt.Notify
	deps.Log = root
	deps.Bus = a.bus
	if deps.Subject == "" {
		deps.Subject = formatter.Subject()
	}
	if deps.Mail == nil {
		if sc, ok, err := mapSMTPConfig(cfg); err != nil {
			return err
		} else if ok {
			tr, err := smtp.New(sc)
			if err != nil {
				return fmt.Errorf("notify.mail.smtp: %w", err)
			}
			deps.Mail = tr
		}
	}
	disp, err := notify.Build(nc, deps)
	if err != nil {
		return err
	}
	a.dispatcher = disp

	a.scanner = monitor.NewScanner(reg, prov, disp, monitor.Options{
		Workers:   cfg.Monitor.Workers,
		Formatter: formatter,
		Log:       root.With(logx.String("comp", "monitor")),
		Bus:       a.bus,
	})

	passTimeout, err := parseDurationOrDefault("monitor.pass_timeout", cfg.Monitor.PassTimeout, 0)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(scheduler.Config{
		Timezone:   cfg.Monitor.Timezone,
		RunOnStart: cfg.Monitor.RunOnStart,
	}, root.With(logx.String("comp", "scheduler")))
	if err := a.sched.Add(ScanJob, cfg.Monitor.Schedule, passTimeout, a.scan); err != nil {
		return fmt.Errorf("monitor.schedule: %w", err)
	}

	if cfg.Ops.Enabled {
		a.ops = ops.New(ops.Config{Addr: cfg.Ops.Addr, Pprof: cfg.Ops.Pprof}, ops.Deps{
			Bus:       a.bus,
			Channels:  disp.Channels,
			Schedules: a.sched.Snapshot,
			Tasks:     a.tasks,
			Log:       root,
		})
	}

	a.log.Info("app configured",
		logx.String("config", a.cfgPath),
		logx.String("registry", rc.Driver),
		logx.String("broker", bc.Driver),
		logx.Strings("channels", disp.Channels()),
		logx.String("schedule", cfg.Monitor.Schedule),
		logx.Int("workers", cfg.Monitor.Workers),
	)
	if len(disp.Channels()) == 0 {
		a.log.Warn("no notification channel enabled; breaches will only be logged")
	}
	return nil
}

func (a *App) scan(ctx context.Context) error {
	rep := a.scanner.RunPass(ctx)
	switch {
	case rep.Err != "":
		return errors.New(rep.Err)
	case rep.Abandoned:
		return fmt.Errorf("pass %s abandoned after %d/%d groups: %w", rep.ID, rep.Evaluated, rep.Groups, context.Cause(ctx))
	}
	return nil
}

func (a *App) tasks() []supervisor.TaskStats {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

// RunOnce performs a single scan pass outside the scheduler.
func (a *App) RunOnce(ctx context.Context) monitor.PassReport {
	return a.scanner.RunPass(ctx)
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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		config.ApplyDefaults(cfg)
		return config.Validate(cfg)
	})

	// passes outlive the supervisor; Stop bounds them through the scheduler
	if err := a.sched.Start(context.WithoutCancel(a.sup.Context())); err != nil {
		return err
	}
	if a.ops != nil {
		a.sup.Go("ops.http", a.ops.Run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// debug only; every pass publishes
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", 250*time.Millisecond, 5*time.Second, a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// reloadLoop applies logging changes live. Everything else is fixed for the
// process lifetime and only reported.
func (a *App) reloadLoop(ctx context.Context, sub chan *Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
		// coalesce bursts
	drain:
		for {
			select {
			case newer, ok := <-sub:
				if !ok {
					return
				}
				if newer != nil {
					newCfg = newer
				}
			default:
				break drain
			}
		}
		if newCfg == nil {
			continue
		}

		sections, attrs, restart := SummarizeConfigChange(lastApplied, newCfg)
		lastApplied = newCfg
		if len(sections) == 0 {
			a.log.Info("config reloaded (no changes)")
			continue
		}
		a.logs.Apply(mapLoggingConfig(newCfg.Logging))
		if len(restart) > 0 {
			a.log.Warn("config changed; restart required for changes to take effect", logx.Strings("sections", restart))
		}
		a.log.Info("config reloaded", attrs...)
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// step bounds one shutdown stage so it cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

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

	// the scheduler waits for an in-flight pass before returning
	step("scheduler", 10*time.Second, a.sched.Stop)
	if a.sup != nil {
		a.sup.Cancel()
		step("supervisor", 3*time.Second, a.sup.Wait)
	}
	step("registry", time.Second, func(context.Context) error { return a.registry.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
