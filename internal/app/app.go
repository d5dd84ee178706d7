package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"livewatch/internal/bot"
	"livewatch/internal/config"
	"livewatch/internal/eventbus"
	"livewatch/internal/metrics"
	"livewatch/internal/notifier"
	"livewatch/internal/observability/opshttp"
	rtsup "livewatch/internal/runtime/supervisor"
	"livewatch/internal/schedule"
	"livewatch/internal/source"
	"livewatch/internal/storage"
	kit "livewatch/internal/transport"
	telegram "livewatch/internal/transport/telegram/adapter"
	"livewatch/internal/transport/telegram/router"
	"livewatch/internal/watch"
	logx "livewatch/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *prometheus.Registry

	store   storage.Store
	adapter *telegram.Adapter
	source  *source.Client
	watcher *watch.Watcher
	disp    *notifier.Dispatcher
	router  *router.Router
	bot     *bot.Bot
	ops     *opshttp.Service

	updates chan kit.Update
	events  chan watch.Event
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The adapter is the Telegram log sink, so it needs a logger first.
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.TelegramPollTimeout(),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogging(cfg), ad)
	log := root.With(logx.String("comp", "app"))
	comp := func(name string) logx.Logger { return root.With(logx.String("comp", name)) }

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	bus := eventbus.New()

	sc := mapStorage(cfg)
	store, err := storage.Open(sc, comp("storage"))
	switch {
	case errors.Is(err, storage.ErrDisabled):
		log.Warn("storage disabled; subscriptions are kept in memory only")
		store = storage.NewMemory()
	case err != nil:
		return nil, fmt.Errorf("storage: %w", err)
	default:
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	src, err := source.New(source.Options{
		URL:         cfg.Source.URL,
		Timeout:     cfg.SourceTimeout(),
		CacheWindow: cfg.SourceCacheWindow(),
		UserAgent:   cfg.Source.UserAgent,
		Metrics:     m,
		Bus:         bus,
	}, comp("source"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	est, err := schedule.New(cfg.Schedule.Cron, cfg.Schedule.Timezone, cfg.ScheduleLateBuffer())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	w, err := watch.New(watch.Options{
		Fetcher:    src,
		Estimator:  est,
		Intervals:  mapIntervals(cfg),
		LateBuffer: est.LateBuffer(),
		Metrics:    m,
		Bus:        bus,
	}, comp("watch"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	disp := notifier.New(mapNotifier(cfg), ad, store, comp("notifier"), notifier.Deps{Bus: bus, Metrics: m})
	rt := router.New(ad, cfg.Telegram.OwnerUserIDs, router.Options{Workers: cfg.Telegram.Workers}, comp("router"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		reg:     reg,
		store:   store,
		adapter: ad,
		source:  src,
		watcher: w,
		disp:    disp,
		router:  rt,
		updates: make(chan kit.Update, 256),
		events:  make(chan watch.Event, 64),
	}

	b, err := bot.New(bot.Deps{
		Watcher:    w,
		Store:      store,
		Dispatcher: disp,
		Source:     src,
		Location:   est.Location(),
		Runtime:    a.runtimeSnapshots,
		Dropped:    bus.Dropped,
	}, comp("bot"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.bot = b
	rt.SetCommands(b.Commands())
	a.ops = opshttp.New(mapOps(cfg), reg, a.healthz, comp("ops"))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		// Parse already ran Validate; the cron spec and timezone need the real parser.
		_, err := schedule.New(cfg.Schedule.Cron, cfg.Schedule.Timezone, cfg.ScheduleLateBuffer())
		return err
	})

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.disp.Start(run)
	a.ops.Start(run)

	a.sup.Go0("bot.consume", func(c context.Context) { a.bot.Consume(c, a.events) })
	if err := a.watcher.Start(run, a.events); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("telegram.menu", func(c context.Context) {
		if err := a.router.PublishMenu(c); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

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

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// keep only the newest config of a burst
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a reloaded config into the live components. Sections
// wired at construction only log that a restart is required.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	if prev.Telegram.Token != next.Telegram.Token || prev.Telegram.PollTimeout != next.Telegram.PollTimeout {
		a.log.Warn("telegram connection settings changed; restart required")
	}
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	for _, s := range sections {
		switch s {
		case "source", "schedule", "storage":
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogging(next))
	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	a.watcher.SetIntervals(mapIntervals(next))
	a.disp.Apply(mapNotifier(next))
	a.ops.Reconfigure(ctx, mapOps(next))

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Time: time.Now(), Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// healthz fails when the poll loop is not running or has stalled.
func (a *App) healthz(context.Context) error {
	st := a.watcher.State()
	if !st.Running {
		return errors.New("watcher not running")
	}
	if !st.LastPollAt.IsZero() && st.NextPollIn > 0 {
		if late := time.Since(st.LastPollAt) - st.NextPollIn; late > st.NextPollIn+time.Minute {
			return fmt.Errorf("poll loop stalled for %s", late.Round(time.Second))
		}
	}
	return nil
}

func (a *App) runtimeSnapshots() map[string]rtsup.Snapshot {
	out := map[string]rtsup.Snapshot{}
	add := func(name string, sup *rtsup.Supervisor) {
		if sup != nil {
			out[name] = sup.Snapshot()
		}
	}
	add("app", a.sup)
	add("telegram.adapter", a.adapter.Supervisor())
	add("telegram.router", a.router.Supervisor())
	add("ops", a.ops.Supervisor())
	return out
}

// Stop shuts components down in dependency order. Polling stops first so no
// new notifications start; in-flight deliveries then drain before the
// transport goes away.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("watcher", 2*time.Second, a.watcher.Stop)
	step("notifier", 5*time.Second, a.disp.Stop)
	a.sup.Cancel()
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
