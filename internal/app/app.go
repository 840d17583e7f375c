// Package app wires configuration, catalog, Telegram and the scheduler into
// one process and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"moviebot/internal/catalog"
	"moviebot/internal/commands"
	"moviebot/internal/config"
	"moviebot/internal/cycle"
	"moviebot/internal/dedup"
	"moviebot/internal/discovery"
	"moviebot/internal/eventbus"
	"moviebot/internal/format"
	"moviebot/internal/health"
	rtsup "moviebot/internal/runtime/supervisor"
	"moviebot/internal/storage"
	"moviebot/internal/task/scheduler"
	"moviebot/internal/transport"
	"moviebot/internal/transport/telegram"
	logx "moviebot/pkg/logx"
	"moviebot/pkg/systemd"
)

const probeTimeout = 15 * time.Second

// Catalog is the movie catalog as used by the app.
type Catalog interface {
	Fetch(ctx context.Context, cat catalog.Category) ([]catalog.Item, error)
	Search(ctx context.Context, query string) ([]catalog.Item, error)
	Ping(ctx context.Context) error
}

// Messenger is the Telegram side: channel publishing, interactive replies
// and update polling.
type Messenger interface {
	transport.Publisher
	transport.Replier
	Ping(ctx context.Context) error
	Start(ctx context.Context, out chan<- transport.Update) error
	Stop(ctx context.Context) error
	UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error
}

type publishSettings struct {
	maxItems     int
	pace         time.Duration
	retries      int
	retryBackoff time.Duration
}

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	state   stateBox
	started time.Time

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	sup  *rtsup.Supervisor

	catalog Catalog
	tg      Messenger
	store   storage.Store

	seen      *dedup.Store
	dedupSize atomic.Int64
	discover  *discovery.Engine
	cycle     *cycle.Cycle
	sched     *scheduler.Scheduler
	publish   publishSettings
	firstTask string

	router  *commands.Router
	health  *health.Server
	updates chan transport.Update

	lastMu    sync.Mutex
	lastCycle *health.Cycle
}

// NewApp loads the config at cfgPath (optional; the environment can supply
// everything) and builds every component without touching the network.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.Optional = true
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, startupErr(StageConfig, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, startupErr(StageValidate, err)
	}

	logSvc, log := logx.New(logConfig(cfg), nil)

	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, telegram.DefaultPollTimeout)
	sendTimeout, _ := config.ParseDurationOrDefault("publish.timeout", cfg.Publish.Timeout, telegram.DefaultSendTimeout)
	tg, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		ChannelID:   cfg.Telegram.ChannelID,
		PollTimeout: pollTimeout,
		SendTimeout: sendTimeout,
		RatePerMin:  cfg.Telegram.RatePerMin,
		APIURL:      cfg.Telegram.APIURL,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, startupErr(StageInit, err)
	}
	logSvc.SetSender(tg)

	tmdbTimeout, _ := config.ParseDurationOrDefault("tmdb.timeout", cfg.TMDB.Timeout, catalog.DefaultTimeout)
	cat, err := catalog.New(catalog.Options{
		BaseURL:  cfg.TMDB.BaseURL,
		APIKey:   cfg.TMDB.APIKey,
		Language: cfg.TMDB.Language,
		Timeout:  tmdbTimeout,
		Log:      log.With(logx.String("comp", "catalog")),
	})
	if err != nil {
		return nil, startupErr(StageInit, err)
	}

	a, err := newApp(cfgm, cfg, cat, tg, logSvc, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newApp assembles the app around already built external clients.
func newApp(cfgm *config.ConfigManager, cfg *config.Config, cat Catalog, tg Messenger, logSvc *logx.Service, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		catalog: cat,
		tg:      tg,
		seen:    dedup.New(),
		updates: make(chan transport.Update, 256),
	}
	a.state.set(StateInitializing)

	var err error
	if a.publish, err = publishConfig(cfg); err != nil {
		return nil, startupErr(StageInit, err)
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, startupErr(StageInit, fmt.Errorf("schedule.timezone: %w", err))
		}
	}

	if sc := cfg.Storage; sc != nil {
		busy, _ := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
		st, err := storage.Open(storage.Config{Driver: sc.Driver, Path: sc.Path, BusyTimeout: busy}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, startupErr(StageInit, err)
		}
		a.store = st
	}

	a.discover = discovery.New(cat, a.seen, log.With(logx.String("comp", "discovery")))
	fm := format.New(cfg.TMDB.ImageBaseURL)
	a.cycle = cycle.New(fm, tg, a.bus, log.With(logx.String("comp", "cycle")))
	a.sched = scheduler.New(scheduler.Options{
		Location: loc,
		Log:      log.With(logx.String("comp", "scheduler")),
		Bus:      a.bus,
	})
	if a.firstTask, err = a.registerSchedule(cfg); err != nil {
		a.closeStore()
		return nil, startupErr(StageInit, err)
	}

	a.router = commands.New(commands.Deps{
		Replier:    tg,
		Catalog:    cat,
		Formatter:  fm,
		Status:     commands.StatusFunc(a.Status),
		Categories: categories(cfg),
	}, commands.Options{Owners: cfg.Telegram.OwnerUserIDs}, log)

	if cfg.Health.Enabled {
		a.health = health.New(health.Config{Addr: cfg.Health.Addr, Pprof: cfg.Health.Pprof}, health.SourceFunc(a.Health), log)
	}
	return a, nil
}

func publishConfig(cfg *config.Config) (publishSettings, error) {
	pace, err := config.ParseDurationField("publish.pace", cfg.Publish.Pace)
	if err != nil {
		return publishSettings{}, err
	}
	backoff, err := config.ParseDurationField("publish.retry_backoff", cfg.Publish.RetryBackoff)
	if err != nil {
		return publishSettings{}, err
	}
	return publishSettings{
		maxItems:     cfg.Publish.MaxItems,
		pace:         pace,
		retries:      cfg.Publish.Retries,
		retryBackoff: backoff,
	}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func (a *App) State() State { return a.state.get() }

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// probe checks both external services concurrently.
func (a *App) probe(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, cancel := context.WithTimeout(gctx, probeTimeout)
		defer cancel()
		if err := a.catalog.Ping(c); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		c, cancel := context.WithTimeout(gctx, probeTimeout)
		defer cancel()
		if err := a.tg.Ping(c); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Start validates connectivity, then launches the scheduler and the
// supporting goroutines. A returned error is a *StartupError.
func (a *App) Start(ctx context.Context) error {
	a.state.set(StateValidating)
	if err := a.probe(ctx); err != nil {
		a.closeStore()
		return startupErr(StageProbe, err)
	}

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.started = time.Now()
	a.state.set(StateRunning)

	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		_, _ = systemd.Status("running")
	}

	a.startEvents()

	runOnStart := a.cfg.Schedule.RunOnStart
	first := a.firstTask
	a.sup.Go("scheduler", func(c context.Context) error {
		if runOnStart {
			a.log.Info("running first task on start", logx.String("task", first))
			if err := a.sched.RunNow(c, first); err != nil {
				a.log.Warn("startup run failed", logx.Err(err))
			}
		}
		return a.sched.Run(c)
	})

	if a.health != nil {
		a.sup.GoRestart("health.serve", a.health.Serve, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return systemd.Watchdog(c, iv, func() bool { return a.State() == StateRunning }, a.log)
		})
	}

	if a.cfg.CommandsEnabled() {
		if err := a.tg.Start(a.sup.Context(), a.updates); err != nil {
			a.sup.Cancel()
			return startupErr(StageInit, err)
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.Dispatch(c, a.updates)
		})
		a.sup.Go0("telegram.menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := a.tg.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	a.startConfigReload()

	a.log.Info("app started",
		logx.String("mode", a.cfg.Schedule.Mode),
		logx.Int("tasks", len(a.cfg.Schedule.Tasks)),
		logx.Bool("journal", a.store != nil),
		logx.Bool("health", a.health != nil),
	)
	return nil
}

// startEvents tracks the last cycle for /healthz and feeds the journal.
func (a *App) startEvents() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("events.track", func(c context.Context) {
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
				if cc, ok := e.Data.(eventbus.CycleCompleted); ok {
					a.lastMu.Lock()
					a.lastCycle = &health.Cycle{
						ID:        cc.CycleID,
						Task:      cc.Task,
						Finished:  cc.Started.Add(cc.Took),
						Attempted: cc.Attempted,
						Succeeded: cc.Succeeded,
						Skipped:   cc.Skipped,
						Failed:    cc.Failed,
					}
					a.lastMu.Unlock()
				}
			}
		}
	})

	if a.store == nil {
		return
	}
	jevents, junsub := a.bus.Subscribe(256)
	rec := storage.NewRecorder(a.store, a.log.With(logx.String("comp", "journal")))
	a.sup.Go("journal.write", func(c context.Context) error {
		defer junsub()
		return rec.Run(c, jevents)
	})
}

func (a *App) startConfigReload() {
	if a.cfgm == nil {
		return
	}
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	sub := a.cfgm.Subscribe(8)
	a.log.Info("watching config", logx.String("path", a.cfgm.Path()))
	applied := a.cfg
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				applied = a.applyConfig(applied, next)
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
}

// applyConfig applies the live sections of next and reports the rest. It
// returns the config now in effect.
func (a *App) applyConfig(cur, next *config.Config) *config.Config {
	if next == nil {
		return cur
	}
	if err := config.Validate(next); err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return cur
	}
	changed := config.ChangedSections(cur, next)
	if len(changed) == 0 {
		a.log.Debug("config reload: no changes")
		return cur
	}
	var restart []string
	for _, s := range changed {
		if !config.LiveSections[s] {
			restart = append(restart, s)
		}
	}
	if slices.Contains(changed, "logging") && a.logs != nil {
		a.logs.Apply(logConfig(next))
	}
	if !slices.Equal(cur.Telegram.OwnerUserIDs, next.Telegram.OwnerUserIDs) {
		a.router.SetOwners(next.Telegram.OwnerUserIDs)
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(changed, ",")))
	if len(restart) > 0 {
		a.log.Warn("restart required for config changes", logx.String("sections", strings.Join(restart, ",")))
	}
	// Only the live parts move forward; everything else keeps running as started.
	applied := *cur
	applied.Logging = next.Logging
	applied.Telegram.OwnerUserIDs = next.Telegram.OwnerUserIDs
	return &applied
}

// Health is the /healthz snapshot. Safe for concurrent use.
func (a *App) Health() health.Status {
	st := health.Status{
		State:         a.State().String(),
		DedupSize:     int(a.dedupSize.Load()),
		EventsDropped: eventbus.Dropped(a.bus),
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Truncate(time.Second).String()
	}
	a.lastMu.Lock()
	if a.lastCycle != nil {
		lc := *a.lastCycle
		st.LastCycle = &lc
	}
	a.lastMu.Unlock()
	var next time.Time
	for _, t := range a.sched.Snapshot() {
		if !t.Next.IsZero() && (next.IsZero() || t.Next.Before(next)) {
			next = t.Next
		}
	}
	if !next.IsZero() {
		st.NextRun = &next
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st
}

// Status is the /status view.
func (a *App) Status(ctx context.Context) commands.Status {
	st := commands.Status{
		State:     a.State().String(),
		DedupSize: int(a.dedupSize.Load()),
		Tasks:     a.sched.Snapshot(),
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started)
	}
	if a.store != nil {
		recent, err := a.store.RecentCycles(ctx, 5)
		if err != nil {
			a.log.Warn("journal read failed", logx.Err(err))
		}
		st.Recent = recent
	}
	return st
}

func (a *App) closeStore() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
		a.store = nil
	}
}

// Stop shuts everything down. Each step is bounded so a stuck component
// cannot hold the process.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStore()
		return nil
	}
	a.state.set(StateStopping)
	_, _ = systemd.Stopping()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step timeout", logx.String("name", name), logx.Duration("max", limit))
		}
	}

	step("telegram", 3*time.Second, a.tg.Stop)
	step("supervisor", 5*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		a.closeStore()
		return nil
	})

	a.state.set(StateStopped)
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
