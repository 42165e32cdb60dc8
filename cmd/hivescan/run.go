package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"hivescan/internal/adapter/archive"
	"hivescan/internal/adapter/captcha/twocaptcha"
	"hivescan/internal/adapter/console"
	"hivescan/internal/adapter/feed/ws"
	httpadapter "hivescan/internal/adapter/http"
	metricsinmem "hivescan/internal/adapter/metrics/inmemory"
	"hivescan/internal/adapter/proxy/filelist"
	"hivescan/internal/adapter/session/gateway"
	"hivescan/internal/adapter/sink"
	"hivescan/internal/adapter/version"
	"hivescan/internal/adapter/webhook"
	"hivescan/internal/app/accountpool"
	"hivescan/internal/app/accountset"
	"hivescan/internal/app/action"
	"hivescan/internal/app/captcha"
	"hivescan/internal/app/overseer"
	"hivescan/internal/app/pacing"
	"hivescan/internal/app/ports"
	"hivescan/internal/app/scheduler"
	"hivescan/internal/app/stats"
	"hivescan/internal/app/status"
	"hivescan/internal/app/worker"
	"hivescan/internal/config"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/cobra"
)

const statsBuffer = 1024

var errNoAccounts = errors.New("no accounts configured")

func newRunCmd(opts *rootOptions) *cobra.Command {
	var consoleEvery time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the overseer, the workers and the operations API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			accts, err := config.LoadAccounts(opts.cfg.AccountsFile)
			if err != nil {
				return fmt.Errorf("load accounts: %w", err)
			}
			store, closeStore, err := openBackend(opts.cfg.Storage)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					slog.Warn("close storage failed", "err", err)
				}
			}()
			s, err := build(opts.cfg, accts, store, slog.Default())
			if err != nil {
				return err
			}
			return s.run(ctx, opts.watchedPath(), consoleEvery, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&consoleEvery, "console-interval", 0, "print the worker table every interval (0 disables)")
	return cmd
}

// scanner is the fully wired process.
type scanner struct {
	cfg    *config.Config
	logger *slog.Logger

	queue    *sink.Queue
	hooks    *webhook.Dispatcher
	archive  *archive.Writer
	proxies  *filelist.List
	limits   *worker.Limits
	registry *status.Registry
	overseer *overseer.Overseer
	ops      httpadapter.Handler
	feed     *ws.Server
}

func build(cfg *config.Config, accts *config.Accounts, store backend, logger *slog.Logger) (*scanner, error) {
	if len(accts.Accounts) == 0 {
		return nil, errNoAccounts
	}
	if cfg.Gateway.URL == "" {
		return nil, fmt.Errorf("%w: gateway.url is required to scan", config.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &scanner{cfg: cfg, logger: logger, registry: status.NewRegistry()}

	s.queue = sink.NewQueue(store, sink.DefaultBuffer)
	s.queue.Logger = logger

	var hook ports.Webhook
	if len(cfg.Webhooks.URLs) > 0 {
		d, err := webhook.NewDispatcher(webhook.Config{
			URLs:      cfg.Webhooks.URLs,
			Whitelist: cfg.Webhooks.Whitelist,
			Blacklist: cfg.Webhooks.Blacklist,
			Timeout:   config.Seconds(cfg.Webhooks.TimeoutSeconds),
			Buffer:    webhook.DefaultBuffer,
		})
		if err != nil {
			return nil, fmt.Errorf("webhooks: %w", err)
		}
		d.Logger = logger
		if cfg.Webhooks.ArchiveDir != "" {
			s.archive = archive.NewWriter(cfg.Webhooks.ArchiveDir, "webhooks")
			d.Archive = s.archive
		}
		s.hooks = d
		hook = d
	}

	var proxies ports.ProxyProvider
	if cfg.ProxyFile != "" {
		l, err := filelist.Load(cfg.ProxyFile)
		if err != nil {
			return nil, err
		}
		l.Logger = logger
		logger.Info("proxies loaded", "path", cfg.ProxyFile, "count", l.Len())
		s.proxies = l
		proxies = l
	}

	var solver ports.CaptchaSolver
	if cfg.Captcha.Solving {
		sv, err := twocaptcha.New(twocaptcha.Config{
			Key:     cfg.Captcha.Key,
			URL:     cfg.Captcha.URL,
			Refresh: config.Seconds(cfg.Captcha.RefreshSeconds),
			Timeout: config.Seconds(cfg.Captcha.TimeoutSeconds),
		})
		if err != nil {
			return nil, fmt.Errorf("captcha solver: %w", err)
		}
		sv.Logger = logger
		solver = sv
	}

	sessions := gateway.Gateway{BaseURL: cfg.Gateway.URL, Timeout: config.Seconds(cfg.Gateway.TimeoutSeconds)}
	agg := stats.NewAggregator(statsBuffer, nil)
	pause := pacing.NewPauseBit()
	sideline := captcha.NewSideline()
	hashKeys := hashkey.NewScheduler(cfg.HashKeys)
	recorder := metricsinmem.NewRecorder()
	s.limits = worker.NewLimits(cfg.AccountMaxThrows, cfg.AccountMaxCatches, cfg.AccountMaxSpins)

	pool := accountpool.New(config.Build(accts.Accounts), config.Seconds(cfg.AccountRestIntervalSeconds))
	pool.Sink = s.queue
	pool.Logger = logger

	var (
		hlSet      *accountset.Set
		highLevel  worker.HighLevelSource
		hlAccounts = config.Build(accts.HighLevelAccounts)
	)
	if len(hlAccounts) > 0 {
		hlSet = accountset.New(cfg.HighLevelKph)
		hlSet.Logger = logger
		highLevel = hlSet
	}

	schedulers, err := scheduler.NewFactory(cfg.Scheduler, scheduler.Options{
		StepLimit:    cfg.StepLimit,
		StepDistance: scheduler.StepDistanceFor(cfg.NoPokemon),
		ScanDelay:    config.Seconds(cfg.ScanDelaySeconds),
	}, store)
	if err != nil {
		return nil, err
	}

	wcfg := workerConfig(cfg)
	acfg := action.DefaultConfig()
	acfg.StopTTL = wcfg.StopTTL
	handler := captcha.Handler{Solver: solver, Webhook: hook, StatusName: cfg.StatusName, Logger: logger}
	stagger := &pacing.Stagger{}
	hlSessions := worker.NewSessionCache()
	var seed atomic.Int64
	seed.Store(time.Now().UnixNano())

	newWorker := func(id string, hive int, sched scheduler.Scheduler) *worker.Worker {
		rnd := rand.New(rand.NewSource(seed.Add(1)))
		exec := action.NewExecutor(acfg, nil, rnd)
		exec.Metrics = recorder
		exec.Logger = logger
		return &worker.Worker{
			ID:         id,
			Hive:       hive,
			Config:     wcfg,
			Limits:     s.limits,
			Accounts:   pool,
			HighLevel:  highLevel,
			Sessions:   sessions,
			HLSessions: hlSessions,
			Scheduler:  sched,
			Proxies:    proxies,
			HashKeys:   hashKeys,
			Captcha:    handler,
			Sideline:   sideline,
			Executor:   exec,
			Stats:      agg,
			Status:     s.registry,
			Sink:       s.queue,
			Webhook:    hook,
			GymDetails: store,
			Pause:      pause,
			Stagger:    stagger,
			Rand:       rnd,
			Logger:     logger,
		}
	}

	var versions ports.VersionChecker
	if !cfg.NoVersionCheck {
		versions = version.Checker{URL: cfg.VersionURL, Proxies: proxies}
	}

	s.overseer = &overseer.Overseer{
		Config:            overseerConfig(cfg),
		Pool:              pool,
		HighLevel:         hlSet,
		HighLevelAccounts: hlAccounts,
		Schedulers:        schedulers,
		NewWorker:         newWorker,
		Stats:             agg,
		Status:            s.registry,
		StatusWriter:      &status.Writer{Name: cfg.StatusName, Registry: s.registry, Sink: s.queue, Logger: logger},
		Sideline:          sideline,
		HashKeys:          hashKeys,
		HashRepo:          store,
		Sink:              s.queue,
		Versions:          versions,
		Webhook:           hook,
		Pause:             pause,
		Logger:            logger,
	}

	kpi := map[string]httpadapter.KPIProvider{
		"actions": recorder,
		"sink":    httpadapter.KPIFunc(func() any { return s.queue.Stats() }),
	}
	if s.hooks != nil {
		kpi["webhooks"] = httpadapter.KPIFunc(func() any { return s.hooks.Stats() })
	}
	s.ops = httpadapter.Handler{
		Token:     cfg.HTTP.Token,
		Registry:  s.registry,
		StatusUC:  status.UseCase{Registry: s.registry},
		Stats:     agg,
		Control:   s.overseer,
		CaptchaUC: captcha.ManualUseCase{Sideline: sideline, Sessions: sessions, Pool: pool},
		HashKeys:  hashKeys,
		KPI:       kpi,
	}
	if cfg.Feed.Addr != "" {
		s.feed = ws.NewServer(s.registry, ws.DefaultInterval)
		s.feed.Logger = logger
	}
	return s, nil
}

func workerConfig(cfg *config.Config) worker.Config {
	w := worker.DefaultConfig()
	w.LoginRetries = cfg.LoginRetries
	w.LoginDelay = config.Seconds(cfg.LoginDelaySeconds)
	w.MaxFailures = cfg.MaxFailures
	w.MaxEmpty = cfg.MaxEmpty
	w.SearchInterval = config.Seconds(cfg.AccountSearchIntervalSeconds)
	w.MinSecondsLeft = config.Seconds(cfg.MinSecondsLeft)
	w.ScanDelay = config.Seconds(cfg.ScanDelaySeconds)
	w.StopTTL = config.Seconds(cfg.PokestopRefreshSeconds)
	w.MaxThrows = cfg.AccountMaxThrows
	w.MaxCatches = cfg.AccountMaxCatches
	w.MaxSpins = cfg.AccountMaxSpins
	w.MaxLevel = cfg.AccountMaxLevel
	w.GymInfo = cfg.GymInfo
	w.NoJitter = cfg.NoJitter
	w.EncounterWhitelist = cfg.EncounterWhitelist
	return w
}

func overseerConfig(cfg *config.Config) overseer.Config {
	return overseer.Config{
		Workers:          cfg.Workers,
		WorkersPerHive:   cfg.WorkersPerHive,
		Beehive:          cfg.Beehive,
		StepLimit:        cfg.StepLimit,
		NoPokemon:        cfg.NoPokemon,
		Method:           cfg.Scheduler,
		StatusName:       cfg.StatusName,
		NoVersionCheck:   cfg.NoVersionCheck,
		APIVersion:       cfg.APIVersion,
		VersionInterval:  config.Seconds(cfg.VersionCheckIntervalSeconds),
		OnDemandTimeout:  config.Seconds(cfg.OnDemandTimeoutSeconds),
		StatsLogTimer:    cfg.StatsLogTimer,
		SchedulerUpdates: cfg.Webhooks.SchedulerUpdates,
	}
}

// apply pushes the options that are safe to change at runtime.
func (s *scanner) apply(c *config.Config) {
	rt := c.Runtime()
	s.limits.Set(rt.MaxThrows, rt.MaxCatches, rt.MaxSpins)
	s.overseer.Tune(rt.StatsLogTimer, rt.SchedulerUpdates)
	s.logger.Info("runtime options applied",
		"max_throws", rt.MaxThrows,
		"max_catches", rt.MaxCatches,
		"max_spins", rt.MaxSpins,
		"stats_log_timer", rt.StatsLogTimer,
		"scheduler_updates", rt.SchedulerUpdates,
	)
}

func (s *scanner) run(ctx context.Context, cfgPath string, consoleEvery time.Duration, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Persistence and webhook delivery outlive the workers so their final
	// batches are still written.
	drainCtx, stopDrain := context.WithCancel(context.Background())
	var drain sync.WaitGroup
	drain.Add(1)
	go func() {
		defer drain.Done()
		s.queue.Run(drainCtx)
	}()
	if s.hooks != nil {
		drain.Add(1)
		go func() {
			defer drain.Done()
			s.hooks.Run(drainCtx)
		}()
	}

	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(name+" stopped", "err", err)
			}
		}()
	}

	if s.proxies != nil {
		goRun("proxy watch", s.proxies.Watch)
	}
	if _, err := os.Stat(cfgPath); err == nil {
		goRun("config watch", func(ctx context.Context) error {
			return config.Watch(ctx, cfgPath, s.apply)
		})
	}
	if s.feed != nil {
		goRun("live feed", func(ctx context.Context) error {
			s.logger.Info("live feed listening", "addr", s.cfg.Feed.Addr)
			return s.feed.ListenAndServe(ctx, s.cfg.Feed.Addr)
		})
	}
	if consoleEvery > 0 {
		goRun("console", func(ctx context.Context) error {
			console.Run(ctx, s.registry, out, consoleEvery)
			return nil
		})
	}
	if s.cfg.HTTP.Addr != "" {
		h := server.Default(server.WithHostPorts(s.cfg.HTTP.Addr), server.WithExitWaitTime(2*time.Second))
		s.ops.RegisterRoutes(h)
		goRun("ops api", func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = h.Shutdown(shutdownCtx)
			}()
			s.logger.Info("ops api listening", "addr", s.cfg.HTTP.Addr)
			return h.Run()
		})
	}

	if s.cfg.Location != "" {
		lat, lng, err := config.ParseLocation(s.cfg.Location)
		if err != nil {
			return err
		}
		s.overseer.SetLocation(geo.Coord{Lat: lat, Lng: lng})
	} else {
		s.logger.Warn("no location configured, waiting for POST /ops/location")
	}

	err := s.overseer.Run(ctx)
	cancel()
	wg.Wait()
	stopDrain()
	drain.Wait()
	if s.archive != nil {
		if cerr := s.archive.Close(); cerr != nil {
			s.logger.Warn("close webhook archive failed", "err", cerr)
		}
	}
	return err
}
