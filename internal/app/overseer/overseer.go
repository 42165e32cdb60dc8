package overseer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hivescan/internal/app/accountpool"
	"hivescan/internal/app/accountset"
	"hivescan/internal/app/captcha"
	"hivescan/internal/app/pacing"
	"hivescan/internal/app/ports"
	"hivescan/internal/app/scheduler"
	"hivescan/internal/app/stats"
	"hivescan/internal/app/status"
	"hivescan/internal/app/worker"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"
)

var ErrNoWorkers = errors.New("no workers configured")

const (
	LoopInterval       = time.Second
	RecycleInterval    = time.Minute
	HashUpsertInterval = 5 * time.Second
	ScheduleBackoff    = 10 * time.Second
	tthGrowth          = 0.01
)

type Config struct {
	Workers        int
	WorkersPerHive int
	Beehive        bool
	StepLimit      int
	NoPokemon      bool
	Method         string
	StatusName     string

	NoVersionCheck  bool
	APIVersion      string
	VersionInterval time.Duration
	OnDemandTimeout time.Duration

	StatsLogTimer    int
	SchedulerUpdates bool
	RecycleInterval  time.Duration
}

// WorkerFactory builds the worker with the given id attached to a hive's
// scheduler.
type WorkerFactory func(id string, hive int, sched scheduler.Scheduler) *worker.Worker

// Overseer owns the hive schedulers and the worker goroutines, and runs the
// control loop that refills queues, moves the grid and holds the pause bit.
type Overseer struct {
	Config Config

	Pool              *accountpool.Pool
	HighLevel         *accountset.Set
	HighLevelAccounts []*account.Account
	Schedulers        scheduler.Factory
	NewWorker         WorkerFactory
	Stats             *stats.Aggregator
	Status            *status.Registry
	StatusWriter      *status.Writer
	Sideline          *captcha.Sideline
	HashKeys          *hashkey.Scheduler
	HashRepo          ports.HashKeyRepository
	Sink              ports.EntitySink
	Versions          ports.VersionChecker
	Webhook           ports.Webhook
	Pause             *pacing.PauseBit
	Sleeper           pacing.Sleeper
	Logger            *slog.Logger
	Now               func() time.Time

	initOnce    sync.Once
	locations   chan geo.Coord
	heartbeat   atomic.Int64
	idlePause   atomic.Bool
	manualPause atomic.Bool

	mu      sync.Mutex
	hives   []scheduler.Scheduler
	workers []*worker.Worker

	nextVersionCheck time.Time
	lastHashUpsert   time.Time
	lastTTH          float64
	statsTimer       int
}

func (o *Overseer) init() {
	o.initOnce.Do(func() {
		o.locations = make(chan geo.Coord, 1)
		o.heartbeat.Store(o.now().UnixNano())
		if o.Pause == nil {
			o.Pause = pacing.NewPauseBit()
		}
	})
}

func (o *Overseer) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Overseer) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Overseer) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleeper == nil {
		return pacing.RealSleeper{}.Sleep(ctx, d)
	}
	return o.Sleeper.Sleep(ctx, d)
}

// SetLocation hands a new grid center to the control loop. Only the most
// recent location is kept.
func (o *Overseer) SetLocation(c geo.Coord) {
	o.init()
	for {
		select {
		case o.locations <- c:
			return
		default:
		}
		select {
		case <-o.locations:
		default:
		}
	}
}

// Heartbeat records client activity. It lifts a pause that was caused by
// inactivity, never one caused by a failed version check.
func (o *Overseer) Heartbeat() {
	o.init()
	o.heartbeat.Store(o.now().UnixNano())
	if o.idlePause.CompareAndSwap(true, false) {
		o.logger().Info("activity detected, resuming scanning")
		o.Pause.Clear()
	}
}

func (o *Overseer) Paused() bool {
	o.init()
	return o.Pause.IsSet()
}

// SetPaused is the operator switch.
func (o *Overseer) SetPaused(paused bool) {
	o.init()
	if paused {
		o.manualPause.Store(true)
		o.Pause.Set()
		return
	}
	o.manualPause.Store(false)
	o.idlePause.Store(false)
	o.Pause.Clear()
}

// Tune changes the options that may be altered while the overseer runs.
func (o *Overseer) Tune(statsLogTimer int, schedulerUpdates bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Config.StatsLogTimer = statsLogTimer
	o.Config.SchedulerUpdates = schedulerUpdates
}

func (o *Overseer) Hives() []scheduler.Scheduler {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scheduler.Scheduler(nil), o.hives...)
}

func (o *Overseer) Workers() []*worker.Worker {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*worker.Worker(nil), o.workers...)
}

// Run starts the supporting loops and the workers, then drives the control
// loop until ctx is done. It returns after every worker has stopped.
func (o *Overseer) Run(ctx context.Context) error {
	o.init()
	if o.Config.Workers < 1 {
		return ErrNoWorkers
	}
	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if o.HighLevel != nil {
		if err := o.HighLevel.CreateSet(worker.HighLevelSet, o.HighLevelAccounts); err != nil {
			return fmt.Errorf("create high level set: %w", err)
		}
		o.logger().Info("high level accounts added", "count", len(o.HighLevelAccounts))
	}
	if o.Stats != nil {
		goRun(func() { o.Stats.Run(ctx) })
	}
	if o.Pool != nil {
		interval := o.Config.RecycleInterval
		if interval <= 0 {
			interval = RecycleInterval
		}
		o.logger().Info("starting account recycler", "interval", interval)
		goRun(func() { o.Pool.Run(ctx, interval) })
	}
	if o.StatusWriter != nil {
		w := *o.StatusWriter
		goRun(func() { w.Run(ctx, status.WriteInterval) })
	}

	if err := o.spawn(ctx, goRun); err != nil {
		return err
	}
	if !o.Config.NoVersionCheck && o.Versions != nil {
		o.logger().Info("forced version watchdog enabled", "api_version", o.Config.APIVersion)
	}

	for ctx.Err() == nil {
		o.Step(ctx)
		if err := o.sleep(ctx, LoopInterval); err != nil {
			break
		}
	}
	wg.Wait()
	o.logger().Info("overseer stopped")
	return nil
}

// spawn creates one scheduler per hive and starts the workers attached to
// it.
func (o *Overseer) spawn(ctx context.Context, goRun func(func())) error {
	perHive := o.Config.WorkersPerHive
	if perHive < 1 {
		perHive = 1
	}
	o.logger().Info("starting search workers", "workers", o.Config.Workers, "scheduler", o.Config.Method)
	for i := 0; i < o.Config.Workers; i++ {
		o.mu.Lock()
		if i == 0 || (o.Config.Beehive && i%perHive == 0) {
			sched, err := o.Schedulers(len(o.hives))
			if err != nil {
				o.mu.Unlock()
				return fmt.Errorf("scheduler for hive %d: %w", len(o.hives), err)
			}
			o.hives = append(o.hives, sched)
		}
		hive := len(o.hives) - 1
		id := fmt.Sprintf("%03d", i)
		w := o.NewWorker(id, hive, o.hives[hive])
		o.workers = append(o.workers, w)
		o.mu.Unlock()

		if o.Status != nil {
			o.Status.Set(id, status.WorkerStatus{Hive: hive, Message: "Creating thread..."})
		}
		goRun(func() { w.Run(ctx) })
	}
	o.setMessage("Initializing")
	return nil
}

// Step runs one pass of the control loop.
func (o *Overseer) Step(ctx context.Context) {
	o.init()
	now := o.now()
	o.upsertHashKeys(ctx, now)

	idle := o.Config.OnDemandTimeout > 0 && now.Sub(time.Unix(0, o.heartbeat.Load())) > o.Config.OnDemandTimeout
	if idle && !o.Pause.IsSet() {
		o.idlePause.Store(true)
		o.Pause.Set()
		o.logger().Info("searching paused due to inactivity")
	}
	hives := o.Hives()
	if o.Pause.IsSet() {
		for _, h := range hives {
			h.ScanningPaused()
		}
		if !idle {
			o.checkVersion(ctx, now)
		}
		o.setMessage("Scanning paused.")
		return
	}

	o.relocate()

	var msg string
	for i, h := range hives {
		if !h.TimeToRefreshQueue() {
			msg = h.OverseerMessage()
			continue
		}
		msg = fmt.Sprintf("Search queue %d empty, scheduling more items to scan.", i)
		o.logger().Debug("search queue empty, scheduling", "hive", i)
		if err := h.Schedule(ctx); err != nil {
			o.logger().Error("schedule creation failed", "hive", i, "err", err)
			_ = o.sleep(ctx, ScheduleBackoff)
		}
	}

	o.mu.Lock()
	logTimer, updates := o.Config.StatsLogTimer, o.Config.SchedulerUpdates
	o.mu.Unlock()
	if o.Stats != nil {
		line := o.Stats.Message(len(o.Workers()))
		msg += "\n" + line
		if logTimer > 0 {
			o.statsTimer++
			if o.statsTimer >= logTimer {
				o.logger().Info(line)
				o.statsTimer = 0
			}
		}
	}
	if updates {
		o.schedulerUpdate()
	}
	if !idle {
		o.checkVersion(ctx, now)
	}
	o.setMessage(msg)
}

// relocate moves every hive when a new center is pending.
func (o *Overseer) relocate() {
	var loc geo.Coord
	select {
	case loc = <-o.locations:
	default:
		return
	}
	hives := o.Hives()
	if len(hives) == 0 {
		return
	}
	o.logger().Info("new location caught, moving search grid", "lat", loc.Lat, "lng", loc.Lng)
	centers := geo.HiveLocations(loc, scheduler.StepDistanceFor(o.Config.NoPokemon), o.Config.StepLimit, len(hives))
	for i, h := range hives {
		h.LocationChanged(centers[i])
	}
}

func (o *Overseer) setMessage(msg string) {
	if o.Status == nil {
		return
	}
	st := status.OverseerStatus{
		Message:   msg,
		Method:    o.Config.Method,
		Paused:    o.Pause.IsSet(),
		UpdatedAt: o.now(),
	}
	if o.Pool != nil {
		st.AccountsWorking = o.Pool.Counts().Leased
		st.AccountsFailed = len(o.Pool.Failures())
	}
	if o.Sideline != nil {
		st.AccountsCaptcha = o.Sideline.Len()
	}
	o.Status.SetOverseer(st)
}

// schedulerUpdate sends a webhook when the first hive has found noticeably
// more spawn timers since the last message.
func (o *Overseer) schedulerUpdate() {
	hives := o.Hives()
	if o.Webhook == nil || len(hives) == 0 {
		return
	}
	st := hives[0].Stats()
	if st.TTHFound-o.lastTTH <= tthGrowth {
		return
	}
	o.logger().Debug("scheduler update due", "tth_found", st.TTHFound)
	o.Webhook.Enqueue("scheduler", map[string]any{
		"name":         o.Config.Method,
		"instance":     o.Config.StatusName,
		"tth_found":    st.TTHFound,
		"spawns_found": st.SpawnsFound,
	})
	o.lastTTH = st.TTHFound
}

// upsertHashKeys persists the key budgets at most every HashUpsertInterval,
// keeping the highest peak ever stored.
func (o *Overseer) upsertHashKeys(ctx context.Context, now time.Time) {
	if o.HashKeys.Len() == 0 || now.Sub(o.lastHashUpsert) < HashUpsertInterval {
		return
	}
	o.lastHashUpsert = now
	budgets := o.HashKeys.Snapshot()
	rows := make(map[string]any, len(budgets))
	for i, b := range budgets {
		if o.HashRepo != nil {
			stored, err := o.HashRepo.StoredPeak(ctx, b.Key)
			if err != nil && !errors.Is(err, ports.ErrNotFound) {
				o.logger().Warn("stored hash peak unavailable", "key", b.Key, "err", err)
			}
			if stored > b.Peak {
				budgets[i].Peak = stored
			}
		}
		rows[b.Key] = budgets[i]
	}
	if o.Sink != nil {
		o.Sink.Enqueue(ports.KindHashKey, rows)
	}
}

// checkVersion asks for the forced API version once per interval. Only a
// successful comparison clears the pause bit.
func (o *Overseer) checkVersion(ctx context.Context, now time.Time) {
	if o.Config.NoVersionCheck || o.Versions == nil || now.Before(o.nextVersionCheck) {
		return
	}
	o.nextVersionCheck = now.Add(o.Config.VersionInterval)
	forced, err := o.Versions.ForcedVersion(ctx)
	if err != nil || forced == "" {
		o.Pause.Set()
		o.logger().Warn("forced version check got no valid response, scanner paused", "err", err)
		return
	}
	older, err := versionLess(o.Config.APIVersion, forced)
	switch {
	case err != nil:
		o.Pause.Set()
		o.logger().Warn("unknown forced version format, scanner paused", "forced", forced, "err", err)
	case older:
		o.Pause.Set()
		o.logger().Warn("forced api update, scanner paused", "running", o.Config.APIVersion, "forced", forced)
	default:
		o.logger().Debug("version check passed", "forced", forced)
		if !o.idlePause.Load() && !o.manualPause.Load() {
			o.Pause.Clear()
		}
	}
}

// versionLess compares dotted numeric versions such as 0.57.2.
func versionLess(a, b string) (bool, error) {
	pa, err := parseVersion(a)
	if err != nil {
		return false, err
	}
	pb, err := parseVersion(b)
	if err != nil {
		return false, err
	}
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			return x < y, nil
		}
	}
	return false, nil
}

func parseVersion(v string) ([]int, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil, fmt.Errorf("empty version")
	}
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version %q", v)
		}
		out[i] = n
	}
	return out, nil
}
