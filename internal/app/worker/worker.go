package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"hivescan/internal/app/action"
	"hivescan/internal/app/captcha"
	"hivescan/internal/app/pacing"
	"hivescan/internal/app/ports"
	"hivescan/internal/app/scheduler"
	"hivescan/internal/app/stats"
	"hivescan/internal/app/status"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"
	"hivescan/internal/domain/scan"
)

var errLeaseEnded = errors.New("lease ended")

type State int32

const (
	StateIdle State = iota
	StateAcquiring
	StateLoggingIn
	StateWaiting
	StateTooEarly
	StateTooLate
	StateScanning
	StateProcessing
	StateActing
	StateSleeping
	StateEvicting
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateAcquiring:  "acquiring_account",
	StateLoggingIn:  "logging_in",
	StateWaiting:    "waiting_for_target",
	StateTooEarly:   "target_too_early",
	StateTooLate:    "target_too_late",
	StateScanning:   "scanning",
	StateProcessing: "processing_results",
	StateActing:     "acting",
	StateSleeping:   "sleeping",
	StateEvicting:   "evicting",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// AccountSource is the lease side of the account pool.
type AccountSource interface {
	Acquire(ctx context.Context) (*account.Account, error)
	Release(a *account.Account)
	Quarantine(a *account.Account, reason account.FailureReason, now time.Time)
	Detach(a *account.Account) bool
}

type HighLevelSource interface {
	Next(name string, target geo.Coord) (*account.Account, error)
	Release(a *account.Account)
}

type StatsSink interface {
	Send(u stats.Update)
}

type Config struct {
	LoginRetries   int
	LoginDelay     time.Duration
	LoginSettle    time.Duration
	MaxFailures    int
	MaxEmpty       int
	SearchInterval time.Duration
	MinSecondsLeft time.Duration
	EarlyGrace     time.Duration
	ScanDelay      time.Duration
	StopTTL        time.Duration

	MaxThrows  int
	MaxCatches int
	MaxSpins   int
	MaxLevel   int

	GymInfo            bool
	NoJitter           bool
	EncounterWhitelist []int
}

func DefaultConfig() Config {
	return Config{
		LoginRetries:   3,
		LoginDelay:     6 * time.Second,
		LoginSettle:    20 * time.Second,
		MaxFailures:    5,
		MaxEmpty:       0,
		MinSecondsLeft: 60 * time.Second,
		EarlyGrace:     10 * time.Second,
		ScanDelay:      10 * time.Second,
		StopTTL:        5 * time.Minute,
		MaxThrows:      100,
		MaxCatches:     50,
		MaxSpins:       20,
		MaxLevel:       30,
	}
}

// Worker drives one lease after another until its context ends. Everything
// below Run happens on the worker's own goroutine.
type Worker struct {
	ID     string
	Hive   int
	Config Config
	Limits *Limits

	Accounts   AccountSource
	HighLevel  HighLevelSource
	Sessions   ports.SessionFactory
	HLSessions *SessionCache
	Scheduler  scheduler.Scheduler
	Proxies    ports.ProxyProvider
	HashKeys   *hashkey.Scheduler
	Captcha    captcha.Handler
	Sideline   *captcha.Sideline
	Executor   *action.Executor
	Stats      StatsSink
	Status     *status.Registry
	Sink       ports.EntitySink
	Webhook    ports.Webhook
	GymDetails ports.GymDetailsRepository
	Pause      *pacing.PauseBit
	Stagger    *pacing.Stagger
	Sleeper    pacing.Sleeper
	Rand       *rand.Rand
	Logger     *slog.Logger
	Now        func() time.Time

	state atomic.Int32
}

type lease struct {
	acct      *account.Account
	sess      ports.SessionClient
	proxy     string
	startedAt time.Time
	lastScan  time.Time
	location  geo.Coord
	message   string
	counters  status.Counters
	loggedIn  bool
	ended     bool

	consecutiveFails int
	consecutiveEmpty int
}

func (w *Worker) logger() *slog.Logger {
	l := w.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("worker", w.ID)
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleeper == nil {
		return pacing.RealSleeper{}.Sleep(ctx, d)
	}
	return w.Sleeper.Sleep(ctx, d)
}

func (w *Worker) random() *rand.Rand {
	if w.Rand == nil {
		w.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return w.Rand
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run drives leases until ctx is done. A failed lease never stops the
// worker; it starts over with a fresh account.
func (w *Worker) Run(ctx context.Context) {
	w.logger().Debug("worker starting", "hive", w.Hive)
	for ctx.Err() == nil {
		w.runLease(ctx)
	}
	w.setState(StateIdle)
}

func (w *Worker) runLease(ctx context.Context) {
	for !w.Scheduler.Ready() {
		if err := w.sleep(ctx, time.Second); err != nil {
			return
		}
	}

	w.setState(StateAcquiring)
	w.publishIdle("Waiting to get new account from the queue...")
	a, err := w.Accounts.Acquire(ctx)
	if err != nil {
		return
	}
	l := w.startLease(a)

	defer func() {
		if r := recover(); r != nil {
			w.logger().Error("worker cycle panicked", "account", a.Username, "panic", r)
			l.message = fmt.Sprintf("Exception in worker using account %s. Restarting with fresh account.", a.Username)
			w.evict(l, account.ReasonException)
			_ = w.sleep(ctx, w.Config.ScanDelay)
		}
	}()

	if w.Stagger != nil {
		if err := w.Stagger.Do(ctx, w.Config.LoginDelay); err != nil {
			w.release(l)
			return
		}
	}
	w.loop(ctx, l)
}

func (w *Worker) startLease(a *account.Account) *lease {
	a.Reset()
	now := w.now()
	a.SessionStart = now
	l := &lease{acct: a, startedAt: now}
	if w.Proxies != nil && w.Proxies.Len() > 0 {
		l.proxy = w.Proxies.Next()
	}
	a.ProxyURL = l.proxy
	l.sess = w.Sessions.NewSession(l.proxy)
	w.publish(l, fmt.Sprintf("Switching to account %s.", a.Username))
	w.logger().Info("switching account", "account", a.Username, "proxy", l.proxy)
	return l
}

func (w *Worker) loop(ctx context.Context, l *lease) {
	for {
		err := w.cycle(ctx, l)
		switch {
		case err == nil:
			continue
		case errors.Is(err, errLeaseEnded):
			return
		case ctx.Err() != nil:
			w.release(l)
			return
		}

		_, reason := ports.Classify(err)
		if reason == "" {
			reason = account.ReasonException
		}
		w.logger().Error("worker cycle failed", "account", l.acct.Username, "reason", reason, "err", err)
		l.message = fmt.Sprintf("Account %s failed: %v", l.acct.Username, err)
		w.evict(l, reason)
		if reason == account.ReasonException {
			_ = w.sleep(ctx, w.Config.ScanDelay)
		}
		return
	}
}

// cycle runs one pass of the state machine for the current lease.
func (w *Worker) cycle(ctx context.Context, l *lease) error {
	if w.Pause != nil && w.Pause.IsSet() {
		w.publish(l, "Scanning paused.")
		if err := w.Pause.Wait(ctx); err != nil {
			return err
		}
	}
	if w.evictionDue(l) {
		return errLeaseEnded
	}

	w.setState(StateWaiting)
	t := w.Scheduler.Next(w.now())
	w.publish(l, t.Messages.Wait)
	if err := w.sleep(ctx, t.Wait); err != nil {
		w.taskDone(t, nil)
		return err
	}
	if t.Empty() {
		return w.sleep(ctx, w.Scheduler.Delay(l.lastScan))
	}

	if t.TooEarly(w.now(), w.Config.EarlyGrace) {
		w.setState(StateTooEarly)
		paused, err := w.waitAppearance(ctx, l, t)
		if err != nil || paused {
			w.taskDone(t, nil)
			return err
		}
	}

	if t.TooLate(w.now(), w.Config.MinSecondsLeft) {
		w.setState(StateTooLate)
		w.taskDone(t, nil)
		w.bump(l, stats.Delta{Skip: 1})
		w.publish(l, t.Messages.Late)
		w.logger().Info("target too late", "account", l.acct.Username, "step", t.Step)
		return nil
	}

	return w.scanTarget(ctx, l, t)
}

// evictionDue checks the lease-ending triggers and ends the lease when one
// fires.
func (w *Worker) evictionDue(l *lease) bool {
	a := l.acct
	switch {
	case w.Config.MaxFailures > 0 && l.consecutiveFails >= w.Config.MaxFailures:
		l.message = fmt.Sprintf("Account %s failed more than %d scans; possibly bad account. Switching accounts...", a.Username, w.Config.MaxFailures)
		w.evict(l, account.ReasonMaxFailures)
		return true
	case w.Config.MaxEmpty > 0 && l.consecutiveEmpty >= w.Config.MaxEmpty:
		l.message = fmt.Sprintf("Account %s returned empty scan for more than %d scans; possibly ip is banned. Switching accounts...", a.Username, w.Config.MaxEmpty)
		w.evict(l, account.ReasonEmptyScans)
		return true
	case l.proxy != "" && w.Proxies != nil && !w.Proxies.Alive(l.proxy):
		l.message = fmt.Sprintf("Account %s proxy %s is not in a live list any more. Switching accounts...", a.Username, l.proxy)
		w.logger().Warn("proxy lost", "account", a.Username, "proxy", l.proxy)
		w.release(l)
		return true
	case w.Config.SearchInterval > 0 && w.now().Sub(l.startedAt) >= w.Config.SearchInterval:
		l.message = fmt.Sprintf("Account %s is being rotated out to rest.", a.Username)
		w.evict(l, account.ReasonRestInterval)
		return true
	}
	return false
}

// waitAppearance polls in one second slices until the target is due. It
// reports paused when the global pause bit interrupted the wait.
func (w *Worker) waitAppearance(ctx context.Context, l *lease, t scan.Target) (bool, error) {
	w.publish(l, t.Messages.Early)
	w.logger().Info("target too early", "account", l.acct.Username, "step", t.Step, "appears", t.Appears)
	for t.TooEarly(w.now(), w.Config.EarlyGrace) {
		if w.Pause != nil && w.Pause.IsSet() {
			return true, nil
		}
		if err := w.sleep(ctx, time.Second); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (w *Worker) scanTarget(ctx context.Context, l *lease, t scan.Target) error {
	acked := false
	ack := func(parsed *scan.ParsedMap) {
		if !acked {
			acked = true
			w.taskDone(t, parsed)
		}
	}
	defer ack(nil)

	a := l.acct
	l.sess.SetPosition(t.Location)
	if w.HashKeys.Len() > 0 {
		l.sess.SetHashKey(w.HashKeys.Next())
	}

	w.setState(StateLoggingIn)
	w.publish(l, "Logging in...")
	if err := w.checkLogin(ctx, l.sess, a, l.proxy); err != nil {
		return err
	}
	if !l.loggedIn {
		if err := w.firstLogin(ctx, l); err != nil {
			return err
		}
		l.loggedIn = true
	}
	if a.Banned {
		l.message = fmt.Sprintf("Account %s is marked as banned!", a.Username)
		return ports.Fatal(account.ReasonBanned, ports.ErrAccountBanned)
	}

	w.setState(StateScanning)
	w.publish(l, t.Messages.Search)
	w.logger().Info("scanning", "account", a.Username, "step", t.Step, "lat", t.Location.Lat, "lng", t.Location.Lng)
	resp, leveled, err := w.mapRequest(ctx, l, t.Location)
	now := w.now()
	l.lastScan = now
	l.location = t.Location
	a.CleanupStats(now, w.Config.StopTTL)
	a.LastActive = now
	a.LastLocation = t.Location
	if err != nil {
		return w.scanFailed(ctx, l, t, err)
	}

	if resp.HasChallenge() {
		w.bump(l, stats.Delta{Captcha: 1})
		switch w.Captcha.Handle(ctx, l.sess, a, resp.ChallengeURL) {
		case captcha.Solved:
			resp, leveled, err = w.mapRequest(ctx, l, t.Location)
			if err == nil && resp.HasChallenge() {
				err = fmt.Errorf("%w: challenge after solve", ports.ErrBadResponse)
			}
			if err != nil {
				return w.scanFailed(ctx, l, t, err)
			}
		case captcha.Continue:
			w.publish(l, t.Messages.Invalid)
			return w.sleep(ctx, w.Scheduler.Delay(l.lastScan))
		default:
			w.sideline(l)
			_ = w.sleep(ctx, 3*time.Second)
			return errLeaseEnded
		}
	}

	w.setState(StateProcessing)
	parsed := w.parse(a, resp.Map, t.Location, now)
	ack(parsed)
	if parsed.Count > 0 {
		w.bump(l, stats.Delta{Success: 1})
		l.consecutiveEmpty = 0
	} else {
		w.bump(l, stats.Delta{NoItems: 1})
		l.consecutiveEmpty++
	}
	l.consecutiveFails = 0
	w.persist(a, parsed)

	w.setState(StateActing)
	sum := w.act(ctx, l, parsed, leveled)
	if err := ctx.Err(); err != nil {
		return err
	}

	w.setState(StateSleeping)
	delay := w.Scheduler.Delay(l.lastScan)
	w.publish(l, fmt.Sprintf("Work at %.6f,%.6f processed %d finds: %d encounters, %d catches and %d spins. Sleeping %s.",
		t.Location.Lat, t.Location.Lng, parsed.Count, sum.encounters, sum.catches, sum.spins, delay.Round(time.Second)))
	w.logger().Info("scan processed",
		"account", a.Username,
		"finds", parsed.Count,
		"encounters", sum.encounters,
		"catches", sum.catches,
		"spins", sum.spins,
		"delay", delay)
	return w.sleep(ctx, delay)
}

// scanFailed counts a failed scan and waits out the scheduler delay. Errors
// that end the lease are returned as they are.
func (w *Worker) scanFailed(ctx context.Context, l *lease, t scan.Target, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if outcome, _ := ports.Classify(err); outcome == ports.OutcomeFatal {
		return err
	}
	w.bump(l, stats.Delta{Fail: 1})
	l.consecutiveFails++
	w.publish(l, t.Messages.Invalid)
	w.logger().Error("scan failed", "account", l.acct.Username, "step", t.Step, "err", err)
	return w.sleep(ctx, w.Scheduler.Delay(l.lastScan))
}

// mapRequest issues the map call at loc, jittered unless disabled, and
// applies the piggybacked inventory and hash status.
func (w *Worker) mapRequest(ctx context.Context, l *lease, loc geo.Coord) (ports.Response, bool, error) {
	if !w.Config.NoJitter {
		loc = geo.Jitter(loc, 3, w.random())
	}
	l.sess.SetPosition(loc)
	resp, leveled, err := w.call(ctx, l.sess, l.acct, ports.Request{Kind: ports.RequestMapObjects, Location: loc})
	if err != nil {
		return resp, leveled, err
	}
	if resp.Map == nil || resp.Map.Status != 1 {
		if resp.HasChallenge() {
			return resp, leveled, nil
		}
		return resp, leveled, fmt.Errorf("%w: map status", ports.ErrBadResponse)
	}
	return resp, leveled, nil
}

func (w *Worker) call(ctx context.Context, sess ports.SessionClient, a *account.Account, req ports.Request) (ports.Response, bool, error) {
	if req.Location.IsZero() {
		req.Location = a.LastLocation
	}
	req.LastTimestampMs = a.LastTimestampMs
	resp, err := sess.Call(ctx, req)
	if err != nil {
		return resp, false, err
	}
	leveled := a.ApplyInventory(resp.Inventory)
	if resp.HashStatus != nil && w.HashKeys != nil {
		if err := w.HashKeys.Observe(*resp.HashStatus, w.now()); err != nil {
			w.logger().Debug("hash status ignored", "key", resp.HashStatus.Token, "err", err)
		}
	}
	return resp, leveled, nil
}

func (w *Worker) taskDone(t scan.Target, parsed *scan.ParsedMap) {
	if t.Empty() {
		return
	}
	w.Scheduler.TaskDone(t, parsed)
}

func (w *Worker) evict(l *lease, reason account.FailureReason) {
	if l.ended {
		return
	}
	l.ended = true
	w.setState(StateEvicting)
	w.publish(l, l.message)
	w.logger().Warn("evicting account", "account", l.acct.Username, "reason", reason)
	w.Accounts.Quarantine(l.acct, reason, w.now())
}

func (w *Worker) release(l *lease) {
	if l.ended {
		return
	}
	l.ended = true
	w.Accounts.Release(l.acct)
}

func (w *Worker) sideline(l *lease) {
	if l.ended {
		return
	}
	l.ended = true
	w.setState(StateEvicting)
	l.message = fmt.Sprintf("Account %s has encountered a captcha; sidelined.", l.acct.Username)
	w.publish(l, l.message)
	if !w.Accounts.Detach(l.acct) {
		return
	}
	if w.Sideline != nil {
		w.Sideline.Add(l.acct)
	}
}

func (w *Worker) bump(l *lease, d stats.Delta) {
	l.counters.Success += d.Success
	l.counters.Fail += d.Fail
	l.counters.NoItems += d.NoItems
	l.counters.Skip += d.Skip
	l.counters.Missed += d.Missed
	l.counters.Captcha += d.Captcha
	if w.Stats != nil {
		w.Stats.Send(stats.Update{WorkerID: w.ID, Username: l.acct.Username, Delta: d})
	}
}

func (w *Worker) publish(l *lease, msg string) {
	if msg != "" {
		l.message = msg
	}
	if w.Status == nil {
		return
	}
	w.Status.Set(w.ID, status.WorkerStatus{
		Hive:      w.Hive,
		Username:  l.acct.Username,
		Message:   l.message,
		Proxy:     l.proxy,
		Location:  l.location,
		LastScan:  l.lastScan,
		StartedAt: l.startedAt,
		Counters:  l.counters,
	})
}

func (w *Worker) publishIdle(msg string) {
	if w.Status == nil {
		return
	}
	st, _ := w.Status.Get(w.ID)
	st.Hive = w.Hive
	st.Message = msg
	w.Status.Set(w.ID, st)
}
