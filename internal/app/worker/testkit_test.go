package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"hivescan/internal/app/accountpool"
	"hivescan/internal/app/action"
	"hivescan/internal/app/pacing"
	"hivescan/internal/app/ports"
	"hivescan/internal/app/scheduler"
	"hivescan/internal/app/stats"
	"hivescan/internal/app/status"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"
)

var here = geo.Coord{Lat: 40.7580, Lng: -73.9855}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type callHandler func(req ports.Request) (ports.Response, error)

// fakeSession answers every request kind with a sensible default unless a
// handler is registered for it.
type fakeSession struct {
	mu       sync.Mutex
	handlers map[ports.RequestKind]callHandler
	authErrs []error
	auths    int
	expiry   time.Time
	calls    []ports.Request
	hashKeys []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{handlers: map[ports.RequestKind]callHandler{}}
}

func (s *fakeSession) on(kind ports.RequestKind, h callHandler) *fakeSession {
	s.handlers[kind] = h
	return s
}

func (s *fakeSession) Authenticate(context.Context, account.Credentials, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths++
	if len(s.authErrs) == 0 {
		return nil
	}
	err := s.authErrs[0]
	s.authErrs = s.authErrs[1:]
	return err
}

func (s *fakeSession) TicketExpiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

func (s *fakeSession) SetPosition(geo.Coord) {}

func (s *fakeSession) SetHashKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashKeys = append(s.hashKeys, key)
}

func (s *fakeSession) Call(_ context.Context, req ports.Request) (ports.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	h := s.handlers[req.Kind]
	s.mu.Unlock()
	if h != nil {
		resp, err := h(req)
		resp.Kind = req.Kind
		return resp, err
	}
	switch req.Kind {
	case ports.RequestGetPlayer:
		return ports.Response{Kind: req.Kind, Result: 1, Player: &ports.PlayerData{TutorialState: []int{0, 1, 3, 4, 7}}}, nil
	case ports.RequestMapObjects:
		return ports.Response{Kind: req.Kind, Result: 1, Map: &ports.MapObjects{Status: 1}}, nil
	default:
		return ports.Response{Kind: req.Kind, Result: 1}, nil
	}
}

func (s *fakeSession) count(kind ports.RequestKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// scriptedScheduler hands out its targets in order and then cancels the run.
type scriptedScheduler struct {
	mu         sync.Mutex
	targets    []scan.Target
	repeat     bool
	onDrained  func()
	nextCalls  int
	delayCalls int
	done       []scan.Target
	parsed     []*scan.ParsedMap
	delay      time.Duration
}

func (s *scriptedScheduler) Ready() bool                    { return true }
func (s *scriptedScheduler) LocationChanged(geo.Coord)      {}
func (s *scriptedScheduler) Schedule(context.Context) error { return nil }
func (s *scriptedScheduler) TimeToRefreshQueue() bool       { return false }
func (s *scriptedScheduler) ScanningPaused()                {}
func (s *scriptedScheduler) OverseerMessage() string        { return "" }
func (s *scriptedScheduler) Stats() scheduler.Stats         { return scheduler.Stats{} }

func (s *scriptedScheduler) Next(time.Time) scan.Target {
	s.mu.Lock()
	s.nextCalls++
	if len(s.targets) == 0 {
		drained := s.onDrained
		s.mu.Unlock()
		if drained != nil {
			drained()
		}
		return scan.Target{Step: scan.NoStep}
	}
	t := s.targets[0]
	if !s.repeat {
		s.targets = s.targets[1:]
	}
	s.mu.Unlock()
	return t
}

func (s *scriptedScheduler) TaskDone(t scan.Target, parsed *scan.ParsedMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, t)
	s.parsed = append(s.parsed, parsed)
}

func (s *scriptedScheduler) Delay(time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayCalls++
	if s.delay == 0 {
		return 17 * time.Second
	}
	return s.delay
}

func (s *scriptedScheduler) doneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done)
}

func target(step int, loc geo.Coord) scan.Target {
	return scan.Target{Step: step, Location: loc, Messages: scan.DefaultMessages(step, loc)}
}

// trackedPool is a real pool that cancels the run once it has handed out
// limit leases.
type trackedPool struct {
	*accountpool.Pool
	mu       sync.Mutex
	acquires int
	limit    int
	cancel   context.CancelFunc
	releases int
}

func (p *trackedPool) Acquire(ctx context.Context) (*account.Account, error) {
	p.mu.Lock()
	p.acquires++
	over := p.acquires > p.limit
	p.mu.Unlock()
	if over {
		p.cancel()
		return nil, context.Canceled
	}
	return p.Pool.Acquire(ctx)
}

func (p *trackedPool) Release(a *account.Account) {
	p.mu.Lock()
	p.releases++
	p.mu.Unlock()
	p.Pool.Release(a)
}

type recordingStats struct {
	mu     sync.Mutex
	totals stats.Delta
}

func (r *recordingStats) Send(u stats.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Success += u.Delta.Success
	r.totals.Fail += u.Delta.Fail
	r.totals.NoItems += u.Delta.NoItems
	r.totals.Skip += u.Delta.Skip
	r.totals.Captcha += u.Delta.Captcha
}

func (r *recordingStats) get() stats.Delta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals
}

type recordingSink struct {
	mu      sync.Mutex
	batches map[ports.EntityKind]int
	records map[ports.EntityKind]map[string]any
}

func newRecordingSink() *recordingSink {
	return &recordingSink{batches: map[ports.EntityKind]int{}, records: map[ports.EntityKind]map[string]any{}}
}

func (s *recordingSink) Enqueue(kind ports.EntityKind, records map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[kind]++
	if s.records[kind] == nil {
		s.records[kind] = map[string]any{}
	}
	for k, v := range records {
		s.records[kind][k] = v
	}
}

type recordingWebhook struct {
	mu     sync.Mutex
	events map[string]int
}

func (r *recordingWebhook) Enqueue(eventType string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string]int{}
	}
	r.events[eventType]++
}

type deadProxies struct{}

func (deadProxies) Next() string      { return "http://10.0.0.1:8080" }
func (deadProxies) Alive(string) bool { return false }
func (deadProxies) Len() int          { return 1 }

type harness struct {
	w       *Worker
	clock   *testClock
	sess    *fakeSession
	sched   *scriptedScheduler
	pool    *trackedPool
	sleeper *pacing.RecordingSleeper
	stats   *recordingStats
	sink    *recordingSink
	ctx     context.Context
}

func newHarness(sched *scriptedScheduler, accounts ...*account.Account) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newTestClock()
	sleeper := &pacing.RecordingSleeper{OnSleep: clock.Advance}
	pool := accountpool.New(accounts, time.Hour)
	pool.Now = clock.Now
	tracked := &trackedPool{Pool: pool, limit: 1, cancel: cancel}
	if sched.onDrained == nil {
		sched.onDrained = cancel
	}
	sess := newFakeSession()

	cfg := DefaultConfig()
	cfg.NoJitter = true
	ex := action.NewExecutor(action.Config{StopTTL: 5 * time.Minute, SpinAttempts: 3, CatchAttempts: 5}, sleeper, rand.New(rand.NewSource(3)))
	ex.Now = clock.Now

	h := &harness{
		clock:   clock,
		sess:    sess,
		sched:   sched,
		pool:    tracked,
		sleeper: sleeper,
		stats:   &recordingStats{},
		sink:    newRecordingSink(),
		ctx:     ctx,
	}
	h.w = &Worker{
		ID:        "0",
		Config:    cfg,
		Accounts:  tracked,
		Sessions:  ports.SessionFactoryFunc(func(string) ports.SessionClient { return sess }),
		Scheduler: sched,
		Executor:  ex,
		Stats:     h.stats,
		Status:    status.NewRegistry(),
		Sink:      h.sink,
		Sleeper:   sleeper,
		Rand:      rand.New(rand.NewSource(5)),
		Now:       clock.Now,
	}
	return h
}

func (h *harness) run() {
	h.w.Run(h.ctx)
}

func newAccount(name string) *account.Account {
	return account.New(account.Credentials{Username: name, Password: "secret"})
}
