package accountpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
)

const RecycleInterval = 60 * time.Second

type Failure struct {
	Account *account.Account
	Reason  account.FailureReason
	At      time.Time
}

type Counts struct {
	Available   int `json:"available"`
	Leased      int `json:"leased"`
	Quarantined int `json:"quarantined"`
	Retired     int `json:"retired"`
}

// Pool hands accounts out one lease at a time. Quarantined accounts come back
// through Recycle once their reason-weighted rest interval has passed.
type Pool struct {
	RestInterval time.Duration
	Sink         ports.EntitySink
	Logger       *slog.Logger
	Now          func() time.Time

	mu       sync.Mutex
	queue    []*account.Account
	leased   map[string]*account.Account
	failures []Failure
	noticed  map[string]bool
	retired  map[string]*account.Account
	wake     chan struct{}
}

func New(accounts []*account.Account, restInterval time.Duration) *Pool {
	p := &Pool{
		RestInterval: restInterval,
		leased:       map[string]*account.Account{},
		noticed:      map[string]bool{},
		retired:      map[string]*account.Account{},
		wake:         make(chan struct{}),
	}
	for _, a := range accounts {
		if a == nil {
			continue
		}
		p.queue = append(p.queue, a)
	}
	return p
}

func (p *Pool) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pool) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pool) init() {
	if p.leased == nil {
		p.leased = map[string]*account.Account{}
	}
	if p.noticed == nil {
		p.noticed = map[string]bool{}
	}
	if p.retired == nil {
		p.retired = map[string]*account.Account{}
	}
	if p.wake == nil {
		p.wake = make(chan struct{})
	}
}

// broadcast must be called with mu held.
func (p *Pool) broadcast() {
	close(p.wake)
	p.wake = make(chan struct{})
}

// Acquire blocks until an account is available or ctx is done. Banned
// accounts found in the queue are retired instead of leased.
func (p *Pool) Acquire(ctx context.Context) (*account.Account, error) {
	for {
		p.mu.Lock()
		p.init()
		for len(p.queue) > 0 {
			a := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			if a.Banned {
				p.retired[a.Username] = a
				p.logger().Warn("banned account removed from pool", "account", a.Username)
				continue
			}
			a.InUse = true
			p.leased[a.Username] = a
			p.mu.Unlock()
			return a, nil
		}
		wake := p.wake
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Release returns a leased account to the back of the queue.
func (p *Pool) Release(a *account.Account) {
	if a == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	if p.leased[a.Username] != a {
		p.logger().Error("release of account not leased", "account", a.Username)
		return
	}
	delete(p.leased, a.Username)
	a.InUse = false
	p.queue = append(p.queue, a)
	p.broadcast()
}

// Quarantine takes a leased account out of circulation until Recycle brings
// it back.
func (p *Pool) Quarantine(a *account.Account, reason account.FailureReason, now time.Time) {
	if a == nil {
		return
	}
	p.mu.Lock()
	p.init()
	if p.leased[a.Username] != a {
		p.logger().Error("quarantine of account not leased", "account", a.Username, "reason", reason)
		p.mu.Unlock()
		return
	}
	delete(p.leased, a.Username)
	a.InUse = false
	if reason == account.ReasonBanned {
		a.Banned = true
	}
	p.failures = append(p.failures, Failure{Account: a, Reason: reason, At: now})
	p.mu.Unlock()

	p.logger().Warn("account quarantined", "account", a.Username, "reason", reason)
	if p.Sink != nil {
		p.Sink.Enqueue(ports.KindAccountFailure, map[string]any{
			a.Username: ports.AccountFailureRecord{Username: a.Username, Reason: reason, FailedAt: now},
		})
	}
}

// Detach ends a lease without queueing the account anywhere. The caller takes
// ownership and hands it back with Add.
func (p *Pool) Detach(a *account.Account) bool {
	if a == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	if p.leased[a.Username] != a {
		p.logger().Error("detach of account not leased", "account", a.Username)
		return false
	}
	delete(p.leased, a.Username)
	a.InUse = false
	return true
}

// Add puts an account that is neither leased nor quarantined into the queue.
func (p *Pool) Add(a *account.Account) {
	if a == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()
	if _, ok := p.leased[a.Username]; ok {
		p.logger().Error("add of account still leased", "account", a.Username)
		return
	}
	a.InUse = false
	p.queue = append(p.queue, a)
	p.broadcast()
}

// Recycle requeues every quarantined account whose rest interval has passed
// and returns how many came back.
func (p *Pool) Recycle(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.init()

	recycled := 0
	kept := p.failures[:0]
	for _, f := range p.failures {
		rest := time.Duration(float64(p.RestInterval) * f.Reason.RestMultiplier())
		if now.Sub(f.At) < rest {
			if !p.noticed[f.Account.Username] {
				p.noticed[f.Account.Username] = true
				p.logger().Info("account cooling off",
					"account", f.Account.Username,
					"reason", f.Reason,
					"remaining", (rest - now.Sub(f.At)).Round(time.Second))
			}
			kept = append(kept, f)
			continue
		}
		delete(p.noticed, f.Account.Username)
		if f.Account.Banned {
			p.retired[f.Account.Username] = f.Account
			p.logger().Warn("banned account retired", "account", f.Account.Username)
			continue
		}
		f.Account.Failed = false
		p.queue = append(p.queue, f.Account)
		recycled++
		p.logger().Info("account recycled", "account", f.Account.Username, "reason", f.Reason)
	}
	for i := len(kept); i < len(p.failures); i++ {
		p.failures[i] = Failure{}
	}
	p.failures = kept
	if recycled > 0 {
		p.broadcast()
	}
	return recycled
}

// Run recycles on every tick until ctx is done.
func (p *Pool) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = RecycleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Recycle(p.now())
		}
	}
}

func (p *Pool) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Failure(nil), p.failures...)
}

func (p *Pool) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Counts{
		Available:   len(p.queue),
		Leased:      len(p.leased),
		Quarantined: len(p.failures),
		Retired:     len(p.retired),
	}
}

// ResetAll runs Reset on every account the pool currently owns.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.queue {
		a.Reset()
	}
}
