package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Uniform returns a random duration in [lo, hi).
func Uniform(rnd *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	if rnd == nil {
		return lo + time.Duration(rand.Int63n(int64(hi-lo)))
	}
	return lo + time.Duration(rnd.Int63n(int64(hi-lo)))
}

// PauseBit is the global cooperative pause flag. Waiters are woken through a
// channel that is closed on every transition.
type PauseBit struct {
	mu      sync.Mutex
	set     bool
	changed chan struct{}
}

func NewPauseBit() *PauseBit {
	return &PauseBit{changed: make(chan struct{})}
}

func (p *PauseBit) Set() {
	p.transition(true)
}

func (p *PauseBit) Clear() {
	p.transition(false)
}

func (p *PauseBit) transition(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.changed == nil {
		p.changed = make(chan struct{})
	}
	if p.set == v {
		return
	}
	p.set = v
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *PauseBit) IsSet() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set
}

// Changed returns a channel closed on the next transition.
func (p *PauseBit) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.changed == nil {
		p.changed = make(chan struct{})
	}
	return p.changed
}

// Wait blocks until the bit is cleared or ctx is done.
func (p *PauseBit) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		if !p.set {
			p.mu.Unlock()
			return nil
		}
		if p.changed == nil {
			p.changed = make(chan struct{})
		}
		ch := p.changed
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Stagger spreads login attempts out: only one caller at a time holds the
// lock, for base plus up to a quarter second either way.
type Stagger struct {
	Sleeper Sleeper
	Rand    *rand.Rand

	mu    sync.Mutex
	rndMu sync.Mutex
}

func (s *Stagger) Do(ctx context.Context, base time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rndMu.Lock()
	d := base + Uniform(s.Rand, -250*time.Millisecond, 250*time.Millisecond)
	s.rndMu.Unlock()
	if d < 0 {
		d = 0
	}
	sleeper := s.Sleeper
	if sleeper == nil {
		sleeper = RealSleeper{}
	}
	return sleeper.Sleep(ctx, d)
}
