package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paulbellamy/ratecounter"
)

const (
	CaptchaCost   = 0.00299
	HoursPerMonth = 730
)

type Delta struct {
	Success int `json:"success"`
	Fail    int `json:"fail"`
	NoItems int `json:"noitems"`
	Skip    int `json:"skip"`
	Missed  int `json:"missed"`
	Captcha int `json:"captcha"`
}

func (d Delta) IsZero() bool {
	return d == Delta{}
}

func (d *Delta) add(o Delta) {
	d.Success += o.Success
	d.Fail += o.Fail
	d.NoItems += o.NoItems
	d.Skip += o.Skip
	d.Missed += o.Missed
	d.Captcha += o.Captcha
}

type Update struct {
	WorkerID string
	Username string
	Delta    Delta
}

type Rates struct {
	ScansPerMinute    int64 `json:"scans_per_minute"`
	FailsPerMinute    int64 `json:"fails_per_minute"`
	EmptiesPerMinute  int64 `json:"empties_per_minute"`
	CaptchasPerMinute int64 `json:"captchas_per_minute"`
}

// Aggregator is the single consumer of worker counter updates.
type Aggregator struct {
	Now func() time.Time

	updates chan Update
	started time.Time

	mu       sync.Mutex
	totals   Delta
	accounts map[string]struct{}
	scans    *ratecounter.RateCounter
	fails    *ratecounter.RateCounter
	empties  *ratecounter.RateCounter
	captchas *ratecounter.RateCounter
}

func NewAggregator(buffer int, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Aggregator{
		Now:      now,
		updates:  make(chan Update, buffer),
		started:  now(),
		accounts: map[string]struct{}{},
		scans:    ratecounter.NewRateCounter(time.Minute),
		fails:    ratecounter.NewRateCounter(time.Minute),
		empties:  ratecounter.NewRateCounter(time.Minute),
		captchas: ratecounter.NewRateCounter(time.Minute),
	}
}

// Send queues an update; it blocks when the buffer is full so no count is
// lost.
func (a *Aggregator) Send(u Update) {
	if u.Delta.IsZero() {
		return
	}
	a.updates <- u
}

func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case u := <-a.updates:
					a.Apply(u)
				default:
					return
				}
			}
		case u := <-a.updates:
			a.Apply(u)
		}
	}
}

func (a *Aggregator) Apply(u Update) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.add(u.Delta)
	if u.Username != "" {
		a.accounts[u.Username] = struct{}{}
	}
	if n := u.Delta.Success + u.Delta.NoItems; n > 0 {
		a.scans.Incr(int64(n))
	}
	if u.Delta.Fail > 0 {
		a.fails.Incr(int64(u.Delta.Fail))
	}
	if u.Delta.NoItems > 0 {
		a.empties.Incr(int64(u.Delta.NoItems))
	}
	if u.Delta.Captcha > 0 {
		a.captchas.Incr(int64(u.Delta.Captcha))
	}
}

func (a *Aggregator) Totals() Delta {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals
}

func (a *Aggregator) Rates() Rates {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Rates{
		ScansPerMinute:    a.scans.Rate(),
		FailsPerMinute:    a.fails.Rate(),
		EmptiesPerMinute:  a.empties.Rate(),
		CaptchasPerMinute: a.captchas.Rate(),
	}
}

// AccountsSeen is the number of distinct accounts that reported anything.
func (a *Aggregator) AccountsSeen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.accounts)
}

// Message renders the hourly rates line for active workers.
func (a *Aggregator) Message(active int) string {
	t := a.Totals()
	elapsed := a.Now().Sub(a.started).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	perHour := func(n int) float64 { return float64(n) * 3600 / elapsed }
	cph := perHour(t.Captcha)
	cost := cph * CaptchaCost
	return fmt.Sprintf(
		"Total active: %d  |  Success: %d (%.1f/hr) | Fails: %d (%.1f/hr) | Empties: %d (%.1f/hr) | Skips %d (%.1f/hr) | Captchas: %d (%.1f/hr)|$%.5f/hr|$%.3f/mo",
		active,
		t.Success, perHour(t.Success),
		t.Fail, perHour(t.Fail),
		t.NoItems, perHour(t.NoItems),
		t.Skip, perHour(t.Skip),
		t.Captcha, cph, cost, cost*HoursPerMonth,
	)
}
