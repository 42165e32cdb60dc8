package pacing

import (
	"context"
	"sync"
	"time"
)

// RecordingSleeper returns immediately and remembers every requested delay.
// An optional OnSleep hook runs before the delay is recorded.
type RecordingSleeper struct {
	OnSleep func(d time.Duration)

	mu     sync.Mutex
	delays []time.Duration
}

func (r *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if r.OnSleep != nil {
		r.OnSleep(d)
	}
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *RecordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func (r *RecordingSleeper) Count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.delays {
		if v == d {
			n++
		}
	}
	return n
}
