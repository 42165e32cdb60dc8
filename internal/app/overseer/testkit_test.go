package overseer

import (
	"context"
	"errors"
	"sync"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/app/scheduler"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"
	"hivescan/internal/domain/scan"
)

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

type stubScheduler struct {
	mu          sync.Mutex
	refresh     bool
	scheduleErr error
	schedules   int
	paused      int
	moves       []geo.Coord
	stats       scheduler.Stats
	message     string
}

func (s *stubScheduler) Ready() bool { return true }

func (s *stubScheduler) LocationChanged(loc geo.Coord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, loc)
}

func (s *stubScheduler) Schedule(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules++
	return s.scheduleErr
}

func (s *stubScheduler) TimeToRefreshQueue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

func (s *stubScheduler) ScanningPaused() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused++
}

func (s *stubScheduler) Next(time.Time) scan.Target            { return scan.Target{Step: scan.NoStep} }
func (s *stubScheduler) TaskDone(scan.Target, *scan.ParsedMap) {}
func (s *stubScheduler) Delay(time.Time) time.Duration         { return scheduler.MinDelay }
func (s *stubScheduler) OverseerMessage() string               { return s.message }

func (s *stubScheduler) Stats() scheduler.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// fixedHives hands out the given schedulers in order.
func fixedHives(hives ...*stubScheduler) scheduler.Factory {
	return func(i int) (scheduler.Scheduler, error) {
		if i >= len(hives) {
			return nil, errors.New("no more hives")
		}
		return hives[i], nil
	}
}

type stubVersions struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	calls   int
}

func (v *stubVersions) ForcedVersion(context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.calls
	v.calls++
	var err error
	if i < len(v.errs) {
		err = v.errs[i]
	}
	if i < len(v.answers) {
		return v.answers[i], err
	}
	return "", err
}

type stubHashRepo struct {
	peaks map[string]int
}

func (r stubHashRepo) UpsertHashKeys(context.Context, []hashkey.Budget) error { return nil }

func (r stubHashRepo) StoredPeak(_ context.Context, key string) (int, error) {
	return r.peaks[key], nil
}

type recordingSink struct {
	mu      sync.Mutex
	batches []map[string]any
}

func (s *recordingSink) Enqueue(_ ports.EntityKind, records map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
}

type recordingWebhook struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (r *recordingWebhook) Enqueue(eventType string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eventType == "scheduler" {
		r.payloads = append(r.payloads, payload)
	}
}
