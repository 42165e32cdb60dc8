package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"
)

const SpawnDuration = 15 * time.Minute

type SpawnSource interface {
	ListSpawnPoints(ctx context.Context, center geo.Coord, radiusKm float64) ([]scan.SpawnPoint, error)
}

// SpawnScan visits known spawnpoints inside their appear/leave window for
// the current hour.
type SpawnScan struct {
	opts   Options
	source SpawnSource

	mu       sync.Mutex
	location geo.Coord
	hasLoc   bool
	ready    bool
	queue    []scan.Target
	inFlight int
	done     int
	known    map[string]scan.SpawnPoint
	tth      map[string]bool
}

func NewSpawnScan(opts Options, source SpawnSource) *SpawnScan {
	if opts.StepDistance <= 0 {
		opts.StepDistance = StepDistance
	}
	if opts.StepLimit < 1 {
		opts.StepLimit = 1
	}
	return &SpawnScan{
		opts:   opts,
		source: source,
		known:  map[string]scan.SpawnPoint{},
		tth:    map[string]bool{},
	}
}

func (s *SpawnScan) radiusKm() float64 {
	return s.opts.StepDistance * float64(s.opts.StepLimit)
}

func (s *SpawnScan) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *SpawnScan) LocationChanged(loc geo.Coord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = loc
	s.hasLoc = true
	s.ready = false
	s.queue = nil
}

func (s *SpawnScan) Schedule(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasLoc {
		s.mu.Unlock()
		return nil
	}
	center := s.location
	s.mu.Unlock()

	points, err := s.source.ListSpawnPoints(ctx, center, s.radiusKm())
	if err != nil {
		return fmt.Errorf("list spawnpoints: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.known[p.ID] = p
	}
	now := s.opts.now()
	hour := now.Truncate(time.Hour)
	queue := make([]scan.Target, 0, len(s.known))
	for _, p := range s.known {
		if geo.DistanceKm(center, p.Location) > s.radiusKm() {
			continue
		}
		leaves := hour.Add(time.Duration(p.DespawnSecond) * time.Second)
		if leaves.Before(now) {
			leaves = leaves.Add(time.Hour)
		}
		queue = append(queue, scan.Target{
			Location: p.Location,
			Appears:  leaves.Add(-SpawnDuration),
			Leaves:   leaves,
			SpawnID:  p.ID,
		})
	}
	sort.Slice(queue, func(i, j int) bool {
		if queue[i].Appears.Equal(queue[j].Appears) {
			return queue[i].SpawnID < queue[j].SpawnID
		}
		return queue[i].Appears.Before(queue[j].Appears)
	})
	for i := range queue {
		queue[i].Step = i + 1
		queue[i].Messages = scan.DefaultMessages(i+1, queue[i].Location)
	}
	s.queue = queue
	s.ready = true
	return nil
}

func (s *SpawnScan) TimeToRefreshQueue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLoc && len(s.queue) == 0 && s.inFlight == 0
}

func (s *SpawnScan) ScanningPaused() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
}

func (s *SpawnScan) Next(_ time.Time) scan.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return scan.Target{
			Step:     scan.NoStep,
			Wait:     s.opts.delay(time.Time{}),
			Messages: scan.Messages{Wait: "Waiting for spawnpoints."},
		}
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	s.inFlight++
	return t
}

func (s *SpawnScan) TaskDone(t scan.Target, parsed *scan.ParsedMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.done++
	if parsed == nil {
		return
	}
	for id, sp := range parsed.SpawnPoints {
		s.known[id] = sp
	}
	for _, p := range parsed.Wild {
		if p.SpawnpointID == "" || p.DisappearTime.IsZero() {
			continue
		}
		if _, ok := s.known[p.SpawnpointID]; !ok {
			continue
		}
		s.tth[p.SpawnpointID] = true
	}
}

func (s *SpawnScan) Delay(lastScan time.Time) time.Duration {
	return s.opts.delay(lastScan)
}

func (s *SpawnScan) OverseerMessage() string {
	st := s.Stats()
	return fmt.Sprintf("Scanning spawns: %d waiting, %d known, %.2f%% tth found.", st.Queued, st.SpawnsFound, st.TTHFound)
}

func (s *SpawnScan) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Queued:      len(s.queue),
		InFlight:    s.inFlight,
		Done:        s.done,
		SpawnsFound: len(s.known),
	}
	if len(s.known) > 0 {
		st.TTHFound = 100 * float64(len(s.tth)) / float64(len(s.known))
	}
	return st
}
