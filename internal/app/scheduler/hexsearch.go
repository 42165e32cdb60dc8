package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"
)

// HexSearch walks a hexagonal grid around the hive center. Targets carry no
// freshness window.
type HexSearch struct {
	opts Options

	mu       sync.Mutex
	location geo.Coord
	hasLoc   bool
	queue    []scan.Target
	inFlight int
	done     int
	ready    bool
}

func NewHexSearch(opts Options) *HexSearch {
	if opts.StepDistance <= 0 {
		opts.StepDistance = StepDistance
	}
	if opts.StepLimit < 1 {
		opts.StepLimit = 1
	}
	return &HexSearch{opts: opts}
}

func (h *HexSearch) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

func (h *HexSearch) LocationChanged(loc geo.Coord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.location = loc
	h.hasLoc = true
	h.queue = nil
	h.ready = false
}

func (h *HexSearch) Schedule(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasLoc {
		return nil
	}
	grid := geo.HexGrid(h.location, h.opts.StepDistance, h.opts.StepLimit)
	h.queue = make([]scan.Target, 0, len(grid))
	for i, c := range grid {
		step := i + 1
		h.queue = append(h.queue, scan.Target{
			Step:     step,
			Location: c,
			Messages: scan.DefaultMessages(step, c),
		})
	}
	h.ready = true
	return nil
}

func (h *HexSearch) TimeToRefreshQueue() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hasLoc && len(h.queue) == 0 && h.inFlight == 0
}

func (h *HexSearch) ScanningPaused() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = nil
}

func (h *HexSearch) Next(_ time.Time) scan.Target {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return scan.Target{
			Step:     scan.NoStep,
			Wait:     h.opts.delay(time.Time{}),
			Messages: scan.Messages{Wait: "Nothing to scan."},
		}
	}
	t := h.queue[0]
	h.queue = h.queue[1:]
	h.inFlight++
	return t
}

func (h *HexSearch) TaskDone(_ scan.Target, _ *scan.ParsedMap) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inFlight > 0 {
		h.inFlight--
	}
	h.done++
}

func (h *HexSearch) Delay(lastScan time.Time) time.Duration {
	return h.opts.delay(lastScan)
}

func (h *HexSearch) OverseerMessage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fmt.Sprintf("Scanning status: %d total waiting, %d in flight.", len(h.queue), h.inFlight)
}

func (h *HexSearch) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Queued: len(h.queue), InFlight: h.inFlight, Done: h.done}
}
