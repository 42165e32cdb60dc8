package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"
)

var ErrUnknownStrategy = errors.New("unknown scheduler strategy")

const (
	StepDistance          = 0.07
	StepDistanceNoPokemon = 0.45
	MinDelay              = 2 * time.Second
)

type Stats struct {
	Queued      int     `json:"queued"`
	InFlight    int     `json:"in_flight"`
	Done        int     `json:"done"`
	SpawnsFound int     `json:"spawns_found"`
	TTHFound    float64 `json:"tth_found"`
}

// Scheduler produces scan targets for one hive. TaskDone must be called once
// for every target returned by Next that is not Empty.
type Scheduler interface {
	Ready() bool
	LocationChanged(loc geo.Coord)
	Schedule(ctx context.Context) error
	TimeToRefreshQueue() bool
	ScanningPaused()
	Next(now time.Time) scan.Target
	TaskDone(t scan.Target, parsed *scan.ParsedMap)
	Delay(lastScan time.Time) time.Duration
	OverseerMessage() string
	Stats() Stats
}

type Options struct {
	StepLimit    int
	StepDistance float64
	ScanDelay    time.Duration
	Now          func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) delay(lastScan time.Time) time.Duration {
	d := o.ScanDelay - o.now().Sub(lastScan)
	if lastScan.IsZero() || d < MinDelay {
		return MinDelay
	}
	return d
}

// StepDistanceFor returns the hex step in kilometers.
func StepDistanceFor(noPokemon bool) float64 {
	if noPokemon {
		return StepDistanceNoPokemon
	}
	return StepDistance
}

// Factory builds one scheduler per hive.
type Factory func(hive int) (Scheduler, error)

func NewFactory(strategy string, opts Options, spawns SpawnSource) (Factory, error) {
	switch strategy {
	case "", "hexsearch":
		return func(int) (Scheduler, error) {
			return NewHexSearch(opts), nil
		}, nil
	case "spawnscan":
		if spawns == nil {
			return nil, fmt.Errorf("%w: spawnscan needs a spawnpoint source", ErrUnknownStrategy)
		}
		return func(int) (Scheduler, error) {
			return NewSpawnScan(opts, spawns), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}
