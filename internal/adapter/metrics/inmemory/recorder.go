package inmemory

import (
	"sync"
	"time"

	"github.com/paulbellamy/ratecounter"
)

type ActionCounts struct {
	Success uint64 `json:"success"`
	Skip    uint64 `json:"skip"`
	Failure uint64 `json:"failure"`
}

type Snapshot struct {
	ActionTotal     uint64                  `json:"action_total"`
	ActionSuccess   uint64                  `json:"action_success"`
	ActionSkip      uint64                  `json:"action_skip"`
	ActionFailure   uint64                  `json:"action_failure"`
	ActionsLastHour int64                   `json:"actions_last_hour"`
	ByAction        map[string]ActionCounts `json:"by_action"`
}

// Recorder counts action outcomes per action kind.
type Recorder struct {
	mu       sync.Mutex
	success  uint64
	skip     uint64
	failure  uint64
	byAction map[string]ActionCounts
	hourly   *ratecounter.RateCounter
}

func NewRecorder() *Recorder {
	return &Recorder{
		byAction: map[string]ActionCounts{},
		hourly:   ratecounter.NewRateCounter(time.Hour),
	}
}

func (r *Recorder) RecordSuccess(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success++
	c := r.byAction[action]
	c.Success++
	r.byAction[action] = c
	r.hourly.Incr(1)
}

func (r *Recorder) RecordSkip(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skip++
	c := r.byAction[action]
	c.Skip++
	r.byAction[action] = c
}

func (r *Recorder) RecordFailure(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure++
	c := r.byAction[action]
	c.Failure++
	r.byAction[action] = c
	r.hourly.Incr(1)
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{
		ActionSuccess:   r.success,
		ActionSkip:      r.skip,
		ActionFailure:   r.failure,
		ActionTotal:     r.success + r.skip + r.failure,
		ActionsLastHour: r.hourly.Rate(),
		ByAction:        make(map[string]ActionCounts, len(r.byAction)),
	}
	for k, v := range r.byAction {
		out.ByAction[k] = v
	}
	return out
}

func (r *Recorder) SnapshotAny() any {
	return r.Snapshot()
}
