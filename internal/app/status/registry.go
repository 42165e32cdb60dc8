package status

import (
	"sync"
)

// Registry holds the latest status per worker. Each entry is written only by
// the worker that owns it; readers get copies.
type Registry struct {
	mu       sync.RWMutex
	workers  map[string]WorkerStatus
	overseer OverseerStatus
}

func NewRegistry() *Registry {
	return &Registry{workers: map[string]WorkerStatus{}}
}

func (r *Registry) Set(workerID string, st WorkerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workers == nil {
		r.workers = map[string]WorkerStatus{}
	}
	st.WorkerID = workerID
	r.workers[workerID] = st
}

func (r *Registry) Get(workerID string) (WorkerStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.workers[workerID]
	return st, ok
}

func (r *Registry) SetOverseer(st OverseerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overseer = st
}

func (r *Registry) Overseer() OverseerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overseer
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{Overseer: r.overseer, Workers: make(map[string]WorkerStatus, len(r.workers))}
	for id, st := range r.workers {
		out.Workers[id] = st
	}
	return out
}
