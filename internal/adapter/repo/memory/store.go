package memory

import (
	"context"
	"sort"
	"sync"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"
	"hivescan/internal/domain/scan"
)

// Store keeps every persisted entity in maps. It backs tests and
// database-less runs.
type Store struct {
	mu          sync.RWMutex
	pokemons    map[string]scan.WildPokemon
	pokestops   map[string]scan.Pokestop
	gyms        map[string]scan.Gym
	gymDetails  map[string]scan.GymDetails
	spawnPoints map[string]scan.SpawnPoint
	workers     map[string]ports.WorkerStatusRecord
	mainWorkers map[string]ports.MainWorkerRecord
	hashKeys    map[string]hashkey.Budget
	failures    []ports.AccountFailureRecord
}

func NewStore() *Store {
	return &Store{
		pokemons:    make(map[string]scan.WildPokemon),
		pokestops:   make(map[string]scan.Pokestop),
		gyms:        make(map[string]scan.Gym),
		gymDetails:  make(map[string]scan.GymDetails),
		spawnPoints: make(map[string]scan.SpawnPoint),
		workers:     make(map[string]ports.WorkerStatusRecord),
		mainWorkers: make(map[string]ports.MainWorkerRecord),
		hashKeys:    make(map[string]hashkey.Budget),
	}
}

func (s *Store) UpsertPokemons(_ context.Context, pokemons []scan.WildPokemon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pokemons {
		s.pokemons[p.Key()] = p
	}
	return nil
}

func (s *Store) UpsertPokestops(_ context.Context, stops []scan.Pokestop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range stops {
		s.pokestops[p.ID] = p
	}
	return nil
}

func (s *Store) UpsertGyms(_ context.Context, gyms []scan.Gym) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range gyms {
		s.gyms[g.ID] = g
	}
	return nil
}

func (s *Store) UpsertGymDetails(_ context.Context, details []scan.GymDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range details {
		d.Members = append([]scan.GymMember(nil), d.Members...)
		s.gymDetails[d.GymID] = d
	}
	return nil
}

func (s *Store) GetGymDetails(_ context.Context, gymID string) (scan.GymDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.gymDetails[gymID]
	if !ok {
		return scan.GymDetails{}, ports.ErrNotFound
	}
	d.Members = append([]scan.GymMember(nil), d.Members...)
	return d, nil
}

func (s *Store) UpsertSpawnPoints(_ context.Context, points []scan.SpawnPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.spawnPoints[p.ID] = p
	}
	return nil
}

func (s *Store) ListSpawnPoints(_ context.Context, center geo.Coord, radiusKm float64) ([]scan.SpawnPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scan.SpawnPoint, 0)
	for _, p := range s.spawnPoints {
		if geo.DistanceKm(center, p.Location) <= radiusKm {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertWorkerStatus(_ context.Context, rows []ports.WorkerStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.workers[r.Username] = r
	}
	return nil
}

func (s *Store) UpsertMainWorker(_ context.Context, row ports.MainWorkerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mainWorkers[row.WorkerName] = row
	return nil
}

func (s *Store) UpsertHashKeys(_ context.Context, budgets []hashkey.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range budgets {
		s.hashKeys[b.Key] = b
	}
	return nil
}

func (s *Store) StoredPeak(_ context.Context, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hashKeys[key].Peak, nil
}

func (s *Store) AppendFailure(_ context.Context, failure ports.AccountFailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure)
	return nil
}

// Counts reports how many rows each kind holds.
func (s *Store) Counts() map[ports.EntityKind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[ports.EntityKind]int{
		ports.KindPokemon:        len(s.pokemons),
		ports.KindPokestop:       len(s.pokestops),
		ports.KindGym:            len(s.gyms),
		ports.KindGymDetails:     len(s.gymDetails),
		ports.KindSpawnPoint:     len(s.spawnPoints),
		ports.KindWorkerStatus:   len(s.workers),
		ports.KindMainWorker:     len(s.mainWorkers),
		ports.KindHashKey:        len(s.hashKeys),
		ports.KindAccountFailure: len(s.failures),
	}
}

func (s *Store) WorkerStatus(username string) (ports.WorkerStatusRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.workers[username]
	return r, ok
}

func (s *Store) MainWorker(name string) (ports.MainWorkerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.mainWorkers[name]
	return r, ok
}

func (s *Store) Failures() []ports.AccountFailureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.AccountFailureRecord(nil), s.failures...)
}

var (
	_ ports.Store                = (*Store)(nil)
	_ ports.GymDetailsRepository = (*Store)(nil)
	_ ports.SpawnPointRepository = (*Store)(nil)
)
