package ports

import (
	"context"
	"time"

	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"
	"hivescan/internal/domain/scan"
)

type EntityKind string

const (
	KindPokemon        EntityKind = "pokemon"
	KindPokestop       EntityKind = "pokestop"
	KindGym            EntityKind = "gym"
	KindGymDetails     EntityKind = "gym_details"
	KindSpawnPoint     EntityKind = "spawnpoint"
	KindWorkerStatus   EntityKind = "worker_status"
	KindMainWorker     EntityKind = "main_worker"
	KindHashKey        EntityKind = "hash_key"
	KindAccountFailure EntityKind = "account_failure"
)

// EntitySink accepts persistence batches without waiting for them to be
// written.
type EntitySink interface {
	Enqueue(kind EntityKind, records map[string]any)
}

type WorkerStatusRecord struct {
	Username     string
	WorkerName   string
	Success      int
	Fail         int
	NoItems      int
	Skip         int
	Captcha      int
	Message      string
	LastScanDate time.Time
	LastModified time.Time
	Location     geo.Coord
}

type MainWorkerRecord struct {
	WorkerName      string
	Message         string
	Method          string
	AccountsWorking int
	AccountsCaptcha int
	AccountsFailed  int
	LastModified    time.Time
}

type AccountFailureRecord struct {
	Username string
	Reason   account.FailureReason
	FailedAt time.Time
}

type EntityRepository interface {
	UpsertPokemons(ctx context.Context, pokemons []scan.WildPokemon) error
	UpsertPokestops(ctx context.Context, stops []scan.Pokestop) error
	UpsertGyms(ctx context.Context, gyms []scan.Gym) error
	UpsertGymDetails(ctx context.Context, details []scan.GymDetails) error
	UpsertSpawnPoints(ctx context.Context, points []scan.SpawnPoint) error
}

type GymDetailsRepository interface {
	GetGymDetails(ctx context.Context, gymID string) (scan.GymDetails, error)
}

type SpawnPointRepository interface {
	ListSpawnPoints(ctx context.Context, center geo.Coord, radiusKm float64) ([]scan.SpawnPoint, error)
}

type StatusRepository interface {
	UpsertWorkerStatus(ctx context.Context, rows []WorkerStatusRecord) error
	UpsertMainWorker(ctx context.Context, row MainWorkerRecord) error
}

type HashKeyRepository interface {
	UpsertHashKeys(ctx context.Context, budgets []hashkey.Budget) error
	StoredPeak(ctx context.Context, key string) (int, error)
}

type AccountFailureRepository interface {
	AppendFailure(ctx context.Context, failure AccountFailureRecord) error
}

// Store is everything the persistence sink can write to.
type Store interface {
	EntityRepository
	StatusRepository
	HashKeyRepository
	AccountFailureRepository
}
