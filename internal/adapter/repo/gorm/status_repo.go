package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hivescan/internal/adapter/repo/gorm/model"
	"hivescan/internal/app/ports"
	"hivescan/internal/domain/hashkey"

	"gorm.io/gorm"
)

type StatusRepo struct {
	db *gorm.DB
}

func NewStatusRepo(db *gorm.DB) StatusRepo {
	return StatusRepo{db: db}
}

func (r StatusRepo) UpsertWorkerStatus(ctx context.Context, rows []ports.WorkerStatusRecord) error {
	out := make([]model.WorkerStatus, 0, len(rows))
	for _, s := range rows {
		out = append(out, model.WorkerStatus{
			Username:     s.Username,
			WorkerName:   s.WorkerName,
			Success:      int32(s.Success),
			Fail:         int32(s.Fail),
			NoItems:      int32(s.NoItems),
			Skip:         int32(s.Skip),
			Captcha:      int32(s.Captcha),
			Message:      s.Message,
			LastScanDate: s.LastScanDate,
			LastModified: s.LastModified,
			Latitude:     s.Location.Lat,
			Longitude:    s.Location.Lng,
		})
	}
	if err := upsert(ctx, r.db, "username", out); err != nil {
		return fmt.Errorf("upsert worker status: %w", err)
	}
	return nil
}

func (r StatusRepo) UpsertMainWorker(ctx context.Context, row ports.MainWorkerRecord) error {
	out := []model.MainWorker{{
		WorkerName:      row.WorkerName,
		Message:         row.Message,
		Method:          row.Method,
		AccountsWorking: int32(row.AccountsWorking),
		AccountsCaptcha: int32(row.AccountsCaptcha),
		AccountsFailed:  int32(row.AccountsFailed),
		LastModified:    row.LastModified,
	}}
	if err := upsert(ctx, r.db, "worker_name", out); err != nil {
		return fmt.Errorf("upsert main worker: %w", err)
	}
	return nil
}

type HashKeyRepo struct {
	db *gorm.DB
}

func NewHashKeyRepo(db *gorm.DB) HashKeyRepo {
	return HashKeyRepo{db: db}
}

func (r HashKeyRepo) UpsertHashKeys(ctx context.Context, budgets []hashkey.Budget) error {
	rows := make([]model.HashKey, 0, len(budgets))
	for _, b := range budgets {
		var expires *time.Time
		if !b.Expires.IsZero() {
			v := b.Expires
			expires = &v
		}
		rows = append(rows, model.HashKey{
			Key:         b.Key,
			Maximum:     int32(b.Maximum),
			Remaining:   int32(b.Remaining),
			Peak:        int32(b.Peak),
			Expires:     expires,
			LastUpdated: b.LastUpdated,
		})
	}
	if err := upsert(ctx, r.db, "key", rows); err != nil {
		return fmt.Errorf("upsert hash keys: %w", err)
	}
	return nil
}

// StoredPeak returns the persisted peak for key, or zero when the key has
// never been written.
func (r HashKeyRepo) StoredPeak(ctx context.Context, key string) (int, error) {
	var row model.HashKey
	err := conn(ctx, r.db).Where(&model.HashKey{Key: key}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(row.Peak), nil
}

type AccountFailureRepo struct {
	db *gorm.DB
}

func NewAccountFailureRepo(db *gorm.DB) AccountFailureRepo {
	return AccountFailureRepo{db: db}
}

func (r AccountFailureRepo) AppendFailure(ctx context.Context, failure ports.AccountFailureRecord) error {
	row := model.AccountFailure{
		Username: failure.Username,
		Reason:   string(failure.Reason),
		FailedAt: failure.FailedAt,
	}
	return conn(ctx, r.db).Create(&row).Error
}

// Store bundles the repositories the persistence sink writes through.
type Store struct {
	EntityRepo
	StatusRepo
	HashKeyRepo
	AccountFailureRepo
}

func NewStore(db *gorm.DB) Store {
	return Store{
		EntityRepo:         NewEntityRepo(db),
		StatusRepo:         NewStatusRepo(db),
		HashKeyRepo:        NewHashKeyRepo(db),
		AccountFailureRepo: NewAccountFailureRepo(db),
	}
}

var (
	_ ports.Store                = Store{}
	_ ports.GymDetailsRepository = EntityRepo{}
	_ ports.SpawnPointRepository = EntityRepo{}
)
