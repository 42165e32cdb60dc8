package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"hivescan/internal/adapter/repo/gorm/model"
	"hivescan/internal/app/ports"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize keeps a single INSERT under the postgres parameter limit.
const upsertBatchSize = 500

type EntityRepo struct {
	db *gorm.DB
	tx ports.Transactor
}

func NewEntityRepo(db *gorm.DB) EntityRepo {
	return EntityRepo{db: db, tx: NewBatch(db)}
}

func upsert[T any](ctx context.Context, db *gorm.DB, key string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return conn(ctx, db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: key}},
			UpdateAll: true,
		}).
		CreateInBatches(&rows, upsertBatchSize).Error
}

func (r EntityRepo) UpsertPokemons(ctx context.Context, pokemons []scan.WildPokemon) error {
	rows := make([]model.Pokemon, 0, len(pokemons))
	for _, p := range pokemons {
		rows = append(rows, model.Pokemon{
			EncounterID:   p.Key(),
			SpawnpointID:  p.SpawnpointID,
			PokemonID:     int32(p.PokemonID),
			Latitude:      p.Location.Lat,
			Longitude:     p.Location.Lng,
			DisappearTime: p.DisappearTime,
			Attack:        int32Ptr(p.Attack),
			Defense:       int32Ptr(p.Defense),
			Stamina:       int32Ptr(p.Stamina),
			CP:            int32Ptr(p.CP),
			CPMultiplier:  p.CPMultiplier,
			Move1:         int32Ptr(p.Move1),
			Move2:         int32Ptr(p.Move2),
			Height:        p.Height,
			Weight:        p.Weight,
			Gender:        int32Ptr(p.Gender),
			LastModified:  p.DisappearTime,
		})
	}
	if err := upsert(ctx, r.db, "encounter_id", rows); err != nil {
		return fmt.Errorf("upsert pokemon: %w", err)
	}
	return nil
}

func (r EntityRepo) UpsertPokestops(ctx context.Context, stops []scan.Pokestop) error {
	rows := make([]model.Pokestop, 0, len(stops))
	for _, s := range stops {
		var lure *time.Time
		if !s.LureExpiration.IsZero() {
			v := s.LureExpiration
			lure = &v
		}
		rows = append(rows, model.Pokestop{
			PokestopID:     s.ID,
			Enabled:        s.Enabled,
			Latitude:       s.Location.Lat,
			Longitude:      s.Location.Lng,
			LastModified:   s.LastModified,
			LureExpiration: lure,
			LastUpdated:    s.LastModified,
		})
	}
	if err := upsert(ctx, r.db, "pokestop_id", rows); err != nil {
		return fmt.Errorf("upsert pokestops: %w", err)
	}
	return nil
}

func (r EntityRepo) UpsertGyms(ctx context.Context, gyms []scan.Gym) error {
	rows := make([]model.Gym, 0, len(gyms))
	for _, g := range gyms {
		rows = append(rows, model.Gym{
			GymID:          g.ID,
			TeamID:         int32(g.TeamID),
			GuardPokemonID: int32(g.GuardPokemonID),
			SlotsAvailable: int32(g.SlotsAvailable),
			Enabled:        g.Enabled,
			Latitude:       g.Location.Lat,
			Longitude:      g.Location.Lng,
			LastModified:   g.LastModified,
			LastScanned:    g.LastModified,
		})
	}
	if err := upsert(ctx, r.db, "gym_id", rows); err != nil {
		return fmt.Errorf("upsert gyms: %w", err)
	}
	return nil
}

// UpsertGymDetails replaces each gym's member roster together with its
// details row.
func (r EntityRepo) UpsertGymDetails(ctx context.Context, details []scan.GymDetails) error {
	if len(details) == 0 {
		return nil
	}
	return r.tx.RunInTx(ctx, func(ctx context.Context) error {
		db := conn(ctx, r.db)
		rows := make([]model.GymDetails, 0, len(details))
		ids := make([]string, 0, len(details))
		members := make([]model.GymMember, 0)
		for _, d := range details {
			ids = append(ids, d.GymID)
			rows = append(rows, model.GymDetails{
				GymID:       d.GymID,
				Name:        d.Name,
				Description: d.Description,
				URL:         d.URL,
				LastScanned: d.LastScanned,
			})
			for i, m := range d.Members {
				members = append(members, model.GymMember{
					GymID:        d.GymID,
					Slot:         int32(i),
					TrainerName:  m.TrainerName,
					TrainerLevel: int32(m.TrainerLevel),
					PokemonID:    int32(m.PokemonID),
					CP:           int32(m.CP),
				})
			}
		}
		if err := upsert(ctx, db, "gym_id", rows); err != nil {
			return fmt.Errorf("upsert gym details: %w", err)
		}
		if err := db.Where("gym_id IN ?", ids).Delete(&model.GymMember{}).Error; err != nil {
			return fmt.Errorf("clear gym members: %w", err)
		}
		if len(members) == 0 {
			return nil
		}
		if err := db.CreateInBatches(&members, upsertBatchSize).Error; err != nil {
			return fmt.Errorf("insert gym members: %w", err)
		}
		return nil
	})
}

func (r EntityRepo) GetGymDetails(ctx context.Context, gymID string) (scan.GymDetails, error) {
	db := conn(ctx, r.db)
	var row model.GymDetails
	err := db.Where(&model.GymDetails{GymID: gymID}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return scan.GymDetails{}, ports.ErrNotFound
	}
	if err != nil {
		return scan.GymDetails{}, err
	}
	var members []model.GymMember
	err = db.Where(&model.GymMember{GymID: gymID}).
		Clauses(clause.OrderBy{
			Columns: []clause.OrderByColumn{{Column: clause.Column{Name: "slot"}}},
		}).
		Find(&members).Error
	if err != nil {
		return scan.GymDetails{}, err
	}
	out := scan.GymDetails{
		GymID:       row.GymID,
		Name:        row.Name,
		Description: row.Description,
		URL:         row.URL,
		LastScanned: row.LastScanned,
		Members:     make([]scan.GymMember, 0, len(members)),
	}
	for _, m := range members {
		out.Members = append(out.Members, scan.GymMember{
			TrainerName:  m.TrainerName,
			TrainerLevel: int(m.TrainerLevel),
			PokemonID:    int(m.PokemonID),
			CP:           int(m.CP),
		})
	}
	return out, nil
}

func (r EntityRepo) UpsertSpawnPoints(ctx context.Context, points []scan.SpawnPoint) error {
	rows := make([]model.SpawnPoint, 0, len(points))
	for _, p := range points {
		rows = append(rows, model.SpawnPoint{
			ID:            p.ID,
			Latitude:      p.Location.Lat,
			Longitude:     p.Location.Lng,
			DespawnSecond: int32(p.DespawnSecond),
			LastSeen:      p.LastSeen,
		})
	}
	if err := upsert(ctx, r.db, "id", rows); err != nil {
		return fmt.Errorf("upsert spawnpoints: %w", err)
	}
	return nil
}

// ListSpawnPoints returns the known spawn points within radiusKm of center,
// ordered by id.
func (r EntityRepo) ListSpawnPoints(ctx context.Context, center geo.Coord, radiusKm float64) ([]scan.SpawnPoint, error) {
	north := geo.Move(center, radiusKm, geo.North)
	south := geo.Move(center, radiusKm, geo.South)
	east := geo.Move(center, radiusKm, geo.East)
	west := geo.Move(center, radiusKm, geo.West)

	var rows []model.SpawnPoint
	err := conn(ctx, r.db).
		Where("latitude BETWEEN ? AND ?", south.Lat, north.Lat).
		Where("longitude BETWEEN ? AND ?", west.Lng, east.Lng).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list spawnpoints: %w", err)
	}
	out := make([]scan.SpawnPoint, 0, len(rows))
	for _, row := range rows {
		sp := spawnFromRow(row)
		// The box overshoots at the corners.
		if geo.DistanceKm(center, sp.Location) > radiusKm {
			continue
		}
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func spawnFromRow(row model.SpawnPoint) scan.SpawnPoint {
	return scan.SpawnPoint{
		ID:            row.ID,
		Location:      geo.Coord{Lat: row.Latitude, Lng: row.Longitude},
		DespawnSecond: int(row.DespawnSecond),
		LastSeen:      row.LastSeen,
	}
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	out := int32(*v)
	return &out
}
