package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"
	"hivescan/internal/domain/scan"
)

// Index is a single-file store for runs without postgres.
type Index struct {
	db *sql.DB
}

func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func (x *Index) Close() error {
	return x.db.Close()
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pokemon (
			encounter_id TEXT PRIMARY KEY,
			spawnpoint_id TEXT NOT NULL,
			pokemon_id INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			disappear_time INTEGER NOT NULL,
			individual_attack INTEGER,
			individual_defense INTEGER,
			individual_stamina INTEGER,
			cp INTEGER,
			move_1 INTEGER,
			move_2 INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pokemon_disappear ON pokemon(disappear_time);`,
		`CREATE TABLE IF NOT EXISTS pokestops (
			pokestop_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			last_modified INTEGER NOT NULL,
			lure_expiration INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS gyms (
			gym_id TEXT PRIMARY KEY,
			team_id INTEGER NOT NULL,
			guard_pokemon_id INTEGER NOT NULL,
			slots_available INTEGER NOT NULL,
			enabled INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			last_modified INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS gym_details (
			gym_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			url TEXT NOT NULL,
			last_scanned INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS gym_members (
			gym_id TEXT NOT NULL,
			slot INTEGER NOT NULL,
			trainer_name TEXT NOT NULL,
			trainer_level INTEGER NOT NULL,
			pokemon_id INTEGER NOT NULL,
			cp INTEGER NOT NULL,
			PRIMARY KEY (gym_id, slot)
		);`,
		`CREATE TABLE IF NOT EXISTS spawnpoints (
			id TEXT PRIMARY KEY,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			despawn_sec INTEGER NOT NULL,
			last_seen INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_spawnpoints_lat_lng ON spawnpoints(latitude, longitude);`,
		`CREATE TABLE IF NOT EXISTS worker_status (
			username TEXT PRIMARY KEY,
			worker_name TEXT NOT NULL,
			success INTEGER NOT NULL,
			fail INTEGER NOT NULL,
			no_items INTEGER NOT NULL,
			skip INTEGER NOT NULL,
			captcha INTEGER NOT NULL,
			message TEXT NOT NULL,
			last_scan_date INTEGER,
			last_modified INTEGER NOT NULL,
			latitude REAL,
			longitude REAL
		);`,
		`CREATE TABLE IF NOT EXISTS main_workers (
			worker_name TEXT PRIMARY KEY,
			message TEXT NOT NULL,
			method TEXT NOT NULL,
			accounts_working INTEGER NOT NULL,
			accounts_captcha INTEGER NOT NULL,
			accounts_failed INTEGER NOT NULL,
			last_modified INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS hash_keys (
			key TEXT PRIMARY KEY,
			maximum INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			peak INTEGER NOT NULL,
			expires INTEGER,
			last_updated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS account_failures (
			username TEXT NOT NULL,
			reason TEXT NOT NULL,
			failed_at INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs one prepared statement over every row inside a transaction.
func (x *Index) inTx(ctx context.Context, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (x *Index) UpsertPokemons(ctx context.Context, pokemons []scan.WildPokemon) error {
	return x.inTx(ctx, `INSERT OR REPLACE INTO pokemon(encounter_id,spawnpoint_id,pokemon_id,latitude,longitude,disappear_time,individual_attack,individual_defense,individual_stamina,cp,move_1,move_2) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		len(pokemons), func(i int) []any {
			p := pokemons[i]
			return []any{p.Key(), p.SpawnpointID, p.PokemonID, p.Location.Lat, p.Location.Lng, p.DisappearTime.Unix(),
				nullInt(p.Attack), nullInt(p.Defense), nullInt(p.Stamina), nullInt(p.CP), nullInt(p.Move1), nullInt(p.Move2)}
		})
}

func (x *Index) UpsertPokestops(ctx context.Context, stops []scan.Pokestop) error {
	return x.inTx(ctx, `INSERT OR REPLACE INTO pokestops(pokestop_id,enabled,latitude,longitude,last_modified,lure_expiration) VALUES(?,?,?,?,?,?)`,
		len(stops), func(i int) []any {
			s := stops[i]
			return []any{s.ID, s.Enabled, s.Location.Lat, s.Location.Lng, s.LastModified.Unix(), nullTime(s.LureExpiration)}
		})
}

func (x *Index) UpsertGyms(ctx context.Context, gyms []scan.Gym) error {
	return x.inTx(ctx, `INSERT OR REPLACE INTO gyms(gym_id,team_id,guard_pokemon_id,slots_available,enabled,latitude,longitude,last_modified) VALUES(?,?,?,?,?,?,?,?)`,
		len(gyms), func(i int) []any {
			g := gyms[i]
			return []any{g.ID, g.TeamID, g.GuardPokemonID, g.SlotsAvailable, g.Enabled, g.Location.Lat, g.Location.Lng, g.LastModified.Unix()}
		})
}

func (x *Index) UpsertGymDetails(ctx context.Context, details []scan.GymDetails) error {
	if len(details) == 0 {
		return nil
	}
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, d := range details {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO gym_details(gym_id,name,description,url,last_scanned) VALUES(?,?,?,?,?)`,
			d.GymID, d.Name, d.Description, d.URL, d.LastScanned.Unix()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM gym_members WHERE gym_id = ?`, d.GymID); err != nil {
			return err
		}
		for slot, m := range d.Members {
			if _, err := tx.ExecContext(ctx, `INSERT INTO gym_members(gym_id,slot,trainer_name,trainer_level,pokemon_id,cp) VALUES(?,?,?,?,?,?)`,
				d.GymID, slot, m.TrainerName, m.TrainerLevel, m.PokemonID, m.CP); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (x *Index) GetGymDetails(ctx context.Context, gymID string) (scan.GymDetails, error) {
	var (
		d       scan.GymDetails
		scanned int64
	)
	err := x.db.QueryRowContext(ctx, `SELECT gym_id,name,description,url,last_scanned FROM gym_details WHERE gym_id = ?`, gymID).
		Scan(&d.GymID, &d.Name, &d.Description, &d.URL, &scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return scan.GymDetails{}, ports.ErrNotFound
	}
	if err != nil {
		return scan.GymDetails{}, err
	}
	d.LastScanned = time.Unix(scanned, 0).UTC()
	rows, err := x.db.QueryContext(ctx, `SELECT trainer_name,trainer_level,pokemon_id,cp FROM gym_members WHERE gym_id = ? ORDER BY slot`, gymID)
	if err != nil {
		return scan.GymDetails{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var m scan.GymMember
		if err := rows.Scan(&m.TrainerName, &m.TrainerLevel, &m.PokemonID, &m.CP); err != nil {
			return scan.GymDetails{}, err
		}
		d.Members = append(d.Members, m)
	}
	return d, rows.Err()
}

func (x *Index) UpsertSpawnPoints(ctx context.Context, points []scan.SpawnPoint) error {
	return x.inTx(ctx, `INSERT OR REPLACE INTO spawnpoints(id,latitude,longitude,despawn_sec,last_seen) VALUES(?,?,?,?,?)`,
		len(points), func(i int) []any {
			p := points[i]
			return []any{p.ID, p.Location.Lat, p.Location.Lng, p.DespawnSecond, p.LastSeen.Unix()}
		})
}

func (x *Index) ListSpawnPoints(ctx context.Context, center geo.Coord, radiusKm float64) ([]scan.SpawnPoint, error) {
	north := geo.Move(center, radiusKm, geo.North)
	south := geo.Move(center, radiusKm, geo.South)
	east := geo.Move(center, radiusKm, geo.East)
	west := geo.Move(center, radiusKm, geo.West)
	rows, err := x.db.QueryContext(ctx,
		`SELECT id,latitude,longitude,despawn_sec,last_seen FROM spawnpoints WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`,
		south.Lat, north.Lat, west.Lng, east.Lng)
	if err != nil {
		return nil, fmt.Errorf("list spawnpoints: %w", err)
	}
	defer rows.Close()
	out := make([]scan.SpawnPoint, 0)
	for rows.Next() {
		var (
			sp   scan.SpawnPoint
			seen int64
		)
		if err := rows.Scan(&sp.ID, &sp.Location.Lat, &sp.Location.Lng, &sp.DespawnSecond, &seen); err != nil {
			return nil, err
		}
		if geo.DistanceKm(center, sp.Location) > radiusKm {
			continue
		}
		sp.LastSeen = time.Unix(seen, 0).UTC()
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (x *Index) UpsertWorkerStatus(ctx context.Context, rows []ports.WorkerStatusRecord) error {
	return x.inTx(ctx, `INSERT OR REPLACE INTO worker_status(username,worker_name,success,fail,no_items,skip,captcha,message,last_scan_date,last_modified,latitude,longitude) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		len(rows), func(i int) []any {
			s := rows[i]
			return []any{s.Username, s.WorkerName, s.Success, s.Fail, s.NoItems, s.Skip, s.Captcha, s.Message,
				nullTime(s.LastScanDate), s.LastModified.Unix(), s.Location.Lat, s.Location.Lng}
		})
}

func (x *Index) UpsertMainWorker(ctx context.Context, row ports.MainWorkerRecord) error {
	_, err := x.db.ExecContext(ctx, `INSERT OR REPLACE INTO main_workers(worker_name,message,method,accounts_working,accounts_captcha,accounts_failed,last_modified) VALUES(?,?,?,?,?,?,?)`,
		row.WorkerName, row.Message, row.Method, row.AccountsWorking, row.AccountsCaptcha, row.AccountsFailed, row.LastModified.Unix())
	return err
}

func (x *Index) UpsertHashKeys(ctx context.Context, budgets []hashkey.Budget) error {
	return x.inTx(ctx, `INSERT OR REPLACE INTO hash_keys(key,maximum,remaining,peak,expires,last_updated) VALUES(?,?,?,?,?,?)`,
		len(budgets), func(i int) []any {
			b := budgets[i]
			return []any{b.Key, b.Maximum, b.Remaining, b.Peak, nullTime(b.Expires), b.LastUpdated.Unix()}
		})
}

func (x *Index) StoredPeak(ctx context.Context, key string) (int, error) {
	var peak int
	err := x.db.QueryRowContext(ctx, `SELECT peak FROM hash_keys WHERE key = ?`, key).Scan(&peak)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return peak, err
}

func (x *Index) AppendFailure(ctx context.Context, failure ports.AccountFailureRecord) error {
	_, err := x.db.ExecContext(ctx, `INSERT INTO account_failures(username,reason,failed_at) VALUES(?,?,?)`,
		failure.Username, string(failure.Reason), failure.FailedAt.Unix())
	return err
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

var (
	_ ports.Store                = (*Index)(nil)
	_ ports.GymDetailsRepository = (*Index)(nil)
	_ ports.SpawnPointRepository = (*Index)(nil)
)
