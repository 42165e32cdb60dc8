package model

import "time"

const (
	TableNamePokemon        = "pokemon"
	TableNamePokestop       = "pokestops"
	TableNameGym            = "gyms"
	TableNameGymDetails     = "gym_details"
	TableNameGymMember      = "gym_members"
	TableNameSpawnPoint     = "spawnpoints"
	TableNameWorkerStatus   = "worker_status"
	TableNameMainWorker     = "main_workers"
	TableNameHashKey        = "hash_keys"
	TableNameAccountFailure = "account_failures"
)

type Pokemon struct {
	EncounterID   string    `gorm:"column:encounter_id;primaryKey" json:"encounter_id"`
	SpawnpointID  string    `gorm:"column:spawnpoint_id;not null" json:"spawnpoint_id"`
	PokemonID     int32     `gorm:"column:pokemon_id;not null" json:"pokemon_id"`
	Latitude      float64   `gorm:"column:latitude;not null" json:"latitude"`
	Longitude     float64   `gorm:"column:longitude;not null" json:"longitude"`
	DisappearTime time.Time `gorm:"column:disappear_time;not null" json:"disappear_time"`
	Attack        *int32    `gorm:"column:individual_attack" json:"individual_attack"`
	Defense       *int32    `gorm:"column:individual_defense" json:"individual_defense"`
	Stamina       *int32    `gorm:"column:individual_stamina" json:"individual_stamina"`
	CP            *int32    `gorm:"column:cp" json:"cp"`
	CPMultiplier  *float64  `gorm:"column:cp_multiplier" json:"cp_multiplier"`
	Move1         *int32    `gorm:"column:move_1" json:"move_1"`
	Move2         *int32    `gorm:"column:move_2" json:"move_2"`
	Height        *float64  `gorm:"column:height" json:"height"`
	Weight        *float64  `gorm:"column:weight" json:"weight"`
	Gender        *int32    `gorm:"column:gender" json:"gender"`
	LastModified  time.Time `gorm:"column:last_modified;not null" json:"last_modified"`
}

func (*Pokemon) TableName() string { return TableNamePokemon }

type Pokestop struct {
	PokestopID     string     `gorm:"column:pokestop_id;primaryKey" json:"pokestop_id"`
	Enabled        bool       `gorm:"column:enabled;not null" json:"enabled"`
	Latitude       float64    `gorm:"column:latitude;not null" json:"latitude"`
	Longitude      float64    `gorm:"column:longitude;not null" json:"longitude"`
	LastModified   time.Time  `gorm:"column:last_modified;not null" json:"last_modified"`
	LureExpiration *time.Time `gorm:"column:lure_expiration" json:"lure_expiration"`
	LastUpdated    time.Time  `gorm:"column:last_updated;not null" json:"last_updated"`
}

func (*Pokestop) TableName() string { return TableNamePokestop }

type Gym struct {
	GymID          string    `gorm:"column:gym_id;primaryKey" json:"gym_id"`
	TeamID         int32     `gorm:"column:team_id;not null" json:"team_id"`
	GuardPokemonID int32     `gorm:"column:guard_pokemon_id;not null" json:"guard_pokemon_id"`
	SlotsAvailable int32     `gorm:"column:slots_available;not null" json:"slots_available"`
	Enabled        bool      `gorm:"column:enabled;not null" json:"enabled"`
	Latitude       float64   `gorm:"column:latitude;not null" json:"latitude"`
	Longitude      float64   `gorm:"column:longitude;not null" json:"longitude"`
	LastModified   time.Time `gorm:"column:last_modified;not null" json:"last_modified"`
	LastScanned    time.Time `gorm:"column:last_scanned;not null" json:"last_scanned"`
}

func (*Gym) TableName() string { return TableNameGym }

type GymDetails struct {
	GymID       string    `gorm:"column:gym_id;primaryKey" json:"gym_id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Description string    `gorm:"column:description;not null" json:"description"`
	URL         string    `gorm:"column:url;not null" json:"url"`
	LastScanned time.Time `gorm:"column:last_scanned;not null" json:"last_scanned"`
}

func (*GymDetails) TableName() string { return TableNameGymDetails }

type GymMember struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement:true" json:"id"`
	GymID        string `gorm:"column:gym_id;not null" json:"gym_id"`
	Slot         int32  `gorm:"column:slot;not null" json:"slot"`
	TrainerName  string `gorm:"column:trainer_name;not null" json:"trainer_name"`
	TrainerLevel int32  `gorm:"column:trainer_level;not null" json:"trainer_level"`
	PokemonID    int32  `gorm:"column:pokemon_id;not null" json:"pokemon_id"`
	CP           int32  `gorm:"column:cp;not null" json:"cp"`
}

func (*GymMember) TableName() string { return TableNameGymMember }

type SpawnPoint struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	Latitude      float64   `gorm:"column:latitude;not null" json:"latitude"`
	Longitude     float64   `gorm:"column:longitude;not null" json:"longitude"`
	DespawnSecond int32     `gorm:"column:despawn_sec;not null" json:"despawn_sec"`
	LastSeen      time.Time `gorm:"column:last_seen;not null" json:"last_seen"`
}

func (*SpawnPoint) TableName() string { return TableNameSpawnPoint }

type WorkerStatus struct {
	Username     string    `gorm:"column:username;primaryKey" json:"username"`
	WorkerName   string    `gorm:"column:worker_name;not null" json:"worker_name"`
	Success      int32     `gorm:"column:success;not null" json:"success"`
	Fail         int32     `gorm:"column:fail;not null" json:"fail"`
	NoItems      int32     `gorm:"column:no_items;not null" json:"no_items"`
	Skip         int32     `gorm:"column:skip;not null" json:"skip"`
	Captcha      int32     `gorm:"column:captcha;not null" json:"captcha"`
	Message      string    `gorm:"column:message;not null" json:"message"`
	LastScanDate time.Time `gorm:"column:last_scan_date" json:"last_scan_date"`
	LastModified time.Time `gorm:"column:last_modified;not null" json:"last_modified"`
	Latitude     float64   `gorm:"column:latitude" json:"latitude"`
	Longitude    float64   `gorm:"column:longitude" json:"longitude"`
}

func (*WorkerStatus) TableName() string { return TableNameWorkerStatus }

type MainWorker struct {
	WorkerName      string    `gorm:"column:worker_name;primaryKey" json:"worker_name"`
	Message         string    `gorm:"column:message;not null" json:"message"`
	Method          string    `gorm:"column:method;not null" json:"method"`
	AccountsWorking int32     `gorm:"column:accounts_working;not null" json:"accounts_working"`
	AccountsCaptcha int32     `gorm:"column:accounts_captcha;not null" json:"accounts_captcha"`
	AccountsFailed  int32     `gorm:"column:accounts_failed;not null" json:"accounts_failed"`
	LastModified    time.Time `gorm:"column:last_modified;not null" json:"last_modified"`
}

func (*MainWorker) TableName() string { return TableNameMainWorker }

type HashKey struct {
	Key         string     `gorm:"column:key;primaryKey" json:"key"`
	Maximum     int32      `gorm:"column:maximum;not null" json:"maximum"`
	Remaining   int32      `gorm:"column:remaining;not null" json:"remaining"`
	Peak        int32      `gorm:"column:peak;not null" json:"peak"`
	Expires     *time.Time `gorm:"column:expires" json:"expires"`
	LastUpdated time.Time  `gorm:"column:last_updated;not null" json:"last_updated"`
}

func (*HashKey) TableName() string { return TableNameHashKey }

type AccountFailure struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement:true" json:"id"`
	Username string    `gorm:"column:username;not null" json:"username"`
	Reason   string    `gorm:"column:reason;not null" json:"reason"`
	FailedAt time.Time `gorm:"column:failed_at;not null" json:"failed_at"`
}

func (*AccountFailure) TableName() string { return TableNameAccountFailure }
