package scan

import (
	"time"

	"hivescan/internal/domain/geo"
)

type WildPokemon struct {
	EncounterID   uint64    `json:"encounter_id"`
	SpawnpointID  string    `json:"spawnpoint_id"`
	PokemonID     int       `json:"pokemon_id"`
	Location      geo.Coord `json:"location"`
	DisappearTime time.Time `json:"disappear_time"`

	Attack       *int     `json:"individual_attack,omitempty"`
	Defense      *int     `json:"individual_defense,omitempty"`
	Stamina      *int     `json:"individual_stamina,omitempty"`
	CP           *int     `json:"cp,omitempty"`
	CPMultiplier *float64 `json:"cp_multiplier,omitempty"`
	Move1        *int     `json:"move_1,omitempty"`
	Move2        *int     `json:"move_2,omitempty"`
	Height       *float64 `json:"height,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	Gender       *int     `json:"gender,omitempty"`
}

func (p WildPokemon) Key() string {
	return uintKey(p.EncounterID)
}

type Pokestop struct {
	ID             string    `json:"pokestop_id"`
	Location       geo.Coord `json:"location"`
	Enabled        bool      `json:"enabled"`
	LastModified   time.Time `json:"last_modified"`
	LureExpiration time.Time `json:"lure_expiration,omitempty"`
}

type Gym struct {
	ID             string    `json:"gym_id"`
	Location       geo.Coord `json:"location"`
	Enabled        bool      `json:"enabled"`
	TeamID         int       `json:"team_id"`
	GuardPokemonID int       `json:"guard_pokemon_id"`
	SlotsAvailable int       `json:"slots_available"`
	LastModified   time.Time `json:"last_modified"`
}

type GymMember struct {
	TrainerName  string `json:"trainer_name"`
	TrainerLevel int    `json:"trainer_level"`
	PokemonID    int    `json:"pokemon_id"`
	CP           int    `json:"cp"`
}

type GymDetails struct {
	GymID       string      `json:"gym_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	URL         string      `json:"url"`
	Members     []GymMember `json:"members"`
	LastScanned time.Time   `json:"last_scanned"`
}

type SpawnPoint struct {
	ID       string    `json:"id"`
	Location geo.Coord `json:"location"`
	// DespawnSecond is the second of the hour the spawn disappears.
	DespawnSecond int       `json:"despawn_sec"`
	LastSeen      time.Time `json:"last_seen"`
}

// ParsedMap is one scan response split by what the worker can do with it.
type ParsedMap struct {
	Count int
	// Wild holds every pokemon seen; Pokemons only those within catch reach.
	Wild        map[uint64]WildPokemon
	Pokemons    map[uint64]WildPokemon
	Encounters  map[uint64]WildPokemon
	Pokestops   map[string]Pokestop
	Spinnable   map[string]Pokestop
	Gyms        map[string]Gym
	SpawnPoints map[string]SpawnPoint
}

func NewParsedMap() *ParsedMap {
	return &ParsedMap{
		Wild:        map[uint64]WildPokemon{},
		Pokemons:    map[uint64]WildPokemon{},
		Encounters:  map[uint64]WildPokemon{},
		Pokestops:   map[string]Pokestop{},
		Spinnable:   map[string]Pokestop{},
		Gyms:        map[string]Gym{},
		SpawnPoints: map[string]SpawnPoint{},
	}
}
