package account

import (
	"errors"
	"time"

	"hivescan/internal/domain/geo"
)

type FailureReason string

const (
	ReasonException    FailureReason = "exception"
	ReasonEmptyScans   FailureReason = "empty-scans"
	ReasonMaxFailures  FailureReason = "max-failures"
	ReasonRestInterval FailureReason = "rest-interval"
	ReasonBanned       FailureReason = "banned"
	ReasonProxyLost    FailureReason = "proxy-lost"
)

// RestMultiplier scales the configured rest interval for a quarantined account.
func (r FailureReason) RestMultiplier() float64 {
	switch r {
	case ReasonException:
		return 0.1
	case ReasonBanned:
		return 10
	default:
		return 1
	}
}

var ErrInvalidCredentials = errors.New("invalid account credentials")

type Credentials struct {
	AuthService string `yaml:"auth_service" json:"auth_service"`
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"-"`
}

func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return ErrInvalidCredentials
	}
	switch c.AuthService {
	case "", "ptc", "google":
		return nil
	default:
		return ErrInvalidCredentials
	}
}

type Pokemon struct {
	ID           uint64  `json:"id"`
	PokemonID    int     `json:"pokemon_id"`
	CP           int     `json:"cp"`
	CPMultiplier float64 `json:"cp_multiplier"`
	Attack       int     `json:"individual_attack"`
	Defense      int     `json:"individual_defense"`
	Stamina      int     `json:"individual_stamina"`
	Move1        int     `json:"move_1"`
	Move2        int     `json:"move_2"`
	Height       float64 `json:"height"`
	Weight       float64 `json:"weight"`
	Gender       int     `json:"gender"`
	IsEgg        bool    `json:"is_egg,omitempty"`
}

func (p Pokemon) IVPercent() int {
	return (p.Attack + p.Defense + p.Stamina) * 100 / 45
}

type Incubator struct {
	ID            string `json:"id"`
	ItemID        int    `json:"item_id"`
	UsesRemaining int    `json:"uses_remaining"`
	EggID         uint64 `json:"egg_id,omitempty"`
}

func (i Incubator) Idle() bool {
	return i.EggID == 0
}

type Egg struct {
	ID          uint64  `json:"id"`
	KmTarget    float64 `json:"km_target"`
	IncubatorID string  `json:"incubator_id,omitempty"`
}

func (e Egg) Incubated() bool {
	return e.IncubatorID != ""
}

type PlayerStats struct {
	Level      int   `json:"level"`
	Experience int64 `json:"experience"`
}

// InventoryDelta is the inventory state reported alongside a remote call.
type InventoryDelta struct {
	Stats       *PlayerStats
	Items       map[int]int
	Pokemons    []Pokemon
	Eggs        []Egg
	Incubators  []Incubator
	TimestampMs int64
}

type Account struct {
	Credentials

	Level         int
	Experience    int64
	Items         map[int]int
	Pokemons      map[uint64]Pokemon
	Incubators    []Incubator
	Eggs          map[uint64]Egg
	UsedStops     map[string]time.Time
	TutorialState []int
	MaxItems      int
	MaxPokemons   int
	RewardedLevel int

	Warning bool
	Banned  bool
	Failed  bool
	InUse   bool

	LastLocation    geo.Coord
	LastCoords      *geo.Coord
	LastScanned     time.Time
	LastActive      time.Time
	LastTimestampMs int64
	ProxyURL        string

	HourStart      time.Time
	HourThrows     int
	HourCatches    int
	HourSpins      int
	HourXP         int64
	SessionStart   time.Time
	SessionThrows  int
	SessionCatches int
	SessionSpins   int
	SessionXP      int64
}

func New(creds Credentials) *Account {
	a := &Account{Credentials: creds}
	a.Reset()
	return a
}

// Reset clears everything tied to a single lease. Ban state, used stops and
// hourly counters survive so caps and cooldowns hold across leases.
func (a *Account) Reset() {
	a.Level = 0
	a.Experience = 0
	a.Items = map[int]int{}
	a.Pokemons = map[uint64]Pokemon{}
	a.Incubators = nil
	a.Eggs = map[uint64]Egg{}
	a.TutorialState = nil
	a.MaxItems = 350
	a.MaxPokemons = 250
	a.RewardedLevel = 0
	a.Warning = false
	a.LastLocation = geo.Coord{}
	a.LastActive = time.Time{}
	a.LastTimestampMs = 0
	a.SessionStart = time.Time{}
	a.SessionThrows = 0
	a.SessionCatches = 0
	a.SessionSpins = 0
	a.SessionXP = 0
	if a.UsedStops == nil {
		a.UsedStops = map[string]time.Time{}
	}
}

func (a *Account) PurgeStops(now time.Time, ttl time.Duration) {
	for id, at := range a.UsedStops {
		if now.Sub(at) >= ttl {
			delete(a.UsedStops, id)
		}
	}
}

func (a *Account) StopUsed(stopID string, now time.Time, ttl time.Duration) bool {
	a.PurgeStops(now, ttl)
	_, ok := a.UsedStops[stopID]
	return ok
}

func (a *Account) MarkStopUsed(stopID string, now time.Time) {
	if a.UsedStops == nil {
		a.UsedStops = map[string]time.Time{}
	}
	a.UsedStops[stopID] = now
}

// CleanupStats purges expired stops and rolls the hourly counters.
func (a *Account) CleanupStats(now time.Time, stopTTL time.Duration) {
	a.PurgeStops(now, stopTTL)
	if a.HourStart.IsZero() || now.Sub(a.HourStart) >= time.Hour {
		a.HourStart = now
		a.HourThrows = 0
		a.HourCatches = 0
		a.HourSpins = 0
		a.HourXP = 0
	}
}

func (a *Account) ItemCount(itemID int) int {
	return a.Items[itemID]
}

func (a *Account) TotalItems() int {
	total := 0
	for _, n := range a.Items {
		total += n
	}
	return total
}

func (a *Account) AddXP(xp int64) {
	a.HourXP += xp
	a.SessionXP += xp
	a.Experience += xp
}

// ApplyInventory merges a delta and reports whether the level went up.
func (a *Account) ApplyInventory(d *InventoryDelta) bool {
	if d == nil {
		return false
	}
	if a.Items == nil || a.Pokemons == nil || a.Eggs == nil {
		a.Reset()
	}
	if d.TimestampMs > 0 {
		a.LastTimestampMs = d.TimestampMs
	}
	for id, n := range d.Items {
		if n <= 0 {
			delete(a.Items, id)
			continue
		}
		a.Items[id] = n
	}
	for _, p := range d.Pokemons {
		if p.IsEgg {
			continue
		}
		a.Pokemons[p.ID] = p
	}
	for _, e := range d.Eggs {
		a.Eggs[e.ID] = e
	}
	if len(d.Incubators) > 0 {
		a.Incubators = append([]Incubator(nil), d.Incubators...)
	}
	leveled := false
	if d.Stats != nil {
		if d.Stats.Level > a.Level && a.Level > 0 {
			leveled = true
		}
		a.Level = d.Stats.Level
		a.Experience = d.Stats.Experience
	}
	return leveled
}

func (a *Account) SessionDuration(now time.Time) time.Duration {
	if a.SessionStart.IsZero() {
		return 0
	}
	return now.Sub(a.SessionStart)
}
