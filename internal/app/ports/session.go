package ports

import (
	"context"
	"time"

	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/hashkey"
	"hivescan/internal/domain/scan"
)

type RequestKind string

const (
	RequestMapObjects        RequestKind = "get_map_objects"
	RequestEncounter         RequestKind = "encounter"
	RequestCatch             RequestKind = "catch_pokemon"
	RequestUseItemCapture    RequestKind = "use_item_capture"
	RequestFortSearch        RequestKind = "fort_search"
	RequestRecycleItem       RequestKind = "recycle_inventory_item"
	RequestReleasePokemon    RequestKind = "release_pokemon"
	RequestLevelUpRewards    RequestKind = "level_up_rewards"
	RequestUseIncubator      RequestKind = "use_item_egg_incubator"
	RequestGymInfo           RequestKind = "gym_get_info"
	RequestGetPlayer         RequestKind = "get_player"
	RequestPlayerProfile     RequestKind = "get_player_profile"
	RequestMarkTutorial      RequestKind = "mark_tutorial_complete"
	RequestSetAvatar         RequestKind = "set_avatar"
	RequestDownloadURLs      RequestKind = "get_download_urls"
	RequestEncounterTutorial RequestKind = "encounter_tutorial_complete"
	RequestClaimCodename     RequestKind = "claim_codename"
	RequestSetBuddy          RequestKind = "set_buddy_pokemon"
	RequestVerifyChallenge   RequestKind = "verify_challenge"
)

type Throw struct {
	Ball                  int
	NormalizedReticleSize float64
	SpinModifier          float64
	HitPosition           float64
	HitPokemon            bool
}

type Request struct {
	Kind            RequestKind
	Location        geo.Coord
	LastTimestampMs int64

	EncounterID  uint64
	SpawnpointID string
	FortID       string
	FortLocation geo.Coord
	GymID        string

	ItemID     int
	Count      int
	PokemonIDs []uint64
	Throw      *Throw

	IncubatorID string
	EggID       uint64

	Level        int
	TutorialStep int
	Codename     string
	Avatar       map[string]int
	StarterID    int
	AssetIDs     []string
	Token        string
}

type MapCell struct {
	WildPokemons []scan.WildPokemon
	Pokestops    []scan.Pokestop
	Gyms         []scan.Gym
	NearbyCount  int
}

type MapObjects struct {
	Status int
	Cells  []MapCell
}

type EncounterResult struct {
	Status  int
	Pokemon *account.Pokemon
}

type CatchResult struct {
	Status     int
	CapturedID uint64
	XP         int64
}

type FortSearchResult struct {
	Result int
	XP     int64
	Items  map[int]int
}

type GymInfoResult struct {
	Result  int
	Details scan.GymDetails
}

type PlayerData struct {
	Username      string
	TutorialState []int
	MaxItems      int
	MaxPokemons   int
	Warning       bool
	Banned        bool
}

// Response carries the payload for the request kind plus the data the
// client piggybacks on every call.
type Response struct {
	Kind         RequestKind
	Result       int
	ChallengeURL string
	Inventory    *account.InventoryDelta
	HashStatus   *hashkey.Status

	Map       *MapObjects
	Encounter *EncounterResult
	Catch     *CatchResult
	Fort      *FortSearchResult
	Gym       *GymInfoResult
	Player    *PlayerData
	Items     map[int]int
}

func (r Response) HasChallenge() bool {
	return len(r.ChallengeURL) > 1
}

// SessionClient wraps the remote protocol client for one worker.
type SessionClient interface {
	Authenticate(ctx context.Context, creds account.Credentials, proxyURL string) error
	TicketExpiry() time.Time
	SetPosition(loc geo.Coord)
	SetHashKey(key string)
	Call(ctx context.Context, req Request) (Response, error)
}

type SessionFactory interface {
	NewSession(proxyURL string) SessionClient
}

type SessionFactoryFunc func(proxyURL string) SessionClient

func (f SessionFactoryFunc) NewSession(proxyURL string) SessionClient {
	return f(proxyURL)
}
