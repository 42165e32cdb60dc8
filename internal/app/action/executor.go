package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"hivescan/internal/app/pacing"
	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"
)

type Kind string

const (
	KindSpin     Kind = "spin"
	KindCatch    Kind = "catch"
	KindRecycle  Kind = "recycle"
	KindRelease  Kind = "release"
	KindLevelUp  Kind = "level_up"
	KindIncubate Kind = "incubate"
)

type Spec struct {
	Kind    Kind
	Handler Handler
}

type Handler interface {
	Precheck(ctx context.Context, ex *Executor, ac *Context) error
	Execute(ctx context.Context, ex *Executor, ac *Context) error
}

// Context is the input and scratch space of one action run.
type Context struct {
	Session  ports.SessionClient
	Account  *account.Account
	Location geo.Coord
	NowAt    time.Time

	Stop       *scan.Pokestop
	Wild       *scan.WildPokemon
	ItemID     int
	Count      int
	PokemonIDs []uint64

	Result Result
}

type Result struct {
	Kind     Kind
	Code     int
	Attempts int
	XP       int64

	Throws     int
	BerryUsed  bool
	CaughtID   uint64
	IV         int
	Keep       bool
	Encounter  *account.Pokemon
	Incubated  int
	Recycled   map[int]int
	Challenged string
}

type Config struct {
	StopTTL           time.Duration
	SpinAttempts      int
	CatchAttempts     int
	BerryChance       float64
	RecycleThresholds map[int]int
}

func DefaultConfig() Config {
	return Config{
		StopTTL:       5 * time.Minute,
		SpinAttempts:  3,
		CatchAttempts: 5,
		BerryChance:   0.5,
		RecycleThresholds: map[int]int{
			account.ItemPokeBall:    50,
			account.ItemGreatBall:   50,
			account.ItemUltraBall:   50,
			account.ItemPotion:      0,
			account.ItemSuperPotion: 0,
			account.ItemHyperPotion: 10,
			account.ItemMaxPotion:   10,
			account.ItemRevive:      10,
			account.ItemMaxRevive:   10,
			account.ItemRazzBerry:   30,
		},
	}
}

// Executor runs the action protocols for one worker. It is not safe for
// concurrent use; each worker owns its own.
type Executor struct {
	Config  Config
	Sleeper pacing.Sleeper
	Rand    *rand.Rand
	Metrics ports.ActionMetrics
	Logger  *slog.Logger
	Now     func() time.Time

	registry map[Kind]Spec
}

func NewExecutor(cfg Config, sleeper pacing.Sleeper, rnd *rand.Rand) *Executor {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if sleeper == nil {
		sleeper = pacing.RealSleeper{}
	}
	return &Executor{Config: cfg, Sleeper: sleeper, Rand: rnd}
}

func actionRegistry() map[Kind]Spec {
	return map[Kind]Spec{
		KindSpin:     {Kind: KindSpin, Handler: spinHandler{}},
		KindCatch:    {Kind: KindCatch, Handler: catchHandler{}},
		KindRecycle:  {Kind: KindRecycle, Handler: recycleHandler{}},
		KindRelease:  {Kind: KindRelease, Handler: releaseHandler{}},
		KindLevelUp:  {Kind: KindLevelUp, Handler: levelUpHandler{}},
		KindIncubate: {Kind: KindIncubate, Handler: incubateHandler{}},
	}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) sleep(ctx context.Context, lo, hi time.Duration) error {
	return e.Sleeper.Sleep(ctx, pacing.Uniform(e.Rand, lo, hi))
}

// Run executes one action. Panics and transport failures come back as
// errors; nothing escapes to the caller's cycle.
func (e *Executor) Run(ctx context.Context, kind Kind, ac *Context) (res Result, err error) {
	if e.registry == nil {
		e.registry = actionRegistry()
	}
	spec, ok := e.registry[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedAction, kind)
	}
	if ac.NowAt.IsZero() {
		ac.NowAt = e.now()
	}
	ac.Result = Result{Kind: kind}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", kind, r)
			res = ac.Result
		}
		e.record(kind, ac, err)
	}()

	if err := spec.Handler.Precheck(ctx, e, ac); err != nil {
		return ac.Result, err
	}
	if err := spec.Handler.Execute(ctx, e, ac); err != nil {
		return ac.Result, err
	}
	return ac.Result, nil
}

func (e *Executor) record(kind Kind, ac *Context, err error) {
	username := ""
	if ac.Account != nil {
		username = ac.Account.Username
	}
	switch {
	case err == nil:
		if e.Metrics != nil {
			e.Metrics.RecordSuccess(string(kind))
		}
	case errors.Is(err, ErrSkipped):
		if e.Metrics != nil {
			e.Metrics.RecordSkip(string(kind))
		}
	default:
		if e.Metrics != nil {
			e.Metrics.RecordFailure(string(kind))
		}
		e.logger().Warn("action failed", "action", kind, "account", username, "err", err)
	}
}

// call issues one request and applies the piggybacked inventory. A
// challenge in the response is returned as *ChallengeError.
func (e *Executor) call(ctx context.Context, ac *Context, req ports.Request) (ports.Response, error) {
	req.Location = ac.Location
	req.LastTimestampMs = ac.Account.LastTimestampMs
	resp, err := ac.Session.Call(ctx, req)
	if err != nil {
		return resp, err
	}
	ac.Account.ApplyInventory(resp.Inventory)
	if resp.HasChallenge() {
		ac.Result.Challenged = resp.ChallengeURL
		return resp, &ChallengeError{URL: resp.ChallengeURL}
	}
	return resp, nil
}

func (e *Executor) Spin(ctx context.Context, sess ports.SessionClient, a *account.Account, loc geo.Coord, stop scan.Pokestop) (Result, error) {
	return e.Run(ctx, KindSpin, &Context{Session: sess, Account: a, Location: loc, Stop: &stop})
}

func (e *Executor) Catch(ctx context.Context, sess ports.SessionClient, a *account.Account, loc geo.Coord, wild scan.WildPokemon) (Result, error) {
	return e.Run(ctx, KindCatch, &Context{Session: sess, Account: a, Location: loc, Wild: &wild})
}

func (e *Executor) Recycle(ctx context.Context, sess ports.SessionClient, a *account.Account, itemID, count int) (Result, error) {
	return e.Run(ctx, KindRecycle, &Context{Session: sess, Account: a, Location: a.LastLocation, ItemID: itemID, Count: count})
}

func (e *Executor) Release(ctx context.Context, sess ports.SessionClient, a *account.Account, ids []uint64) (Result, error) {
	return e.Run(ctx, KindRelease, &Context{Session: sess, Account: a, Location: a.LastLocation, PokemonIDs: ids})
}

func (e *Executor) LevelUp(ctx context.Context, sess ports.SessionClient, a *account.Account) (Result, error) {
	return e.Run(ctx, KindLevelUp, &Context{Session: sess, Account: a, Location: a.LastLocation})
}

func (e *Executor) Incubate(ctx context.Context, sess ports.SessionClient, a *account.Account) (Result, error) {
	return e.Run(ctx, KindIncubate, &Context{Session: sess, Account: a, Location: a.LastLocation})
}
