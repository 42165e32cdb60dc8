package action

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
)

const (
	CatchError   = 0
	CatchSuccess = 1
	CatchEscape  = 2
	CatchFlee    = 3
	CatchMissed  = 4

	EncounterSuccess = 1
)

type throwTier struct {
	name   string
	weight float64
	lo, hi float64
}

var throwTiers = []throwTier{
	{name: "excellent", weight: 0.05, lo: 1.70, hi: 1.95},
	{name: "great", weight: 0.15, lo: 1.30, hi: 1.70},
	{name: "nice", weight: 0.30, lo: 1.00, hi: 1.30},
	{name: "normal", weight: 0.50, lo: 0.50, hi: 1.00},
}

func randomThrow(rnd *rand.Rand, ball int) ports.Throw {
	tier := throwTiers[len(throwTiers)-1]
	r := rnd.Float64()
	acc := 0.0
	for _, t := range throwTiers {
		acc += t.weight
		if r < acc {
			tier = t
			break
		}
	}
	spin := 1.0
	if rnd.Float64() < 0.7 {
		spin = 0.85 + rnd.Float64()*0.15
	}
	return ports.Throw{
		Ball:                  ball,
		NormalizedReticleSize: tier.lo + rnd.Float64()*(tier.hi-tier.lo),
		SpinModifier:          spin,
		HitPosition:           1.0,
		HitPokemon:            true,
	}
}

func bestBall(a *account.Account) int {
	for _, b := range account.Balls {
		if a.ItemCount(b) > 0 {
			return b
		}
	}
	return 0
}

// consume deducts one item unless the piggybacked inventory already did.
func consume(a *account.Account, itemID, before int) {
	if a.Items[itemID] != before {
		return
	}
	if before <= 1 {
		delete(a.Items, itemID)
		return
	}
	a.Items[itemID] = before - 1
}

// KeepPokemon decides whether a caught pokemon stays in the inventory.
func KeepPokemon(iv int, roll float64) bool {
	return (iv > 80 && roll < 0.70) || (iv > 91 && roll < 0.95)
}

type catchHandler struct{}

func (catchHandler) Precheck(_ context.Context, _ *Executor, ac *Context) error {
	if ac.Wild == nil {
		return fmt.Errorf("%w: no pokemon", ErrSkipped)
	}
	if bestBall(ac.Account) == 0 {
		return ErrNoBalls
	}
	return nil
}

func (catchHandler) Execute(ctx context.Context, ex *Executor, ac *Context) error {
	a, wild := ac.Account, ac.Wild

	if err := ex.sleep(ctx, 2500*time.Millisecond, 4*time.Second); err != nil {
		return err
	}
	resp, err := ex.call(ctx, ac, ports.Request{
		Kind:         ports.RequestEncounter,
		EncounterID:  wild.EncounterID,
		SpawnpointID: wild.SpawnpointID,
	})
	if err != nil {
		return err
	}
	if resp.Encounter == nil || resp.Encounter.Status != EncounterSuccess {
		code := resp.Result
		if resp.Encounter != nil {
			code = resp.Encounter.Status
		}
		return &RemoteError{Kind: KindCatch, Code: code, Err: ErrRejected}
	}
	if resp.Encounter.Pokemon == nil {
		return fmt.Errorf("%w: encounter %d without pokemon data", ports.ErrBadResponse, wild.EncounterID)
	}
	encountered := *resp.Encounter.Pokemon
	if encountered.PokemonID == 0 {
		encountered.PokemonID = wild.PokemonID
	}
	ac.Result.Encounter = &encountered
	ac.Result.IV = encountered.IVPercent()

	attempts := ex.Config.CatchAttempts
	if attempts < 1 {
		attempts = 1
	}
	berryActive := false
	for i := 0; i < attempts; i++ {
		ac.Result.Attempts++
		ball := bestBall(a)
		if ball == 0 {
			return ErrNoBalls
		}

		if !berryActive && a.ItemCount(account.ItemRazzBerry) > 0 && ex.Rand.Float64() < ex.Config.BerryChance {
			before := a.ItemCount(account.ItemRazzBerry)
			berryResp, err := ex.call(ctx, ac, ports.Request{
				Kind:         ports.RequestUseItemCapture,
				ItemID:       account.ItemRazzBerry,
				EncounterID:  wild.EncounterID,
				SpawnpointID: wild.SpawnpointID,
			})
			if err != nil {
				return err
			}
			if berryResp.Result == 1 {
				berryActive = true
				ac.Result.BerryUsed = true
				consume(a, account.ItemRazzBerry, before)
			}
		}

		if err := ex.sleep(ctx, 1*time.Second, 2*time.Second); err != nil {
			return err
		}
		before := a.ItemCount(ball)
		throwResp, err := ex.call(ctx, ac, ports.Request{
			Kind:         ports.RequestCatch,
			EncounterID:  wild.EncounterID,
			SpawnpointID: wild.SpawnpointID,
			Throw:        ptrThrow(randomThrow(ex.Rand, ball)),
		})
		if err != nil {
			return err
		}
		a.HourThrows++
		a.SessionThrows++
		ac.Result.Throws++
		consume(a, ball, before)

		status := throwResp.Result
		var capturedID uint64
		var xp int64
		if throwResp.Catch != nil {
			status = throwResp.Catch.Status
			capturedID = throwResp.Catch.CapturedID
			xp = throwResp.Catch.XP
		}
		ac.Result.Code = status

		switch status {
		case CatchSuccess:
			a.HourCatches++
			a.SessionCatches++
			a.AddXP(xp)
			ac.Result.XP = xp
			ac.Result.CaughtID = capturedID
			if _, ok := a.Pokemons[capturedID]; !ok {
				rec := encountered
				rec.ID = capturedID
				a.Pokemons[capturedID] = rec
			}
			ac.Result.Keep = KeepPokemon(ac.Result.IV, ex.Rand.Float64())
			ex.logger().Info("caught pokemon",
				"account", a.Username,
				"pokemon", encountered.PokemonID,
				"iv", ac.Result.IV,
				"throws", ac.Result.Throws,
				"keep", ac.Result.Keep)
			return nil
		case CatchFlee:
			return &RemoteError{Kind: KindCatch, Code: status, Err: ErrFled}
		case CatchEscape, CatchMissed:
			continue
		default:
			ex.logger().Warn("unknown catch result", "account", a.Username, "result", status)
		}
	}
	return fmt.Errorf("%w: catch %d", ErrAttemptsExhausted, wild.EncounterID)
}

func ptrThrow(t ports.Throw) *ports.Throw {
	return &t
}
