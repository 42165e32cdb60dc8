package action

import (
	"context"
	"fmt"
	"sort"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
)

const (
	LevelUpSuccess          = 1
	LevelUpAlreadyCollected = 2
)

type recycleHandler struct{}

func (recycleHandler) Precheck(_ context.Context, _ *Executor, ac *Context) error {
	have := ac.Account.ItemCount(ac.ItemID)
	if ac.ItemID == 0 || ac.Count <= 0 || have == 0 {
		return fmt.Errorf("%w: nothing to recycle", ErrSkipped)
	}
	if ac.Count > have {
		ac.Count = have
	}
	return nil
}

func (recycleHandler) Execute(ctx context.Context, ex *Executor, ac *Context) error {
	a := ac.Account
	before := a.ItemCount(ac.ItemID)
	resp, err := ex.call(ctx, ac, ports.Request{
		Kind:   ports.RequestRecycleItem,
		ItemID: ac.ItemID,
		Count:  ac.Count,
	})
	if err != nil {
		return err
	}
	ac.Result.Code = resp.Result
	if resp.Result != 1 {
		return &RemoteError{Kind: KindRecycle, Code: resp.Result, Err: ErrRejected}
	}
	remaining := before - ac.Count
	if n, ok := resp.Items[ac.ItemID]; ok {
		remaining = n
	}
	if remaining <= 0 {
		delete(a.Items, ac.ItemID)
	} else {
		a.Items[ac.ItemID] = remaining
	}
	ac.Result.Recycled = map[int]int{ac.ItemID: before - remaining}
	ex.logger().Info("recycled items", "account", a.Username, "item", ac.ItemID, "count", before-remaining)
	return nil
}

type releaseHandler struct{}

func (releaseHandler) Precheck(_ context.Context, _ *Executor, ac *Context) error {
	if len(ac.PokemonIDs) == 0 {
		return fmt.Errorf("%w: nothing to release", ErrSkipped)
	}
	return nil
}

func (releaseHandler) Execute(ctx context.Context, ex *Executor, ac *Context) error {
	if err := ex.sleep(ctx, 1*time.Second, 2*time.Second); err != nil {
		return err
	}
	resp, err := ex.call(ctx, ac, ports.Request{
		Kind:       ports.RequestReleasePokemon,
		PokemonIDs: ac.PokemonIDs,
	})
	if err != nil {
		return err
	}
	ac.Result.Code = resp.Result
	if resp.Result != 1 {
		return &RemoteError{Kind: KindRelease, Code: resp.Result, Err: ErrRejected}
	}
	for _, id := range ac.PokemonIDs {
		delete(ac.Account.Pokemons, id)
	}
	ex.logger().Info("released pokemon", "account", ac.Account.Username, "count", len(ac.PokemonIDs))
	return nil
}

type levelUpHandler struct{}

func (levelUpHandler) Precheck(_ context.Context, _ *Executor, ac *Context) error {
	a := ac.Account
	if a.Level <= 0 || a.RewardedLevel >= a.Level {
		return fmt.Errorf("%w: level %d already rewarded", ErrSkipped, a.Level)
	}
	return nil
}

func (levelUpHandler) Execute(ctx context.Context, ex *Executor, ac *Context) error {
	a := ac.Account
	resp, err := ex.call(ctx, ac, ports.Request{
		Kind:  ports.RequestLevelUpRewards,
		Level: a.Level,
	})
	if err != nil {
		return err
	}
	ac.Result.Code = resp.Result
	switch resp.Result {
	case LevelUpSuccess:
		for id, n := range resp.Items {
			a.Items[id] += n
		}
		ex.logger().Info("collected level up rewards", "account", a.Username, "level", a.Level)
	case LevelUpAlreadyCollected:
	default:
		return &RemoteError{Kind: KindLevelUp, Code: resp.Result, Err: ErrRejected}
	}
	a.RewardedLevel = a.Level
	return nil
}

type incubateHandler struct{}

func idleIncubators(a *account.Account) []int {
	var out []int
	for i, inc := range a.Incubators {
		if !inc.Idle() {
			continue
		}
		if inc.ItemID != account.ItemIncubatorUnlimited && inc.UsesRemaining <= 0 {
			continue
		}
		out = append(out, i)
	}
	return out
}

func waitingEggs(a *account.Account) []uint64 {
	var out []uint64
	for id, egg := range a.Eggs {
		if !egg.Incubated() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (incubateHandler) Precheck(_ context.Context, _ *Executor, ac *Context) error {
	if len(idleIncubators(ac.Account)) == 0 || len(waitingEggs(ac.Account)) == 0 {
		return fmt.Errorf("%w: no idle incubator or egg", ErrSkipped)
	}
	return nil
}

// Execute assigns at most one random egg to every idle incubator.
func (incubateHandler) Execute(ctx context.Context, ex *Executor, ac *Context) error {
	a := ac.Account
	eggs := waitingEggs(a)
	for _, idx := range idleIncubators(a) {
		if len(eggs) == 0 {
			break
		}
		pick := ex.Rand.Intn(len(eggs))
		eggID := eggs[pick]
		eggs = append(eggs[:pick], eggs[pick+1:]...)
		inc := a.Incubators[idx]

		if err := ex.sleep(ctx, 1*time.Second, 2*time.Second); err != nil {
			return err
		}
		resp, err := ex.call(ctx, ac, ports.Request{
			Kind:        ports.RequestUseIncubator,
			IncubatorID: inc.ID,
			EggID:       eggID,
		})
		if err != nil {
			return err
		}
		ac.Result.Code = resp.Result
		if resp.Result != 1 {
			return &RemoteError{Kind: KindIncubate, Code: resp.Result, Err: ErrRejected}
		}
		egg := a.Eggs[eggID]
		egg.IncubatorID = inc.ID
		a.Eggs[eggID] = egg
		inc.EggID = eggID
		if inc.ItemID != account.ItemIncubatorUnlimited {
			inc.UsesRemaining--
		}
		a.Incubators[idx] = inc
		ac.Result.Incubated++
		ex.logger().Info("egg incubated", "account", a.Username, "egg", eggID, "incubator", inc.ID)
	}
	return nil
}
