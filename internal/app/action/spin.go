package action

import (
	"context"
	"fmt"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
)

const (
	SpinSuccess      = 1
	SpinOutOfRange   = 2
	SpinOnCooldown   = 3
	SpinInventory    = 4
	SpinDailyMaximum = 5
)

type spinHandler struct{}

func (spinHandler) Precheck(_ context.Context, ex *Executor, ac *Context) error {
	if ac.Stop == nil {
		return fmt.Errorf("%w: no pokestop", ErrSkipped)
	}
	if ac.Account.StopUsed(ac.Stop.ID, ac.NowAt, ex.Config.StopTTL) {
		return fmt.Errorf("%w: pokestop %s already spun", ErrSkipped, ac.Stop.ID)
	}
	if geo.DistanceKm(ac.Location, ac.Stop.Location) > account.FortReachKm {
		return fmt.Errorf("%w: pokestop %s", ErrOutOfRange, ac.Stop.ID)
	}
	return nil
}

func (spinHandler) Execute(ctx context.Context, ex *Executor, ac *Context) error {
	recycled, err := ex.clearInventory(ctx, ac.Session, ac.Account, ac.Location)
	ac.Result.Recycled = recycled
	if CycleFatal(err) {
		return err
	}

	attempts := ex.Config.SpinAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		ac.Result.Attempts++
		if err := ex.sleep(ctx, 2*time.Second, 3*time.Second); err != nil {
			return err
		}
		resp, err := ex.call(ctx, ac, ports.Request{
			Kind:         ports.RequestFortSearch,
			FortID:       ac.Stop.ID,
			FortLocation: ac.Stop.Location,
		})
		if err != nil {
			return err
		}
		code := resp.Result
		var xp int64
		if resp.Fort != nil {
			code = resp.Fort.Result
			xp = resp.Fort.XP
		}
		ac.Result.Code = code
		switch code {
		case SpinSuccess:
			ac.Account.MarkStopUsed(ac.Stop.ID, ex.now())
			ac.Account.HourSpins++
			ac.Account.SessionSpins++
			ac.Account.AddXP(xp)
			ac.Result.XP = xp
			ex.logger().Info("spun pokestop", "account", ac.Account.Username, "pokestop", ac.Stop.ID, "xp", xp)
			return nil
		case SpinOutOfRange:
			return &RemoteError{Kind: KindSpin, Code: code, Err: ErrOutOfRange}
		case SpinOnCooldown:
			return &RemoteError{Kind: KindSpin, Code: code, Err: ErrOnCooldown}
		case SpinInventory:
			return &RemoteError{Kind: KindSpin, Code: code, Err: ErrInventoryFull}
		case SpinDailyMaximum:
			return &RemoteError{Kind: KindSpin, Code: code, Err: ErrDailyQuota}
		default:
			ex.logger().Warn("unknown spin result", "account", ac.Account.Username, "pokestop", ac.Stop.ID, "result", code)
		}
	}
	return fmt.Errorf("%w: spin %s", ErrAttemptsExhausted, ac.Stop.ID)
}

var recycleOrder = func() []int {
	out := append([]int{}, account.Balls...)
	out = append(out, account.Potions...)
	return append(out, account.ItemRazzBerry)
}()

// clearInventory drops every item stacked above its configured threshold.
// A recycle the remote side did not confirm leaves the local count as is.
func (e *Executor) clearInventory(ctx context.Context, sess ports.SessionClient, a *account.Account, loc geo.Coord) (map[int]int, error) {
	var recycled map[int]int
	for _, itemID := range recycleOrder {
		limit, ok := e.Config.RecycleThresholds[itemID]
		if !ok {
			continue
		}
		excess := a.ItemCount(itemID) - limit
		if excess <= 0 {
			continue
		}
		if err := e.sleep(ctx, 3*time.Second, 4*time.Second); err != nil {
			return recycled, err
		}
		res, err := e.Run(ctx, KindRecycle, &Context{Session: sess, Account: a, Location: loc, ItemID: itemID, Count: excess})
		if err != nil {
			if CycleFatal(err) {
				return recycled, err
			}
			continue
		}
		if recycled == nil {
			recycled = map[int]int{}
		}
		recycled[itemID] += res.Recycled[itemID]
	}
	return recycled, nil
}
