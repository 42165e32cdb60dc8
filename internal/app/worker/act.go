package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"hivescan/internal/app/action"
	"hivescan/internal/app/captcha"
	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"
)

// HighLevelSet is the account set name for level 30+ accounts.
const HighLevelSet = "30"

const dittoID = 132

type actSummary struct {
	encounters int
	catches    int
	spins      int
}

// act dispatches the parsed entities through the action executor. A
// cycle-fatal action error stops the remaining categories.
func (w *Worker) act(ctx context.Context, l *lease, parsed *scan.ParsedMap, leveled bool) actSummary {
	var sum actSummary
	a := l.acct

	if len(parsed.Encounters) > 0 {
		sum.encounters = w.processEncounters(ctx, l, parsed)
	}
	if w.Executor == nil {
		return sum
	}

	if leveled || a.Level > a.RewardedLevel {
		if _, err := w.Executor.LevelUp(ctx, l.sess, a); action.CycleFatal(err) {
			return sum
		}
	}

	leveling := w.Config.MaxLevel <= 0 || a.Level < w.Config.MaxLevel
	if !leveling {
		return sum
	}

	var err error
	if len(parsed.Pokemons) > 0 {
		sum.catches, err = w.processPokemons(ctx, l, parsed.Pokemons)
		if action.CycleFatal(err) {
			return sum
		}
	}
	if len(parsed.Spinnable) > 0 {
		sum.spins, err = w.processPokestops(ctx, l, parsed.Spinnable)
		if action.CycleFatal(err) {
			return sum
		}
	}
	if _, err := w.Executor.Incubate(ctx, l.sess, a); action.CycleFatal(err) {
		return sum
	}
	if w.Config.GymInfo && len(parsed.Gyms) > 0 {
		w.updateGyms(ctx, l, parsed.Gyms)
	}
	return sum
}

func (w *Worker) shuffledIDs(ids []uint64) []uint64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	w.random().Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// processPokemons catches up to a random handful of nearby pokemon unless
// the hourly caps are spent, then releases the ones not worth keeping.
func (w *Worker) processPokemons(ctx context.Context, l *lease, pokemons map[uint64]scan.WildPokemon) (int, error) {
	a := l.acct
	if a.HourThrows >= w.maxThrows() || a.HourCatches >= w.maxCatches() {
		w.publish(l, fmt.Sprintf("Account %s has reached its Pokemon catching limits.", a.Username))
		w.logger().Info("catch limits reached", "account", a.Username, "throws", a.HourThrows, "catches", a.HourCatches)
		return 0, nil
	}

	ids := make([]uint64, 0, len(pokemons))
	for id := range pokemons {
		ids = append(ids, id)
	}
	maxCatches := w.random().Intn(4) + 1
	catches := 0
	var release []uint64
	for _, id := range w.shuffledIDs(ids) {
		if catches >= maxCatches {
			break
		}
		wild := pokemons[id]
		res, err := w.Executor.Catch(ctx, l.sess, a, a.LastLocation, wild)
		if err != nil {
			if action.CycleFatal(err) {
				return catches, err
			}
			continue
		}
		catches++
		caught, ok := a.Pokemons[res.CaughtID]
		if !ok {
			w.logger().Warn("caught pokemon not in inventory", "account", a.Username, "id", res.CaughtID)
			continue
		}
		if caught.PokemonID == dittoID && wild.PokemonID != dittoID {
			w.logger().Info("pokemon transformed into ditto", "account", a.Username, "id", res.CaughtID, "was", wild.PokemonID)
			w.reportDitto(a, wild, caught)
		}
		if !res.Keep {
			release = append(release, res.CaughtID)
		}
	}
	if len(release) > 0 {
		if _, err := w.Executor.Release(ctx, l.sess, a, release); action.CycleFatal(err) {
			return catches, err
		}
	}
	return catches, nil
}

func (w *Worker) reportDitto(a *account.Account, wild scan.WildPokemon, caught account.Pokemon) {
	wild.PokemonID = caught.PokemonID
	wild.Move1 = intPtr(caught.Move1)
	wild.Move2 = intPtr(caught.Move2)
	wild.Height = floatPtr(caught.Height)
	wild.Weight = floatPtr(caught.Weight)
	wild.Gender = intPtr(caught.Gender)
	if a.Level >= account.HighLevel {
		wild.Attack = intPtr(caught.Attack)
		wild.Defense = intPtr(caught.Defense)
		wild.Stamina = intPtr(caught.Stamina)
		wild.CP = intPtr(caught.CP)
		wild.CPMultiplier = floatPtr(caught.CPMultiplier)
	}
	w.store(ports.KindPokemon, wild.Key(), wild)
	if w.Webhook != nil {
		w.Webhook.Enqueue("pokemon", pokemonPayload(wild, a.Level))
	}
}

// processPokestops spins a random number of the reachable stops unless the
// hourly spin cap is spent.
func (w *Worker) processPokestops(ctx context.Context, l *lease, stops map[string]scan.Pokestop) (int, error) {
	a := l.acct
	if a.HourSpins >= w.maxSpins() {
		w.publish(l, fmt.Sprintf("Account %s has reached its Pokestop spinning limits.", a.Username))
		w.logger().Info("spin limit reached", "account", a.Username, "spins", a.HourSpins)
		return 0, nil
	}

	ids := make([]string, 0, len(stops))
	for id := range stops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w.random().Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	maxSpins := w.random().Intn(len(ids)) + 1
	spins := 0
	for _, id := range ids {
		if spins >= maxSpins {
			break
		}
		_, err := w.Executor.Spin(ctx, l.sess, a, a.LastLocation, stops[id])
		if err != nil {
			if action.CycleFatal(err) {
				return spins, err
			}
			continue
		}
		spins++
	}
	return spins, nil
}

// processEncounters fetches encounter details for the wanted pokemon, with a
// high-level account when the scanning account cannot see them.
func (w *Worker) processEncounters(ctx context.Context, l *lease, parsed *scan.ParsedMap) int {
	ids := make([]uint64, 0, len(parsed.Encounters))
	for id := range parsed.Encounters {
		ids = append(ids, id)
	}
	a, sess := l.acct, l.sess
	if a.Level < account.HighLevel {
		hl, hlSess, ok := w.initHighLevel(ctx, l, ids)
		if !ok {
			return 0
		}
		defer w.HighLevel.Release(hl)
		a, sess = hl, hlSess
	}

	for _, id := range w.shuffledIDs(ids) {
		p := parsed.Encounters[id]
		if err := w.pause(ctx, 2500*time.Millisecond, 4*time.Second); err != nil {
			return 0
		}
		resp, _, err := w.call(ctx, sess, a, ports.Request{
			Kind:         ports.RequestEncounter,
			Location:     a.LastLocation,
			EncounterID:  id,
			SpawnpointID: p.SpawnpointID,
		})
		switch {
		case err != nil:
			w.logger().Error("encounter failed", "account", a.Username, "encounter", id, "err", err)
			return 0
		case resp.HasChallenge():
			w.logger().Warn("captcha during encounters", "account", a.Username)
			return 0
		case resp.Encounter == nil || resp.Encounter.Status != 1 || resp.Encounter.Pokemon == nil:
			w.logger().Error("encounter rejected", "account", a.Username, "encounter", id)
			return 0
		}
		data := resp.Encounter.Pokemon
		p.Attack = intPtr(data.Attack)
		p.Defense = intPtr(data.Defense)
		p.Stamina = intPtr(data.Stamina)
		p.CP = intPtr(data.CP)
		p.CPMultiplier = floatPtr(data.CPMultiplier)
		p.Move1 = intPtr(data.Move1)
		p.Move2 = intPtr(data.Move2)
		p.Height = floatPtr(data.Height)
		p.Weight = floatPtr(data.Weight)
		p.Gender = intPtr(data.Gender)
		w.logger().Debug("encounter successful", "account", a.Username, "pokemon", p.PokemonID, "cp", data.CP, "iv", data.IVPercent())

		w.store(ports.KindPokemon, p.Key(), p)
		if w.Webhook != nil {
			w.Webhook.Enqueue("pokemon", pokemonPayload(p, a.Level))
		}
	}
	return len(parsed.Encounters)
}

// initHighLevel leases a high-level account near the scan location, logs it
// in and checks it can see every wanted encounter. On failure the account is
// already back in its set.
func (w *Worker) initHighLevel(ctx context.Context, l *lease, ids []uint64) (*account.Account, ports.SessionClient, bool) {
	if w.HighLevel == nil {
		return nil, nil, false
	}
	loc := l.location
	hl, err := w.HighLevel.Next(HighLevelSet, loc)
	if err != nil || hl == nil {
		w.logger().Error("no high-level accounts available", "err", err)
		return nil, nil, false
	}
	fail := func(msg string, args ...any) (*account.Account, ports.SessionClient, bool) {
		w.logger().Error(msg, append([]any{"account", hl.Username}, args...)...)
		w.HighLevel.Release(hl)
		return nil, nil, false
	}

	sess := w.HLSessions.Get(hl.Username, l.proxy, w.Sessions)
	if key := w.HashKeys.Next(); key != "" {
		sess.SetHashKey(key)
	}
	sess.SetPosition(loc)
	if err := w.checkLogin(ctx, sess, hl, l.proxy); err != nil {
		return fail("high-level login failed", "err", err)
	}
	if hl.Level == 0 {
		if _, _, err := w.call(ctx, sess, hl, ports.Request{Kind: ports.RequestGetPlayer, Location: loc}); err != nil {
			return fail("high-level player fetch failed", "err", err)
		}
	}
	if hl.Level < account.HighLevel {
		hl.Failed = true
		return fail("account is not high-level", "level", hl.Level)
	}

	resp, _, err := w.call(ctx, sess, hl, ports.Request{Kind: ports.RequestMapObjects, Location: loc})
	hl.LastActive = w.now()
	hl.LastLocation = loc
	if err != nil {
		return fail("high-level map request failed", "err", err)
	}
	if resp.HasChallenge() {
		if w.Captcha.Handle(ctx, sess, hl, resp.ChallengeURL) != captcha.Solved {
			hl.Failed = true
			return fail("high-level account hit a captcha, disabled")
		}
		resp, _, err = w.call(ctx, sess, hl, ports.Request{Kind: ports.RequestMapObjects, Location: loc})
		if err != nil {
			return fail("high-level map request failed", "err", err)
		}
	}
	if resp.Map == nil || resp.Map.Status != 1 {
		return fail("high-level account unable to get map objects")
	}

	visible := map[uint64]bool{}
	for _, cell := range resp.Map.Cells {
		for _, p := range cell.WildPokemons {
			visible[p.EncounterID] = true
		}
	}
	missing := 0
	for _, id := range ids {
		if !visible[id] {
			missing++
		}
	}
	if missing > 0 {
		return fail("high-level account unable to find encounters", "missing", missing)
	}
	return hl, sess, true
}

// updateGyms fetches details for nearby gyms whose stored details are
// missing or stale.
func (w *Worker) updateGyms(ctx context.Context, l *lease, gyms map[string]scan.Gym) {
	a := l.acct
	ids := make([]string, 0, len(gyms))
	for id := range gyms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var stale []scan.Gym
	for _, id := range ids {
		g := gyms[id]
		dist := geo.DistanceKm(l.location, g.Location)
		if dist >= account.GymDetailsKm {
			w.logger().Debug("gym too far for details", "gym", id, "km", dist)
			continue
		}
		if w.GymDetails != nil {
			stored, err := w.GymDetails.GetGymDetails(ctx, id)
			switch {
			case errors.Is(err, ports.ErrNotFound):
			case err != nil:
				w.logger().Warn("gym details lookup failed", "gym", id, "err", err)
				continue
			case !stored.LastScanned.Before(g.LastModified):
				continue
			}
		}
		stale = append(stale, g)
	}

	details := map[string]any{}
	for i, g := range stale {
		w.publish(l, fmt.Sprintf("Getting details for gym %d of %d for location %.6f,%.6f...", i+1, len(stale), l.location.Lat, l.location.Lng))
		if err := w.pause(ctx, 2*time.Second, 3*time.Second); err != nil {
			return
		}
		resp, _, err := w.call(ctx, l.sess, a, ports.Request{
			Kind:         ports.RequestGymInfo,
			Location:     l.location,
			GymID:        g.ID,
			FortLocation: g.Location,
		})
		if err != nil || resp.Gym == nil {
			continue
		}
		if resp.Gym.Result == 2 {
			w.logger().Warn("gym out of range", "gym", g.ID)
			continue
		}
		d := resp.Gym.Details
		d.GymID = g.ID
		d.LastScanned = w.now()
		details[g.ID] = d
		if w.Webhook != nil {
			w.Webhook.Enqueue("gym_details", map[string]any{
				"id":          g.ID,
				"name":        d.Name,
				"description": d.Description,
				"url":         d.URL,
				"latitude":    g.Location.Lat,
				"longitude":   g.Location.Lng,
				"team":        g.TeamID,
				"pokemon":     d.Members,
			})
		}
	}
	if len(details) > 0 && w.Sink != nil {
		w.Sink.Enqueue(ports.KindGymDetails, details)
	}
}

func (w *Worker) store(kind ports.EntityKind, id string, record any) {
	if w.Sink == nil {
		return
	}
	w.Sink.Enqueue(kind, map[string]any{id: record})
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
