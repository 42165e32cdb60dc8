package worker

import (
	"slices"
	"strconv"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/account"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"
)

// parse splits a map response into what gets stored and what the account
// can act on from loc.
func (w *Worker) parse(a *account.Account, objs *ports.MapObjects, loc geo.Coord, now time.Time) *scan.ParsedMap {
	parsed := scan.NewParsedMap()
	if objs == nil {
		return parsed
	}
	for _, cell := range objs.Cells {
		for _, p := range cell.WildPokemons {
			parsed.Wild[p.EncounterID] = p
			parsed.Count++
			if slices.Contains(w.Config.EncounterWhitelist, p.PokemonID) {
				parsed.Encounters[p.EncounterID] = p
			}
			if geo.DistanceKm(loc, p.Location) <= account.PokemonReachKm {
				parsed.Pokemons[p.EncounterID] = p
			}
			if p.SpawnpointID != "" && !p.DisappearTime.IsZero() {
				d := p.DisappearTime.UTC()
				parsed.SpawnPoints[p.SpawnpointID] = scan.SpawnPoint{
					ID:            p.SpawnpointID,
					Location:      p.Location,
					DespawnSecond: d.Minute()*60 + d.Second(),
					LastSeen:      now,
				}
			}
		}
		for _, s := range cell.Pokestops {
			parsed.Pokestops[s.ID] = s
			parsed.Count++
			if !s.Enabled || geo.DistanceKm(loc, s.Location) > account.FortReachKm {
				continue
			}
			if a.StopUsed(s.ID, now, w.Config.StopTTL) {
				continue
			}
			parsed.Spinnable[s.ID] = s
		}
		for _, g := range cell.Gyms {
			parsed.Gyms[g.ID] = g
			parsed.Count++
		}
	}
	return parsed
}

// persist forwards the parsed entities to storage and webhooks.
func (w *Worker) persist(a *account.Account, parsed *scan.ParsedMap) {
	if w.Sink != nil {
		if len(parsed.Wild) > 0 {
			rows := make(map[string]any, len(parsed.Wild))
			for _, p := range parsed.Wild {
				rows[p.Key()] = p
			}
			w.Sink.Enqueue(ports.KindPokemon, rows)
		}
		if len(parsed.Pokestops) > 0 {
			rows := make(map[string]any, len(parsed.Pokestops))
			for id, s := range parsed.Pokestops {
				rows[id] = s
			}
			w.Sink.Enqueue(ports.KindPokestop, rows)
		}
		if len(parsed.Gyms) > 0 {
			rows := make(map[string]any, len(parsed.Gyms))
			for id, g := range parsed.Gyms {
				rows[id] = g
			}
			w.Sink.Enqueue(ports.KindGym, rows)
		}
		if len(parsed.SpawnPoints) > 0 {
			rows := make(map[string]any, len(parsed.SpawnPoints))
			for id, sp := range parsed.SpawnPoints {
				rows[id] = sp
			}
			w.Sink.Enqueue(ports.KindSpawnPoint, rows)
		}
	}
	if w.Webhook == nil {
		return
	}
	for _, p := range parsed.Wild {
		// Wanted pokemon are sent once their encounter details are known.
		if _, ok := parsed.Encounters[p.EncounterID]; ok {
			continue
		}
		w.Webhook.Enqueue("pokemon", pokemonPayload(p, a.Level))
	}
	for _, s := range parsed.Pokestops {
		w.Webhook.Enqueue("pokestop", map[string]any{
			"pokestop_id":     s.ID,
			"latitude":        s.Location.Lat,
			"longitude":       s.Location.Lng,
			"enabled":         s.Enabled,
			"last_modified":   s.LastModified.Unix(),
			"lure_expiration": unixOrZero(s.LureExpiration),
		})
	}
	for _, g := range parsed.Gyms {
		w.Webhook.Enqueue("gym", map[string]any{
			"gym_id":           g.ID,
			"latitude":         g.Location.Lat,
			"longitude":        g.Location.Lng,
			"enabled":          g.Enabled,
			"team_id":          g.TeamID,
			"guard_pokemon_id": g.GuardPokemonID,
			"slots_available":  g.SlotsAvailable,
			"last_modified":    g.LastModified.Unix(),
		})
	}
}

func pokemonPayload(p scan.WildPokemon, playerLevel int) map[string]any {
	out := map[string]any{
		"encounter_id":   strconv.FormatUint(p.EncounterID, 10),
		"spawnpoint_id":  p.SpawnpointID,
		"pokemon_id":     p.PokemonID,
		"latitude":       p.Location.Lat,
		"longitude":      p.Location.Lng,
		"disappear_time": unixOrZero(p.DisappearTime),
		"player_level":   playerLevel,
	}
	setInt := func(key string, v *int) {
		if v != nil {
			out[key] = *v
		}
	}
	setFloat := func(key string, v *float64) {
		if v != nil {
			out[key] = *v
		}
	}
	setInt("individual_attack", p.Attack)
	setInt("individual_defense", p.Defense)
	setInt("individual_stamina", p.Stamina)
	setInt("cp", p.CP)
	setInt("move_1", p.Move1)
	setInt("move_2", p.Move2)
	setInt("gender", p.Gender)
	setFloat("cp_multiplier", p.CPMultiplier)
	setFloat("height", p.Height)
	setFloat("weight", p.Weight)
	return out
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
