package worker

import (
	"testing"
	"time"

	"hivescan/internal/app/ports"
	"hivescan/internal/domain/geo"
	"hivescan/internal/domain/scan"
)

func TestParse_SplitsReachableEntities(t *testing.T) {
	h := newHarness(&scriptedScheduler{})
	h.w.Config.EncounterWhitelist = []int{149}
	a := newAccount("alpha")
	now := h.clock.Now()
	a.MarkStopUsed("spun", now.Add(-time.Minute))

	objs := &ports.MapObjects{Status: 1, Cells: []ports.MapCell{{
		WildPokemons: []scan.WildPokemon{
			{EncounterID: 1, PokemonID: 149, Location: here},
			{EncounterID: 2, PokemonID: 16, Location: geo.Move(here, 1, geo.North)},
		},
		Pokestops: []scan.Pokestop{
			{ID: "open", Location: here, Enabled: true},
			{ID: "spun", Location: here, Enabled: true},
			{ID: "disabled", Location: here},
		},
	}}}
	parsed := h.w.parse(a, objs, here, now)

	if parsed.Count != 5 {
		t.Fatalf("expected 5 finds, got %d", parsed.Count)
	}
	if len(parsed.Wild) != 2 || len(parsed.Pokemons) != 1 || len(parsed.Encounters) != 1 {
		t.Fatalf("expected 2 wild, 1 catchable, 1 encounter, got %d/%d/%d", len(parsed.Wild), len(parsed.Pokemons), len(parsed.Encounters))
	}
	if _, ok := parsed.Spinnable["open"]; !ok || len(parsed.Spinnable) != 1 {
		t.Fatalf("expected only the open stop spinnable, got %v", parsed.Spinnable)
	}
	if len(parsed.SpawnPoints) != 0 {
		t.Fatalf("expected no spawnpoints without ids, got %v", parsed.SpawnPoints)
	}
}

func TestParse_RecordsSpawnPointDespawnSecond(t *testing.T) {
	h := newHarness(&scriptedScheduler{})
	now := h.clock.Now()
	leaves := time.Date(2026, 3, 1, 10, 12, 34, 0, time.UTC)
	objs := &ports.MapObjects{Status: 1, Cells: []ports.MapCell{{
		WildPokemons: []scan.WildPokemon{{EncounterID: 9, SpawnpointID: "sp9", PokemonID: 1, Location: here, DisappearTime: leaves}},
	}}}

	parsed := h.w.parse(newAccount("alpha"), objs, here, now)

	sp, ok := parsed.SpawnPoints["sp9"]
	if !ok {
		t.Fatalf("expected spawnpoint sp9")
	}
	if sp.DespawnSecond != 12*60+34 {
		t.Fatalf("expected despawn second 754, got %d", sp.DespawnSecond)
	}
	if !sp.LastSeen.Equal(now) {
		t.Fatalf("expected last seen %v, got %v", now, sp.LastSeen)
	}
}

func TestPersist_HoldsBackEncounterWebhooks(t *testing.T) {
	h := newHarness(&scriptedScheduler{})
	hooks := &recordingWebhook{}
	h.w.Webhook = hooks
	parsed := scan.NewParsedMap()
	parsed.Wild[1] = scan.WildPokemon{EncounterID: 1, PokemonID: 149}
	parsed.Wild[2] = scan.WildPokemon{EncounterID: 2, PokemonID: 16}
	parsed.Encounters[1] = parsed.Wild[1]

	h.w.persist(newAccount("alpha"), parsed)

	if hooks.events["pokemon"] != 1 {
		t.Fatalf("expected one pokemon webhook, got %d", hooks.events["pokemon"])
	}
	if len(h.sink.records[ports.KindPokemon]) != 2 {
		t.Fatalf("expected both pokemon stored, got %d", len(h.sink.records[ports.KindPokemon]))
	}
}

func TestPokemonPayload_OmitsUnknownIVs(t *testing.T) {
	atk := 15
	out := pokemonPayload(scan.WildPokemon{EncounterID: 12345678901, PokemonID: 1, Attack: &atk}, 31)
	if out["encounter_id"] != "12345678901" {
		t.Fatalf("expected string encounter id, got %v", out["encounter_id"])
	}
	if out["individual_attack"] != 15 {
		t.Fatalf("expected attack 15, got %v", out["individual_attack"])
	}
	if _, ok := out["individual_defense"]; ok {
		t.Fatalf("expected no defense key")
	}
	if out["disappear_time"] != int64(0) {
		t.Fatalf("expected zero disappear time, got %v", out["disappear_time"])
	}
}
