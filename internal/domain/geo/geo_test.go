package geo

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestDistanceKm_KnownPair(t *testing.T) {
	a := Coord{Lat: 40.7128, Lng: -74.0060}
	b := Coord{Lat: 40.7306, Lng: -73.9352}
	got := DistanceKm(a, b)
	if got < 6.0 || got > 6.4 {
		t.Fatalf("expected ~6.2km, got %f", got)
	}
	if DistanceKm(a, a) != 0 {
		t.Fatalf("expected zero distance to self")
	}
}

func TestMove_RoundTripsDistance(t *testing.T) {
	start := Coord{Lat: 51.5, Lng: -0.12}
	moved := Move(start, 0.45, East)
	if d := DistanceKm(start, moved); math.Abs(d-0.45) > 0.005 {
		t.Fatalf("expected 0.45km, got %f", d)
	}
}

func TestTravelTime(t *testing.T) {
	a := Coord{Lat: 10, Lng: 10}
	b := Move(a, 35, North)
	got := TravelTime(a, b, 35)
	if got < 59*time.Minute || got > 61*time.Minute {
		t.Fatalf("expected ~1h, got %s", got)
	}
	if TravelTime(a, b, 0) != 0 {
		t.Fatalf("expected zero travel time without speed limit")
	}
}

func TestHexGrid_CountAndSpacing(t *testing.T) {
	center := Coord{Lat: 35.0, Lng: 139.0}
	for stepLimit, want := range map[int]int{1: 1, 2: 7, 3: 19, 5: 61} {
		got := HexGrid(center, 0.07, stepLimit)
		if len(got) != want {
			t.Fatalf("step limit %d: expected %d cells, got %d", stepLimit, want, len(got))
		}
	}
	grid := HexGrid(center, 0.07, 2)
	for _, c := range grid[1:] {
		d := DistanceKm(center, c)
		if math.Abs(d-math.Sqrt(3)*0.07) > 0.01 {
			t.Fatalf("expected first ring at ~%.3fkm, got %.3f", math.Sqrt(3)*0.07, d)
		}
	}
}

func TestHiveLocations_Count(t *testing.T) {
	center := Coord{Lat: 35.0, Lng: 139.0}
	got := HiveLocations(center, 0.07, 5, 7)
	if len(got) != 7 {
		t.Fatalf("expected 7 hives, got %d", len(got))
	}
	if got[0] != center {
		t.Fatalf("expected first hive at center")
	}
	if len(HiveLocations(center, 0.07, 5, 1)) != 1 {
		t.Fatalf("expected single hive")
	}
}

func TestJitter_StaysClose(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	c := Coord{Lat: 1, Lng: 1}
	for i := 0; i < 50; i++ {
		j := Jitter(c, 10, rnd)
		if d := DistanceKm(c, j); d > 0.0101 {
			t.Fatalf("expected jitter within 10m, got %fkm", d)
		}
	}
	if Jitter(c, 10, nil) != c {
		t.Fatalf("expected no jitter without rng")
	}
}
