package geo

import (
	"math"
	"math/rand"
	"time"

	geolib "github.com/kellydunn/golang-geo"
)

const (
	North = 0.0
	East  = 90.0
	South = 180.0
	West  = 270.0
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt,omitempty"`
}

func (c Coord) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

func (c Coord) point() *geolib.Point {
	return geolib.NewPoint(c.Lat, c.Lng)
}

// DistanceKm returns the great-circle distance between a and b in kilometers.
func DistanceKm(a, b Coord) float64 {
	return a.point().GreatCircleDistance(b.point())
}

func Move(c Coord, distanceKm, bearing float64) Coord {
	p := c.point().PointAtDistanceAndBearing(distanceKm, bearing)
	return Coord{Lat: p.Lat(), Lng: p.Lng(), Alt: c.Alt}
}

// TravelTime is how long covering the distance between a and b takes at kph.
func TravelTime(a, b Coord, kph float64) time.Duration {
	if kph <= 0 {
		return 0
	}
	hours := DistanceKm(a, b) / kph
	return time.Duration(hours * float64(time.Hour))
}

func Jitter(c Coord, maxMeters float64, rnd *rand.Rand) Coord {
	if rnd == nil || maxMeters <= 0 {
		return c
	}
	out := Move(c, rnd.Float64()*maxMeters/1000, rnd.Float64()*360)
	out.Alt = c.Alt + (rnd.Float64()-0.5)*2
	return out
}

var axialDirections = [6][2]int{{1, 0}, {1, -1}, {0, -1}, {-1, 0}, {-1, 1}, {0, 1}}

// HexGrid lists the step centers of a hexagonal search area with stepLimit
// rings, center first.
func HexGrid(center Coord, stepDistance float64, stepLimit int) []Coord {
	if stepLimit < 1 {
		stepLimit = 1
	}
	xdist := math.Sqrt(3) * stepDistance
	ydist := 3 * (stepDistance / 2)

	out := make([]Coord, 0, 1+3*stepLimit*(stepLimit-1))
	out = append(out, center)
	for ring := 1; ring < stepLimit; ring++ {
		q, r := axialDirections[4][0]*ring, axialDirections[4][1]*ring
		for side := 0; side < 6; side++ {
			for i := 0; i < ring; i++ {
				out = append(out, axialToCoord(center, q, r, xdist, ydist))
				q += axialDirections[side][0]
				r += axialDirections[side][1]
			}
		}
	}
	return out
}

func axialToCoord(center Coord, q, r int, xdist, ydist float64) Coord {
	dx := xdist * (float64(q) + float64(r)/2)
	dy := -ydist * float64(r)
	loc := center
	if dy != 0 {
		bearing := North
		if dy < 0 {
			bearing = South
		}
		loc = Move(loc, math.Abs(dy), bearing)
	}
	if dx != 0 {
		bearing := East
		if dx < 0 {
			bearing = West
		}
		loc = Move(loc, math.Abs(dx), bearing)
	}
	return loc
}

// HiveLocations tiles hiveCount hexagonal hives of stepLimit rings around
// current, walking outward ring by ring.
func HiveLocations(current Coord, stepDistance float64, stepLimit, hiveCount int) []Coord {
	xdist := math.Sqrt(3) * stepDistance
	ydist := 3 * (stepDistance / 2)
	sl := float64(stepLimit)

	results := []Coord{current}
	loc := current
	step := func(dy, by, dx, bx float64) {
		loc = Move(loc, dy, by)
		loc = Move(loc, dx, bx)
		results = append(results, loc)
	}

	for ring := 1; len(results) < hiveCount; ring++ {
		step(ydist*(sl-1), North, xdist*(1.5*sl-0.5), East)
		for i := 0; i < ring; i++ {
			step(ydist*sl, North, xdist*(1.5*sl-1), West)
		}
		for i := 0; i < ring; i++ {
			step(ydist*(sl-1), South, xdist*(1.5*sl-0.5), West)
		}
		for i := 0; i < ring; i++ {
			step(ydist*(2*sl-1), South, xdist*0.5, West)
		}
		for i := 0; i < ring; i++ {
			step(ydist*sl, South, xdist*(1.5*sl-1), East)
		}
		for i := 0; i < ring; i++ {
			step(ydist*(sl-1), North, xdist*(1.5*sl-0.5), East)
		}
		for i := 0; i < ring-1; i++ {
			step(ydist*(2*sl-1), North, xdist*0.5, East)
		}
		loc = Move(loc, ydist*(2*sl-1), North)
		loc = Move(loc, xdist*0.5, East)
	}
	if len(results) > hiveCount && hiveCount > 0 {
		results = results[:hiveCount]
	}
	return results
}
