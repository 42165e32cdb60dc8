package scan

import (
	"fmt"
	"strconv"
	"time"

	"hivescan/internal/domain/geo"
)

const NoStep = -1

type Messages struct {
	Wait    string
	Early   string
	Late    string
	Search  string
	Invalid string
}

// Target is one scan location handed out by a scheduler. A zero Appears or
// Leaves means the freshness window is unknown.
type Target struct {
	Step     int
	Location geo.Coord
	Appears  time.Time
	Leaves   time.Time
	Priority int
	Messages Messages
	Wait     time.Duration
	SpawnID  string
}

func (t Target) Empty() bool {
	return t.Step == NoStep
}

// TooEarly reports whether now is before the appearance time plus grace.
func (t Target) TooEarly(now time.Time, grace time.Duration) bool {
	return !t.Appears.IsZero() && now.Before(t.Appears.Add(grace))
}

// TooLate reports whether the target leaves within minLeft of now.
func (t Target) TooLate(now time.Time, minLeft time.Duration) bool {
	return !t.Leaves.IsZero() && now.After(t.Leaves.Add(-minLeft))
}

func DefaultMessages(step int, loc geo.Coord) Messages {
	at := fmt.Sprintf("%.6f,%.6f", loc.Lat, loc.Lng)
	return Messages{
		Wait:    "Nothing to scan.",
		Early:   "Early for step " + strconv.Itoa(step) + "; waiting a few seconds...",
		Late:    "Too late for location " + at + "; skipping.",
		Search:  "Searching at " + at + "...",
		Invalid: "Invalid response at " + at + ", abandoning location.",
	}
}

func uintKey(v uint64) string {
	return strconv.FormatUint(v, 10)
}
