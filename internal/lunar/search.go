package lunar

import (
	"math"
	"strconv"
	"time"
)

// Search tuning. The coarse scan covers one synodic month plus a day so the
// target phase is always bracketed; refinement narrows the hit to the
// 30-minute precision floor.
const (
	coarseStepHours = 2
	refineStepMin   = 30
	refineWindowMin   = 720

	earlyStopDistance = 0.02
	acceptDistance    = 0.1
)

var coarseWindowHours = int(math.Trunc((SynodicMonth + 1) * 24))

// EventKind classifies a phase event day.
type EventKind string

const (
	EventNewMoon  EventKind = "new-moon"
	EventFullMoon EventKind = "full-moon"
	EventQuarter  EventKind = "quarter"
)

// Event is a calendar day judged to carry a named phase. Events are freshly
// computed on every range query and never cached.
type Event struct {
	Time  time.Time
	Kind  EventKind
	Phase float64
}

// NextNewMoon returns the instant of the next new moon strictly after from,
// to 30-minute precision.
func NextNewMoon(from time.Time) (time.Time, error) {
	return nextPhase(from, 0, "fromInstant")
}

// NextFullMoon returns the instant of the next full moon strictly after
// from, to 30-minute precision.
func NextFullMoon(from time.Time) (time.Time, error) {
	return nextPhase(from, 0.5, "fromInstant")
}

// nextPhase runs the two-stage search: a 2-hour coarse scan across one
// cycle plus a day, then a ±12h refinement in 30-minute steps around the
// best coarse hit. The start is offset one hour forward so an exact phase
// boundary at from still makes forward progress.
func nextPhase(from time.Time, target float64, label string) (time.Time, error) {
	if err := ValidateInstant(from, label); err != nil {
		return time.Time{}, err
	}

	start := from.Add(time.Hour)

	best := start
	bestDist := math.Inf(1)

	for h := 0; h <= coarseWindowHours; h += coarseStepHours {
		t := start.Add(time.Duration(h) * time.Hour)
		d := phaseDistance(phase(t), target)
		if d < bestDist {
			bestDist = d
			best = t
		}
		if bestDist < earlyStopDistance {
			break
		}
	}

	if bestDist >= acceptDistance {
		return time.Time{}, ErrPhaseNotFound
	}

	refined := best
	refinedDist := bestDist
	for m := -refineWindowMin; m <= refineWindowMin; m += refineStepMin {
		t := best.Add(time.Duration(m) * time.Minute)
		if d := phaseDistance(phase(t), target); d < refinedDist {
			refinedDist = d
			refined = t
		}
	}

	return refined, nil
}

// phaseDistance is the circular distance between two phase fractions. The
// cycle wraps at 1, so 0.999 and 0.001 are nearly adjacent.
func phaseDistance(p, target float64) float64 {
	d := math.Abs(p - target)
	if d > 0.5 {
		d = 1 - d
	}
	return d
}

// PhaseEvents scans [start,end] day by day and returns the days locally
// closest to a named phase boundary, in chronological order.
//
// Each candidate day's phase is compared against the day before and after;
// a day qualifies when it sits within 0.05 of a target and a neighbor rule
// confirms it is the local closest approach. Neighbor phases are computed
// directly, so edge days need no padding and only days inside the requested
// range are emitted. The rule is a sampling heuristic, not a root-finder,
// and can emit adjacent-day duplicates where the phase moves slowly; those
// are kept.
//
// A degenerate range (end before start) yields an empty result, not an
// error.
func PhaseEvents(start, end time.Time) ([]Event, error) {
	if err := ValidateInstant(start, "startInstant"); err != nil {
		return nil, err
	}
	if err := ValidateInstant(end, "endInstant"); err != nil {
		return nil, err
	}

	var events []Event
	if end.Before(start) {
		return events, nil
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		p := phase(day)
		prev := phase(day.AddDate(0, 0, -1))
		next := phase(day.AddDate(0, 0, 1))

		switch {
		case p < 0.05 && (prev > 0.95 || next > 0.05):
			events = append(events, Event{Time: day, Kind: EventNewMoon, Phase: p})
		case nearTarget(p, prev, next, 0.5):
			events = append(events, Event{Time: day, Kind: EventFullMoon, Phase: p})
		case nearTarget(p, prev, next, 0.25), nearTarget(p, prev, next, 0.75):
			events = append(events, Event{Time: day, Kind: EventQuarter, Phase: p})
		}
	}

	return events, nil
}

// nearTarget applies the non-wrapping neighbor rule used for full moons and
// quarters: the day is inside the 0.05 band and at least one neighbor is
// outside it.
func nearTarget(p, prev, next, target float64) bool {
	return math.Abs(p-target) < 0.05 &&
		(math.Abs(prev-target) > 0.05 || math.Abs(next-target) > 0.05)
}

// DaysBetween returns the whole-day difference between two instants,
// ignoring time of day. The result is negative when to precedes from.
func DaysBetween(from, to time.Time) (int, error) {
	if err := ValidateInstant(from, "fromInstant"); err != nil {
		return 0, err
	}
	if err := ValidateInstant(to, "toInstant"); err != nil {
		return 0, err
	}

	a := midnight(from)
	b := midnight(to)
	return int(math.Round(b.Sub(a).Hours() / 24)), nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatRelativeDays renders a whole-day offset as human-readable text:
// "Today", "Tomorrow", "Yesterday", "In 5 days", "3 days ago".
func FormatRelativeDays(days int) string {
	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days == -1:
		return "Yesterday"
	case days > 1:
		return "In " + strconv.Itoa(days) + " days"
	default:
		return strconv.Itoa(-days) + " days ago"
	}
}
