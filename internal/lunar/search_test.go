package lunar

import (
	"errors"
	"testing"
	"time"
)

func TestNextNewMoon(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextNewMoon(from)
	if err != nil {
		t.Fatalf("NextNewMoon returned error: %v", err)
	}
	if !next.After(from) {
		t.Errorf("NextNewMoon = %v, not after %v", next, from)
	}
	// Result must land within one cycle plus the search padding.
	if next.Sub(from) > time.Duration((SynodicMonth+2)*24*float64(time.Hour)) {
		t.Errorf("NextNewMoon = %v, too far after %v", next, from)
	}

	p, err := Phase(next)
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	if d := phaseDistance(p, 0); d > 0.02 {
		t.Errorf("phase at NextNewMoon = %v (distance %v), expected within 0.02 of 0", p, d)
	}
}

func TestNextFullMoon(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextFullMoon(from)
	if err != nil {
		t.Fatalf("NextFullMoon returned error: %v", err)
	}
	if !next.After(from) {
		t.Errorf("NextFullMoon = %v, not after %v", next, from)
	}

	p, err := Phase(next)
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	if d := phaseDistance(p, 0.5); d > 0.02 {
		t.Errorf("phase at NextFullMoon = %v (distance %v), expected within 0.02 of 0.5", p, d)
	}
}

func TestNextPhaseAcrossManyStarts(t *testing.T) {
	// The scan window exceeds a full cycle, so the search must succeed from
	// any starting point.
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 24; i++ {
		from := start.AddDate(0, 0, i*13)

		if _, err := NextNewMoon(from); err != nil {
			t.Errorf("NextNewMoon(%v) returned error: %v", from, err)
		}
		if _, err := NextFullMoon(from); err != nil {
			t.Errorf("NextFullMoon(%v) returned error: %v", from, err)
		}
	}
}

func TestNextPhaseInvalidInstant(t *testing.T) {
	if _, err := NextNewMoon(time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPhaseDistanceWraps(t *testing.T) {
	tests := []struct {
		p, target, expected float64
	}{
		{0.999, 0, 0.001},
		{0.001, 0, 0.001},
		{0.4, 0.5, 0.1},
		{0.75, 0.25, 0.5},
	}
	for _, tt := range tests {
		if got := phaseDistance(tt.p, tt.target); !roughly(got, tt.expected) {
			t.Errorf("phaseDistance(%v, %v) = %v, expected %v", tt.p, tt.target, got, tt.expected)
		}
	}
}

func roughly(a, b float64) bool {
	d := a - b
	return d > -1e-9 && d < 1e-9
}

func TestPhaseEventsJanuary2024(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	events, err := PhaseEvents(start, end)
	if err != nil {
		t.Fatalf("PhaseEvents returned error: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("PhaseEvents returned no events for a full month")
	}

	kinds := map[EventKind]int{}
	prev := time.Time{}
	for _, ev := range events {
		kinds[ev.Kind]++

		if ev.Time.Before(start) || ev.Time.After(end) {
			t.Errorf("event at %v outside requested range", ev.Time)
		}
		if ev.Phase < 0 || ev.Phase >= 1 {
			t.Errorf("event phase %v outside [0,1)", ev.Phase)
		}
		if !prev.IsZero() && ev.Time.Before(prev) {
			t.Errorf("events out of order: %v before %v", ev.Time, prev)
		}
		prev = ev.Time
	}

	// January 2024 held a new moon (Jan 11), a full moon (Jan 25) and both
	// quarters; the day-scan heuristic must find each kind at least once.
	if kinds[EventNewMoon] == 0 {
		t.Error("no new-moon event found in January 2024")
	}
	if kinds[EventFullMoon] == 0 {
		t.Error("no full-moon event found in January 2024")
	}
	if kinds[EventQuarter] == 0 {
		t.Error("no quarter event found in January 2024")
	}
}

func TestPhaseEventsDegenerateRange(t *testing.T) {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	events, err := PhaseEvents(start, end)
	if err != nil {
		t.Fatalf("PhaseEvents returned error for degenerate range: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected empty result for end < start, got %d events", len(events))
	}
}

func TestPhaseEventsInvalidInstant(t *testing.T) {
	ok := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := PhaseEvents(time.Time{}, ok); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero start, got %v", err)
	}
	if _, err := PhaseEvents(ok, time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero end, got %v", err)
	}
}

func TestDaysBetween(t *testing.T) {
	utc := time.UTC
	tests := []struct {
		name     string
		from, to time.Time
		expected int
	}{
		{"same day", time.Date(2024, 5, 1, 9, 0, 0, 0, utc), time.Date(2024, 5, 1, 23, 0, 0, 0, utc), 0},
		{"next day", time.Date(2024, 5, 1, 23, 0, 0, 0, utc), time.Date(2024, 5, 2, 1, 0, 0, 0, utc), 1},
		{"one month", time.Date(2024, 1, 1, 0, 0, 0, 0, utc), time.Date(2024, 1, 31, 0, 0, 0, 0, utc), 30},
		{"backwards", time.Date(2024, 5, 10, 0, 0, 0, 0, utc), time.Date(2024, 5, 7, 0, 0, 0, 0, utc), -3},
		{"across leap day", time.Date(2024, 2, 28, 0, 0, 0, 0, utc), time.Date(2024, 3, 1, 0, 0, 0, 0, utc), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DaysBetween(tt.from, tt.to)
			if err != nil {
				t.Fatalf("DaysBetween returned error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("DaysBetween = %d, expected %d", got, tt.expected)
			}

			// Antisymmetry holds for every pair.
			rev, err := DaysBetween(tt.to, tt.from)
			if err != nil {
				t.Fatalf("DaysBetween (reversed) returned error: %v", err)
			}
			if rev != -tt.expected {
				t.Errorf("DaysBetween reversed = %d, expected %d", rev, -tt.expected)
			}
		})
	}
}

func TestFormatRelativeDays(t *testing.T) {
	tests := []struct {
		days     int
		expected string
	}{
		{0, "Today"},
		{1, "Tomorrow"},
		{-1, "Yesterday"},
		{5, "In 5 days"},
		{-3, "3 days ago"},
	}

	for _, tt := range tests {
		if got := FormatRelativeDays(tt.days); got != tt.expected {
			t.Errorf("FormatRelativeDays(%d) = %q, expected %q", tt.days, got, tt.expected)
		}
	}
}
