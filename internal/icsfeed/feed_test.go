package icsfeed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"mooncal/internal/lunar"
)

func sampleEvents() []lunar.Event {
	utc := time.UTC
	return []lunar.Event{
		{Time: time.Date(2024, 1, 11, 0, 0, 0, 0, utc), Kind: lunar.EventNewMoon, Phase: 0.01},
		{Time: time.Date(2024, 1, 18, 0, 0, 0, 0, utc), Kind: lunar.EventQuarter, Phase: 0.24},
		{Time: time.Date(2024, 1, 25, 0, 0, 0, 0, utc), Kind: lunar.EventFullMoon, Phase: 0.49},
		{Time: time.Date(2024, 2, 2, 0, 0, 0, 0, utc), Kind: lunar.EventQuarter, Phase: 0.76},
	}
}

func TestBuildRoundTrips(t *testing.T) {
	out := Build(sampleEvents(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	cal, err := ical.ParseCalendar(bytes.NewReader([]byte(out)))
	if err != nil {
		t.Fatalf("generated feed does not parse: %v", err)
	}
	if got := len(cal.Events()); got != 4 {
		t.Fatalf("feed has %d events, expected 4", got)
	}
}

func TestBuildSummaries(t *testing.T) {
	out := Build(sampleEvents(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	for _, want := range []string{"New Moon", "Full Moon", "First Quarter", "Last Quarter"} {
		if !strings.Contains(out, want) {
			t.Errorf("feed missing summary %q", want)
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	out := Build(nil, time.Now())
	if !strings.Contains(out, "BEGIN:VCALENDAR") || !strings.Contains(out, "END:VCALENDAR") {
		t.Errorf("empty feed is not a valid calendar shell: %q", out)
	}
	if strings.Contains(out, "BEGIN:VEVENT") {
		t.Error("empty feed contains events")
	}
}
