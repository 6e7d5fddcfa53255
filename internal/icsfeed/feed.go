// Package icsfeed publishes computed phase events as an iCalendar feed so
// regular calendar clients can subscribe to new moons, full moons and
// quarters.
package icsfeed

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"mooncal/internal/lunar"
)

// Build renders the given phase events as all-day VEVENTs and returns the
// serialized calendar.
func Build(events []lunar.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//mooncal//moon phase feed//EN")

	for _, ev := range events {
		uid := fmt.Sprintf("%s-%s@mooncal", ev.Time.Format("20060102"), ev.Kind)

		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(now)
		ve.SetAllDayStartAt(ev.Time)
		ve.SetAllDayEndAt(ev.Time.AddDate(0, 0, 1))
		ve.SetSummary(summary(ev))
		ve.SetDescription(description(ev))
	}

	return cal.Serialize()
}

func summary(ev lunar.Event) string {
	switch ev.Kind {
	case lunar.EventNewMoon:
		return "New Moon"
	case lunar.EventFullMoon:
		return "Full Moon"
	default:
		// The fraction tells the quarters apart: ~0.25 waxing, ~0.75 waning.
		if ev.Phase < 0.5 {
			return "First Quarter"
		}
		return "Last Quarter"
	}
}

func description(ev lunar.Event) string {
	illum, err := lunar.Illumination(ev.Phase)
	if err != nil {
		return fmt.Sprintf("Phase fraction %.4f", ev.Phase)
	}
	return fmt.Sprintf("Phase fraction %.4f, illumination %.1f%%", ev.Phase, illum)
}
