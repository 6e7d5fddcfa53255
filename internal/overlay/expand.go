package overlay

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	applog "mooncal/internal/log"
	"mooncal/internal/model"
)

// maxOccurrencesPerEvent caps runaway RRULE expansions.
const maxOccurrencesPerEvent = 1000

// Window bounds recurrence expansion and fixes the display timezone.
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// parsedEvent is the normalized view of one VEVENT. RECURRENCE-ID
// overrides are not handled; overlays are a display garnish, not a full
// calendar client.
type parsedEvent struct {
	source  Source
	uid     string
	summary string
	where   string
	start   time.Time
	end     time.Time
	allDay  bool
	rawRule string
	exDates []time.Time
}

// Expand parses the fetched feeds and expands their events into concrete
// occurrences inside the window, sorted chronologically.
func Expand(feeds []Feed, win Window) ([]model.Occurrence, error) {
	if win.End.Before(win.Start) {
		return nil, errors.New("overlay: window end before start")
	}
	if win.Location == nil {
		win.Location = time.Local
	}

	var out []model.Occurrence
	for _, feed := range feeds {
		events, err := parseFeed(feed.Source, feed.Body)
		if err != nil {
			applog.Error("overlay parse failed", err, "id", feed.Source.ID)
			continue
		}
		for _, ev := range events {
			out = append(out, expandEvent(ev, win)...)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func parseFeed(src Source, body []byte) ([]parsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("overlay: empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var events []parsedEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve)
		if err != nil {
			applog.Warn("overlay vevent skipped", "id", src.ID, "reason", err.Error())
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (parsedEvent, error) {
	ev := parsedEvent{source: src}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.uid = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.where = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		// DTEND is optional; fall back to a zero-length event.
		end = start
	}
	ev.start, ev.end = start, end

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		ev.allDay = isDateOnly(p)
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rawRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part)); err == nil {
				ev.exDates = append(ev.exDates, t)
			}
		}
	}

	return ev, nil
}

// isDateOnly reports whether DTSTART is a VALUE=DATE (all-day) property.
func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime handles the basic DATE / DATE-TIME / UTC forms that appear
// in EXDATE values.
func parseICSTime(v string) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}

func expandEvent(ev parsedEvent, win Window) []model.Occurrence {
	if ev.rawRule == "" {
		if !overlaps(ev.start, ev.end, win.Start, win.End) {
			return nil
		}
		return []model.Occurrence{makeOccurrence(ev, ev.start, ev.end, win.Location)}
	}

	r, err := rrule.StrToRRule(ev.rawRule)
	if err != nil {
		applog.Warn("overlay rrule unparsable", "uid", ev.uid, "rrule", ev.rawRule)
		return nil
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exDates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	starts := set.Between(win.Start.In(ev.start.Location()), win.End.In(ev.start.Location()), true)
	if len(starts) > maxOccurrencesPerEvent {
		applog.Warn("overlay expansion truncated", "uid", ev.uid, "cap", maxOccurrencesPerEvent)
		starts = starts[:maxOccurrencesPerEvent]
	}

	duration := ev.end.Sub(ev.start)
	out := make([]model.Occurrence, 0, len(starts))
	for _, start := range starts {
		end := start.Add(duration)
		if ev.allDay {
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
			end = start.Add(24 * time.Hour)
		}
		out = append(out, makeOccurrence(ev, start, end, win.Location))
	}
	return out
}

func makeOccurrence(ev parsedEvent, start, end time.Time, loc *time.Location) model.Occurrence {
	startLocal := start.In(loc)
	return model.Occurrence{
		SourceID:    ev.source.ID,
		UID:         ev.uid,
		InstanceKey: startLocal.Format(time.RFC3339Nano),
		Summary:     ev.summary,
		Location:    ev.where,
		AllDay:      ev.allDay,
		Start:       startLocal,
		End:         end.In(loc),
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
