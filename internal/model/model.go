package model

import "time"

// Occurrence is a single concrete instance of an overlay calendar event
// after recurrence expansion, normalized into the display timezone.
type Occurrence struct {
	SourceID string // overlay source ID (from config)
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies one occurrence of a recurring event,
	// derived from the local start time.
	InstanceKey string

	Summary  string
	Location string

	AllDay bool

	Start time.Time
	End   time.Time
}

// PhaseDay is the per-day view the calendar grid renders: the phase values
// for the day plus the marker kind if the day carries a phase event.
type PhaseDay struct {
	Date         time.Time
	Phase        float64
	Name         string
	Illumination float64
	Marker       string // "new-moon", "full-moon", "quarter" or empty
}
