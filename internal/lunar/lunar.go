// Package lunar computes moon phase information from calendar dates: Julian
// Day conversion, the phase fraction within the synodic cycle, phase names
// and illumination, plus bounded searches for upcoming new/full moons and
// phase events across a date range.
//
// All functions are pure and stateless; concurrent use needs no locking.
package lunar

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SynodicMonth is the average length of the lunar cycle in days.
const SynodicMonth = 29.53058868

// newMoonJD is the Julian Day of the reference new moon (Jan 6, 2000).
// Phase fractions are measured from this epoch.
const newMoonJD = 2451549.5

// minJulianYear is the validity floor of the Gregorian JD algorithm.
const minJulianYear = -4712

// ErrInvalidInput marks a malformed parameter: an uninitialized instant, a
// phase outside [0,1], or calendar components outside their valid ranges.
// It is raised before any computation and never silently clamped.
var ErrInvalidInput = errors.New("invalid input")

// ErrPhaseNotFound is returned when the bounded next-phase scan fails to
// bracket the target within one synodic month plus one day. The window
// exceeds a full cycle, so this should not occur in correct use, but
// callers must handle it.
var ErrPhaseNotFound = errors.New("phase not found")

// MoonInfo aggregates the per-instant phase values the presentation layers
// need in one call.
type MoonInfo struct {
	Phase        float64 // fraction [0,1): 0=new, 0.5=full
	Name         string  // nine-way phase name
	Illumination float64 // percent [0,100]
	AgeDays      float64 // days since new moon [0,SynodicMonth)
	Waxing       bool    // true while heading toward full
}

// ValidateInstant rejects instants that are not well-formed date-times.
// The zero time.Time is the uninitialized sentinel; years before the
// Julian algorithm's validity floor have no JD representation.
func ValidateInstant(t time.Time, label string) error {
	if t.IsZero() {
		return fmt.Errorf("lunar: %w: %s is not an initialized instant", ErrInvalidInput, label)
	}
	if t.Year() < minJulianYear {
		return fmt.Errorf("lunar: %w: %s year %d precedes the Julian Day floor", ErrInvalidInput, label, t.Year())
	}
	return nil
}

// JulianDay converts Gregorian calendar components to a Julian Day number.
//
// January and February are treated as the 13th/14th month of the previous
// year so the century correction lands in the right year.
func JulianDay(year, month, day, hour, minute, second int) (float64, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("lunar: %w: month %d outside [1,12]", ErrInvalidInput, month)
	}
	if day < 1 || day > 31 {
		return 0, fmt.Errorf("lunar: %w: day %d outside [1,31]", ErrInvalidInput, day)
	}
	if year < minJulianYear {
		return 0, fmt.Errorf("lunar: %w: year %d precedes the Julian Day floor", ErrInvalidInput, year)
	}
	return julianDay(year, month, day, hour, minute, second), nil
}

// julianDay is the unchecked conversion used internally once components
// are known to be in range.
func julianDay(year, month, day, hour, minute, second int) float64 {
	y, m := float64(year), float64(month)
	if month <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	dayFraction := (float64(hour) + float64(minute)/60 + float64(second)/3600) / 24

	return math.Floor(365.25*(y+4716)) +
		math.Floor(30.6001*(m+1)) +
		float64(day) + dayFraction + b - 1524.5
}

// Phase returns the phase fraction in [0,1) for the given instant: 0 is new
// moon, 0.5 is full moon, and the fraction wraps back to 0 at the next new
// moon.
//
// The instant's wall-clock components are used as given, in its own
// location; there is no UTC normalization. The same absolute instant read
// in two timezones therefore yields two different fractions.
func Phase(t time.Time) (float64, error) {
	if err := ValidateInstant(t, "instant"); err != nil {
		return 0, err
	}
	return phase(t), nil
}

// phase is the unchecked fraction used internally by the scan loops.
func phase(t time.Time) float64 {
	year, month, day := t.Date()
	hour, minute, second := t.Clock()
	jd := julianDay(year, int(month), day, hour, minute, second)

	p := math.Mod((jd-newMoonJD)/SynodicMonth, 1)
	if p < 0 {
		p++
	}
	return p
}

// Phase name bands, each 1/8 wide and centered on the named phase. New Moon
// wraps across the 0/1 boundary, so it owns both ends of the range.
var phaseBands = []struct {
	upper float64
	name  string
}{
	{0.0625, "New Moon"},
	{0.1875, "Waxing Crescent"},
	{0.3125, "First Quarter"},
	{0.4375, "Waxing Gibbous"},
	{0.5625, "Full Moon"},
	{0.6875, "Waning Gibbous"},
	{0.8125, "Last Quarter"},
	{0.9375, "Waning Crescent"},
}

// PhaseName classifies a phase fraction into one of the nine fixed bands.
func PhaseName(p float64) (string, error) {
	if err := validatePhase(p); err != nil {
		return "", err
	}
	for _, band := range phaseBands {
		if p < band.upper {
			return band.name, nil
		}
	}
	return "New Moon", nil
}

// Illumination returns the illumination percentage for a phase fraction,
// computed as |cos(2π·phase)|·100.
//
// The absolute-value form reports 100% at both new and full moon. That is
// what downstream consumers were built against, so it is preserved as-is
// rather than replaced with a half-sine curve.
func Illumination(p float64) (float64, error) {
	if err := validatePhase(p); err != nil {
		return 0, err
	}
	return math.Abs(math.Cos(p*2*math.Pi)) * 100, nil
}

// Info computes the aggregate phase values for one instant.
func Info(t time.Time) (MoonInfo, error) {
	p, err := Phase(t)
	if err != nil {
		return MoonInfo{}, err
	}
	name, err := PhaseName(p)
	if err != nil {
		return MoonInfo{}, err
	}
	illum, err := Illumination(p)
	if err != nil {
		return MoonInfo{}, err
	}
	return MoonInfo{
		Phase:        p,
		Name:         name,
		Illumination: illum,
		AgeDays:      p * SynodicMonth,
		Waxing:       p < 0.5,
	}, nil
}

func validatePhase(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("lunar: %w: phase %v outside [0,1]", ErrInvalidInput, p)
	}
	return nil
}
