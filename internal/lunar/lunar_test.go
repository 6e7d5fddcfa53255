package lunar

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestJulianDayCalibration(t *testing.T) {
	// J2000.0: 2000-01-01 12:00 is the standard reference Julian Day.
	jd, err := JulianDay(2000, 1, 1, 12, 0, 0)
	if err != nil {
		t.Fatalf("JulianDay returned error: %v", err)
	}
	if jd != 2451545.0 {
		t.Errorf("JulianDay(2000,1,1,12,0,0) = %v, expected 2451545.0", jd)
	}
}

func TestJulianDayKnownValues(t *testing.T) {
	tests := []struct {
		name                                   string
		year, month, day, hour, minute, second int
		expected                               float64
	}{
		{"J2000 midnight", 2000, 1, 1, 0, 0, 0, 2451544.5},
		{"reference new moon", 2000, 1, 6, 0, 0, 0, 2451549.5},
		{"unix epoch", 1970, 1, 1, 0, 0, 0, 2440587.5},
		{"february leap day", 2024, 2, 29, 12, 0, 0, 2460370.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jd, err := JulianDay(tt.year, tt.month, tt.day, tt.hour, tt.minute, tt.second)
			if err != nil {
				t.Fatalf("JulianDay returned error: %v", err)
			}
			if math.Abs(jd-tt.expected) > 1e-9 {
				t.Errorf("JulianDay = %v, expected %v", jd, tt.expected)
			}
		})
	}
}

func TestJulianDayInvalidInput(t *testing.T) {
	tests := []struct {
		name             string
		year, month, day int
	}{
		{"month 13", 2024, 13, 1},
		{"month 0", 2024, 0, 1},
		{"day 32", 2024, 1, 32},
		{"day 0", 2024, 1, 0},
		{"year below floor", -5000, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JulianDay(tt.year, tt.month, tt.day, 0, 0, 0)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestPhaseAtReferenceNewMoon(t *testing.T) {
	// JD 2451549.5 is the epoch the phase fraction is measured from.
	p, err := Phase(time.Date(2000, 1, 6, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	if phaseDistance(p, 0) > 1e-9 {
		t.Errorf("Phase at reference epoch = %v, expected ~0", p)
	}
}

func TestPhaseRange(t *testing.T) {
	for year := 1990; year <= 2030; year++ {
		for month := 1; month <= 12; month++ {
			instant := time.Date(year, time.Month(month), 15, 12, 0, 0, 0, time.UTC)
			p, err := Phase(instant)
			if err != nil {
				t.Fatalf("Phase(%v) returned error: %v", instant, err)
			}
			if p < 0 || p >= 1 {
				t.Errorf("Phase(%v) = %v, outside [0,1)", instant, p)
			}
		}
	}
}

func TestPhaseDeterministic(t *testing.T) {
	instant := time.Date(2024, 6, 1, 9, 30, 15, 0, time.UTC)
	a, err := Phase(instant)
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	b, err := Phase(instant)
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	if a != b {
		t.Errorf("Phase is not deterministic: %v != %v", a, b)
	}
}

func TestPhasePeriodicity(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cycle := time.Duration(SynodicMonth * 24 * float64(time.Hour))

	p1, err := Phase(start)
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	p2, err := Phase(start.Add(cycle))
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	if d := phaseDistance(p1, p2); d > 0.02 {
		t.Errorf("phase drift over one synodic month = %v, expected < 0.02", d)
	}
}

func TestPhaseUsesWallClockComponents(t *testing.T) {
	// The same absolute instant read in two zones yields two different
	// fractions. Inherited contract, verified so nobody "fixes" it.
	utc := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	shifted := utc.In(time.FixedZone("UTC+12", 12*3600))

	pUTC, err := Phase(utc)
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	pShifted, err := Phase(shifted)
	if err != nil {
		t.Fatalf("Phase returned error: %v", err)
	}
	if phaseDistance(pUTC, pShifted) < 0.01 {
		t.Errorf("expected wall-clock sensitivity, got %v vs %v", pUTC, pShifted)
	}
}

func TestPhaseInvalidInstant(t *testing.T) {
	if _, err := Phase(time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero instant, got %v", err)
	}
}

func TestPhaseName(t *testing.T) {
	tests := []struct {
		phase    float64
		expected string
	}{
		{0, "New Moon"},
		{0.03, "New Moon"},
		{0.0625, "Waxing Crescent"},
		{0.1, "Waxing Crescent"},
		{0.25, "First Quarter"},
		{0.4, "Waxing Gibbous"},
		{0.5, "Full Moon"},
		{0.6, "Waning Gibbous"},
		{0.75, "Last Quarter"},
		{0.9, "Waning Crescent"},
		{0.95, "New Moon"},
		{1, "New Moon"},
	}

	for _, tt := range tests {
		name, err := PhaseName(tt.phase)
		if err != nil {
			t.Fatalf("PhaseName(%v) returned error: %v", tt.phase, err)
		}
		if name != tt.expected {
			t.Errorf("PhaseName(%v) = %q, expected %q", tt.phase, name, tt.expected)
		}
	}
}

func TestPhaseNameInvalid(t *testing.T) {
	for _, p := range []float64{-0.1, 1.5, math.NaN()} {
		if _, err := PhaseName(p); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("PhaseName(%v): expected ErrInvalidInput, got %v", p, err)
		}
	}
}

func TestIllumination(t *testing.T) {
	tests := []struct {
		phase    float64
		expected float64
	}{
		// The |cos| formula peaks at both new and full moon; that shape is
		// load-bearing for output compatibility.
		{0, 100},
		{0.25, 0},
		{0.5, 100},
		{0.75, 0},
	}

	for _, tt := range tests {
		got, err := Illumination(tt.phase)
		if err != nil {
			t.Fatalf("Illumination(%v) returned error: %v", tt.phase, err)
		}
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Illumination(%v) = %v, expected %v", tt.phase, got, tt.expected)
		}
	}
}

func TestIlluminationRange(t *testing.T) {
	for p := 0.0; p <= 1.0; p += 0.01 {
		got, err := Illumination(p)
		if err != nil {
			t.Fatalf("Illumination(%v) returned error: %v", p, err)
		}
		if got < 0 || got > 100 {
			t.Errorf("Illumination(%v) = %v, outside [0,100]", p, got)
		}
	}
	if _, err := Illumination(1.5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for phase 1.5, got %v", err)
	}
}

func TestInfo(t *testing.T) {
	instant := time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC) // near a new moon
	info, err := Info(instant)
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if info.Name == "" {
		t.Error("Info.Name is empty")
	}
	if info.AgeDays < 0 || info.AgeDays >= SynodicMonth {
		t.Errorf("Info.AgeDays = %v, outside [0,%v)", info.AgeDays, SynodicMonth)
	}
	if info.Waxing != (info.Phase < 0.5) {
		t.Errorf("Info.Waxing = %v inconsistent with phase %v", info.Waxing, info.Phase)
	}
}

func TestValidateInstant(t *testing.T) {
	if err := ValidateInstant(time.Now(), "now"); err != nil {
		t.Errorf("ValidateInstant(now) = %v, expected nil", err)
	}
	err := ValidateInstant(time.Time{}, "startInstant")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	// The offending parameter label must survive into the message.
	if want := "startInstant"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not name parameter %q", err.Error(), want)
	}
}
