package sources

import (
	"math"
	"time"
)

// Mean synodic month and a reference new moon (2000-01-06 18:14 UTC).
// Mean-cycle arithmetic is within a few hours of the true phase, which is
// far finer than the scoring curve can distinguish.
const synodicMonthDays = 29.530588853

var referenceNewMoon = time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC)

// MoonPhase returns the phase fraction at t: 0 = new moon, 0.5 = full,
// approaching 1 at the next new moon.
func MoonPhase(t time.Time) float64 {
	days := t.Sub(referenceNewMoon).Hours() / 24
	phase := math.Mod(days/synodicMonthDays, 1)
	if phase < 0 {
		phase += 1
	}
	return phase
}

// MoonIllumination returns the illuminated fraction of the disc at t.
func MoonIllumination(t time.Time) float64 {
	return (1 - math.Cos(2*math.Pi*MoonPhase(t))) / 2
}
