package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMoonPhaseAtKnownDates(t *testing.T) {
	// New moon: 2024-01-11 11:57 UTC.
	newMoon := time.Date(2024, time.January, 11, 11, 57, 0, 0, time.UTC)
	phase := MoonPhase(newMoon)
	nearNew := phase < 0.02 || phase > 0.98
	assert.True(t, nearNew, "expected phase near 0/1 at a new moon, got %v", phase)

	// Full moon: 2024-01-25 17:54 UTC.
	fullMoon := time.Date(2024, time.January, 25, 17, 54, 0, 0, time.UTC)
	assert.InDelta(t, 0.5, MoonPhase(fullMoon), 0.02)
}

func TestMoonIlluminationBounds(t *testing.T) {
	fullMoon := time.Date(2024, time.January, 25, 17, 54, 0, 0, time.UTC)
	assert.InDelta(t, 1.0, MoonIllumination(fullMoon), 0.01)

	newMoon := time.Date(2024, time.January, 11, 11, 57, 0, 0, time.UTC)
	assert.InDelta(t, 0.0, MoonIllumination(newMoon), 0.01)
}

func TestMoonPhaseBeforeReferenceEpoch(t *testing.T) {
	phase := MoonPhase(time.Date(1990, time.June, 1, 0, 0, 0, 0, time.UTC))
	assert.GreaterOrEqual(t, phase, 0.0)
	assert.Less(t, phase, 1.0)
}
