package siqs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreAlwaysInRangeAndViabilityMatchesThreshold(t *testing.T) {
	clouds := []float64{0, 25, 50, 75, 100}
	bortles := []float64{1, 3, 5, 7, 9}
	winds := []float64{0, 5, 12, 25}
	moons := []float64{0, 0.25, 0.5, 0.75, 1}

	for _, cc := range clouds {
		for _, b := range bortles {
			for _, w := range winds {
				for _, m := range moons {
					res := Calculate(Inputs{
						CloudCoverPct: cc,
						Bortle:        b,
						Seeing:        3,
						WindSpeedMS:   w,
						HumidityPct:   50,
						MoonPhase:     m,
						PrecipMM:      0,
					})
					assert.GreaterOrEqual(t, res.Score, 0.0)
					assert.LessOrEqual(t, res.Score, 10.0)
					assert.Equal(t, res.Score >= ViableThreshold, res.IsViable,
						"viability must track the threshold at score %v", res.Score)
				}
			}
		}
	}
}

func TestCalculateIsIdempotent(t *testing.T) {
	aqi := 42.0
	in := Inputs{
		CloudCoverPct: 35,
		Bortle:        4,
		Seeing:        4,
		WindSpeedMS:   2.5,
		HumidityPct:   55,
		MoonPhase:     0.3,
		AQI:           &aqi,
		PrecipMM:      0.1,
	}

	first := Calculate(in)
	second := Calculate(in)
	assert.Equal(t, first, second)
}

func TestPerfectNightScoresNearMaximum(t *testing.T) {
	aqi := 10.0
	res := Calculate(Inputs{
		CloudCoverPct: 0,
		Bortle:        1,
		Seeing:        5,
		WindSpeedMS:   0,
		HumidityPct:   20,
		MoonPhase:     0,
		AQI:           &aqi,
		PrecipMM:      0,
	})

	assert.GreaterOrEqual(t, res.Score, 9.5)
	assert.True(t, res.IsViable)
}

func TestOvercastBrightSkyScoresLow(t *testing.T) {
	res := Calculate(Inputs{
		CloudCoverPct: 90,
		Bortle:        8,
		Seeing:        3,
		WindSpeedMS:   3,
		HumidityPct:   60,
		MoonPhase:     0.25,
	})

	assert.LessOrEqual(t, res.Score, 2.0)
	assert.False(t, res.IsViable)
}

func TestHeavyCloudCapsEvenDarkSkies(t *testing.T) {
	res := Calculate(Inputs{
		CloudCoverPct: 85,
		Bortle:        1,
		Seeing:        5,
		WindSpeedMS:   0,
		HumidityPct:   20,
		MoonPhase:     0,
		PrecipMM:      0,
	})

	assert.LessOrEqual(t, res.Score, 2.0)
	assert.False(t, res.IsViable)
}

func TestMissingAQIContributesNeutrally(t *testing.T) {
	base := Inputs{
		CloudCoverPct: 20,
		Bortle:        3,
		Seeing:        4,
		WindSpeedMS:   2,
		HumidityPct:   40,
		MoonPhase:     0.1,
	}

	withoutAQI := Calculate(base)

	neutral := 0.0
	// AQI 125 scores exactly the neutral 5.0 on the lookup curve.
	for _, f := range withoutAQI.Factors {
		if f.Name == "aqi" {
			neutral = f.Contribution
		}
	}
	require.Equal(t, 5.0, neutral)

	aqi := 125.0
	base.AQI = &aqi
	withAQI := Calculate(base)
	assert.Equal(t, withoutAQI.Score, withAQI.Score)
}

func TestUnknownSeeingDefaultsToTypical(t *testing.T) {
	in := Inputs{CloudCoverPct: 10, Bortle: 3, HumidityPct: 40, MoonPhase: 0}

	unknown := Calculate(in)
	in.Seeing = 3
	typical := Calculate(in)
	assert.Equal(t, typical.Score, unknown.Score)
}

func TestFactorContributionsAreReported(t *testing.T) {
	res := Calculate(Inputs{CloudCoverPct: 50, Bortle: 5, Seeing: 3, HumidityPct: 50, MoonPhase: 0.5})

	require.Len(t, res.Factors, 8)
	var weightSum float64
	for _, f := range res.Factors {
		weightSum += f.Weight
		assert.GreaterOrEqual(t, f.Contribution, 0.0)
		assert.LessOrEqual(t, f.Contribution, 10.0)
	}
	assert.InDelta(t, 1.0, weightSum, 1e-9)
}

func TestNewAndFullMoonBracketTheMoonScore(t *testing.T) {
	assert.InDelta(t, 10, scoreMoon(0), 1e-9)
	assert.InDelta(t, 0, scoreMoon(0.5), 1e-9)
	assert.InDelta(t, 10, scoreMoon(1), 1e-9)
}
