package siqs

import (
	"math"
)

// ViableThreshold is the fixed score at or above which a night is worth
// imaging. It is a convention of the score, not a caller-tunable knob.
const ViableThreshold = 5.0

// cloudCapPct: above this cloud cover the sky is effectively unusable no
// matter how good the other factors are, so the composite is capped.
const (
	cloudCapPct   = 80.0
	precipCapMM   = 5.0
	cappedScore   = 2.0
	defaultSeeing = 3.0
)

// Factor weights. Cloud cover and light pollution dominate; moon phase and
// air quality act as modifiers.
const (
	weightCloud    = 0.40
	weightBortle   = 0.30
	weightSeeing   = 0.10
	weightWind     = 0.05
	weightHumidity = 0.05
	weightMoon     = 0.06
	weightAQI      = 0.02
	weightPrecip   = 0.02
)

// Calculate combines the normalized factors into one 0-10 composite score.
// It is pure and deterministic: identical inputs yield identical results.
// The result timestamp is left zero for the caller to stamp.
func Calculate(in Inputs) Result {
	seeing := in.Seeing
	if seeing <= 0 {
		seeing = defaultSeeing
	}

	// -1 marks a missing AQI reading; it still contributes neutrally.
	aqiValue := -1.0
	aqiScore := 5.0
	if in.AQI != nil {
		aqiValue = *in.AQI
		aqiScore = scoreAQI(*in.AQI)
	}

	factors := []Factor{
		{Name: "cloudCover", Value: in.CloudCoverPct, Weight: weightCloud, Contribution: scoreCloudCover(in.CloudCoverPct)},
		{Name: "bortleScale", Value: in.Bortle, Weight: weightBortle, Contribution: scoreBortle(in.Bortle)},
		{Name: "seeing", Value: seeing, Weight: weightSeeing, Contribution: scoreSeeing(seeing)},
		{Name: "windSpeed", Value: in.WindSpeedMS, Weight: weightWind, Contribution: scoreWind(in.WindSpeedMS)},
		{Name: "humidity", Value: in.HumidityPct, Weight: weightHumidity, Contribution: scoreHumidity(in.HumidityPct)},
		{Name: "moonPhase", Value: in.MoonPhase, Weight: weightMoon, Contribution: scoreMoon(in.MoonPhase)},
		{Name: "aqi", Value: aqiValue, Weight: weightAQI, Contribution: aqiScore},
		{Name: "precipitation", Value: in.PrecipMM, Weight: weightPrecip, Contribution: scorePrecip(in.PrecipMM)},
	}

	var score float64
	for _, f := range factors {
		score += f.Weight * f.Contribution
	}

	// Heavy cloud or active precipitation makes imaging impossible; the
	// weighted sum alone would still credit dark skies.
	if in.CloudCoverPct >= cloudCapPct && score > cappedScore {
		score = cappedScore
	}
	if in.PrecipMM >= precipCapMM && score > cappedScore {
		score = cappedScore
	}

	score = math.Round(clamp(score, 0, 10)*10) / 10

	return Result{
		Score:    score,
		IsViable: score >= ViableThreshold,
		Factors:  factors,
	}
}

// scoreCloudCover maps cloud cover % to 0-10. Even thin cloud ruins long
// exposures, so the curve drops faster than linear.
func scoreCloudCover(pct float64) float64 {
	return interpolate(pct, []point{
		{0, 10}, {10, 9}, {20, 8}, {40, 5.5}, {60, 3}, {80, 1}, {100, 0},
	})
}

// bortleScores is indexed by scale value 1-9.
var bortleScores = []point{
	{1, 10}, {2, 9.5}, {3, 8.5}, {4, 7}, {5, 5.5}, {6, 4}, {7, 3}, {8, 1.5}, {9, 0.5},
}

func scoreBortle(scale float64) float64 {
	return interpolate(scale, bortleScores)
}

// scoreSeeing maps the 1-5 atmospheric steadiness rating linearly onto 2-10.
func scoreSeeing(rating float64) float64 {
	return clamp(2+2*(rating-1), 0, 10)
}

func scoreWind(ms float64) float64 {
	return interpolate(ms, []point{
		{0, 10}, {3, 9}, {6, 7}, {8, 5}, {12, 2}, {15, 0},
	})
}

func scoreHumidity(pct float64) float64 {
	return interpolate(pct, []point{
		{0, 10}, {30, 10}, {60, 6}, {80, 3}, {100, 0},
	})
}

// scoreMoon scores by illuminated fraction: a new moon (phase 0 or 1) is
// ideal, a full moon (phase 0.5) washes out the sky.
func scoreMoon(phase float64) float64 {
	illumination := (1 - math.Cos(2*math.Pi*clamp(phase, 0, 1))) / 2
	return 10 * (1 - illumination)
}

func scoreAQI(aqi float64) float64 {
	return interpolate(aqi, []point{
		{0, 10}, {50, 8}, {100, 6}, {150, 4}, {200, 2}, {300, 0},
	})
}

func scorePrecip(mm float64) float64 {
	return interpolate(mm, []point{
		{0, 10}, {0.5, 5}, {2, 2}, {5, 0},
	})
}

type point struct {
	x, y float64
}

// interpolate evaluates a piecewise-linear curve, clamping outside its ends.
func interpolate(x float64, pts []point) float64 {
	if x <= pts[0].x {
		return pts[0].y
	}
	last := pts[len(pts)-1]
	if x >= last.x {
		return last.y
	}
	for i := 1; i < len(pts); i++ {
		if x <= pts[i].x {
			a, b := pts[i-1], pts[i]
			t := (x - a.x) / (b.x - a.x)
			return a.y + t*(b.y-a.y)
		}
	}
	return last.y
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
