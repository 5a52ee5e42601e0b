package siqs

import (
	"time"

	"github.com/astroplan/siqs-service/internal/geo"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// WeatherSnapshot is the normalized current-conditions view for a coordinate.
type WeatherSnapshot struct {
	CloudCoverPct float64   `json:"cloudCoverPct"`
	WindSpeedMS   float64   `json:"windSpeedMs"`
	HumidityPct   float64   `json:"humidityPct"`
	PrecipMM      float64   `json:"precipMm"`
	TemperatureC  float64   `json:"temperatureC"`
	Condition     Condition `json:"condition"`
	AQI           *float64  `json:"aqi,omitempty"` // optional; nil scores neutrally
	Timestamp     time.Time `json:"timestamp"`     // always UTC
}

// SampleSource records where a light pollution value came from. User
// submissions outrank API values, which outrank the latitude estimate.
type SampleSource string

const (
	SourceAPI      SampleSource = "api"
	SourceUser     SampleSource = "user"
	SourceEstimate SampleSource = "estimate"
)

// LightPollutionSample is a Bortle-scale reading for a coordinate.
type LightPollutionSample struct {
	Bortle float64      `json:"bortle"` // 1 (darkest) to 9
	Source SampleSource `json:"source"`
}

// Inputs are the normalized raw factors the formula combines.
type Inputs struct {
	CloudCoverPct float64 // 0-100
	Bortle        float64 // 1-9
	Seeing        float64 // 1-5; 0 means unknown and defaults to typical
	WindSpeedMS   float64
	HumidityPct   float64  // 0-100
	MoonPhase     float64  // 0-1, 0 = new moon, 0.5 = full
	AQI           *float64 // nil scores neutrally
	PrecipMM      float64
}

// Factor is one weighted component of the composite score.
type Factor struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Result is the composite sky imaging quality score.
type Result struct {
	Score     float64   `json:"score"` // 0-10, one decimal
	IsViable  bool      `json:"isViable"`
	Factors   []Factor  `json:"factors"`
	Timestamp time.Time `json:"timestamp"`
}

// Report bundles a score with the data it was computed from. Reports are
// what the history store retains per grid cell.
type Report struct {
	Coordinate     geo.Coordinate       `json:"coordinate"`
	Result         Result               `json:"result"`
	Weather        WeatherSnapshot      `json:"weather"`
	LightPollution LightPollutionSample `json:"lightPollution"`
	MoonPhase      float64              `json:"moonPhase"`
	Degraded       []string             `json:"degraded,omitempty"` // inputs replaced by defaults
	Timestamp      time.Time            `json:"timestamp"`
}

// NightForecast is one night's expected viewing conditions.
type NightForecast struct {
	Date          time.Time `json:"date"`
	CloudCoverPct float64   `json:"cloudCoverPct"`
	PrecipMM      float64   `json:"precipMm"`
	WindSpeedMS   float64   `json:"windSpeedMs"`
	HumidityPct   float64   `json:"humidityPct"`
	Seeing        float64   `json:"seeing"`
}

// NightReport is a scored forecast night.
type NightReport struct {
	Date      time.Time     `json:"date"`
	Night     NightForecast `json:"night"`
	Result    Result        `json:"result"`
	MoonPhase float64       `json:"moonPhase"`
}
