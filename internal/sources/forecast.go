package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/astroplan/siqs-service/internal/cache"
	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/siqs"
)

// Forecasts refresh a few times a day; no need to hold them the full
// regional TTL, but one cell per query area is plenty.
const forecastTTL = 3 * time.Hour

// ForecastSource fetches Open-Meteo daily forecasts and normalizes them to
// per-night viewing conditions.
type ForecastSource struct {
	cache     *cache.Cache
	baseURL   string
	precision float64
}

// NewForecastSource creates the forecast adapter.
func NewForecastSource(c *cache.Cache, precision float64) *ForecastSource {
	return &ForecastSource{
		cache:     c,
		baseURL:   "https://api.open-meteo.com/v1/forecast",
		precision: precision,
	}
}

// Nightly returns up to days nights of expected conditions for coord.
func (s *ForecastSource) Nightly(ctx context.Context, coord geo.Coordinate, days int) ([]siqs.NightForecast, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be greater than zero")
	}

	urlFor := func(c geo.Coordinate) string {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", c.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", c.Longitude))
		values.Set("daily", "cloud_cover_mean,precipitation_sum,wind_speed_10m_max,relative_humidity_2m_mean")
		values.Set("wind_speed_unit", "ms")
		values.Set("forecast_days", fmt.Sprintf("%d", days))
		return fmt.Sprintf("%s?%s", s.baseURL, values.Encode())
	}

	body, err := s.cache.FetchWithRegionalCache(ctx, urlFor, coord, s.precision, forecastTTL)
	if err != nil {
		return nil, fmt.Errorf("forecast fetch: %w", err)
	}

	var payload struct {
		Daily struct {
			Time         []string  `json:"time"`
			CloudCover   []float64 `json:"cloud_cover_mean"`
			PrecipSum    []float64 `json:"precipitation_sum"`
			WindSpeedMax []float64 `json:"wind_speed_10m_max"`
			HumidityMean []float64 `json:"relative_humidity_2m_mean"`
		} `json:"daily"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}

	nights := make([]siqs.NightForecast, 0, len(payload.Daily.Time))
	for i, day := range payload.Daily.Time {
		if i >= days {
			break
		}
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}

		night := siqs.NightForecast{Date: date.UTC()}
		if i < len(payload.Daily.CloudCover) {
			night.CloudCoverPct = payload.Daily.CloudCover[i]
		}
		if i < len(payload.Daily.PrecipSum) {
			night.PrecipMM = payload.Daily.PrecipSum[i]
		}
		if i < len(payload.Daily.WindSpeedMax) {
			night.WindSpeedMS = payload.Daily.WindSpeedMax[i]
		}
		if i < len(payload.Daily.HumidityMean) {
			night.HumidityPct = payload.Daily.HumidityMean[i]
		}
		night.Seeing = siqs.EstimateSeeing(night.WindSpeedMS, night.HumidityPct)

		nights = append(nights, night)
	}

	if len(nights) == 0 {
		return nil, fmt.Errorf("no forecast data available")
	}
	return nights, nil
}
