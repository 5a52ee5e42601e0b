// Package sources holds the adapters that call external data providers and
// normalize their heterogeneous responses into plain value objects. Every
// adapter goes through the shared fetch client and the regional cache.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/astroplan/siqs-service/internal/cache"
	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/siqs"
)

// WeatherSource fetches current conditions from Open-Meteo, with AQI from
// its air-quality endpoint.
type WeatherSource struct {
	cache     *cache.Cache
	logger    *slog.Logger
	baseURL   string
	aqiURL    string
	precision float64
}

// NewWeatherSource creates the Open-Meteo weather adapter.
func NewWeatherSource(c *cache.Cache, logger *slog.Logger, precision float64) *WeatherSource {
	return &WeatherSource{
		cache:     c,
		logger:    logger,
		baseURL:   "https://api.open-meteo.com/v1/forecast",
		aqiURL:    "https://air-quality-api.open-meteo.com/v1/air-quality",
		precision: precision,
	}
}

// Current returns the normalized current conditions at coord.
func (s *WeatherSource) Current(ctx context.Context, coord geo.Coordinate) (siqs.WeatherSnapshot, error) {
	body, err := s.cache.FetchWithRegionalCache(ctx, s.currentURL, coord, s.precision, 0)
	if err != nil {
		return siqs.WeatherSnapshot{}, fmt.Errorf("weather fetch: %w", err)
	}

	var payload struct {
		Current struct {
			Time          string  `json:"time"`
			Temperature   float64 `json:"temperature_2m"`
			Humidity      float64 `json:"relative_humidity_2m"`
			Precipitation float64 `json:"precipitation"`
			CloudCover    float64 `json:"cloud_cover"`
			WindSpeed     float64 `json:"wind_speed_10m"`
			WeatherCode   int     `json:"weather_code"`
		} `json:"current"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return siqs.WeatherSnapshot{}, fmt.Errorf("decode weather response: %w", err)
	}

	ts, err := time.Parse("2006-01-02T15:04", payload.Current.Time)
	if err != nil {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	snap := siqs.WeatherSnapshot{
		CloudCoverPct: payload.Current.CloudCover,
		WindSpeedMS:   payload.Current.WindSpeed,
		HumidityPct:   payload.Current.Humidity,
		PrecipMM:      payload.Current.Precipitation,
		TemperatureC:  payload.Current.Temperature,
		Condition:     mapWeatherCode(payload.Current.WeatherCode),
		Timestamp:     ts,
	}

	// AQI is optional; a failure here degrades the one factor, not the snapshot.
	if aqi, err := s.fetchAQI(ctx, coord); err != nil {
		s.logger.Warn("aqi fetch failed, scoring neutrally", "error", err)
	} else {
		snap.AQI = &aqi
	}

	return snap, nil
}

func (s *WeatherSource) currentURL(coord geo.Coordinate) string {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", coord.Latitude))
	values.Set("longitude", fmt.Sprintf("%f", coord.Longitude))
	values.Set("current", "temperature_2m,relative_humidity_2m,precipitation,cloud_cover,wind_speed_10m,weather_code")
	values.Set("wind_speed_unit", "ms")
	return fmt.Sprintf("%s?%s", s.baseURL, values.Encode())
}

func (s *WeatherSource) fetchAQI(ctx context.Context, coord geo.Coordinate) (float64, error) {
	urlFor := func(c geo.Coordinate) string {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", c.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", c.Longitude))
		values.Set("current", "us_aqi")
		return fmt.Sprintf("%s?%s", s.aqiURL, values.Encode())
	}

	body, err := s.cache.FetchWithRegionalCache(ctx, urlFor, coord, s.precision, 0)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Current struct {
			USAQI float64 `json:"us_aqi"`
		} `json:"current"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	return payload.Current.USAQI, nil
}

// mapWeatherCode maps Open-Meteo weather codes to normalized conditions.
func mapWeatherCode(code int) siqs.Condition {
	switch {
	case code == 0:
		return siqs.ConditionClear
	case code >= 1 && code <= 3:
		return siqs.ConditionCloudy
	case code >= 45 && code <= 48:
		return siqs.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return siqs.ConditionRain
	case code >= 71 && code <= 77:
		return siqs.ConditionSnow
	case code >= 95:
		return siqs.ConditionStorm
	default:
		return siqs.ConditionUnknown
	}
}
