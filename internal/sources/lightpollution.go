package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"

	"github.com/astroplan/siqs-service/internal/bortle"
	"github.com/astroplan/siqs-service/internal/cache"
	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/siqs"
)

// Light pollution changes slowly; cache API samples for a long time and on
// a coarser grid than weather.
const lightPollutionPrecision = 0.05

// LightPollutionSource resolves the Bortle scale for a coordinate. User
// measurements take precedence over the API, which takes precedence over
// the latitude-band estimate.
type LightPollutionSource struct {
	cache     *cache.Cache
	overrides *bortle.Store
	logger    *slog.Logger
	baseURL   string
}

// NewLightPollutionSource creates the light pollution adapter. baseURL may
// be empty, in which case only user measurements and estimates are used.
func NewLightPollutionSource(c *cache.Cache, overrides *bortle.Store, logger *slog.Logger, baseURL string) *LightPollutionSource {
	return &LightPollutionSource{
		cache:     c,
		overrides: overrides,
		logger:    logger,
		baseURL:   baseURL,
	}
}

// Sample returns the best available Bortle reading for coord. It never
// fails: when both the override store and API are unavailable it falls
// back to the estimate.
func (s *LightPollutionSource) Sample(ctx context.Context, coord geo.Coordinate) (siqs.LightPollutionSample, error) {
	if s.overrides != nil {
		m, err := s.overrides.FindNearby(coord)
		if err == nil {
			return siqs.LightPollutionSample{Bortle: m.Bortle, Source: siqs.SourceUser}, nil
		}
		if !errors.Is(err, bortle.ErrNotFound) {
			s.logger.Warn("bortle override lookup failed", "error", err)
		}
	}

	if s.baseURL != "" {
		if value, err := s.fetchAPI(ctx, coord); err != nil {
			s.logger.Warn("light pollution api failed, estimating", "error", err)
		} else {
			return siqs.LightPollutionSample{Bortle: value, Source: siqs.SourceAPI}, nil
		}
	}

	return siqs.LightPollutionSample{Bortle: EstimateBortle(coord), Source: siqs.SourceEstimate}, nil
}

func (s *LightPollutionSource) fetchAPI(ctx context.Context, coord geo.Coordinate) (float64, error) {
	urlFor := func(c geo.Coordinate) string {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", c.Latitude))
		values.Set("lng", fmt.Sprintf("%f", c.Longitude))
		return fmt.Sprintf("%s?%s", s.baseURL, values.Encode())
	}

	body, err := s.cache.FetchWithRegionalCache(ctx, urlFor, coord, lightPollutionPrecision, 0)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Bortle float64 `json:"bortle"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	if payload.Bortle < bortle.MinBortleScale || payload.Bortle > bortle.MaxBortleScale {
		return 0, fmt.Errorf("bortle value %g out of range", payload.Bortle)
	}
	return payload.Bortle, nil
}

// EstimateBortle guesses the Bortle scale from latitude alone: population
// (and its light) concentrates in the mid latitudes, while polar and
// equatorial bands are mostly dark. A crude prior, used only when no
// measured value exists.
func EstimateBortle(coord geo.Coordinate) float64 {
	absLat := math.Abs(coord.Latitude)
	switch {
	case absLat > 60:
		return 2
	case absLat > 50:
		return 4
	case absLat > 30:
		return 5
	case absLat > 15:
		return 4
	default:
		return 3
	}
}
