package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	kelvins "github.com/kelvins/geocoder"

	"github.com/astroplan/siqs-service/internal/cache"
	"github.com/astroplan/siqs-service/internal/geo"
)

// Place is one geocoding candidate.
type Place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocoder resolves place names to coordinates via the Open-Meteo geocoding
// API, and coordinates back to addresses via Google (when a key is
// configured). Reverse lookups degrade to an unnamed place rather than
// failing, since a missing name never blocks scoring.
type Geocoder struct {
	cache        *cache.Cache
	logger       *slog.Logger
	baseURL      string
	googleAPIKey string
}

// NewGeocoder creates the geocoding adapter. googleAPIKey may be empty.
func NewGeocoder(c *cache.Cache, logger *slog.Logger, googleAPIKey string) *Geocoder {
	if googleAPIKey != "" {
		kelvins.ApiKey = googleAPIKey
	}
	return &Geocoder{
		cache:        c,
		logger:       logger,
		baseURL:      "https://geocoding-api.open-meteo.com/v1/search",
		googleAPIKey: googleAPIKey,
	}
}

// Search returns up to limit places matching the query.
func (g *Geocoder) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 5
	}

	values := url.Values{}
	values.Set("name", query)
	values.Set("count", fmt.Sprintf("%d", limit))
	u := fmt.Sprintf("%s?%s", g.baseURL, values.Encode())

	body, err := g.cache.FetchWithCache(ctx, u, 0)
	if err != nil {
		return nil, fmt.Errorf("geocode search: %w", err)
	}

	var payload struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	places := make([]Place, 0, len(payload.Results))
	for _, r := range payload.Results {
		places = append(places, Place{
			Name:      r.Name,
			Country:   r.Country,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		})
	}
	return places, nil
}

// Reverse resolves a coordinate to the nearest known place name.
func (g *Geocoder) Reverse(_ context.Context, coord geo.Coordinate) (Place, error) {
	unnamed := Place{Name: "Unknown", Latitude: coord.Latitude, Longitude: coord.Longitude}

	if g.googleAPIKey == "" {
		return unnamed, nil
	}

	addresses, err := kelvins.GeocodingReverse(kelvins.Location{
		Latitude:  coord.Latitude,
		Longitude: coord.Longitude,
	})
	if err != nil {
		g.logger.Warn("reverse geocoding failed", "error", err)
		return unnamed, nil
	}
	if len(addresses) == 0 {
		return unnamed, nil
	}

	a := addresses[0]
	name := a.City
	if name == "" {
		name = a.FormatAddress()
	}
	return Place{
		Name:      name,
		Country:   a.Country,
		Latitude:  coord.Latitude,
		Longitude: coord.Longitude,
	}, nil
}
