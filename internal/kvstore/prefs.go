package kvstore

import (
	"time"

	"github.com/astroplan/siqs-service/internal/geo"
)

// Durable preference keys and their current schema versions.
const (
	keyLatestLocation = "latest_siqs_location"
	keySettings       = "siqs_settings"
	keyFavorites      = "favorite_locations"

	latestLocationVersion = 1
	settingsVersion       = 1
	favoritesVersion      = 1
)

// LatestLocation is the last scored location, kept for restore on startup.
type LatestLocation struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Score      float64        `json:"score"`
	ScoredAt   time.Time      `json:"scoredAt"`
}

// Settings are user-tunable scoring preferences.
type Settings struct {
	GridPrecision float64 `json:"gridPrecision"`
	ForecastDays  int     `json:"forecastDays"`
}

// DefaultSettings apply until the user saves their own.
func DefaultSettings() Settings {
	return Settings{GridPrecision: 0.1, ForecastDays: 3}
}

// Favorite is a named saved location.
type Favorite struct {
	Name       string         `json:"name"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

func (s *Store) SaveLatestLocation(l LatestLocation) error {
	return s.Put(keyLatestLocation, latestLocationVersion, l)
}

func (s *Store) LatestLocation() (LatestLocation, bool, error) {
	var l LatestLocation
	ok, err := s.Get(keyLatestLocation, latestLocationVersion, &l)
	return l, ok, err
}

func (s *Store) SaveSettings(set Settings) error {
	return s.Put(keySettings, settingsVersion, set)
}

func (s *Store) GetSettings() (Settings, bool, error) {
	var set Settings
	ok, err := s.Get(keySettings, settingsVersion, &set)
	return set, ok, err
}

func (s *Store) SaveFavorites(favs []Favorite) error {
	return s.Put(keyFavorites, favoritesVersion, favs)
}

func (s *Store) Favorites() ([]Favorite, error) {
	var favs []Favorite
	if _, err := s.Get(keyFavorites, favoritesVersion, &favs); err != nil {
		return nil, err
	}
	return favs, nil
}
