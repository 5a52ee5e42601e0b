// Package bortle stores user-contributed light pollution measurements.
// A user submission takes precedence over API-derived values for score
// computations near that coordinate. Conflicts resolve last-write-wins
// per rounded coordinate; the submission method and timestamp are kept
// so a future aggregation policy can re-derive.
package bortle

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/astroplan/siqs-service/internal/geo"
)

// Coordinates are rounded to ~2 km cells; a lookup matches within that
// radius of the query point.
const (
	cellPrecision  = 0.02
	MatchRadiusKm  = 2.0
	MinBortleScale = 1.0
	MaxBortleScale = 9.0
)

// ErrNotFound is returned when no user measurement exists near a coordinate.
var ErrNotFound = errors.New("no user bortle measurement nearby")

// Measurement is one user-submitted Bortle observation.
type Measurement struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Bortle     float64        `json:"bortle"`
	Method     string         `json:"method"` // e.g. "sqm", "visual_limiting_magnitude"
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Store persists user measurements in SQLite.
type Store struct {
	db *sql.DB
}

// New initializes the measurement schema on db and returns the store.
func New(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bortle_measurements (
			cell_key   TEXT PRIMARY KEY,
			latitude   REAL NOT NULL,
			longitude  REAL NOT NULL,
			bortle     REAL NOT NULL,
			method     TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_bortle_lat ON bortle_measurements(latitude);
	`)
	if err != nil {
		return nil, fmt.Errorf("initializing bortle schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Update records a user measurement for the cell containing coord,
// replacing any previous value there (last write wins).
func (s *Store) Update(coord geo.Coordinate, value float64, method string) error {
	if err := coord.Validate(); err != nil {
		return err
	}
	if value < MinBortleScale || value > MaxBortleScale {
		return fmt.Errorf("bortle value %g out of range [%g,%g]", value, MinBortleScale, MaxBortleScale)
	}

	cell := coord.CellKey(cellPrecision)
	_, err := s.db.Exec(`
		INSERT INTO bortle_measurements (cell_key, latitude, longitude, bortle, method, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cell_key) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			bortle = excluded.bortle,
			method = excluded.method,
			updated_at = excluded.updated_at
	`, cell, coord.Latitude, coord.Longitude, value, method, time.Now().UTC())
	return err
}

// FindNearby returns the nearest user measurement within MatchRadiusKm of
// coord, or ErrNotFound.
func (s *Store) FindNearby(coord geo.Coordinate) (Measurement, error) {
	if err := coord.Validate(); err != nil {
		return Measurement{}, err
	}

	// Degrees of longitude shrink with latitude; widen the box accordingly.
	latDelta := MatchRadiusKm / 111.0
	lngDelta := latDelta / math.Max(math.Cos(coord.Latitude*math.Pi/180), 0.01)

	// A box overflowing [-180,180] wraps into a second range on the other
	// side of the antimeridian; otherwise the second range degenerates to
	// the first.
	lngMin, lngMax := coord.Longitude-lngDelta, coord.Longitude+lngDelta
	lngMin2, lngMax2 := lngMin, lngMax
	if lngMin < -180 {
		lngMin2, lngMax2 = lngMin+360, 180
		lngMin = -180
	} else if lngMax > 180 {
		lngMin2, lngMax2 = -180, lngMax-360
		lngMax = 180
	}

	rows, err := s.db.Query(`
		SELECT latitude, longitude, bortle, method, updated_at
		FROM bortle_measurements
		WHERE latitude BETWEEN ? AND ?
		  AND (longitude BETWEEN ? AND ? OR longitude BETWEEN ? AND ?)
	`, coord.Latitude-latDelta, coord.Latitude+latDelta,
		lngMin, lngMax, lngMin2, lngMax2)
	if err != nil {
		return Measurement{}, err
	}
	defer rows.Close()

	best := Measurement{}
	bestDist := math.Inf(1)
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.Coordinate.Latitude, &m.Coordinate.Longitude, &m.Bortle, &m.Method, &m.UpdatedAt); err != nil {
			return Measurement{}, err
		}
		d := coord.DistanceKm(m.Coordinate)
		if d <= MatchRadiusKm && d < bestDist {
			best = m
			bestDist = d
		}
	}
	if err := rows.Err(); err != nil {
		return Measurement{}, err
	}

	if math.IsInf(bestDist, 1) {
		return Measurement{}, ErrNotFound
	}
	return best, nil
}
