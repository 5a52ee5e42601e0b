package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// Coordinate is a WGS84 point. It is immutable once constructed and is
// the key for all location-based caching in the service.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// New validates the ranges and returns a Coordinate.
func New(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Latitude: lat, Longitude: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks that the coordinate is within valid WGS84 bounds.
func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range [-90,90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range [-180,180]", c.Longitude)
	}
	return nil
}

// Key returns a canonical string key for indexing this coordinate in stores.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.4f:%.4f", c.Latitude, c.Longitude)
}

// SnapToGrid rounds the coordinate to the center of its grid cell of the
// given size in degrees. Nearby coordinates snap to the same cell, so they
// share cached data.
func (c Coordinate) SnapToGrid(precision float64) Coordinate {
	if precision <= 0 {
		return c
	}
	return Coordinate{
		Latitude:  math.Round(c.Latitude/precision) * precision,
		Longitude: math.Round(c.Longitude/precision) * precision,
	}
}

// CellKey returns the cache key of the grid cell containing this coordinate.
func (c Coordinate) CellKey(precision float64) string {
	s := c.SnapToGrid(precision)
	return fmt.Sprintf("cell:%g:%.4f:%.4f", precision, s.Latitude, s.Longitude)
}

// DistanceKm returns the haversine great-circle distance to other, in km.
func (c Coordinate) DistanceKm(other Coordinate) float64 {
	lat1 := c.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - c.Latitude) * math.Pi / 180
	dLng := (other.Longitude - c.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Destination returns the coordinate reached by travelling distanceKm from c
// along the given bearing (radians, 0 = north).
func (c Coordinate) Destination(distanceKm, bearing float64) Coordinate {
	d := distanceKm / earthRadiusKm
	lat1 := c.Latitude * math.Pi / 180
	lng1 := c.Longitude * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(bearing))
	lng2 := lng1 + math.Atan2(
		math.Sin(bearing)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	// Normalize longitude to [-180,180].
	lngDeg := lng2 * 180 / math.Pi
	for lngDeg > 180 {
		lngDeg -= 360
	}
	for lngDeg < -180 {
		lngDeg += 360
	}

	return Coordinate{
		Latitude:  lat2 * 180 / math.Pi,
		Longitude: lngDeg,
	}
}
