package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesRanges(t *testing.T) {
	_, err := New(91, 0)
	require.Error(t, err)

	_, err = New(0, -181)
	require.Error(t, err)

	c, err := New(47.4979, 19.0402)
	require.NoError(t, err)
	assert.Equal(t, 47.4979, c.Latitude)
}

func TestSnapToGridSharesCell(t *testing.T) {
	a := Coordinate{Latitude: 47.4979, Longitude: 19.0402}
	b := Coordinate{Latitude: 47.5320, Longitude: 19.0391}

	// Both round to the same 0.1 degree cell.
	assert.Equal(t, a.CellKey(0.1), b.CellKey(0.1))

	// But a finer grid separates them.
	assert.NotEqual(t, a.CellKey(0.01), b.CellKey(0.01))
}

func TestDistanceKm(t *testing.T) {
	budapest := Coordinate{Latitude: 47.4979, Longitude: 19.0402}
	vienna := Coordinate{Latitude: 48.2082, Longitude: 16.3738}

	d := budapest.DistanceKm(vienna)
	// Roughly 214 km between the two city centers.
	assert.InDelta(t, 214, d, 5)

	assert.Zero(t, budapest.DistanceKm(budapest))
}

func TestDestinationRoundTrip(t *testing.T) {
	start := Coordinate{Latitude: 40.0, Longitude: -105.0}
	dest := start.Destination(50, 0) // 50 km due north

	assert.InDelta(t, 50, start.DistanceKm(dest), 0.1)
	assert.InDelta(t, start.Longitude, dest.Longitude, 0.001)
	assert.Greater(t, dest.Latitude, start.Latitude)
}
