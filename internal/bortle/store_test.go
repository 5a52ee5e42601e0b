package bortle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/kvstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := kvstore.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	require.NoError(t, err)
	return s
}

func TestUpdateAndFindNearby(t *testing.T) {
	s := openTestStore(t)

	site := geo.Coordinate{Latitude: 44.5921, Longitude: -110.5472}
	require.NoError(t, s.Update(site, 2, "sqm"))

	// A query ~500 m away matches.
	near := geo.Coordinate{Latitude: 44.5961, Longitude: -110.5472}
	m, err := s.FindNearby(near)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m.Bortle)
	assert.Equal(t, "sqm", m.Method)

	// A query ~20 km away does not.
	far := geo.Coordinate{Latitude: 44.77, Longitude: -110.5472}
	_, err = s.FindNearby(far)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLastWriteWins(t *testing.T) {
	s := openTestStore(t)

	site := geo.Coordinate{Latitude: 40.0, Longitude: -105.0}
	require.NoError(t, s.Update(site, 4, "visual_limiting_magnitude"))
	require.NoError(t, s.Update(site, 2, "sqm"))

	m, err := s.FindNearby(site)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m.Bortle)
	assert.Equal(t, "sqm", m.Method)
}

func TestNearestWinsAmongSeveral(t *testing.T) {
	s := openTestStore(t)

	query := geo.Coordinate{Latitude: 40.0, Longitude: -105.0}
	closer := geo.Coordinate{Latitude: 40.004, Longitude: -105.0}
	farther := geo.Coordinate{Latitude: 40.015, Longitude: -105.0}

	require.NoError(t, s.Update(farther, 5, "sqm"))
	require.NoError(t, s.Update(closer, 3, "sqm"))

	m, err := s.FindNearby(query)
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.Bortle)
}

func TestFindNearbyWrapsAntimeridian(t *testing.T) {
	s := openTestStore(t)

	site := geo.Coordinate{Latitude: 0, Longitude: 179.999}
	require.NoError(t, s.Update(site, 2, "sqm"))

	// The query point sits ~200 m away on the other side of the date line.
	query := geo.Coordinate{Latitude: 0, Longitude: -179.999}
	m, err := s.FindNearby(query)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m.Bortle)
}

func TestUpdateValidatesInput(t *testing.T) {
	s := openTestStore(t)

	err := s.Update(geo.Coordinate{Latitude: 40, Longitude: -105}, 0.5, "sqm")
	assert.Error(t, err)

	err = s.Update(geo.Coordinate{Latitude: 95, Longitude: 0}, 4, "sqm")
	assert.Error(t, err)
}
