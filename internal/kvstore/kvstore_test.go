package kvstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroplan/siqs-service/internal/geo"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	type payload struct {
		Name string `json:"name"`
	}

	require.NoError(t, s.Put("k", 1, payload{Name: "orion"}))

	var got payload
	ok, err := s.Get("k", 1, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "orion", got.Name)
}

func TestVersionMismatchIsAbsent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put("k", 1, map[string]string{"a": "b"}))

	var got map[string]string
	ok, err := s.Get("k", 2, &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put("k", 1, "v"))
	require.NoError(t, s.Delete("k"))

	var got string
	ok, err := s.Get("k", 1, &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheEntryPersistence(t *testing.T) {
	s := openTestStore(t)

	expiry := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	require.NoError(t, s.StoreEntry("region:cell:0.1:40.0000:-105.0000", []byte(`{"x":1}`), expiry))

	data, gotExpiry, ok := s.LoadEntry("region:cell:0.1:40.0000:-105.0000")
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(data))
	assert.True(t, gotExpiry.Equal(expiry))

	_, _, ok = s.LoadEntry("missing")
	assert.False(t, ok)
}

func TestExpiredCacheEntryIsDeletedOnRead(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	require.NoError(t, err)

	require.NoError(t, s.StoreEntry("stale", []byte("x"), time.Now().Add(-time.Minute)))

	_, _, ok := s.LoadEntry("stale")
	assert.False(t, ok)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&count))
	assert.Zero(t, count)
}

func TestPrefsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	loc := LatestLocation{
		Coordinate: geo.Coordinate{Latitude: 40, Longitude: -105},
		Score:      7.5,
		ScoredAt:   time.Now().UTC(),
	}
	require.NoError(t, s.SaveLatestLocation(loc))

	got, ok, err := s.LatestLocation()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, loc.Coordinate, got.Coordinate)
	assert.Equal(t, 7.5, got.Score)

	favs := []Favorite{{Name: "cabin", Coordinate: geo.Coordinate{Latitude: 44.5, Longitude: -110.2}}}
	require.NoError(t, s.SaveFavorites(favs))

	gotFavs, err := s.Favorites()
	require.NoError(t, err)
	assert.Equal(t, favs, gotFavs)
}
