package spots

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroplan/siqs-service/internal/geo"
)

func darkEverywhere(geo.Coordinate) float64 { return 2 }

func TestFindReturnsCandidatesWithinRadius(t *testing.T) {
	f := NewFinder(darkEverywhere)
	defer f.Close()

	center := geo.Coordinate{Latitude: 40, Longitude: -105}
	candidates, err := f.Find(context.Background(), Request{Center: center, RadiusKm: 100, Count: 10})
	require.NoError(t, err)
	require.Len(t, candidates, 10)

	for _, c := range candidates {
		assert.LessOrEqual(t, c.DistanceKm, 100.5)
		assert.LessOrEqual(t, c.EstimatedBortle, maxUsableBortle)
	}

	// Sorted best first.
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
	}
}

func TestFindIsDeterministicPerRequest(t *testing.T) {
	f := NewFinder(darkEverywhere)
	defer f.Close()

	req := Request{Center: geo.Coordinate{Latitude: 40, Longitude: -105}, RadiusKm: 50, Count: 5}
	first, err := f.Find(context.Background(), req)
	require.NoError(t, err)
	second, err := f.Find(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindFiltersBrightCells(t *testing.T) {
	f := NewFinder(func(geo.Coordinate) float64 { return 8 })
	defer f.Close()

	candidates, err := f.Find(context.Background(), Request{
		Center: geo.Coordinate{Latitude: 40, Longitude: -105}, RadiusKm: 50, Count: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindValidatesRequest(t *testing.T) {
	f := NewFinder(darkEverywhere)
	defer f.Close()

	_, err := f.Find(context.Background(), Request{Center: geo.Coordinate{Latitude: 95}, RadiusKm: 10})
	assert.Error(t, err)

	_, err = f.Find(context.Background(), Request{Center: geo.Coordinate{Latitude: 40}, RadiusKm: 0})
	assert.Error(t, err)
}

func TestFindAfterCloseReturnsErrStopped(t *testing.T) {
	f := NewFinder(darkEverywhere)
	f.Close()

	_, err := f.Find(context.Background(), Request{
		Center: geo.Coordinate{Latitude: 40, Longitude: -105}, RadiusKm: 10, Count: 1,
	})
	assert.ErrorIs(t, err, ErrStopped)
}
