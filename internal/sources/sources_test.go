package sources

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroplan/siqs-service/internal/bortle"
	"github.com/astroplan/siqs-service/internal/cache"
	"github.com/astroplan/siqs-service/internal/fetch"
	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/kvstore"
	"github.com/astroplan/siqs-service/internal/observability"
	"github.com/astroplan/siqs-service/internal/siqs"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	client := fetch.NewClient(&http.Client{}, logger, metrics)
	opts := fetch.DefaultOptions()
	opts.RetryDelay = 0
	opts.MaxRetries = 0
	return cache.New(func(ctx context.Context, url string) ([]byte, error) {
		return client.Get(ctx, url, opts)
	}, clockwork.NewRealClock(), logger, metrics, nil)
}

func TestWeatherSourceNormalizesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current") == "us_aqi" {
			w.Write([]byte(`{"current":{"us_aqi":32}}`))
			return
		}
		w.Write([]byte(`{"current":{
			"time":"2026-03-01T22:00",
			"temperature_2m":4.5,
			"relative_humidity_2m":35,
			"precipitation":0,
			"cloud_cover":10,
			"wind_speed_10m":2.2,
			"weather_code":0
		}}`))
	}))
	defer srv.Close()

	s := NewWeatherSource(newTestCache(t), slog.New(slog.NewTextHandler(io.Discard, nil)), 0.1)
	s.baseURL = srv.URL
	s.aqiURL = srv.URL

	snap, err := s.Current(context.Background(), geo.Coordinate{Latitude: 40, Longitude: -105})
	require.NoError(t, err)

	assert.Equal(t, 10.0, snap.CloudCoverPct)
	assert.Equal(t, 2.2, snap.WindSpeedMS)
	assert.Equal(t, siqs.ConditionClear, snap.Condition)
	require.NotNil(t, snap.AQI)
	assert.Equal(t, 32.0, *snap.AQI)
	assert.Equal(t, 2026, snap.Timestamp.Year())
}

func TestWeatherSourceToleratesAQIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current") == "us_aqi" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"current":{"time":"2026-03-01T22:00","cloud_cover":20,"weather_code":2}}`))
	}))
	defer srv.Close()

	s := NewWeatherSource(newTestCache(t), slog.New(slog.NewTextHandler(io.Discard, nil)), 0.1)
	s.baseURL = srv.URL
	s.aqiURL = srv.URL

	snap, err := s.Current(context.Background(), geo.Coordinate{Latitude: 40, Longitude: -105})
	require.NoError(t, err)
	assert.Nil(t, snap.AQI)
	assert.Equal(t, siqs.ConditionCloudy, snap.Condition)
}

func TestForecastSourceNormalizesNights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"daily":{
			"time":["2026-03-01","2026-03-02"],
			"cloud_cover_mean":[15,90],
			"precipitation_sum":[0,8],
			"wind_speed_10m_max":[3,12],
			"relative_humidity_2m_mean":[40,85]
		}}`))
	}))
	defer srv.Close()

	s := NewForecastSource(newTestCache(t), 0.1)
	s.baseURL = srv.URL

	nights, err := s.Nightly(context.Background(), geo.Coordinate{Latitude: 40, Longitude: -105}, 2)
	require.NoError(t, err)
	require.Len(t, nights, 2)

	assert.Equal(t, 15.0, nights[0].CloudCoverPct)
	assert.Equal(t, 8.0, nights[1].PrecipMM)
	assert.GreaterOrEqual(t, nights[0].Seeing, nights[1].Seeing)

	_, err = s.Nightly(context.Background(), geo.Coordinate{Latitude: 40, Longitude: -105}, 0)
	assert.Error(t, err)
}

func TestLightPollutionPrefersUserMeasurement(t *testing.T) {
	db, err := kvstore.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	overrides, err := bortle.New(db)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bortle":6}`))
	}))
	defer srv.Close()

	s := NewLightPollutionSource(newTestCache(t), overrides, slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL)

	coord := geo.Coordinate{Latitude: 40, Longitude: -105}

	// Without a user measurement the API value wins.
	sample, err := s.Sample(context.Background(), coord)
	require.NoError(t, err)
	assert.Equal(t, siqs.SourceAPI, sample.Source)
	assert.Equal(t, 6.0, sample.Bortle)

	// A nearby user measurement takes precedence from then on.
	require.NoError(t, overrides.Update(coord, 2, "sqm"))
	sample, err = s.Sample(context.Background(), coord)
	require.NoError(t, err)
	assert.Equal(t, siqs.SourceUser, sample.Source)
	assert.Equal(t, 2.0, sample.Bortle)
}

func TestLightPollutionFallsBackToEstimate(t *testing.T) {
	s := NewLightPollutionSource(newTestCache(t), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), "")

	sample, err := s.Sample(context.Background(), geo.Coordinate{Latitude: 65, Longitude: 20})
	require.NoError(t, err)
	assert.Equal(t, siqs.SourceEstimate, sample.Source)
	assert.Equal(t, 2.0, sample.Bortle)
}

func TestGeocoderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "flagstaff", r.URL.Query().Get("name"))
		w.Write([]byte(`{"results":[{"name":"Flagstaff","country":"United States","latitude":35.19,"longitude":-111.65}]}`))
	}))
	defer srv.Close()

	g := NewGeocoder(newTestCache(t), slog.New(slog.NewTextHandler(io.Discard, nil)), "")
	g.baseURL = srv.URL

	places, err := g.Search(context.Background(), "flagstaff", 3)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Flagstaff", places[0].Name)
	assert.InDelta(t, 35.19, places[0].Latitude, 1e-9)
}

func TestGeocoderReverseDegradesWithoutKey(t *testing.T) {
	g := NewGeocoder(newTestCache(t), slog.New(slog.NewTextHandler(io.Discard, nil)), "")

	place, err := g.Reverse(context.Background(), geo.Coordinate{Latitude: 40, Longitude: -105})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", place.Name)
	assert.Equal(t, 40.0, place.Latitude)
}
