package siqs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/observability"
)

// Safe defaults substituted when a source fails: an unremarkable suburban
// night rather than an error, so the pipeline never blocks on a provider.
var defaultWeather = WeatherSnapshot{
	CloudCoverPct: 50,
	WindSpeedMS:   3,
	HumidityPct:   60,
	PrecipMM:      0,
	TemperatureC:  10,
	Condition:     ConditionUnknown,
}

const defaultBortle = 4.0

// resultTTL is the short window within which a freshly computed report is
// served again without refetching. Source caches live much longer; this
// only absorbs bursts of identical queries.
const resultTTL = 5 * time.Minute

// WeatherSource provides normalized current conditions.
type WeatherSource interface {
	Current(ctx context.Context, coord geo.Coordinate) (WeatherSnapshot, error)
}

// LightSource provides a light pollution sample, preferring user
// measurements over API data over estimates.
type LightSource interface {
	Sample(ctx context.Context, coord geo.Coordinate) (LightPollutionSample, error)
}

// ForecastSource provides per-night viewing conditions.
type ForecastSource interface {
	Nightly(ctx context.Context, coord geo.Coordinate, days int) ([]NightForecast, error)
}

// MoonFunc returns the moon phase fraction (0-1, 0 = new) at a time.
type MoonFunc func(t time.Time) float64

// Service orchestrates the scoring pipeline: fetch conditions, apply
// overrides, compute the composite score, and persist the report.
type Service struct {
	weather  WeatherSource
	light    LightSource
	forecast ForecastSource
	moon     MoonFunc
	history  *HistoryStore
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	precision float64

	mu          sync.Mutex
	generations map[string]uint64
	results     map[string]cachedReport
}

type cachedReport struct {
	report Report
	expiry time.Time
}

// NewService creates the scoring service.
func NewService(
	weather WeatherSource,
	light LightSource,
	forecast ForecastSource,
	moon MoonFunc,
	history *HistoryStore,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	precision float64,
) *Service {
	if precision <= 0 {
		precision = 0.1
	}
	return &Service{
		weather:     weather,
		light:       light,
		forecast:    forecast,
		moon:        moon,
		history:     history,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		precision:   precision,
		generations: make(map[string]uint64),
		results:     make(map[string]cachedReport),
	}
}

// Compute fetches all factors for coord and returns the scored report.
// Inputs that cannot be fetched degrade to defaults and are listed in the
// report's Degraded field.
func (s *Service) Compute(ctx context.Context, coord geo.Coordinate) (Report, error) {
	if err := coord.Validate(); err != nil {
		return Report{}, err
	}

	cell := coord.CellKey(s.precision)

	s.mu.Lock()
	if cached, ok := s.results[cell]; ok && s.clock.Now().Before(cached.expiry) {
		s.mu.Unlock()
		return cached.report, nil
	}
	s.generations[cell]++
	gen := s.generations[cell]
	s.mu.Unlock()

	now := s.clock.Now().UTC()

	var (
		wg       sync.WaitGroup
		weather  WeatherSnapshot
		light    LightPollutionSample
		degraded []string
		degMu    sync.Mutex
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		snap, err := s.weather.Current(ctx, coord)
		if err != nil {
			s.logger.Warn("weather fetch failed, using defaults", "cell", cell, "error", err)
			s.metrics.DegradedInputs.WithLabelValues("weather").Inc()
			snap = defaultWeather
			snap.Timestamp = now
			degMu.Lock()
			degraded = append(degraded, "weather")
			degMu.Unlock()
		} else if snap.AQI == nil {
			// The snapshot is usable but one factor fell back to neutral.
			s.metrics.DegradedInputs.WithLabelValues("aqi").Inc()
			degMu.Lock()
			degraded = append(degraded, "aqi")
			degMu.Unlock()
		}
		weather = snap
	}()
	go func() {
		defer wg.Done()
		sample, err := s.light.Sample(ctx, coord)
		if err != nil {
			s.logger.Warn("light pollution fetch failed, using default", "cell", cell, "error", err)
			s.metrics.DegradedInputs.WithLabelValues("light_pollution").Inc()
			sample = LightPollutionSample{Bortle: defaultBortle, Source: SourceEstimate}
			degMu.Lock()
			degraded = append(degraded, "light_pollution")
			degMu.Unlock()
		}
		light = sample
	}()
	wg.Wait()

	phase := s.moon(now)

	result := Calculate(Inputs{
		CloudCoverPct: weather.CloudCoverPct,
		Bortle:        light.Bortle,
		Seeing:        EstimateSeeing(weather.WindSpeedMS, weather.HumidityPct),
		WindSpeedMS:   weather.WindSpeedMS,
		HumidityPct:   weather.HumidityPct,
		MoonPhase:     phase,
		AQI:           weather.AQI,
		PrecipMM:      weather.PrecipMM,
	})
	result.Timestamp = now
	s.metrics.ScoresComputed.Inc()

	report := Report{
		Coordinate:     coord,
		Result:         result,
		Weather:        weather,
		LightPollution: light,
		MoonPhase:      phase,
		Degraded:       degraded,
		Timestamp:      now,
	}

	// Publish only if no newer computation for this cell started while we
	// were fetching; a stale result must never overwrite a fresher one.
	s.mu.Lock()
	if s.generations[cell] == gen {
		s.results[cell] = cachedReport{report: report, expiry: s.clock.Now().Add(resultTTL)}
		s.mu.Unlock()
		s.history.Save(cell, report)
	} else {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded computation", "cell", cell, "generation", gen)
	}

	return report, nil
}

// Forecast scores the next `days` nights for coord.
func (s *Service) Forecast(ctx context.Context, coord geo.Coordinate, days int) ([]NightReport, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}

	nights, err := s.forecast.Nightly(ctx, coord, days)
	if err != nil {
		s.metrics.DegradedInputs.WithLabelValues("forecast").Inc()
		return nil, err
	}

	light, err := s.light.Sample(ctx, coord)
	if err != nil {
		s.metrics.DegradedInputs.WithLabelValues("light_pollution").Inc()
		light = LightPollutionSample{Bortle: defaultBortle, Source: SourceEstimate}
	}

	reports := make([]NightReport, 0, len(nights))
	for _, night := range nights {
		phase := s.moon(night.Date)
		result := Calculate(Inputs{
			CloudCoverPct: night.CloudCoverPct,
			Bortle:        light.Bortle,
			Seeing:        night.Seeing,
			WindSpeedMS:   night.WindSpeedMS,
			HumidityPct:   night.HumidityPct,
			MoonPhase:     phase,
			PrecipMM:      night.PrecipMM,
		})
		result.Timestamp = night.Date
		reports = append(reports, NightReport{
			Date:      night.Date,
			Night:     night,
			Result:    result,
			MoonPhase: phase,
		})
	}

	return reports, nil
}

// Latest returns the most recent stored report for coord's grid cell.
func (s *Service) Latest(coord geo.Coordinate) (Report, error) {
	return s.history.Latest(coord.CellKey(s.precision))
}

// History returns stored reports for coord's grid cell between from and to.
func (s *Service) History(coord geo.Coordinate, from, to time.Time) ([]Report, error) {
	return s.history.Range(coord.CellKey(s.precision), from, to)
}

// InvalidateResult drops the short-window cached report for coord's cell and
// supersedes any computation already in flight, so a report built from
// pre-invalidation inputs is never published. Used after a user Bortle
// submission.
func (s *Service) InvalidateResult(coord geo.Coordinate) {
	cell := coord.CellKey(s.precision)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, cell)
	s.generations[cell]++
}

// EstimateSeeing derives a coarse 1-5 steadiness rating from surface
// conditions. High wind shakes the air column; near-saturated humidity
// blurs it.
func EstimateSeeing(windMS, humidityPct float64) float64 {
	seeing := 5.0
	seeing -= windMS / 4
	if humidityPct > 80 {
		seeing -= 1
	}
	if seeing < 1 {
		return 1
	}
	return seeing
}
