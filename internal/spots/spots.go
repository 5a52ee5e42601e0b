// Package spots finds candidate dark-site coordinates near a starting
// point. The search is a pure CPU loop and runs on a single background
// worker goroutine: callers exchange one-shot request/response messages
// with it and share no mutable state.
package spots

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/astroplan/siqs-service/internal/geo"
)

const (
	defaultCount    = 10
	maxCount        = 50
	oversampling    = 8   // candidates generated per requested result
	maxUsableBortle = 5.0 // brighter cells are not worth suggesting
	// Latitudes beyond this are glacier/ocean-dominated and inaccessible
	// for a night drive; reject them as implausible suggestions.
	maxPlausibleLat = 78.0
)

// ErrStopped is returned when the finder has shut down.
var ErrStopped = errors.New("spot finder stopped")

// Request describes one candidate search.
type Request struct {
	Center   geo.Coordinate
	RadiusKm float64
	Count    int
}

// Candidate is a suggested observing spot.
type Candidate struct {
	Coordinate      geo.Coordinate `json:"coordinate"`
	EstimatedBortle float64        `json:"estimatedBortle"`
	DistanceKm      float64        `json:"distanceKm"`
	Score           float64        `json:"score"`
}

type job struct {
	req   Request
	reply chan []Candidate
}

// Finder owns the worker goroutine.
type Finder struct {
	estimate func(geo.Coordinate) float64
	jobs     chan job
	done     chan struct{}
}

// NewFinder creates a Finder that rates candidates with the given Bortle
// estimator and starts its worker.
func NewFinder(estimate func(geo.Coordinate) float64) *Finder {
	f := &Finder{
		estimate: estimate,
		jobs:     make(chan job),
		done:     make(chan struct{}),
	}
	go f.run()
	return f
}

// Close stops the worker. Pending Find calls return ErrStopped.
func (f *Finder) Close() {
	close(f.done)
}

// Find generates and filters candidate points around req.Center and returns
// the best req.Count of them, darkest and nearest first.
func (f *Finder) Find(ctx context.Context, req Request) ([]Candidate, error) {
	if err := req.Center.Validate(); err != nil {
		return nil, err
	}
	if req.RadiusKm <= 0 {
		return nil, errors.New("radius must be positive")
	}
	if req.Count <= 0 {
		req.Count = defaultCount
	}
	if req.Count > maxCount {
		req.Count = maxCount
	}

	j := job{req: req, reply: make(chan []Candidate, 1)}

	select {
	case f.jobs <- j:
	case <-f.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case candidates := <-j.reply:
		return candidates, nil
	case <-f.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Finder) run() {
	for {
		select {
		case j := <-f.jobs:
			j.reply <- f.search(j.req)
		case <-f.done:
			return
		}
	}
}

func (f *Finder) search(req Request) []Candidate {
	rng := rand.New(rand.NewSource(seedFor(req)))

	candidates := make([]Candidate, 0, req.Count*oversampling)
	for i := 0; i < req.Count*oversampling; i++ {
		// sqrt keeps the points uniform over the disk rather than
		// clustered at the center.
		distance := req.RadiusKm * math.Sqrt(rng.Float64())
		bearing := 2 * math.Pi * rng.Float64()
		point := req.Center.Destination(distance, bearing)

		if math.Abs(point.Latitude) > maxPlausibleLat {
			continue
		}

		estimated := f.estimate(point)
		if estimated > maxUsableBortle {
			continue
		}

		candidates = append(candidates, Candidate{
			Coordinate:      point,
			EstimatedBortle: estimated,
			DistanceKm:      req.Center.DistanceKm(point),
			Score:           candidateScore(estimated, distance, req.RadiusKm),
		})
	}

	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].Score > candidates[k].Score
	})
	if len(candidates) > req.Count {
		candidates = candidates[:req.Count]
	}
	return candidates
}

// candidateScore trades darkness against travel distance: darkness counts
// roughly twice as much as staying close.
func candidateScore(estimatedBortle, distanceKm, radiusKm float64) float64 {
	darkness := (maxUsableBortle - estimatedBortle) / (maxUsableBortle - 1)
	proximity := 1 - distanceKm/radiusKm
	return 2*darkness + proximity
}

// seedFor derives a stable seed from the request, so identical searches
// return identical suggestions.
func seedFor(req Request) int64 {
	h := int64(1)
	for _, v := range []float64{req.Center.Latitude, req.Center.Longitude, req.RadiusKm, float64(req.Count)} {
		h = h*31 + int64(math.Float64bits(v)&0x7fffffff)
	}
	return h
}
