package cache

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/observability"
)

// Default cache behaviour. Regional entries live longer because weather
// varies slowly over the ~11 km covered by one 0.1 degree cell.
const (
	DefaultTTL         = 30 * time.Minute
	DefaultRegionalTTL = 60 * time.Minute
	DefaultPrecision   = 0.1
)

// FetchFunc performs the underlying network fetch on a cache miss.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// Persister is an optional durable tier behind the in-memory cache.
type Persister interface {
	StoreEntry(key string, data []byte, expiry time.Time) error
	LoadEntry(key string) (data []byte, expiry time.Time, ok bool)
}

type entry struct {
	data   []byte
	expiry time.Time
}

type pending struct {
	done chan struct{}
	data []byte
	err  error
}

// Cache is the URL and regional response cache. It is an explicit service
// object: all state lives here and callers receive it by injection.
type Cache struct {
	fetch   FetchFunc
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	persist Persister // may be nil

	ttl         time.Duration
	regionalTTL time.Duration

	mu      sync.Mutex
	entries map[string]entry
	waiting map[string]*pending
}

// New creates a Cache around the given fetch function. persist may be nil.
func New(fetch FetchFunc, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, persist Persister) *Cache {
	return &Cache{
		fetch:   fetch,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		persist: persist,
		entries: make(map[string]entry),
		waiting: make(map[string]*pending),
	}
}

// SetTTLs overrides the default entry lifetimes. Zero keeps the package
// default for that tier.
func (c *Cache) SetTTLs(ttl, regionalTTL time.Duration) {
	c.ttl = ttl
	c.regionalTTL = regionalTTL
}

// Get returns the cached body for an exact URL, if present and unexpired.
func (c *Cache) Get(url string) ([]byte, bool) {
	return c.lookup("url", url)
}

func (c *Cache) lookup(layer, key string) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok || !c.clock.Now().Before(e.expiry) {
		c.metrics.CacheLookups.WithLabelValues(layer, "miss").Inc()
		return nil, false
	}
	c.metrics.CacheLookups.WithLabelValues(layer, "hit").Inc()
	return e.data, true
}

// FetchWithCache returns the cached body for url or fetches and caches it.
// A ttl of zero uses DefaultTTL.
func (c *Cache) FetchWithCache(ctx context.Context, url string, ttl time.Duration) ([]byte, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return c.fetchThrough(ctx, "url", url, url, ttl)
}

// FetchWithRegionalCache caches by grid cell instead of exact coordinates:
// the coordinate is snapped to a precision-degree cell and urlFor is called
// with the snapped point, so nearby queries reuse one result. A precision
// of zero uses DefaultPrecision; a ttl of zero uses DefaultRegionalTTL.
func (c *Cache) FetchWithRegionalCache(ctx context.Context, urlFor func(geo.Coordinate) string, coord geo.Coordinate, precision float64, ttl time.Duration) ([]byte, error) {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	if ttl <= 0 {
		ttl = c.regionalTTL
	}
	if ttl <= 0 {
		ttl = DefaultRegionalTTL
	}

	snapped := coord.SnapToGrid(precision)
	url := urlFor(snapped)
	// The key carries both the cell and the snapped URL, so different
	// endpoints for one cell stay distinct while nearby queries collapse.
	key := "region:" + coord.CellKey(precision) + "|" + url
	return c.fetchThrough(ctx, "regional", key, url, ttl)
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// ClearURL drops the entry for one exact URL.
func (c *Cache) ClearURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}

// ClearRegion drops every regional entry whose cell contains the coordinate,
// at any precision.
func (c *Cache) ClearRegion(coord geo.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if !strings.HasPrefix(key, "region:") {
			continue
		}
		if precision, cell, ok := parseCellKey(key); ok && coord.CellKey(precision) == "cell:"+cell {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) fetchThrough(ctx context.Context, layer, key, url string, ttl time.Duration) ([]byte, error) {
	for {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && c.clock.Now().Before(e.expiry) {
			c.mu.Unlock()
			c.metrics.CacheLookups.WithLabelValues(layer, "hit").Inc()
			return e.data, nil
		}

		if p, ok := c.waiting[key]; ok {
			// Another caller is already fetching this key; share its result.
			c.mu.Unlock()
			select {
			case <-p.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if p.err == nil {
				c.metrics.CacheLookups.WithLabelValues(layer, "hit").Inc()
				return p.data, nil
			}
			// The shared fetch failed; loop and try again ourselves.
			continue
		}

		p := &pending{done: make(chan struct{})}
		c.waiting[key] = p
		c.mu.Unlock()

		c.metrics.CacheLookups.WithLabelValues(layer, "miss").Inc()

		data, err := c.load(ctx, key, url, ttl)
		p.data, p.err = data, err

		c.mu.Lock()
		delete(c.waiting, key)
		c.mu.Unlock()
		close(p.done)

		return data, err
	}
}

// load consults the persisted tier, then the network, and stores the result.
func (c *Cache) load(ctx context.Context, key, url string, ttl time.Duration) ([]byte, error) {
	if c.persist != nil {
		if data, expiry, ok := c.persist.LoadEntry(key); ok && c.clock.Now().Before(expiry) {
			c.metrics.CacheLookups.WithLabelValues("persisted", "hit").Inc()
			c.store(key, data, expiry)
			return data, nil
		}
		c.metrics.CacheLookups.WithLabelValues("persisted", "miss").Inc()
	}

	data, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	expiry := c.clock.Now().Add(ttl)
	c.store(key, data, expiry)
	if c.persist != nil {
		if err := c.persist.StoreEntry(key, data, expiry); err != nil {
			c.logger.Warn("persisting cache entry failed", "key", key, "error", err)
		}
	}
	return data, nil
}

func (c *Cache) store(key string, data []byte, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{data: data, expiry: expiry}
}

// parseCellKey splits "region:cell:<precision>:<lat>:<lng>|<url>" back into
// its precision and cell identity.
func parseCellKey(key string) (precision float64, cell string, ok bool) {
	rest, found := strings.CutPrefix(key, "region:cell:")
	if !found {
		return 0, "", false
	}
	cell, _, _ = strings.Cut(rest, "|")
	parts := strings.SplitN(cell, ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	p, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, "", false
	}
	return p, cell, true
}
