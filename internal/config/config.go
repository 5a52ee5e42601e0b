package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/astroplan/siqs-service/internal/geo"
)

// AppConfig holds all service settings, populated from environment variables.
type AppConfig struct {
	Port        string
	MetricsAddr string

	LogLevel  string
	LogFormat string

	// Outbound fetch behaviour.
	HTTPTimeout   time.Duration
	FetchRetries  int
	FetchDelay    time.Duration
	BackoffFactor float64

	// Cache behaviour.
	CacheTTL         time.Duration
	RegionalCacheTTL time.Duration
	GridPrecision    float64

	// Score history retention.
	StoreMaxHistory int
	StoreMaxAge     time.Duration

	// Favorite locations refreshed by the scheduler.
	Favorites       []geo.Coordinate
	RefreshInterval time.Duration

	// Durable state.
	DBPath string

	// External services.
	LightPollutionURL string // optional Bortle API; empty uses the estimate
	GoogleAPIKey      string // optional, enables reverse geocoding

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{
		Port:        getenvDefault("PORT", "8080"),
		MetricsAddr: getenvDefault("METRICS_ADDR", ":9090"),
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
		LogFormat:   getenvDefault("LOG_FORMAT", "json"),

		FetchRetries:  getenvInt("FETCH_MAX_RETRIES", 2),
		BackoffFactor: getenvFloat("FETCH_BACKOFF_FACTOR", 1.5),

		GridPrecision:   getenvFloat("GRID_PRECISION", 0.1),
		StoreMaxHistory: getenvInt("STORE_MAX_HISTORY", 96),

		DBPath:            getenvDefault("DB_PATH", "data/siqs.db"),
		LightPollutionURL: os.Getenv("LIGHT_POLLUTION_URL"),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FetchDelay, err = getenvDuration("FETCH_RETRY_DELAY", "1s"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "30m"); err != nil {
		return nil, err
	}
	if cfg.RegionalCacheTTL, err = getenvDuration("REGIONAL_CACHE_TTL", "60m"); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "30m"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getenvDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	if cfg.GridPrecision <= 0 || cfg.GridPrecision > 1 {
		return nil, fmt.Errorf("GRID_PRECISION %g out of range (0,1]", cfg.GridPrecision)
	}

	favorites, err := parseFavorites(os.Getenv("FAVORITE_LOCATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Favorites = favorites

	return cfg, nil
}

// parseFavorites parses "lat:lng,lat:lng" into coordinates.
func parseFavorites(raw string) ([]geo.Coordinate, error) {
	if raw == "" {
		return nil, nil
	}

	var coords []geo.Coordinate
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid FAVORITE_LOCATIONS entry %q; want lat:lng", pair)
		}
		lat, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", pair, err)
		}
		lng, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", pair, err)
		}
		coord, err := geo.New(lat, lng)
		if err != nil {
			return nil, fmt.Errorf("invalid FAVORITE_LOCATIONS entry %q: %w", pair, err)
		}
		coords = append(coords, coord)
	}
	return coords, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
