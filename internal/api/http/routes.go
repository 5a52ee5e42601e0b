package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/astroplan/siqs-service/internal/bortle"
	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/kvstore"
	"github.com/astroplan/siqs-service/internal/siqs"
	"github.com/astroplan/siqs-service/internal/sources"
	"github.com/astroplan/siqs-service/internal/spots"
)

var validate = validator.New()

// Deps are the collaborators the HTTP handlers need.
type Deps struct {
	Service  *siqs.Service
	Geocoder *sources.Geocoder
	Bortle   *bortle.Store
	Prefs    *kvstore.Store
	Spots    *spots.Finder
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1")

	v1.Get("/siqs/current", func(c *fiber.Ctx) error {
		coord, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := deps.Service.Compute(c.Context(), coord)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to compute score")
		}

		if deps.Prefs != nil {
			_ = deps.Prefs.SaveLatestLocation(kvstore.LatestLocation{
				Coordinate: coord,
				Score:      report.Result.Score,
				ScoredAt:   report.Timestamp,
			})
		}

		return c.JSON(report)
	})

	v1.Get("/siqs/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reports, err := deps.Service.History(req.Coordinate, req.From, req.To)
		if err != nil {
			if errors.Is(err, siqs.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no score history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch score history")
		}

		return c.JSON(fiber.Map{
			"coordinate": req.Coordinate,
			"from":       req.From,
			"to":         req.To,
			"reports":    reports,
		})
	})

	v1.Get("/siqs/latest", func(c *fiber.Ctx) error {
		loc, ok, err := deps.Prefs.LatestLocation()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read latest location")
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no location scored yet")
		}
		return c.JSON(loc)
	})

	v1.Get("/siqs/forecast", func(c *fiber.Ctx) error {
		coord, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		// Without an explicit days parameter the saved preference applies.
		var q forecastQuery
		if daysStr := c.Query("days"); daysStr != "" {
			q.Days, _ = strconv.Atoi(daysStr)
		} else {
			q.Days = loadSettings(deps.Prefs).ForecastDays
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		nights, err := deps.Service.Forecast(c.Context(), coord, q.Days)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to fetch forecast")
		}

		return c.JSON(fiber.Map{
			"coordinate": coord,
			"nights":     nights,
		})
	})

	v1.Post("/bortle", func(c *fiber.Ctx) error {
		var req bortleSubmission
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		coord := geo.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude}
		if err := deps.Bortle.Update(coord, req.Bortle, req.Method); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to store measurement")
		}

		// The next score for this area must see the new measurement.
		deps.Service.InvalidateResult(coord)

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "stored"})
	})

	v1.Get("/bortle/nearby", func(c *fiber.Ctx) error {
		coord, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		m, err := deps.Bortle.FindNearby(coord)
		if err != nil {
			if errors.Is(err, bortle.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no user measurement nearby")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to query measurements")
		}

		return c.JSON(m)
	})

	v1.Get("/locations/search", func(c *fiber.Ctx) error {
		query := c.Query("q")
		if query == "" {
			return fiber.NewError(fiber.StatusBadRequest, "q query parameter is required")
		}
		limit, _ := strconv.Atoi(c.Query("limit", "5"))

		places, err := deps.Geocoder.Search(c.Context(), query, limit)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "geocoding search failed")
		}

		return c.JSON(fiber.Map{"results": places})
	})

	v1.Get("/locations/reverse", func(c *fiber.Ctx) error {
		coord, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		place, err := deps.Geocoder.Reverse(c.Context(), coord)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "reverse geocoding failed")
		}

		return c.JSON(place)
	})

	v1.Get("/spots", func(c *fiber.Ctx) error {
		coord, err := parseCoordinateQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		radius, _ := strconv.ParseFloat(c.Query("radius_km", "50"), 64)
		count, _ := strconv.Atoi(c.Query("count", "10"))

		candidates, err := deps.Spots.Find(c.Context(), spots.Request{
			Center:   coord,
			RadiusKm: radius,
			Count:    count,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(fiber.Map{"candidates": candidates})
	})

	v1.Get("/settings", func(c *fiber.Ctx) error {
		return c.JSON(loadSettings(deps.Prefs))
	})

	v1.Put("/settings", func(c *fiber.Ctx) error {
		var req settingsUpdate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		set := kvstore.Settings{
			GridPrecision: req.GridPrecision,
			ForecastDays:  req.ForecastDays,
		}
		if err := deps.Prefs.SaveSettings(set); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to store settings")
		}
		return c.JSON(set)
	})

	v1.Get("/favorites", func(c *fiber.Ctx) error {
		favs, err := deps.Prefs.Favorites()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read favorites")
		}
		if favs == nil {
			favs = []kvstore.Favorite{}
		}
		return c.JSON(fiber.Map{"favorites": favs})
	})

	v1.Put("/favorites", func(c *fiber.Ctx) error {
		var req favoritesUpdate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		favs := make([]kvstore.Favorite, 0, len(req.Favorites))
		for _, f := range req.Favorites {
			favs = append(favs, kvstore.Favorite{
				Name:       f.Name,
				Coordinate: geo.Coordinate{Latitude: f.Latitude, Longitude: f.Longitude},
			})
		}
		if err := deps.Prefs.SaveFavorites(favs); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to store favorites")
		}
		return c.JSON(fiber.Map{"status": "stored", "count": len(favs)})
	})
}

// coordinateQuery holds the lat/lng query parameters.
type coordinateQuery struct {
	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`
}

func parseCoordinateQuery(c *fiber.Ctx) (geo.Coordinate, error) {
	latStr := c.Query("lat")
	lngStr := c.Query("lng")
	if latStr == "" || lngStr == "" {
		return geo.Coordinate{}, errors.New("lat and lng query parameters are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Coordinate{}, errors.New("invalid lat")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return geo.Coordinate{}, errors.New("invalid lng")
	}

	if err := validate.Struct(coordinateQuery{Latitude: lat, Longitude: lng}); err != nil {
		return geo.Coordinate{}, err
	}

	return geo.Coordinate{Latitude: lat, Longitude: lng}, nil
}

type forecastQuery struct {
	Days int `validate:"required,min=1,max=7"`
}

type settingsUpdate struct {
	GridPrecision float64 `json:"gridPrecision" validate:"gt=0,lte=1"`
	ForecastDays  int     `json:"forecastDays" validate:"required,min=1,max=7"`
}

// loadSettings returns the stored preferences, or the defaults when none
// were saved yet.
func loadSettings(prefs *kvstore.Store) kvstore.Settings {
	set, ok, err := prefs.GetSettings()
	if err != nil || !ok {
		return kvstore.DefaultSettings()
	}
	return set
}

// bortleSubmission is the body of POST /bortle.
type bortleSubmission struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Bortle    float64 `json:"bortle" validate:"required,min=1,max=9"`
	Method    string  `json:"method" validate:"required,oneof=sqm visual_limiting_magnitude photo_estimate"`
}

type favoriteEntry struct {
	Name      string  `json:"name" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

type favoritesUpdate struct {
	Favorites []favoriteEntry `json:"favorites" validate:"dive"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Coordinate geo.Coordinate
	From       time.Time
	To         time.Time
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	coord, err := parseCoordinateQuery(c)
	if err != nil {
		return err
	}
	h.Coordinate = coord

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return errors.New("to must not be before from")
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
