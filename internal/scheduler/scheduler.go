package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/astroplan/siqs-service/internal/geo"
	"github.com/astroplan/siqs-service/internal/siqs"
)

// Scheduler periodically recomputes scores for the configured favorite
// locations so history accrues without traffic.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *siqs.Service
	logger    *slog.Logger
	favorites []geo.Coordinate
	interval  time.Duration
}

// New creates a Scheduler.
func New(favorites []geo.Coordinate, interval time.Duration, service *siqs.Service, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		logger:    logger,
		favorites: favorites,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.favorites) == 0 {
		s.logger.Info("scheduler: no favorite locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		s.logger.Info("scheduler: refreshing favorite locations", "count", len(s.favorites))

		var wg sync.WaitGroup
		for _, coord := range s.favorites {
			coord := coord
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				// The short result window would mask the refresh.
				s.service.InvalidateResult(coord)
				if _, err := s.service.Compute(ctx, coord); err != nil {
					s.logger.Warn("scheduler: refresh failed", "coordinate", coord.Key(), "error", err)
				}
			}()
		}
		wg.Wait()
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
