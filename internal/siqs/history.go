package siqs

import (
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no report exists for a location.
var ErrNotFound = errors.New("no score data for location")

type reportHistory struct {
	reports []Report
}

// HistoryStore is a concurrency-safe in-memory store of score reports,
// keyed by grid cell.
type HistoryStore struct {
	mu sync.RWMutex

	data map[string]*reportHistory

	maxHistory int           // max number of reports per cell (0 = unlimited)
	maxAge     time.Duration // max age of reports (0 = unlimited)
}

// NewHistoryStore creates a HistoryStore with optional retention limits.
func NewHistoryStore(maxHistory int, maxAge time.Duration) *HistoryStore {
	return &HistoryStore{
		data:       make(map[string]*reportHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// Save appends a report for a cell and enforces retention.
func (s *HistoryStore) Save(cellKey string, rep Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[cellKey]
	if !ok {
		history = &reportHistory{}
		s.data[cellKey] = history
	}

	history.reports = append(history.reports, rep)

	if s.maxHistory > 0 && len(history.reports) > s.maxHistory {
		over := len(history.reports) - s.maxHistory
		history.reports = history.reports[over:]
	}

	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.reports); i++ {
			if !history.reports[i].Timestamp.Before(cutoff) {
				break
			}
		}
		if i > 0 && i < len(history.reports) {
			history.reports = history.reports[i:]
		}
	}
}

// Latest returns the most recent report for a cell.
func (s *HistoryStore) Latest(cellKey string) (Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[cellKey]
	if !ok || len(history.reports) == 0 {
		return Report{}, ErrNotFound
	}
	return history.reports[len(history.reports)-1], nil
}

// Range returns all reports for a cell between from and to (inclusive).
func (s *HistoryStore) Range(cellKey string, from, to time.Time) ([]Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[cellKey]
	if !ok || len(history.reports) == 0 {
		return nil, ErrNotFound
	}

	var result []Report
	for _, rep := range history.reports {
		if !rep.Timestamp.Before(from) && !rep.Timestamp.After(to) {
			result = append(result, rep)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
