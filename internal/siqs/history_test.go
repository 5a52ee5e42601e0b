package siqs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportAt(ts time.Time, score float64) Report {
	return Report{
		Result:    Result{Score: score, IsViable: score >= ViableThreshold},
		Timestamp: ts,
	}
}

func TestHistoryRetentionByCount(t *testing.T) {
	s := NewHistoryStore(2, 0)
	now := time.Now().UTC()

	s.Save("cell", reportAt(now.Add(-2*time.Hour), 1))
	s.Save("cell", reportAt(now.Add(-1*time.Hour), 2))
	s.Save("cell", reportAt(now, 3))

	all, err := s.Range("cell", now.Add(-3*time.Hour), now)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2.0, all[0].Result.Score)
}

func TestHistoryLatestAndRange(t *testing.T) {
	s := NewHistoryStore(0, 0)
	now := time.Now().UTC()

	_, err := s.Latest("cell")
	assert.ErrorIs(t, err, ErrNotFound)

	s.Save("cell", reportAt(now.Add(-time.Hour), 4))
	s.Save("cell", reportAt(now, 6))

	latest, err := s.Latest("cell")
	require.NoError(t, err)
	assert.Equal(t, 6.0, latest.Result.Score)

	inRange, err := s.Range("cell", now.Add(-90*time.Minute), now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, 4.0, inRange[0].Result.Score)

	_, err = s.Range("cell", now.Add(time.Minute), now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}
