package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/i474232898/air-quality-etl/internal/common"
	"github.com/i474232898/air-quality-etl/internal/weather"
)

var (
	// ErrNotFound is returned when no rows match a range query.
	ErrNotFound = errors.New("no daily rows in range")
)

// IsTableMissing reports whether err looks like the destination table does
// not exist yet, for BigQuery and the SQL dialects alike.
func IsTableMissing(err error) bool {
	if err == nil {
		return false
	}
	return common.HasAnyFold(err.Error(),
		"notFound", "Not found: Table", "no such table", "does not exist", "doesn't exist")
}

// MemoryStore is a concurrency-safe in-memory warehouse. It backs dry runs
// and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []weather.DailyRecord
}

// NewMemoryStore creates an empty MemoryStore, optionally pre-filled.
func NewMemoryStore(seed ...weather.DailyRecord) *MemoryStore {
	s := &MemoryStore{}
	s.rows = append(s.rows, seed...)
	return s
}

func (s *MemoryStore) Name() string { return "memory" }

// LastStoredDate returns the latest stored date.
func (s *MemoryStore) LastStoredDate(_ context.Context) (civil.Date, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return civil.Date{}, false, nil
	}
	last := s.rows[0].Date
	for _, r := range s.rows[1:] {
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return last, true, nil
}

// Append adds rows without touching existing ones.
func (s *MemoryStore) Append(_ context.Context, rows []weather.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, rows...)
	return nil
}

// GetRange returns stored rows between from and to (inclusive), sorted by date.
func (s *MemoryStore) GetRange(_ context.Context, from, to civil.Date) ([]weather.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.DailyRecord
	for _, r := range s.rows {
		if !r.Date.Before(from) && !r.Date.After(to) {
			result = append(result, r)
		}
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}
