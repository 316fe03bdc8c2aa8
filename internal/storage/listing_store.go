package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/ride-search/internal/models"
)

// ErrNotFound is returned when a listing id is unknown.
var ErrNotFound = errors.New("listing not found")

// ListingStore defines persistence operations for ride listings.
type ListingStore interface {
	// Search returns one page of open listings matching q, ordered by
	// departure time then id, together with the total number of matches.
	Search(ctx context.Context, q models.ListingQuery) ([]models.RideListing, int, error)
	Save(ctx context.Context, l *models.RideListing) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]models.RideListing
}

func NewMemoryStore(seed ...models.RideListing) *MemoryStore {
	m := &MemoryStore{listings: make(map[string]models.RideListing, len(seed))}
	for _, l := range seed {
		m.listings[l.ID] = l
	}
	return m
}

func (m *MemoryStore) Save(_ context.Context, l *models.RideListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = *l
	return nil
}

func (m *MemoryStore) Get(id string) (models.RideListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return models.RideListing{}, ErrNotFound
	}
	return l, nil
}

func (m *MemoryStore) Search(ctx context.Context, q models.ListingQuery) ([]models.RideListing, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	matches := make([]models.RideListing, 0, len(m.listings))
	for _, l := range m.listings {
		if q.Matches(l) {
			matches = append(matches, l)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.DepartureTime.Equal(b.DepartureTime) {
			return a.DepartureTime.Before(b.DepartureTime)
		}
		return a.ID < b.ID
	})

	total := len(matches)
	if q.Offset >= total {
		return []models.RideListing{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matches[q.Offset:end], total, nil
}
