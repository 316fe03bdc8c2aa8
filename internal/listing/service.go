// Package listing answers ride searches and accepts ride offers.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ride-search/internal/cache"
	"github.com/example/ride-search/internal/models"
	"github.com/example/ride-search/internal/observability"
	"github.com/example/ride-search/internal/storage"
)

// DefaultPageSize is used when Service.PageSize is unset.
const DefaultPageSize = 10

// ErrInvalidListing wraps validation failures of posted offers.
var ErrInvalidListing = errors.New("invalid listing")

// Publisher receives an event for every answered search.
type Publisher interface {
	PublishSearch(ctx context.Context, e models.SearchEvent) error
}

type Service struct {
	Store    storage.ListingStore
	Cache    cache.PageCache // optional
	Events   Publisher       // optional
	PageSize int
	Logger   *zap.Logger
	Now      func() time.Time
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) pageSize() int {
	if s.PageSize <= 0 {
		return DefaultPageSize
	}
	return s.PageSize
}

// Search returns page f.Page of the listings matching f. Pages past the end
// come back empty with the real page count.
func (s *Service) Search(ctx context.Context, f models.SearchFilters) (models.SearchResultPage, error) {
	f = f.Normalize()
	key := cache.Key(f)
	if s.Cache != nil {
		page, ok, err := s.Cache.Get(ctx, key)
		if err != nil {
			s.logger().Warn("page cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			observability.ListingCacheHits.Inc()
			s.publish(ctx, f, len(page.Listings))
			return page, nil
		}
	}

	size := s.pageSize()
	listings, total, err := s.Store.Search(ctx, models.NewListingQuery(f, size))
	if err != nil {
		return models.SearchResultPage{}, fmt.Errorf("search listings: %w", err)
	}
	observability.ListingQueries.Inc()

	page := models.SearchResultPage{
		Listings:    listings,
		CurrentPage: f.Page,
		TotalPages:  totalPages(total, size),
	}
	if page.Listings == nil {
		page.Listings = []models.RideListing{}
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, page); err != nil {
			s.logger().Warn("page cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.publish(ctx, f, len(page.Listings))
	return page, nil
}

func totalPages(total, size int) int {
	pages := (total + size - 1) / size
	if pages < 1 {
		return 1
	}
	return pages
}

// publish is best-effort: analytics must not fail a search.
func (s *Service) publish(ctx context.Context, f models.SearchFilters, results int) {
	if s.Events == nil {
		return
	}
	ev := models.SearchEvent{
		Origin:      f.Origin,
		Destination: f.Destination,
		Date:        f.Date,
		Seats:       f.Seats,
		Page:        f.Page,
		Results:     results,
		At:          s.now().UTC(),
	}
	if err := s.Events.PublishSearch(ctx, ev); err != nil {
		observability.EventsPublished.WithLabelValues("error").Inc()
		s.logger().Warn("search event publish failed", zap.Error(err))
		return
	}
	observability.EventsPublished.WithLabelValues("ok").Inc()
}

// Post validates and stores a ride offer, assigning an id when absent.
func (s *Service) Post(ctx context.Context, l models.RideListing) (models.RideListing, error) {
	l.Origin = strings.TrimSpace(l.Origin)
	l.Destination = strings.TrimSpace(l.Destination)
	if err := l.Validate(); err != nil {
		return models.RideListing{}, fmt.Errorf("%w: %v", ErrInvalidListing, err)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.DepartureTime = l.DepartureTime.UTC()
	if err := s.Store.Save(ctx, &l); err != nil {
		return models.RideListing{}, fmt.Errorf("save listing: %w", err)
	}
	observability.ListingsPosted.Inc()
	s.logger().Info("listing posted", zap.String("id", l.ID), zap.String("origin", l.Origin), zap.String("destination", l.Destination))
	return l, nil
}
