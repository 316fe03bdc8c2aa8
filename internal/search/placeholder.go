package search

import (
	"fmt"
	"time"

	"github.com/example/ride-search/internal/models"
)

const (
	placeholderCount      = 3
	placeholderTotalPages = 3

	defaultPlaceholderOrigin      = "75 University Ave. W, Waterloo"
	defaultPlaceholderDestination = "200 King St. W, Kitchener"
)

// Placeholder synthesizes the page shown while the rides backend is missing.
// The result depends only on f and now: departures start one hour after the
// chosen date at 08:00 UTC, or after now truncated to the hour.
func Placeholder(f models.SearchFilters, now time.Time) models.SearchResultPage {
	f = f.Normalize()
	origin := f.Origin
	if origin == "" {
		origin = defaultPlaceholderOrigin
	}
	destination := f.Destination
	if destination == "" {
		destination = defaultPlaceholderDestination
	}

	base := now.UTC().Truncate(time.Hour)
	if d, err := time.Parse(models.DateLayout, f.Date); err == nil {
		base = d.Add(8 * time.Hour)
	}

	listings := make([]models.RideListing, 0, placeholderCount)
	for i := 0; i < placeholderCount; i++ {
		rating := 4.5 - float64(i)*0.2
		listings = append(listings, models.RideListing{
			ID:             fmt.Sprintf("mock-%d-%d", f.Page, i),
			Origin:         origin,
			Destination:    destination,
			DepartureTime:  base.Add(time.Duration(i+1) * time.Hour),
			AvailableSeats: placeholderCount - i,
			Price:          7 + float64(i)*1.5,
			DriverRating:   &rating,
		})
	}
	return models.SearchResultPage{
		Listings:    listings,
		CurrentPage: f.Page,
		TotalPages:  placeholderTotalPages,
	}
}
