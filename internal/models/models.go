package models

import (
	"fmt"
	"strings"
	"time"
)

// RideListing is one ride offer as returned by the search endpoint.
// JSON names follow the rides API wire format.
type RideListing struct {
	ID             string    `json:"id"`
	Origin         string    `json:"from"`
	Destination    string    `json:"to"`
	DepartureTime  time.Time `json:"depart_at"`
	AvailableSeats int       `json:"seats_available"`
	Price          float64   `json:"price"`
	DriverRating   *float64  `json:"driver_rating,omitempty"` // 0..5
}

// Validate checks the invariants a listing must hold before it is stored.
func (l *RideListing) Validate() error {
	if strings.TrimSpace(l.Origin) == "" {
		return fmt.Errorf("origin is required")
	}
	if strings.TrimSpace(l.Destination) == "" {
		return fmt.Errorf("destination is required")
	}
	if l.DepartureTime.IsZero() {
		return fmt.Errorf("departure time is required")
	}
	if l.AvailableSeats < 0 {
		return fmt.Errorf("seats_available must be >= 0")
	}
	if l.Price < 0 {
		return fmt.Errorf("price must be >= 0")
	}
	if l.DriverRating != nil && (*l.DriverRating < 0 || *l.DriverRating > 5) {
		return fmt.Errorf("driver_rating must be within [0,5]")
	}
	return nil
}

// SearchResultPage is one page of listings in server order.
type SearchResultPage struct {
	Listings    []RideListing `json:"rides"`
	CurrentPage int           `json:"page"`
	TotalPages  int           `json:"total_pages"`
}

// SearchEvent is published for every search the backend answers.
type SearchEvent struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Date        string    `json:"date,omitempty"`
	Seats       int       `json:"seats"`
	Page        int       `json:"page"`
	Results     int       `json:"results"`
	At          time.Time `json:"at"`
}

// RouteKey identifies an origin/destination pair in route statistics.
func (e SearchEvent) RouteKey() string {
	return strings.ToLower(strings.TrimSpace(e.Origin)) + "|" + strings.ToLower(strings.TrimSpace(e.Destination))
}

// RouteCount is a popular route with the number of searches seen for it.
type RouteCount struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Searches    int64  `json:"searches"`
}

// ListingQuery is a store-level listing lookup derived from search filters.
type ListingQuery struct {
	Origin      string
	Destination string
	// Date restricts departures to one UTC calendar day; empty matches any.
	Date     string
	MinSeats int
	MaxPrice *float64
	Limit    int
	Offset   int
}

// NewListingQuery maps f onto a store query returning page f.Page of
// pageSize listings.
func NewListingQuery(f SearchFilters, pageSize int) ListingQuery {
	f = f.Normalize()
	if pageSize < 1 {
		pageSize = 1
	}
	return ListingQuery{
		Origin:      strings.TrimSpace(f.Origin),
		Destination: strings.TrimSpace(f.Destination),
		Date:        f.Date,
		MinSeats:    f.Seats,
		MaxPrice:    f.MaxPrice,
		Limit:       pageSize,
		Offset:      (f.Page - 1) * pageSize,
	}
}

// Matches reports whether l satisfies every criterion of q except paging.
func (q ListingQuery) Matches(l RideListing) bool {
	if q.Origin != "" && !strings.Contains(strings.ToLower(l.Origin), strings.ToLower(q.Origin)) {
		return false
	}
	if q.Destination != "" && !strings.Contains(strings.ToLower(l.Destination), strings.ToLower(q.Destination)) {
		return false
	}
	if q.Date != "" && l.DepartureTime.UTC().Format(DateLayout) != q.Date {
		return false
	}
	if l.AvailableSeats < q.MinSeats {
		return false
	}
	if q.MaxPrice != nil && l.Price > *q.MaxPrice {
		return false
	}
	return true
}
