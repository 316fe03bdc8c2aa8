package models

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by the date filter.
const DateLayout = "2006-01-02"

// Field names one mutable search filter.
type Field string

const (
	FieldOrigin      Field = "origin"
	FieldDestination Field = "destination"
	FieldDate        Field = "date"
	FieldSeats       Field = "seats"
	FieldMaxPrice    Field = "max_price"
	FieldPage        Field = "page"
)

// SearchFilters holds the user-editable search criteria.
type SearchFilters struct {
	Origin      string   `json:"origin"`
	Destination string   `json:"destination"`
	Date        string   `json:"date"`
	Seats       int      `json:"seats"`
	MaxPrice    *float64 `json:"max_price,omitempty"`
	Page        int      `json:"page"`
}

// DefaultFilters returns empty filters with one seat on the first page.
func DefaultFilters() SearchFilters {
	return SearchFilters{Seats: 1, Page: 1}
}

// ParseField accepts the canonical field names plus the camelCase spelling
// used by browser clients.
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "origin":
		return FieldOrigin, nil
	case "destination":
		return FieldDestination, nil
	case "date":
		return FieldDate, nil
	case "seats":
		return FieldSeats, nil
	case "max_price", "maxprice":
		return FieldMaxPrice, nil
	case "page":
		return FieldPage, nil
	}
	return "", fmt.Errorf("unknown filter field %q", s)
}

// With returns a copy of f with field set to value. Seats are coerced to an
// integer >= 1, max price must be empty or a non-negative number and the date
// must be empty or a calendar date. Setting any field but the page resets the
// page to 1. f is left untouched on error.
func (f SearchFilters) With(field Field, value string) (SearchFilters, error) {
	out := f
	value = strings.TrimSpace(value)
	switch field {
	case FieldOrigin:
		out.Origin = value
	case FieldDestination:
		out.Destination = value
	case FieldDate:
		if value != "" {
			if _, err := time.Parse(DateLayout, value); err != nil {
				return f, fmt.Errorf("invalid date %q: want YYYY-MM-DD", value)
			}
		}
		out.Date = value
	case FieldSeats:
		seats, err := coerceSeats(value)
		if err != nil {
			return f, err
		}
		out.Seats = seats
	case FieldMaxPrice:
		if value == "" {
			out.MaxPrice = nil
			break
		}
		p, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
			return f, fmt.Errorf("invalid max price %q", value)
		}
		if p < 0 {
			return f, fmt.Errorf("max price must be >= 0, got %v", p)
		}
		out.MaxPrice = &p
	case FieldPage:
		n, err := strconv.Atoi(value)
		if err != nil {
			return f, fmt.Errorf("invalid page %q", value)
		}
		if n < 1 {
			n = 1
		}
		out.Page = n
		return out, nil
	default:
		return f, fmt.Errorf("unknown filter field %q", field)
	}
	out.Page = 1
	return out, nil
}

func coerceSeats(value string) (int, error) {
	if value == "" {
		return 1, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid seats %q", value)
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("seats %q out of range", value)
	}
	if v < 1 {
		return 1, nil
	}
	return int(math.Floor(v)), nil
}

// Normalize fills zero values with their defaults.
func (f SearchFilters) Normalize() SearchFilters {
	if f.Seats < 1 {
		f.Seats = 1
	}
	if f.Page < 1 {
		f.Page = 1
	}
	return f
}

// Values encodes the filters as the rides search query. Empty text fields
// and an unset max price are omitted; seats and page are always present.
func (f SearchFilters) Values() url.Values {
	f = f.Normalize()
	q := url.Values{}
	if s := strings.TrimSpace(f.Origin); s != "" {
		q.Set("origin", s)
	}
	if s := strings.TrimSpace(f.Destination); s != "" {
		q.Set("destination", s)
	}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	q.Set("seats", strconv.Itoa(f.Seats))
	if f.MaxPrice != nil {
		q.Set("max_price", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	q.Set("page", strconv.Itoa(f.Page))
	return q
}

// ParseSearchQuery is the inverse of Values, used by the backend.
func ParseSearchQuery(q url.Values) (SearchFilters, error) {
	f := DefaultFilters()
	var err error
	for _, field := range []Field{FieldOrigin, FieldDestination, FieldDate, FieldSeats, FieldMaxPrice} {
		if !q.Has(string(field)) {
			continue
		}
		if f, err = f.With(field, q.Get(string(field))); err != nil {
			return SearchFilters{}, err
		}
	}
	if q.Has(string(FieldPage)) {
		if f, err = f.With(FieldPage, q.Get(string(FieldPage))); err != nil {
			return SearchFilters{}, err
		}
	}
	return f, nil
}
