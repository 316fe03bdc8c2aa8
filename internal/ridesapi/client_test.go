package ridesapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-search/internal/models"
	"github.com/example/ride-search/internal/search"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchEncodesQueryAndHeaders(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rides/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Waterloo", q.Get("origin"))
		assert.Equal(t, "2", q.Get("seats"))
		assert.Equal(t, "3", q.Get("page"))
		assert.False(t, q.Has("destination"))
		assert.False(t, q.Has("max_price"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rides":[{"id":"r1","from":"Waterloo","to":"Guelph","depart_at":"2025-06-01T09:00:00Z","seats_available":2,"price":12.5,"driver_rating":4.8}],"total_pages":4,"page":3}`))
	})

	c := NewClient(srv.URL+"/", "secret")
	page, err := c.Search(context.Background(), models.SearchFilters{Origin: "Waterloo", Seats: 2, Page: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, page.CurrentPage)
	assert.Equal(t, 4, page.TotalPages)
	require.Len(t, page.Listings, 1)
	l := page.Listings[0]
	assert.Equal(t, "r1", l.ID)
	assert.Equal(t, "Guelph", l.Destination)
	assert.Equal(t, 2, l.AvailableSeats)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), l.DepartureTime.UTC())
	require.NotNil(t, l.DriverRating)
	assert.Equal(t, 4.8, *l.DriverRating)
}

func TestSearchDefaultsMissingPaging(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"rides":[]}`))
	})

	page, err := NewClient(srv.URL, "").Search(context.Background(), models.SearchFilters{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 1, page.TotalPages)
	assert.NotNil(t, page.Listings)
}

func TestSearchShapeMismatch(t *testing.T) {
	for name, body := range map[string]string{
		"missing rides": `{"results":[]}`,
		"rides object":  `{"rides":{}}`,
		"not json":      `<html>hello</html>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := NewClient(srv.URL, "").Search(context.Background(), models.DefaultFilters())
			assert.ErrorIs(t, err, search.ErrShapeMismatch)
		})
	}
}

func TestSearchServerErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", http.StatusBadRequest, `{"detail":"Invalid date"}`, "Invalid date"},
		{"message", http.StatusBadGateway, `{"message":"upstream down"}`, "upstream down"},
		{"plain text", http.StatusServiceUnavailable, "maintenance window", "maintenance window"},
		{"unknown json key", http.StatusInternalServerError, `{"msg":"ride db down"}`, `{"msg":"ride db down"}`},
		{"json string", http.StatusInternalServerError, `"ride db down"`, "ride db down"},
		{"empty", http.StatusInternalServerError, "", "Server returned 500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := NewClient(srv.URL, "").Search(context.Background(), models.DefaultFilters())
			var se *search.ServerError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.status, se.Status)
			assert.Equal(t, tc.want, se.Error())
		})
	}
}

func TestErrorDetailTruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", maxDetailLength-1) + "é tail"
	got := errorDetail([]byte(body))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxDetailLength-1), got)

	got = errorDetail([]byte(`{"detail":"` + strings.Repeat("ü", maxDetailLength) + `"}`))
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxDetailLength)
}

func TestSearchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "").Search(context.Background(), models.DefaultFilters())
	assert.ErrorIs(t, err, search.ErrUnreachable)
}

func TestSearchReturnsContextError(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, "").Search(ctx, models.DefaultFilters())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
