package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-search/internal/ridesapi"
	"github.com/example/ride-search/internal/search"
	"github.com/example/ride-search/internal/session"
)

func TestRunSearchPrintsRequestedPage(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mu.Lock()
		pages = append(pages, q.Get("page"))
		mu.Unlock()
		assert.Equal(t, "Waterloo", q.Get("origin"))
		assert.Equal(t, "2", q.Get("seats"))
		assert.Equal(t, "15", q.Get("max_price"))
		_, _ = w.Write([]byte(`{"rides":[{"id":"r` + q.Get("page") + `","from":"Waterloo","to":"Toronto","depart_at":"2025-06-01T09:00:00Z","seats_available":2,"price":12}],"total_pages":3,"page":` + q.Get("page") + `}`))
	}))
	defer srv.Close()

	c := search.New(ridesapi.NewClient(srv.URL, ""))
	defer c.Close()

	var out bytes.Buffer
	err := runSearch(context.Background(), c, searchFlags{origin: "Waterloo", seats: "2", maxPrice: "15", page: 2}, &out)
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []string{"1", "2"}, pages)
	mu.Unlock()

	var frame session.Frame
	require.NoError(t, json.Unmarshal(out.Bytes(), &frame))
	assert.Equal(t, "succeeded", frame.State)
	assert.Equal(t, 2, frame.CurrentPage)
	require.Len(t, frame.Listings, 1)
	assert.Equal(t, "r2", frame.Listings[0].ID)
}

func TestRunSearchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Invalid date"}`))
	}))
	defer srv.Close()

	c := search.New(ridesapi.NewClient(srv.URL, ""))
	defer c.Close()

	var out bytes.Buffer
	err := runSearch(context.Background(), c, searchFlags{seats: "1", page: 1}, &out)
	assert.True(t, errors.Is(err, errSearchFailed))
	assert.Contains(t, out.String(), "Invalid date")
}

func TestRunSearchRejectsBadFlags(t *testing.T) {
	c := search.New(ridesapi.NewClient("http://127.0.0.1:0", ""))
	defer c.Close()
	err := runSearch(context.Background(), c, searchFlags{seats: "1", date: "June 1st", page: 1}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid date")
}
