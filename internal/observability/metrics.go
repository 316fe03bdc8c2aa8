package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesIssued     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_search", Name: "searches_issued_total", Help: "Searches fired by coordinators"})
	SearchesSuperseded = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_search", Name: "searches_superseded_total", Help: "In-flight searches cancelled by a newer search"})
	SearchResults      = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_search", Name: "search_results_total", Help: "Settled searches by outcome"},
		[]string{"outcome"},
	)
	SearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_search", Name: "search_latency_seconds", Help: "Search round trip seconds"})

	ListingQueries   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_search", Name: "listing_queries_total", Help: "Listing store queries answered by the backend"})
	ListingCacheHits = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_search", Name: "listing_cache_hits_total", Help: "Search pages served from cache"})
	ListingsPosted   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_search", Name: "listings_posted_total", Help: "Ride offers posted"})
	SessionsActive   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_search", Name: "ws_sessions_active", Help: "Open live search sessions"})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_search", Name: "search_events_published_total", Help: "Search events handed to kafka"},
		[]string{"status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_search", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_search",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Outcome labels for SearchResults.
const (
	OutcomeSucceeded   = "succeeded"
	OutcomePlaceholder = "placeholder"
	OutcomeFailed      = "failed"
	OutcomeCancelled   = "cancelled"
)
