package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/ride-search/internal/listing"
	"github.com/example/ride-search/internal/models"
	"github.com/example/ride-search/internal/session"
)

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 100
	maxBodyBytes        = 1 << 20
)

// PopularRoutes reports the most searched routes.
type PopularRoutes interface {
	Top(ctx context.Context, limit int) ([]models.RouteCount, error)
}

// Deps are the collaborators of a Server. Popular, Sessions and Ready are
// optional; their routes answer 503 or are not registered when unset.
type Deps struct {
	Listings  *listing.Service
	Popular   PopularRoutes
	Sessions  *session.Registry
	Ready     func(ctx context.Context) error
	AuthToken string
	Logger    *zap.Logger
}

type Server struct {
	listings  *listing.Service
	popular   PopularRoutes
	sessions  *session.Registry
	ready     func(ctx context.Context) error
	authToken string
	logger    *zap.Logger
	mux       *mux.Router
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		listings:  d.Listings,
		popular:   d.Popular,
		sessions:  d.Sessions,
		ready:     d.Ready,
		authToken: d.AuthToken,
		logger:    logger.Named("http"),
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/rides/search", s.requireAuth(s.handleSearch)).Methods(http.MethodGet)
	s.mux.HandleFunc("/rides", s.requireAuth(s.handlePost)).Methods(http.MethodPost)
	s.mux.HandleFunc("/rides/popular", s.requireAuth(s.handlePopular)).Methods(http.MethodGet)
	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.sessions != nil {
		s.mux.HandleFunc("/ws/search", s.requireAuth(s.handleWS))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	f, err := models.ParseSearchQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.listings.Search(r.Context(), f)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err), zap.String("request_id", requestIDFromContext(r.Context())))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var l models.RideListing
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	posted, err := s.listings.Post(r.Context(), l)
	if err != nil {
		if errors.Is(err, listing.ErrInvalidListing) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("post listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save listing")
		return
	}
	writeJSON(w, http.StatusCreated, posted)
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	if s.popular == nil {
		writeError(w, http.StatusServiceUnavailable, "route statistics unavailable")
		return
	}
	limit := defaultPopularLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPopularLimit)
	}
	routes, err := s.popular.Top(r.Context(), limit)
	if err != nil {
		s.logger.Error("popular routes failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "route statistics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not ready: "+err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error status.
		s.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	s.sessions.Serve(conn)
}

// requireAuth enforces the bearer token when one is configured. Websocket
// clients that cannot set headers may pass it as ?token=.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.authToken == "" {
		return next
	}
	want := []byte(s.authToken)
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
