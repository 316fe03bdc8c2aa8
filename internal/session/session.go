// Package session serves live search coordinators over websocket
// connections. Each connection owns one Coordinator; clients send filter
// commands and receive a frame for every state change.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/ride-search/internal/models"
	"github.com/example/ride-search/internal/observability"
	"github.com/example/ride-search/internal/search"
)

const writeWait = 5 * time.Second

// Command is one inbound client message.
type Command struct {
	Op    string          `json:"op"`
	Field string          `json:"field,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Page  int             `json:"page,omitempty"`
}

// valueString accepts both "2" and 2 for a filter value.
func (c Command) valueString() (string, error) {
	raw := bytes.TrimSpace(c.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if raw[0] == '{' || raw[0] == '[' {
		return "", fmt.Errorf("value must be a string or number")
	}
	return string(raw), nil
}

// Frame is the outbound rendering of a coordinator snapshot.
type Frame struct {
	Filters     models.SearchFilters `json:"filters"`
	State       string               `json:"state"`
	Listings    []models.RideListing `json:"listings"`
	CurrentPage int                  `json:"current_page"`
	TotalPages  int                  `json:"total_pages"`
	Message     string               `json:"message,omitempty"`
	Debouncing  bool                 `json:"debouncing"`
	Version     uint64               `json:"version"`
}

func FrameOf(s search.Snapshot) Frame {
	f := Frame{
		Filters:     s.Filters,
		State:       s.Request.Status.String(),
		Listings:    []models.RideListing{},
		CurrentPage: s.Filters.Page,
		TotalPages:  s.TotalPages,
		Message:     s.Request.Message,
		Debouncing:  s.Debouncing,
		Version:     s.Version,
	}
	if r := s.Request.Result; r != nil && s.Request.Status == search.StatusSucceeded {
		f.Listings = r.Listings
		f.CurrentPage = r.CurrentPage
		f.TotalPages = r.TotalPages
	}
	return f
}

type errorFrame struct {
	Error string `json:"error"`
}

// Session is one connected client.
type Session struct {
	ID     string
	conn   *websocket.Conn
	coord  *search.Coordinator
	logger *zap.Logger

	mu sync.Mutex // serialises writes
}

func (s *Session) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *Session) pump(frames <-chan search.Snapshot, done chan<- struct{}) {
	defer close(done)
	for snap := range frames {
		if err := s.write(FrameOf(snap)); err != nil {
			s.logger.Debug("ws write failed", zap.Error(err))
			_ = s.conn.Close()
			return
		}
	}
}

func (s *Session) apply(cmd Command) error {
	switch cmd.Op {
	case "set_filter":
		field, err := models.ParseField(cmd.Field)
		if err != nil {
			return err
		}
		value, err := cmd.valueString()
		if err != nil {
			return err
		}
		return s.coord.SetFilter(field, value)
	case "set_page":
		s.coord.SetPage(cmd.Page)
		return nil
	case "search":
		s.coord.TriggerSearchNow()
		return nil
	}
	return fmt.Errorf("unknown op %q", cmd.Op)
}

func (s *Session) readLoop() {
	// the HTTP server's read timeout must not end a long lived session
	_ = s.conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("ws read ended", zap.Error(err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			err = fmt.Errorf("malformed command: %w", err)
			if werr := s.write(errorFrame{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := s.apply(cmd); err != nil {
			if errors.Is(err, search.ErrClosed) {
				return
			}
			if werr := s.write(errorFrame{Error: err.Error()}); werr != nil {
				return
			}
		}
	}
}

// Registry holds live sessions.
type Registry struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	newCoordinator func() *search.Coordinator
	logger         *zap.Logger
}

// NewRegistry creates a registry; newCoordinator builds the coordinator of
// each new session.
func NewRegistry(newCoordinator func() *search.Coordinator, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:       make(map[string]*Session),
		newCoordinator: newCoordinator,
		logger:         logger.Named("sessions"),
	}
}

// Serve runs a session on conn and blocks until the client goes away or the
// registry closes it.
func (r *Registry) Serve(conn *websocket.Conn) {
	s := &Session{
		ID:    uuid.NewString(),
		conn:  conn,
		coord: r.newCoordinator(),
	}
	s.logger = r.logger.With(zap.String("session_id", s.ID))

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	observability.SessionsActive.Inc()
	s.logger.Info("session opened", zap.String("remote_addr", conn.RemoteAddr().String()))

	frames, unsubscribe := s.coord.Subscribe()
	done := make(chan struct{})
	go s.pump(frames, done)

	s.readLoop()

	unsubscribe()
	s.coord.Close()
	<-done
	_ = conn.Close()

	r.mu.Lock()
	delete(r.sessions, s.ID)
	r.mu.Unlock()
	observability.SessionsActive.Dec()
	s.logger.Info("session closed")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll asks every client to disconnect. Serve calls return once their
// read loops observe the close.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, s := range sessions {
		s.mu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		s.mu.Unlock()
		_ = s.conn.Close()
	}
}
