package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/carpool-matching/internal/models"
)

// WSSession represents a connected rider or driver.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry holds one session per user and pushes match events to them.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger}
}

// Add registers conn for userID, closing any previous session for that user.
func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	prev := r.sessions[userID]
	r.sessions[userID] = &WSSession{conn: conn}
	r.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	}
}

// Remove drops the session for userID if it still belongs to conn.
func (r *WSRegistry) Remove(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok && s.conn == conn {
		delete(r.sessions, userID)
	}
}

func (r *WSRegistry) Send(userID string, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(v)
}

func (r *WSRegistry) MatchAccepted(_ context.Context, ev models.MatchEvent) error {
	r.push(ev, ev.PassengerID, ev.DriverID)
	return nil
}

func (r *WSRegistry) MatchRejected(_ context.Context, ev models.MatchEvent) error {
	r.push(ev, ev.PassengerID, ev.DriverID)
	return nil
}

// push is best-effort: users without a live socket get the event through the
// other channels.
func (r *WSRegistry) push(ev models.MatchEvent, userIDs ...string) {
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := r.Send(id, ev); err != nil && err != ErrNoSession {
			r.logger.Warn("ws send failed", "user_id", id, "event", ev.Type, "error", err)
		}
	}
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }
