package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Registry is the single serialization point for the live-session set.
// Signaling requests add sessions, state watchers remove them, and
// shutdown closes whatever is left.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger,
	}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Remove takes a session out of the live set without closing it.
// Returns false when the session was already gone.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every live session and empties the set. Used on
// process interrupt.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			r.logger.Error("closing session at shutdown", "session_id", s.ID(), "err", err)
			errs = append(errs, err)
		}
	}
	if len(sessions) > 0 {
		r.logger.Info("all sessions closed", "count", len(sessions))
	}
	return errors.Join(errs...)
}
