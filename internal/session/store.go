// Package session owns the authenticated session and its durable copy.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yourorg/signal-dashboard/internal/logger"
	"github.com/yourorg/signal-dashboard/internal/model"

	"go.uber.org/zap"
)

// Store holds the current session and mirrors it to a Backend.
// The session is only ever replaced as a whole.
type Store struct {
	mu      sync.RWMutex
	current *model.Session
	backend Backend
	logger  *zap.Logger
}

// NewStore creates an empty Store over backend
func NewStore(backend Backend, log *zap.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger.OrNop(log),
	}
}

// Get returns a copy of the current session and whether one is present
func (s *Store) Get() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return model.Session{}, false
	}
	return *s.current, true
}

// Set replaces the current session and persists username and token.
// The in-memory session is installed even when persisting fails; the durable
// copy is written whole or not at all.
func (s *Store) Set(ctx context.Context, sess model.Session) error {
	next := sess

	s.mu.Lock()
	s.current = &next
	s.mu.Unlock()

	if err := s.backend.Set(ctx, KeyToken, sess.Token); err != nil {
		return fmt.Errorf("persist session token: %w", err)
	}
	if err := s.backend.Set(ctx, KeyUsername, sess.Username); err != nil {
		// Never leave a durable token without its username.
		if delErr := s.backend.Delete(ctx, KeyToken, KeyUsername); delErr != nil {
			s.logger.Warn("Failed to roll back partial session", zap.Error(delErr))
		}
		return fmt.Errorf("persist session username: %w", err)
	}

	s.logger.Debug("Session stored", zap.String("username", sess.Username))
	return nil
}

// Clear removes the current session and both durable entries
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, KeyToken, KeyUsername); err != nil {
		return fmt.Errorf("clear persisted session: %w", err)
	}

	s.logger.Debug("Session cleared")
	return nil
}

// Restore rebuilds the session from the backend when both keys are present.
// A restored session always carries model.RestoredSessionExpiry.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	token, err := s.lookup(ctx, KeyToken)
	if err != nil {
		return false, err
	}
	username, err := s.lookup(ctx, KeyUsername)
	if err != nil {
		return false, err
	}

	if token == "" || username == "" {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		return false, nil
	}

	s.mu.Lock()
	s.current = &model.Session{
		Username:         username,
		Token:            token,
		ExpiresInSeconds: model.RestoredSessionExpiry,
	}
	s.mu.Unlock()

	s.logger.Info("Session restored", zap.String("username", username))
	return true, nil
}

func (s *Store) lookup(ctx context.Context, key string) (string, error) {
	v, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("restore session: %w", err)
	}
	return v, nil
}
