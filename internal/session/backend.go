package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourorg/signal-dashboard/internal/config"
)

// Durable keys holding the session between runs
const (
	KeyToken    = "auth_token"
	KeyUsername = "username"
)

// ErrNotFound is returned by Backend.Get for a missing key
var ErrNotFound = errors.New("session key not found")

// Backend defines the durable key/value storage behind a Store
type Backend interface {
	// Get returns the value for key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error

	// Delete removes the given keys; missing keys are not an error
	Delete(ctx context.Context, keys ...string) error

	// Close releases the underlying resources
	Close() error
}

// NewBackend creates a backend implementation based on the configuration
func NewBackend(cfg *config.SessionConfig) (Backend, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileBackend(cfg.Path)
	case "sqlite":
		return NewSQLiteBackend(cfg.SQLitePath)
	case "redis":
		return NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
