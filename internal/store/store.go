// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
)

// Repository defines the interface for persisting conversation sessions.
type Repository interface {
	// GetSession retrieves session state. It returns nil, nil when the
	// session does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error)

	// UpsertSession creates or replaces session state.
	UpsertSession(ctx context.Context, state *domain.SessionState) error

	// DeleteSession removes session state.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpiredSessions removes sessions not updated within ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// ListSessionIDs returns up to limit session ids, most recently updated first.
	ListSessionIDs(ctx context.Context, limit int) ([]string, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
