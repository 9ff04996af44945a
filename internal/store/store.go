// Package store provides session and simulation persistence.
package store

import (
	"context"
	"time"

	"github.com/ashureev/house-lab/internal/domain"
)

// Repository persists experiment sessions keyed by session id and the results
// of batch simulation runs.
type Repository interface {
	// GetSession retrieves a session. It returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// SaveSession creates or replaces a session.
	SaveSession(ctx context.Context, session *domain.Session) error

	// DeleteSession removes a session. Deleting an absent session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	// ExpiredSessions returns the ids of sessions not updated within ttl.
	ExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error)

	// SaveSimulation stores a simulation run.
	SaveSimulation(ctx context.Context, run *domain.SimulationRun) error

	// GetSimulation retrieves a simulation run. It returns nil, nil when absent.
	GetSimulation(ctx context.Context, runID string) (*domain.SimulationRun, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)
