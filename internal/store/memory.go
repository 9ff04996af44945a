package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/house-lab/internal/domain"
)

// MemoryStore implements Repository in process memory. State is lost on
// restart.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*domain.Session
	simulations map[string]*domain.SimulationRun
	now         func() time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*domain.Session),
		simulations: make(map[string]*domain.SimulationRun),
		now:         time.Now,
	}
}

// GetSession retrieves a copy of a session.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// SaveSession stores a copy of session.
func (m *MemoryStore) SaveSession(_ context.Context, session *domain.Session) error {
	if session.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session.Clone()
	return nil
}

// DeleteSession removes a session.
func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// ExpiredSessions returns ids of sessions idle longer than ttl.
func (m *MemoryStore) ExpiredSessions(_ context.Context, ttl time.Duration) ([]string, error) {
	threshold := m.now().Add(-ttl)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(threshold) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// SaveSimulation stores a copy of run.
func (m *MemoryStore) SaveSimulation(_ context.Context, run *domain.SimulationRun) error {
	if run.ID == "" {
		return fmt.Errorf("save simulation: empty id")
	}
	cp := *run
	cp.Budgets = slices.Clone(run.Budgets)
	cp.Records = slices.Clone(run.Records)
	cp.NoPurchases = slices.Clone(run.NoPurchases)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulations[run.ID] = &cp
	return nil
}

// GetSimulation retrieves a copy of a run.
func (m *MemoryStore) GetSimulation(_ context.Context, runID string) (*domain.SimulationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.simulations[runID]
	if !ok {
		return nil, nil
	}
	cp := *run
	cp.Budgets = slices.Clone(run.Budgets)
	cp.Records = slices.Clone(run.Records)
	cp.NoPurchases = slices.Clone(run.NoPurchases)
	return &cp, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
