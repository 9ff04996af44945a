// Package experiment runs experiment sessions and simulation runs on behalf
// of participants, persisting state between requests.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/house-lab/internal/domain"
	"github.com/ashureev/house-lab/internal/engine"
	"github.com/ashureev/house-lab/internal/events"
	"github.com/ashureev/house-lab/internal/rng"
	"github.com/ashureev/house-lab/internal/simulation"
	"github.com/ashureev/house-lab/internal/store"
	"github.com/google/uuid"
)

// Event types published after successful operations.
const (
	EventStarted   = "started"
	EventViewed    = "viewed"
	EventRevealed  = "benchmark_revealed"
	EventPurchased = "purchased"
	EventAdvanced  = "advanced"
	EventCompleted = "completed"
	EventEnded     = "ended"
)

// Publisher receives session events.
type Publisher interface {
	Publish(ev events.Event)
	Close(sessionID string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}
func (nopPublisher) Close(string)         {}

// Service coordinates the round engine, the simulator and the repository.
type Service struct {
	eng           *engine.Engine
	sim           *simulation.Simulator
	repo          store.Repository
	pub           Publisher
	defaultBuyers int

	locks sync.Map // session id -> *sync.Mutex
	now   func() time.Time
	newID func() string
}

// NewService creates a Service. pub may be nil.
func NewService(eng *engine.Engine, sim *simulation.Simulator, repo store.Repository, pub Publisher, defaultBuyers int) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	if defaultBuyers <= 0 {
		defaultBuyers = simulation.DefaultBuyers
	}
	return &Service{
		eng:           eng,
		sim:           sim,
		repo:          repo,
		pub:           pub,
		defaultBuyers: defaultBuyers,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Engine returns the round engine.
func (s *Service) Engine() *engine.Engine {
	return s.eng
}

// DefaultBuyers returns the buyer count used when a run does not set one.
func (s *Service) DefaultBuyers() int {
	return s.defaultBuyers
}

// Catalog returns every property in catalog order.
func (s *Service) Catalog() []domain.Property {
	return s.eng.Catalog().ListAll()
}

// StartOptions are the optional inputs of Start.
type StartOptions struct {
	Seed       *int64
	Policy     domain.BudgetPolicy
	CheckLimit *int
}

// Start creates and stores a new session for participantID.
func (s *Service) Start(ctx context.Context, participantID string, opts StartOptions) (*domain.Session, error) {
	seed, err := seedOrNew(opts.Seed)
	if err != nil {
		return nil, err
	}

	session, err := s.eng.Start(engine.StartParams{
		ID:            s.newID(),
		ParticipantID: participantID,
		Seed:          seed,
		Policy:        opts.Policy,
		CheckLimit:    opts.CheckLimit,
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	session.CreatedAt = now
	session.UpdatedAt = now

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("store new session: %w", err)
	}

	slog.Info("Experiment started",
		"session_id", session.ID,
		"participant_id", participantID,
		"seed", seed,
		"policy", session.Policy,
		"check_limit", session.CheckLimit)
	s.publish(EventStarted, session, nil)
	return session, nil
}

// Get returns a participant's session.
func (s *Service) Get(ctx context.Context, participantID, sessionID string) (*domain.Session, error) {
	return s.load(ctx, participantID, sessionID)
}

// ViewNext shows the next candidate of the round.
func (s *Service) ViewNext(ctx context.Context, participantID, sessionID string) (domain.Property, *domain.Session, error) {
	var shown domain.Property
	session, err := s.apply(ctx, participantID, sessionID, EventViewed, func(cur *domain.Session) (*domain.Session, error) {
		p, next, err := s.eng.NextCandidate(cur)
		if err != nil {
			return nil, err
		}
		shown = p
		return next, nil
	})
	if err != nil {
		return domain.Property{}, nil, err
	}
	return shown, session, nil
}

// RevealBenchmark discloses the benchmark of a viewed Location property.
func (s *Service) RevealBenchmark(ctx context.Context, participantID, sessionID string, propertyID int) (*domain.Session, error) {
	return s.apply(ctx, participantID, sessionID, EventRevealed, func(cur *domain.Session) (*domain.Session, error) {
		return s.eng.RevealBenchmark(cur, propertyID)
	})
}

// Purchase buys a viewed property.
func (s *Service) Purchase(ctx context.Context, participantID, sessionID string, propertyID int) (*domain.Session, error) {
	return s.apply(ctx, participantID, sessionID, EventPurchased, func(cur *domain.Session) (*domain.Session, error) {
		return s.eng.Purchase(cur, propertyID)
	})
}

// AdvanceRound moves to the next round or completes the experiment.
func (s *Service) AdvanceRound(ctx context.Context, participantID, sessionID string) (*domain.Session, error) {
	session, err := s.apply(ctx, participantID, sessionID, EventAdvanced, s.eng.AdvanceRound)
	if err != nil {
		return nil, err
	}
	if session.Phase == domain.PhaseComplete {
		slog.Info("Experiment completed", "session_id", sessionID, "purchases", len(session.Purchases))
		s.publish(EventCompleted, session, nil)
	}
	return session, nil
}

// End discards a session and disconnects its subscribers.
func (s *Service) End(ctx context.Context, participantID, sessionID string) error {
	session, err := s.end(ctx, participantID, sessionID)
	if err != nil {
		return err
	}
	s.publish(EventEnded, session, nil)
	s.pub.Close(sessionID)
	slog.Info("Experiment ended", "session_id", sessionID)
	return nil
}

func (s *Service) end(ctx context.Context, participantID, sessionID string) (*domain.Session, error) {
	mu := s.lock(sessionID)
	defer mu.Unlock()

	session, err := s.load(ctx, participantID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("delete session: %w", err)
	}
	s.locks.Delete(sessionID)
	return session, nil
}

// Expire removes a session regardless of owner if it has been idle for at
// least ttl. The idle time is re-checked under the session lock, so a session
// touched after the sweeper listed it survives. It reports whether the
// session was removed.
func (s *Service) Expire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	removed, err := s.expire(ctx, sessionID, ttl)
	if err != nil || !removed {
		return false, err
	}
	s.pub.Close(sessionID)
	return true, nil
}

func (s *Service) expire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	mu := s.lock(sessionID)
	defer mu.Unlock()

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("load expiring session: %w", err)
	}
	if session == nil {
		s.locks.Delete(sessionID)
		return false, nil
	}
	if s.now().Sub(session.UpdatedAt) < ttl {
		slog.Debug("Session active again, not expiring", "session_id", sessionID, "updated_at", session.UpdatedAt)
		return false, nil
	}
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return false, fmt.Errorf("delete expired session: %w", err)
	}
	s.locks.Delete(sessionID)
	return true, nil
}

// RunSimulation runs and stores a batch simulation. buyers <= 0 selects the
// default count; a nil seed draws a fresh one, recorded on the run.
func (s *Service) RunSimulation(ctx context.Context, buyers int, seed *int64) (*domain.SimulationRun, error) {
	if buyers <= 0 {
		buyers = s.defaultBuyers
	}
	master, err := seedOrNew(seed)
	if err != nil {
		return nil, err
	}

	res, err := s.sim.Run(buyers, rng.NewPartitioned(master).For(rng.SubsystemBuyers))
	if err != nil {
		return nil, err
	}

	run := &domain.SimulationRun{
		ID:          s.newID(),
		Seed:        master,
		Buyers:      buyers,
		Budgets:     s.sim.Budgets(),
		Records:     res.Records,
		NoPurchases: res.NoPurchases,
		CreatedAt:   s.now(),
	}
	if err := s.repo.SaveSimulation(ctx, run); err != nil {
		return nil, fmt.Errorf("store simulation: %w", err)
	}

	slog.Info("Simulation run completed",
		"run_id", run.ID,
		"seed", master,
		"buyers", buyers,
		"records", len(run.Records),
		"no_purchases", len(run.NoPurchases))
	return run, nil
}

// GetSimulation returns a stored run.
func (s *Service) GetSimulation(ctx context.Context, runID string) (*domain.SimulationRun, error) {
	run, err := s.repo.GetSimulation(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load simulation: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSimulationNotFound, runID)
	}
	return run, nil
}

// SimulationStats aggregates a stored run.
func (s *Service) SimulationStats(ctx context.Context, runID string) (simulation.Stats, error) {
	run, err := s.GetSimulation(ctx, runID)
	if err != nil {
		return simulation.Stats{}, err
	}
	return simulation.Summarize(run), nil
}

// apply runs op on the stored session under the session lock and persists
// the result. A rejected op leaves the stored session untouched. The event is
// published after the lock is released so slow subscribers never hold up the
// session.
func (s *Service) apply(ctx context.Context, participantID, sessionID, eventType string, op func(*domain.Session) (*domain.Session, error)) (*domain.Session, error) {
	next, err := s.applyLocked(ctx, participantID, sessionID, eventType, op)
	if err != nil {
		return nil, err
	}
	s.publish(eventType, next, nil)
	return next, nil
}

func (s *Service) applyLocked(ctx context.Context, participantID, sessionID, eventType string, op func(*domain.Session) (*domain.Session, error)) (*domain.Session, error) {
	mu := s.lock(sessionID)
	defer mu.Unlock()

	cur, err := s.load(ctx, participantID, sessionID)
	if err != nil {
		return nil, err
	}

	next, err := op(cur)
	if err != nil {
		slog.Debug("Operation rejected", "session_id", sessionID, "op", eventType, "kind", domain.ErrorKind(err), "error", err)
		return nil, err
	}
	next.UpdatedAt = s.now()

	if err := s.repo.SaveSession(ctx, next); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return next, nil
}

func (s *Service) load(ctx context.Context, participantID, sessionID string) (*domain.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil || session.ParticipantID != participantID {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return session, nil
}

func (s *Service) lock(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

func (s *Service) publish(eventType string, session *domain.Session, payload any) {
	if payload == nil {
		payload = s.View(session)
	}
	s.pub.Publish(events.Event{Type: eventType, SessionID: session.ID, Payload: payload, At: s.now()})
}

func seedOrNew(seed *int64) (int64, error) {
	if seed != nil {
		return *seed, nil
	}
	return rng.NewSeed()
}
