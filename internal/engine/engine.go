// Package engine implements the round/budget/purchase state machine of the
// manual experiment.
//
// Every operation takes a session and returns a new one. The input is never
// modified, so a rejected operation leaves the caller's state exactly as it
// was.
package engine

import (
	"errors"
	"fmt"

	"github.com/ashureev/house-lab/internal/catalog"
	"github.com/ashureev/house-lab/internal/domain"
	"github.com/ashureev/house-lab/internal/rng"
)

// Defaults used when Options fields are left zero.
var (
	DefaultRoundBudgets   = []float64{100, 150, 150}
	DefaultCandidateCount = 8
)

// Options configures an Engine.
type Options struct {
	// RoundBudgets holds the budget of each round; its length is the number
	// of rounds.
	RoundBudgets []float64
	// CandidateCount is the number of properties shown per round.
	CandidateCount int
	// Policy is the budget policy for sessions that do not pick one.
	Policy domain.BudgetPolicy
	// CheckLimit is the default per-round benchmark quota, 0 meaning unlimited.
	CheckLimit int
}

// Engine applies round engine operations against a fixed catalog.
type Engine struct {
	cat  *catalog.Catalog
	opts Options
}

// New validates opts and creates an Engine.
func New(cat *catalog.Catalog, opts Options) (*Engine, error) {
	if cat == nil {
		return nil, errors.New("engine: catalog is required")
	}
	if len(opts.RoundBudgets) == 0 {
		opts.RoundBudgets = DefaultRoundBudgets
	}
	if opts.CandidateCount == 0 {
		opts.CandidateCount = DefaultCandidateCount
	}
	if opts.Policy == "" {
		opts.Policy = domain.PolicyCeiling
	}
	for i, b := range opts.RoundBudgets {
		if b <= 0 {
			return nil, fmt.Errorf("engine: round %d budget must be positive", i+1)
		}
	}
	if opts.CandidateCount < 1 || opts.CandidateCount > cat.Len() {
		return nil, fmt.Errorf("engine: candidate count %d outside 1..%d", opts.CandidateCount, cat.Len())
	}
	if !opts.Policy.Valid() {
		return nil, fmt.Errorf("engine: unknown budget policy %q", opts.Policy)
	}
	if opts.CheckLimit < 0 {
		return nil, errors.New("engine: check limit must not be negative")
	}
	return &Engine{cat: cat, opts: opts}, nil
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	o := e.opts
	o.RoundBudgets = append([]float64(nil), e.opts.RoundBudgets...)
	return o
}

// Rounds returns the number of rounds in an experiment.
func (e *Engine) Rounds() int {
	return len(e.opts.RoundBudgets)
}

// RoundBudget returns the budget of round (1-based), or 0 for a round the
// engine is not configured with. Sessions stored by a server configured with
// more rounds can carry such a round.
func (e *Engine) RoundBudget(round int) float64 {
	if round < 1 || round > len(e.opts.RoundBudgets) {
		return 0
	}
	return e.opts.RoundBudgets[round-1]
}

// StartParams are per-session overrides of the engine defaults.
type StartParams struct {
	ID            string
	ParticipantID string
	Seed          int64
	Policy        domain.BudgetPolicy
	// CheckLimit overrides the engine default when non-nil.
	CheckLimit *int
}

// Start creates a session in RoundActive(1, budget of round 1).
func (e *Engine) Start(p StartParams) (*domain.Session, error) {
	policy := p.Policy
	if policy == "" {
		policy = e.opts.Policy
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: unknown budget policy %q", domain.ErrInvalidOperation, policy)
	}
	limit := e.opts.CheckLimit
	if p.CheckLimit != nil {
		if *p.CheckLimit < 0 {
			return nil, fmt.Errorf("%w: check limit must not be negative", domain.ErrInvalidOperation)
		}
		limit = *p.CheckLimit
	}

	s := &domain.Session{
		ID:            p.ID,
		ParticipantID: p.ParticipantID,
		Seed:          p.Seed,
		Policy:        policy,
		Round:         1,
		CheckLimit:    limit,
		Purchases:     []domain.Purchase{},
		Purchased:     domain.NewIDSet(),
	}
	return e.StartRound(s)
}

// StartRound draws a fresh candidate set for s.Round, clears the round-local
// view and benchmark state, resets the check allowance and sets the round
// budget. The draw depends only on the session seed and the round number.
func (e *Engine) StartRound(s *domain.Session) (*domain.Session, error) {
	if s.Round < 1 || s.Round > e.Rounds() {
		return nil, fmt.Errorf("%w: round %d outside 1..%d", domain.ErrSequence, s.Round, e.Rounds())
	}

	r := rng.NewPartitioned(s.Seed).For(rng.SubsystemRound(s.Round))
	drawn, err := catalog.SampleSubset(e.cat.ListAll(), e.opts.CandidateCount, r)
	if err != nil {
		return nil, fmt.Errorf("draw round %d candidates: %w", s.Round, err)
	}

	next := s.Clone()
	next.Phase = domain.PhaseRoundActive
	next.Budget = e.RoundBudget(s.Round)
	next.Candidates = catalog.IDs(drawn)
	next.Cursor = 0
	next.Viewed = domain.NewIDSet()
	next.RevealedBenchmarks = domain.NewIDSet()
	next.CheckAllowance = next.CheckLimit
	return next, nil
}

// NextCandidate shows the next unviewed candidate of the round and marks it
// viewed. It returns domain.ErrRoundExhausted once every candidate is shown.
func (e *Engine) NextCandidate(s *domain.Session) (domain.Property, *domain.Session, error) {
	if s.Phase == domain.PhaseComplete {
		return domain.Property{}, nil, fmt.Errorf("%w: experiment is complete", domain.ErrSequence)
	}
	if s.Cursor >= len(s.Candidates) {
		return domain.Property{}, nil, fmt.Errorf("%w: round %d", domain.ErrRoundExhausted, s.Round)
	}

	next := s.Clone()
	id := next.Candidates[next.Cursor]
	next.Cursor++
	next.Viewed.Add(id)
	if next.Cursor == len(next.Candidates) {
		next.Phase = domain.PhaseRoundExhausted
	}
	return e.cat.MustLookup(id), next, nil
}

// RevealBenchmark discloses the benchmark of a viewed Location property.
// A Property-type house is rejected before the viewed check.
func (e *Engine) RevealBenchmark(s *domain.Session, propertyID int) (*domain.Session, error) {
	p, err := e.lookup(s, propertyID)
	if err != nil {
		return nil, err
	}
	if p.Type != domain.TypeLocation {
		return nil, fmt.Errorf("%w: house %d is a %s property without a benchmark", domain.ErrInvalidOperation, p.ID, p.Type)
	}
	if !s.Viewed.Has(propertyID) {
		return nil, fmt.Errorf("%w: house %d has not been shown this round", domain.ErrUnknownProperty, propertyID)
	}
	if s.RevealedBenchmarks.Has(p.ID) {
		return nil, fmt.Errorf("%w: benchmark of house %d already revealed", domain.ErrInvalidOperation, p.ID)
	}
	if s.CheckLimit > 0 && s.CheckAllowance <= 0 {
		return nil, fmt.Errorf("%w: no benchmark checks left in round %d", domain.ErrAllowanceExhausted, s.Round)
	}

	next := s.Clone()
	next.RevealedBenchmarks.Add(p.ID)
	if next.CheckLimit > 0 {
		next.CheckAllowance--
	}
	return next, nil
}

// Purchase buys a viewed property. The price is checked against the current
// budget; under PolicyWallet the budget is then reduced by the price.
func (e *Engine) Purchase(s *domain.Session, propertyID int) (*domain.Session, error) {
	p, err := e.shown(s, propertyID)
	if err != nil {
		return nil, err
	}
	if s.Purchased.Has(p.ID) {
		return nil, fmt.Errorf("%w: house %d already purchased", domain.ErrInvalidOperation, p.ID)
	}
	if p.Price > s.Budget {
		return nil, fmt.Errorf("%w: house %d costs %g, budget is %g", domain.ErrInsufficientBudget, p.ID, p.Price, s.Budget)
	}

	next := s.Clone()
	next.Purchases = append(next.Purchases, domain.Purchase{
		PropertyID: p.ID,
		Price:      p.Price,
		Tier:       p.Tier,
		Type:       p.Type,
		Round:      s.Round,
	})
	next.Purchased.Add(p.ID)
	if next.Policy == domain.PolicyWallet {
		next.Budget -= p.Price
	}
	return next, nil
}

// AdvanceRound moves an exhausted round to the next one, or to
// ExperimentComplete after the last round.
func (e *Engine) AdvanceRound(s *domain.Session) (*domain.Session, error) {
	if s.Phase == domain.PhaseComplete {
		return nil, fmt.Errorf("%w: experiment is complete", domain.ErrSequence)
	}
	if s.Remaining() > 0 {
		return nil, fmt.Errorf("%w: %d houses of round %d not viewed yet", domain.ErrSequence, s.Remaining(), s.Round)
	}

	if s.Round < e.Rounds() {
		next := s.Clone()
		next.Round++
		return e.StartRound(next)
	}

	next := s.Clone()
	next.Phase = domain.PhaseComplete
	return next, nil
}

// lookup resolves a catalog property while the experiment is running.
func (e *Engine) lookup(s *domain.Session, propertyID int) (domain.Property, error) {
	if s.Phase == domain.PhaseComplete {
		return domain.Property{}, fmt.Errorf("%w: experiment is complete", domain.ErrSequence)
	}
	p, ok := e.cat.Lookup(propertyID)
	if !ok {
		return domain.Property{}, fmt.Errorf("%w: house %d is not in the catalog", domain.ErrUnknownProperty, propertyID)
	}
	return p, nil
}

// shown resolves a property that is in the catalog and viewed this round.
func (e *Engine) shown(s *domain.Session, propertyID int) (domain.Property, error) {
	p, err := e.lookup(s, propertyID)
	if err != nil {
		return domain.Property{}, err
	}
	if !s.Viewed.Has(propertyID) {
		return domain.Property{}, fmt.Errorf("%w: house %d has not been shown this round", domain.ErrUnknownProperty, propertyID)
	}
	return p, nil
}
