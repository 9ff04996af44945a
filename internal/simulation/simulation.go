// Package simulation generates synthetic buyer choices across the experiment
// rounds.
package simulation

import (
	"errors"
	"fmt"

	"github.com/ashureev/house-lab/internal/catalog"
	"github.com/ashureev/house-lab/internal/domain"
	"github.com/ashureev/house-lab/internal/rng"
)

// DefaultBuyers is the number of simulated buyers per round.
const DefaultBuyers = 5

// Options configures a Simulator.
type Options struct {
	RoundBudgets   []float64
	CandidateCount int
}

// Simulator draws simulated buyers from a catalog.
type Simulator struct {
	cat  *catalog.Catalog
	opts Options
}

// New validates opts and creates a Simulator.
func New(cat *catalog.Catalog, opts Options) (*Simulator, error) {
	if cat == nil {
		return nil, errors.New("simulation: catalog is required")
	}
	if len(opts.RoundBudgets) == 0 {
		return nil, errors.New("simulation: at least one round budget is required")
	}
	if opts.CandidateCount < 1 || opts.CandidateCount > cat.Len() {
		return nil, fmt.Errorf("simulation: candidate count %d outside 1..%d", opts.CandidateCount, cat.Len())
	}
	return &Simulator{cat: cat, opts: opts}, nil
}

// Budgets returns the budget of each round.
func (s *Simulator) Budgets() []float64 {
	return append([]float64(nil), s.opts.RoundBudgets...)
}

// SimulateBuyer draws a candidate set and picks one of them uniformly as the
// buyer's preferred house. If it is over budget the buyer falls back to the
// first affordable house in draw order. ok is false when nothing in the draw
// is affordable. The returned record has no buyer index set.
func (s *Simulator) SimulateBuyer(round int, budget float64, r rng.Source) (rec domain.SimulationRecord, ok bool, err error) {
	drawn, err := catalog.SampleSubset(s.cat.ListAll(), s.opts.CandidateCount, r)
	if err != nil {
		return domain.SimulationRecord{}, false, err
	}

	choice := drawn[r.Intn(len(drawn))]
	if choice.Price > budget {
		ok = false
		for _, p := range drawn {
			if p.Price <= budget {
				choice, ok = p, true
				break
			}
		}
		if !ok {
			return domain.SimulationRecord{}, false, nil
		}
	}

	return domain.SimulationRecord{
		Round:      round,
		PropertyID: choice.ID,
		Price:      choice.Price,
		Tier:       choice.Tier,
		Type:       choice.Type,
	}, true, nil
}

// Result holds every buyer outcome of a run: a record per purchase and an
// explicit entry per buyer round without one.
type Result struct {
	Records     []domain.SimulationRecord
	NoPurchases []domain.NoPurchase
}

// Run simulates numBuyers buyers in every round, rounds outermost, buyers
// numbered from 1. Output is fully determined by r.
func (s *Simulator) Run(numBuyers int, r rng.Source) (Result, error) {
	if numBuyers < 1 {
		return Result{}, fmt.Errorf("%w: buyer count must be positive, got %d", domain.ErrInvalidOperation, numBuyers)
	}

	res := Result{
		Records:     []domain.SimulationRecord{},
		NoPurchases: []domain.NoPurchase{},
	}
	for i, budget := range s.opts.RoundBudgets {
		round := i + 1
		for buyer := 1; buyer <= numBuyers; buyer++ {
			rec, ok, err := s.SimulateBuyer(round, budget, r)
			if err != nil {
				return Result{}, fmt.Errorf("round %d buyer %d: %w", round, buyer, err)
			}
			if !ok {
				res.NoPurchases = append(res.NoPurchases, domain.NoPurchase{Round: round, Buyer: buyer, Budget: budget})
				continue
			}
			rec.Buyer = buyer
			res.Records = append(res.Records, rec)
		}
	}
	return res, nil
}

// RunSimulation returns only the purchase records of Run.
func (s *Simulator) RunSimulation(numBuyers int, r rng.Source) ([]domain.SimulationRecord, error) {
	res, err := s.Run(numBuyers, r)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}
