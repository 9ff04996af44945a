package experiment

import (
	"time"

	"github.com/ashureev/house-lab/internal/domain"
)

// View is the participant-facing rendering of a session. It never lists
// unshown candidates and only carries benchmarks that have been revealed.
type View struct {
	ID               string                    `json:"id"`
	Round            int                       `json:"round"`
	TotalRounds      int                       `json:"total_rounds"`
	Phase            domain.Phase              `json:"phase"`
	BudgetPolicy     domain.BudgetPolicy       `json:"budget_policy"`
	Budget           float64                   `json:"budget"`
	RoundBudget      float64                   `json:"round_budget"`
	Spent            float64                   `json:"spent"`
	Current          *domain.Property          `json:"current,omitempty"`
	PreviouslyViewed []domain.Property         `json:"previously_viewed"`
	Remaining        int                       `json:"remaining"`
	CheckLimit       int                       `json:"check_limit"`
	CheckAllowance   int                       `json:"check_allowance"`
	Revealed         []int                     `json:"revealed_benchmarks"`
	Purchases        []domain.Purchase         `json:"purchases"`
	PurchasesByRound map[int][]domain.Purchase `json:"purchases_by_round"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// View renders session for its participant.
func (s *Service) View(session *domain.Session) View {
	v := View{
		ID:               session.ID,
		Round:            session.Round,
		TotalRounds:      s.eng.Rounds(),
		Phase:            session.Phase,
		BudgetPolicy:     session.Policy,
		Budget:           session.Budget,
		RoundBudget:      s.eng.RoundBudget(session.Round),
		Spent:            session.Spent(session.Round),
		PreviouslyViewed: []domain.Property{},
		Remaining:        session.Remaining(),
		CheckLimit:       session.CheckLimit,
		CheckAllowance:   session.CheckAllowance,
		Revealed:         session.RevealedBenchmarks.Sorted(),
		Purchases:        append([]domain.Purchase{}, session.Purchases...),
		PurchasesByRound: session.PurchasesByRound(),
		CreatedAt:        session.CreatedAt,
		UpdatedAt:        session.UpdatedAt,
	}

	if session.Phase == domain.PhaseComplete {
		v.Remaining = 0
		return v
	}
	if id, ok := session.Current(); ok {
		p := s.property(session, id)
		v.Current = &p
	}
	for _, id := range session.PreviouslyViewed() {
		v.PreviouslyViewed = append(v.PreviouslyViewed, s.property(session, id))
	}
	return v
}

// property looks up id and hides its benchmark unless it was revealed.
func (s *Service) property(session *domain.Session, id int) domain.Property {
	p := s.eng.Catalog().MustLookup(id)
	if !session.RevealedBenchmarks.Has(id) {
		return p.Redacted()
	}
	return p
}
