package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// Phase is the state of the round state machine.
type Phase string

const (
	// PhaseRoundActive means candidates of the current round remain unshown.
	PhaseRoundActive Phase = "round_active"
	// PhaseRoundExhausted means every candidate of the round has been shown.
	PhaseRoundExhausted Phase = "round_exhausted"
	// PhaseComplete is terminal.
	PhaseComplete Phase = "experiment_complete"
)

// BudgetPolicy decides how purchases interact with the round budget.
type BudgetPolicy string

const (
	// PolicyCeiling checks each purchase against the round budget and never
	// decrements it.
	PolicyCeiling BudgetPolicy = "ceiling"
	// PolicyWallet deducts each purchase from the remaining budget.
	PolicyWallet BudgetPolicy = "wallet"
)

// Valid reports whether p is a known policy.
func (p BudgetPolicy) Valid() bool {
	return p == PolicyCeiling || p == PolicyWallet
}

// IDSet is a set of property ids. It encodes to JSON as a sorted array.
type IDSet map[int]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s IDSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s IDSet) Add(id int) {
	s[id] = struct{}{}
}

// Clone returns an independent copy. Cloning a nil set yields an empty set.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MarshalJSON implements json.Marshaler.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// Purchase records one successful purchase. It is never modified or removed.
type Purchase struct {
	PropertyID int          `json:"property_id"`
	Price      float64      `json:"price"`
	Tier       Tier         `json:"tier"`
	Type       PropertyType `json:"type"`
	Round      int          `json:"round"`
}

// Session is the evolving state of one experiment run. Engine operations take
// a session and return a new one; callers never mutate it directly.
type Session struct {
	ID            string       `json:"id"`
	ParticipantID string       `json:"participant_id"`
	Seed          int64        `json:"seed"`
	Policy        BudgetPolicy `json:"budget_policy"`

	Round  int     `json:"round"`
	Phase  Phase   `json:"phase"`
	Budget float64 `json:"budget"`

	// Candidates holds the round's draw order; Cursor counts how many of them
	// have been shown.
	Candidates []int `json:"candidates"`
	Cursor     int   `json:"cursor"`

	Viewed             IDSet `json:"viewed"`
	RevealedBenchmarks IDSet `json:"revealed_benchmarks"`

	// CheckLimit is the per-round reveal quota, 0 meaning unlimited.
	CheckLimit     int `json:"check_limit"`
	CheckAllowance int `json:"check_allowance"`

	Purchases []Purchase `json:"purchases"`
	Purchased IDSet      `json:"purchased"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	out := *s
	out.Candidates = slices.Clone(s.Candidates)
	out.Viewed = s.Viewed.Clone()
	out.RevealedBenchmarks = s.RevealedBenchmarks.Clone()
	out.Purchases = slices.Clone(s.Purchases)
	out.Purchased = s.Purchased.Clone()
	return &out
}

// Current returns the id of the property currently on display, if any.
func (s *Session) Current() (int, bool) {
	if s.Cursor == 0 || s.Cursor > len(s.Candidates) {
		return 0, false
	}
	return s.Candidates[s.Cursor-1], true
}

// PreviouslyViewed returns the ids shown this round before the current one,
// in display order.
func (s *Session) PreviouslyViewed() []int {
	if s.Cursor <= 1 {
		return []int{}
	}
	return slices.Clone(s.Candidates[:s.Cursor-1])
}

// Remaining returns how many candidates of the round are still unshown.
func (s *Session) Remaining() int {
	return len(s.Candidates) - s.Cursor
}

// PurchasesByRound groups purchases for rounds 1..s.Round. Rounds without a
// purchase map to an empty slice.
func (s *Session) PurchasesByRound() map[int][]Purchase {
	out := make(map[int][]Purchase, s.Round)
	for r := 1; r <= s.Round; r++ {
		out[r] = []Purchase{}
	}
	for _, p := range s.Purchases {
		out[p.Round] = append(out[p.Round], p)
	}
	return out
}

// Spent returns the total price of purchases made in round.
func (s *Session) Spent(round int) float64 {
	var total float64
	for _, p := range s.Purchases {
		if p.Round == round {
			total += p.Price
		}
	}
	return total
}
