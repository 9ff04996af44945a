package domain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSet_JSONIsSortedArray(t *testing.T) {
	s := NewIDSet(7, 2, 5)
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `[2,5,7]`, string(raw))

	var back IDSet
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Has(5))
	assert.Len(t, back, 3)
}

func TestSession_CloneIsIndependent(t *testing.T) {
	s := &Session{
		Candidates:         []int{1, 2, 3},
		Viewed:             NewIDSet(1),
		RevealedBenchmarks: NewIDSet(),
		Purchases:          []Purchase{{PropertyID: 1, Round: 1}},
		Purchased:          NewIDSet(1),
	}
	c := s.Clone()
	c.Candidates[0] = 9
	c.Viewed.Add(2)
	c.RevealedBenchmarks.Add(1)
	c.Purchases = append(c.Purchases, Purchase{PropertyID: 2})
	c.Purchased.Add(2)

	assert.Equal(t, []int{1, 2, 3}, s.Candidates)
	assert.False(t, s.Viewed.Has(2))
	assert.False(t, s.RevealedBenchmarks.Has(1))
	assert.Len(t, s.Purchases, 1)
	assert.False(t, s.Purchased.Has(2))
}

func TestSession_CursorHelpers(t *testing.T) {
	s := &Session{Candidates: []int{4, 8, 1}}
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, s.PreviouslyViewed())
	assert.Equal(t, 3, s.Remaining())

	s.Cursor = 3
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, 1, cur)
	assert.Equal(t, []int{4, 8}, s.PreviouslyViewed())
	assert.Zero(t, s.Remaining())
}

func TestSession_PurchasesByRoundAndSpent(t *testing.T) {
	s := &Session{
		Round: 3,
		Purchases: []Purchase{
			{PropertyID: 1, Price: 90, Round: 1},
			{PropertyID: 4, Price: 115, Round: 3},
			{PropertyID: 2, Price: 100, Round: 3},
		},
	}
	by := s.PurchasesByRound()
	assert.Len(t, by[1], 1)
	assert.NotNil(t, by[2])
	assert.Empty(t, by[2])
	assert.Len(t, by[3], 2)
	assert.Equal(t, 215.0, s.Spent(3))
	assert.Zero(t, s.Spent(2))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "insufficient_budget", ErrorKind(fmt.Errorf("x: %w", ErrInsufficientBudget)))
	assert.Equal(t, "sequence_error", ErrorKind(ErrSequence))
	assert.Equal(t, "internal", ErrorKind(fmt.Errorf("boom")))
}

func TestProperty_Redacted(t *testing.T) {
	b := 120.0
	p := Property{ID: 5, Type: TypeLocation, Benchmark: &b}
	assert.True(t, p.HasBenchmark())
	r := p.Redacted()
	assert.Nil(t, r.Benchmark)
	assert.NotNil(t, p.Benchmark)
	assert.True(t, BudgetPolicy("wallet").Valid())
	assert.False(t, BudgetPolicy("credit").Valid())
}
