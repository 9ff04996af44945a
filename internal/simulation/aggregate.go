package simulation

import (
	"math"
	"slices"
	"sort"

	"github.com/ashureev/house-lab/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// RoundCount holds per-category counts for one round. Every known category
// is present, zero when no record falls in it.
type RoundCount struct {
	Round  int            `json:"round"`
	Counts map[string]int `json:"counts"`
}

// CountByRoundTier counts records by (round, tier).
func CountByRoundTier(records []domain.SimulationRecord) []RoundCount {
	keys := make([]string, len(domain.Tiers))
	for i, t := range domain.Tiers {
		keys[i] = string(t)
	}
	return countByRound(records, keys, func(r domain.SimulationRecord) string { return string(r.Tier) })
}

// CountByRoundType counts records by (round, type).
func CountByRoundType(records []domain.SimulationRecord) []RoundCount {
	keys := make([]string, len(domain.PropertyTypes))
	for i, t := range domain.PropertyTypes {
		keys[i] = string(t)
	}
	return countByRound(records, keys, func(r domain.SimulationRecord) string { return string(r.Type) })
}

func countByRound(records []domain.SimulationRecord, keys []string, key func(domain.SimulationRecord) string) []RoundCount {
	byRound := make(map[int]map[string]int)
	for _, r := range records {
		counts, ok := byRound[r.Round]
		if !ok {
			counts = make(map[string]int, len(keys))
			for _, k := range keys {
				counts[k] = 0
			}
			byRound[r.Round] = counts
		}
		counts[key(r)]++
	}

	out := make([]RoundCount, 0, len(byRound))
	for _, round := range sortedKeys(byRound) {
		out = append(out, RoundCount{Round: round, Counts: byRound[round]})
	}
	return out
}

// BuyerSpend is the total and average price paid by one buyer.
type BuyerSpend struct {
	Buyer     int     `json:"buyer"`
	Purchases int     `json:"purchases"`
	Total     float64 `json:"total"`
	Average   float64 `json:"average"`
}

// SpendByBuyer summarises spending per buyer across all rounds.
func SpendByBuyer(records []domain.SimulationRecord) []BuyerSpend {
	byBuyer := groupByBuyer(records)
	out := make([]BuyerSpend, 0, len(byBuyer))
	for _, buyer := range sortedKeys(byBuyer) {
		recs := byBuyer[buyer]
		var total float64
		for _, r := range recs {
			total += r.Price
		}
		out = append(out, BuyerSpend{
			Buyer:     buyer,
			Purchases: len(recs),
			Total:     total,
			Average:   total / float64(len(recs)),
		})
	}
	return out
}

// Utilization is a buyer's spending in one round relative to its budget.
type Utilization struct {
	Buyer   int     `json:"buyer"`
	Round   int     `json:"round"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Budget  float64 `json:"budget"`
	// Rate is Total/Budget in percent, rounded to one decimal.
	Rate float64 `json:"rate"`
}

// BudgetUtilization computes per (buyer, round) spending against budgets,
// where budgets[i] is the budget of round i+1.
func BudgetUtilization(records []domain.SimulationRecord, budgets []float64) []Utilization {
	type key struct{ buyer, round int }
	sums := make(map[key][]float64)
	var keys []key
	for _, r := range records {
		k := key{r.Buyer, r.Round}
		if _, ok := sums[k]; !ok {
			keys = append(keys, k)
		}
		sums[k] = append(sums[k], r.Price)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].buyer != keys[j].buyer {
			return keys[i].buyer < keys[j].buyer
		}
		return keys[i].round < keys[j].round
	})

	out := make([]Utilization, 0, len(keys))
	for _, k := range keys {
		prices := sums[k]
		var total float64
		for _, p := range prices {
			total += p
		}
		u := Utilization{
			Buyer:   k.buyer,
			Round:   k.round,
			Total:   total,
			Average: stat.Mean(prices, nil),
		}
		if k.round >= 1 && k.round <= len(budgets) {
			u.Budget = budgets[k.round-1]
			u.Rate = math.Round(total/u.Budget*1000) / 10
		}
		out = append(out, u)
	}
	return out
}

// Preference is a buyer's modal tier and type plus the share of purchases in
// each category, in percent.
type Preference struct {
	Buyer         int                             `json:"buyer"`
	PreferredTier domain.Tier                     `json:"preferred_tier"`
	PreferredType domain.PropertyType             `json:"preferred_type"`
	TierShare     map[domain.Tier]float64         `json:"tier_share"`
	TypeShare     map[domain.PropertyType]float64 `json:"type_share"`
}

// Preferences computes each buyer's modal tier and type. Ties resolve to the
// alphabetically smallest name.
func Preferences(records []domain.SimulationRecord) []Preference {
	byBuyer := groupByBuyer(records)
	out := make([]Preference, 0, len(byBuyer))
	for _, buyer := range sortedKeys(byBuyer) {
		recs := byBuyer[buyer]
		tiers := make(map[domain.Tier]int)
		types := make(map[domain.PropertyType]int)
		for _, r := range recs {
			tiers[r.Tier]++
			types[r.Type]++
		}
		out = append(out, Preference{
			Buyer:         buyer,
			PreferredTier: mode(tiers),
			PreferredType: mode(types),
			TierShare:     shares(tiers, len(recs)),
			TypeShare:     shares(types, len(recs)),
		})
	}
	return out
}

func mode[K ~string](counts map[K]int) K {
	var best K
	bestN := -1
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func shares[K comparable](counts map[K]int, total int) map[K]float64 {
	out := make(map[K]float64, len(counts))
	for k, n := range counts {
		out[k] = float64(n) / float64(total) * 100
	}
	return out
}

// PriceSummary describes the price distribution of one round.
type PriceSummary struct {
	Round  int     `json:"round"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// PriceByRound summarises prices per round using empirical quantiles.
func PriceByRound(records []domain.SimulationRecord) []PriceSummary {
	byRound := make(map[int][]float64)
	for _, r := range records {
		byRound[r.Round] = append(byRound[r.Round], r.Price)
	}

	out := make([]PriceSummary, 0, len(byRound))
	for _, round := range sortedKeys(byRound) {
		prices := byRound[round]
		slices.Sort(prices)
		out = append(out, PriceSummary{
			Round:  round,
			Count:  len(prices),
			Min:    prices[0],
			Q1:     stat.Quantile(0.25, stat.Empirical, prices, nil),
			Median: stat.Quantile(0.5, stat.Empirical, prices, nil),
			Q3:     stat.Quantile(0.75, stat.Empirical, prices, nil),
			Max:    prices[len(prices)-1],
			Mean:   stat.Mean(prices, nil),
		})
	}
	return out
}

// SelectionPattern lists, per round, the first purchase a buyer made.
type SelectionPattern struct {
	Buyer  int                             `json:"buyer"`
	Rounds map[int]domain.SimulationRecord `json:"rounds"`
}

// SelectionPatterns pivots records to one row per buyer.
func SelectionPatterns(records []domain.SimulationRecord) []SelectionPattern {
	byBuyer := groupByBuyer(records)
	out := make([]SelectionPattern, 0, len(byBuyer))
	for _, buyer := range sortedKeys(byBuyer) {
		rounds := make(map[int]domain.SimulationRecord)
		for _, r := range byBuyer[buyer] {
			if _, seen := rounds[r.Round]; !seen {
				rounds[r.Round] = r
			}
		}
		out = append(out, SelectionPattern{Buyer: buyer, Rounds: rounds})
	}
	return out
}

// Stats bundles every aggregate of a run.
type Stats struct {
	Records     int                `json:"records"`
	NoPurchases map[int]int        `json:"no_purchases_by_round"`
	ByRoundTier []RoundCount       `json:"by_round_tier"`
	ByRoundType []RoundCount       `json:"by_round_type"`
	Prices      []PriceSummary     `json:"prices_by_round"`
	Spend       []BuyerSpend       `json:"spend_by_buyer"`
	Utilization []Utilization      `json:"budget_utilization"`
	Preferences []Preference       `json:"preferences"`
	Patterns    []SelectionPattern `json:"selection_patterns"`
}

// Summarize computes Stats for a stored run.
func Summarize(run *domain.SimulationRun) Stats {
	misses := make(map[int]int)
	for i := range run.Budgets {
		misses[i+1] = 0
	}
	for _, n := range run.NoPurchases {
		misses[n.Round]++
	}
	return Stats{
		Records:     len(run.Records),
		NoPurchases: misses,
		ByRoundTier: CountByRoundTier(run.Records),
		ByRoundType: CountByRoundType(run.Records),
		Prices:      PriceByRound(run.Records),
		Spend:       SpendByBuyer(run.Records),
		Utilization: BudgetUtilization(run.Records, run.Budgets),
		Preferences: Preferences(run.Records),
		Patterns:    SelectionPatterns(run.Records),
	}
}

func groupByBuyer(records []domain.SimulationRecord) map[int][]domain.SimulationRecord {
	out := make(map[int][]domain.SimulationRecord)
	for _, r := range records {
		out[r.Buyer] = append(out[r.Buyer], r)
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
