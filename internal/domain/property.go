// Package domain contains core domain types for the house buying experiment.
package domain

import "fmt"

// Tier is the coarse price/quality bracket of a property.
type Tier string

const (
	TierValue   Tier = "Value"
	TierMedian  Tier = "Median"
	TierPremium Tier = "Premium"
)

// Tiers lists every tier in ascending price order.
var Tiers = []Tier{TierValue, TierMedian, TierPremium}

// PropertyType distinguishes properties that carry a comparable benchmark price.
type PropertyType string

const (
	// TypeLocation properties have a benchmark price that can be revealed.
	TypeLocation PropertyType = "Location"
	// TypeProperty properties have no benchmark.
	TypeProperty PropertyType = "Property"
)

// PropertyTypes lists every property type.
var PropertyTypes = []PropertyType{TypeLocation, TypeProperty}

// Property is an immutable catalog row.
type Property struct {
	ID        int          `json:"id"`
	Price     float64      `json:"price"`
	Tier      Tier         `json:"tier"`
	Type      PropertyType `json:"type"`
	Features  string       `json:"features"`
	Benchmark *float64     `json:"benchmark,omitempty"`
}

// HasBenchmark returns true if the property carries a benchmark price.
func (p Property) HasBenchmark() bool {
	return p.Type == TypeLocation && p.Benchmark != nil
}

// Redacted returns a copy of p without its benchmark. Benchmarks are only
// disclosed to a participant after an explicit reveal.
func (p Property) Redacted() Property {
	p.Benchmark = nil
	return p
}

func (p Property) String() string {
	return fmt.Sprintf("House %d (%s/%s, $%g)", p.ID, p.Tier, p.Type, p.Price)
}
