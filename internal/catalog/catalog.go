// Package catalog holds the fixed inventory of candidate properties.
package catalog

import (
	"fmt"
	"slices"

	"github.com/ashureev/house-lab/internal/domain"
	"github.com/ashureev/house-lab/internal/rng"
)

func benchmark(v float64) *float64 { return &v }

var defaultRows = []domain.Property{
	{ID: 1, Price: 90, Tier: domain.TierValue, Type: domain.TypeLocation, Features: "Basic location", Benchmark: benchmark(85)},
	{ID: 2, Price: 100, Tier: domain.TierValue, Type: domain.TypeProperty, Features: "Standard features"},
	{ID: 3, Price: 115, Tier: domain.TierMedian, Type: domain.TypeLocation, Features: "Commercial area", Benchmark: benchmark(110)},
	{ID: 4, Price: 115, Tier: domain.TierMedian, Type: domain.TypeProperty, Features: "Larger space"},
	{ID: 5, Price: 125, Tier: domain.TierMedian, Type: domain.TypeLocation, Features: "Business zone", Benchmark: benchmark(120)},
	{ID: 6, Price: 125, Tier: domain.TierMedian, Type: domain.TypeProperty, Features: "Modern amenities"},
	{ID: 7, Price: 140, Tier: domain.TierPremium, Type: domain.TypeLocation, Features: "School district", Benchmark: benchmark(135)},
	{ID: 8, Price: 140, Tier: domain.TierPremium, Type: domain.TypeProperty, Features: "Functional backyard"},
	{ID: 9, Price: 150, Tier: domain.TierPremium, Type: domain.TypeLocation, Features: "New constructions", Benchmark: benchmark(145)},
	{ID: 10, Price: 150, Tier: domain.TierPremium, Type: domain.TypeProperty, Features: "Luxury finishes"},
}

// Catalog is an ordered, read-only set of properties indexed by id.
type Catalog struct {
	rows []domain.Property
	byID map[int]int
}

// Default returns the standard ten-row catalog.
func Default() *Catalog {
	c, err := New(defaultRows)
	if err != nil {
		panic("catalog: invalid default rows: " + err.Error())
	}
	return c
}

// New builds a catalog from rows. Ids must be unique and positive, prices
// positive, and a benchmark present exactly on Location rows.
func New(rows []domain.Property) (*Catalog, error) {
	c := &Catalog{
		rows: make([]domain.Property, 0, len(rows)),
		byID: make(map[int]int, len(rows)),
	}
	for _, p := range rows {
		if p.ID <= 0 {
			return nil, fmt.Errorf("property %d: id must be positive", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("property %d: duplicate id", p.ID)
		}
		if p.Price <= 0 {
			return nil, fmt.Errorf("property %d: price must be positive", p.ID)
		}
		if (p.Type == domain.TypeLocation) != (p.Benchmark != nil) {
			return nil, fmt.Errorf("property %d: benchmark must be set exactly on Location rows", p.ID)
		}
		if p.Benchmark != nil {
			p.Benchmark = benchmark(*p.Benchmark)
		}
		c.byID[p.ID] = len(c.rows)
		c.rows = append(c.rows, p)
	}
	return c, nil
}

// ListAll returns every property in catalog order.
func (c *Catalog) ListAll() []domain.Property {
	return slices.Clone(c.rows)
}

// Len returns the number of rows.
func (c *Catalog) Len() int {
	return len(c.rows)
}

// Lookup returns the property with the given id.
func (c *Catalog) Lookup(id int) (domain.Property, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Property{}, false
	}
	return c.rows[i], true
}

// MustLookup is Lookup for ids already known to be present.
func (c *Catalog) MustLookup(id int) domain.Property {
	p, ok := c.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("catalog: unknown property %d", id))
	}
	return p
}

// SampleSubset draws k distinct properties from rows without replacement.
// The result order is the draw order. It fails when k is negative or larger
// than len(rows).
func SampleSubset(rows []domain.Property, k int, r rng.Source) ([]domain.Property, error) {
	if k < 0 || k > len(rows) {
		return nil, fmt.Errorf("sample %d of %d properties", k, len(rows))
	}
	pool := slices.Clone(rows)
	for i := 0; i < k; i++ {
		j := i + r.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k], nil
}

// IDs returns the ids of props in order.
func IDs(props []domain.Property) []int {
	ids := make([]int, len(props))
	for i, p := range props {
		ids[i] = p.ID
	}
	return ids
}
