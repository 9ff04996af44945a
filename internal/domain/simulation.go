package domain

import "time"

// SimulationRecord is one purchase made by a simulated buyer.
type SimulationRecord struct {
	Round      int          `json:"round"`
	Buyer      int          `json:"buyer"`
	PropertyID int          `json:"property_id"`
	Price      float64      `json:"price"`
	Tier       Tier         `json:"tier"`
	Type       PropertyType `json:"type"`
}

// NoPurchase records a simulated buyer who could afford nothing in their draw.
type NoPurchase struct {
	Round  int     `json:"round"`
	Buyer  int     `json:"buyer"`
	Budget float64 `json:"budget"`
}

// SimulationRun is the stored result of one batch simulation.
type SimulationRun struct {
	ID          string             `json:"id"`
	Seed        int64              `json:"seed"`
	Buyers      int                `json:"buyers"`
	Budgets     []float64          `json:"budgets"`
	Records     []SimulationRecord `json:"records"`
	NoPurchases []NoPurchase       `json:"no_purchases"`
	CreatedAt   time.Time          `json:"created_at"`
}
