package engine

import (
	"bfbot/internal/lifecycle"

	"github.com/shopspring/decimal"
)

// Leg is one rung of the grid. Lifecycle is replaced with a fresh one each time the leg is recycled.
type Leg struct {
	Rank      int
	Open      decimal.Decimal
	Close     decimal.Decimal
	Lifecycle *lifecycle.Lifecycle
	Cycles    int

	realized bool
}

type LegStatus struct {
	Rank   int    `json:"rank"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	State  string `json:"state"`
	Phase  string `json:"phase"`
	Cycles int    `json:"cycles"`
	Error  string `json:"error,omitempty"`
}

type GridStatus struct {
	Legs     []LegStatus `json:"legs"`
	Realized string      `json:"realized"`
}

type BreakoutStatus struct {
	Position  string `json:"position"`
	Active    string `json:"active,omitempty"`
	Completed int    `json:"completed"`
	Realized  string `json:"realized"`
}
