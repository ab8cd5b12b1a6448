package engine

import (
	"bfbot/internal/lifecycle"
	"bfbot/internal/models"
	"bfbot/internal/strategy"

	"github.com/shopspring/decimal"
)

// CalcLegLevels places leg rank openRange further from basePrice per rank and its take-profit closeRange past its entry.
func CalcLegLevels(basePrice, openRange, closeRange float64, rank int, side models.OrderSide) (strategy.Levels, error) {
	shift := float64(rank) * openRange
	return strategy.GridLevels(basePrice, shift, closeRange-shift, side)
}

// SumProfit adds up realized profit of closed lifecycles, skipping the rest.
func SumProfit(lifecycles []*lifecycle.Lifecycle) decimal.Decimal {
	total := decimal.Zero
	for _, lc := range lifecycles {
		if profit, ok := lc.Profit(); ok {
			total = total.Add(profit)
		}
	}
	return total
}
