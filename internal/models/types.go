package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string
type OrderType string
type TimeInForce string
type HealthStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"

	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"

	HealthNormal    HealthStatus = "NORMAL"
	HealthBusy      HealthStatus = "BUSY"
	HealthVeryBusy  HealthStatus = "VERY BUSY"
	HealthSuperBusy HealthStatus = "SUPER BUSY"
	HealthNoOrder   HealthStatus = "NO ORDER"
	HealthStop      HealthStatus = "STOP"
)

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

func (s HealthStatus) Tradable() bool {
	return s != "" && s != HealthNoOrder && s != HealthStop
}

// Candle is one OHLC bucket. Feeds return them oldest first and the last one may still be forming.
type Candle struct {
	CloseTime   time.Time `json:"close_time"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	QuoteVolume float64   `json:"quote_volume"`
}

type Ticker struct {
	Pair      string          `json:"pair"`
	BestBid   decimal.Decimal `json:"best_bid"`
	BestAsk   decimal.Decimal `json:"best_ask"`
	Timestamp time.Time       `json:"timestamp"`
}

type Health struct {
	Status HealthStatus `json:"status"`
}

type OrderRequest struct {
	Pair          string          `json:"pair"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Size          decimal.Decimal `json:"size"`
	TimeInForce   TimeInForce     `json:"time_in_force"`
	ExpiryMinutes int             `json:"expiry_minutes"`
}

type Execution struct {
	ID           int64           `json:"id"`
	AcceptanceID string          `json:"acceptance_id"`
	Side         OrderSide       `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	Commission   decimal.Decimal `json:"commission"`
	ExecTime     time.Time       `json:"exec_time"`
}

type Fill struct {
	AcceptanceID string          `json:"acceptance_id"`
	Side         OrderSide       `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Lot          decimal.Decimal `json:"lot"`
	Timestamp    time.Time       `json:"timestamp"`
}

// FillFromExecutions folds the executions of one order into a single volume-weighted fill.
func FillFromExecutions(acceptanceID string, execs []Execution) (Fill, bool) {
	var lot, cost decimal.Decimal
	var last Execution
	count := 0
	for _, exec := range execs {
		if exec.Size.IsZero() {
			continue
		}
		lot = lot.Add(exec.Size)
		cost = cost.Add(exec.Price.Mul(exec.Size))
		last = exec
		count++
	}
	if count == 0 {
		return Fill{}, false
	}
	price := last.Price
	if count > 1 {
		price = cost.Div(lot)
	}
	return Fill{
		AcceptanceID: acceptanceID,
		Side:         last.Side,
		Price:        price,
		Lot:          lot,
		Timestamp:    last.ExecTime,
	}, true
}

// MergeFills joins the fills of two orders on the same side into one volume-weighted fill.
func MergeFills(a, b Fill) Fill {
	lot := a.Lot.Add(b.Lot)
	if lot.IsZero() {
		return b
	}
	merged := b
	merged.Lot = lot
	merged.Price = a.Price.Mul(a.Lot).Add(b.Price.Mul(b.Lot)).Div(lot)
	if a.Timestamp.After(b.Timestamp) {
		merged.Timestamp = a.Timestamp
	}
	return merged
}

// RealizedProfit is close proceeds minus open cost for a long leg and the mirror for a short one.
func RealizedProfit(side OrderSide, open, close Fill) decimal.Decimal {
	openValue := open.Price.Mul(open.Lot)
	closeValue := close.Price.Mul(close.Lot)
	if side == OrderSideBuy {
		return closeValue.Sub(openValue)
	}
	return openValue.Sub(closeValue)
}
