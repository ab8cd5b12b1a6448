package bitflyer

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02T15:04:05.999999999"

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"error_message"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type tickerResponse struct {
	ProductCode string          `json:"product_code"`
	Timestamp   string          `json:"timestamp"`
	BestBid     decimal.Decimal `json:"best_bid"`
	BestAsk     decimal.Decimal `json:"best_ask"`
	LastPrice   decimal.Decimal `json:"ltp"`
}

type childOrderRequest struct {
	ProductCode    string  `json:"product_code"`
	ChildOrderType string  `json:"child_order_type"`
	Side           string  `json:"side"`
	Price          float64 `json:"price"`
	Size           float64 `json:"size"`
	MinuteToExpire int     `json:"minute_to_expire,omitempty"`
	TimeInForce    string  `json:"time_in_force,omitempty"`
}

type childOrderResponse struct {
	AcceptanceID string `json:"child_order_acceptance_id"`
}

type cancelRequest struct {
	ProductCode  string `json:"product_code"`
	AcceptanceID string `json:"child_order_acceptance_id"`
}

type execution struct {
	ID           int64           `json:"id"`
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	ExecDate     string          `json:"exec_date"`
	ChildOrderID string          `json:"child_order_id"`
	Commission   decimal.Decimal `json:"commission"`
	AcceptanceID string          `json:"child_order_acceptance_id"`
}

// parseTime reads venue timestamps, which are UTC with or without a trailing Z.
func parseTime(value string) time.Time {
	ts, err := time.ParseInLocation(timeLayout, strings.TrimSuffix(value, "Z"), time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}
