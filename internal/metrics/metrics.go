package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfbot_orders_submitted_total",
			Help: "Limit orders accepted by the venue",
		},
		[]string{"side"},
	)

	OrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfbot_orders_filled_total",
			Help: "Orders confirmed filled by the watcher",
		},
		[]string{"side"},
	)

	OrderResubmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bfbot_order_resubmits_total",
			Help: "Orders resubmitted after expiring unfilled",
		},
	)

	OrderCancels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfbot_order_cancels_total",
			Help: "Cancellation requests by result",
		},
		[]string{"result"},
	)

	RetryExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfbot_retry_exhausted_total",
			Help: "Lifecycles rolled back after exhausting the watcher budget",
		},
		[]string{"phase"},
	)

	Actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bfbot_actions_total",
			Help: "Strategy actions evaluated",
		},
		[]string{"strategy", "action"},
	)

	RealizedProfit = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bfbot_realized_profit",
			Help: "Realized profit in quote currency",
		},
		[]string{"strategy"},
	)

	// bfbot_grid_legs reports how many grid legs are in each lifecycle state after a tick.
	GridLegs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bfbot_grid_legs",
			Help: "Grid legs by lifecycle state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted,
		OrdersFilled,
		OrderResubmits,
		OrderCancels,
		RetryExhausted,
		Actions,
		RealizedProfit,
		GridLegs,
	)
}
