package engine

import (
	"bfbot/internal/exchange"
	"bfbot/internal/lifecycle"
	"bfbot/internal/logger"
	"bfbot/internal/metrics"
	"bfbot/internal/models"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type GridConfig struct {
	Pair         string
	Side         models.OrderSide
	Legs         int
	BasePrice    float64
	OpenRange    float64
	CloseRange   float64
	TickInterval time.Duration
	// Order is the template for every leg's lifecycle; Pair and Side are taken from the grid.
	Order lifecycle.Config
}

// Grid keeps a ladder of legs: each leg enters only while the one above it holds a position
// and takes profit as soon as it is filled.
type Grid struct {
	cfg    GridConfig
	client exchange.Client
	log    *logger.Logger

	mu       sync.RWMutex
	legs     []*Leg
	realized decimal.Decimal
}

func NewGrid(cfg GridConfig, client exchange.Client, log *logger.Logger) (*Grid, error) {
	if cfg.Legs < 1 {
		return nil, fmt.Errorf("Количество ног сетки должно быть больше нуля: %d", cfg.Legs)
	}
	cfg.Order.Pair = cfg.Pair
	cfg.Order.Side = cfg.Side

	legs := make([]*Leg, 0, cfg.Legs)
	for rank := 0; rank < cfg.Legs; rank++ {
		levels, err := CalcLegLevels(cfg.BasePrice, cfg.OpenRange, cfg.CloseRange, rank, cfg.Side)
		if err != nil {
			return nil, fmt.Errorf("Не удалось рассчитать уровни ноги %d: %w", rank, err)
		}
		if !levels.Open.IsPositive() || !levels.Close.IsPositive() {
			return nil, fmt.Errorf("Нога %d выходит за пределы цены: вход %s, выход %s", rank, levels.Open, levels.Close)
		}
		legs = append(legs, &Leg{Rank: rank, Open: levels.Open, Close: levels.Close})
	}

	return &Grid{
		cfg:      cfg,
		client:   client,
		log:      log,
		legs:     legs,
		realized: decimal.Zero,
	}, nil
}

func (g *Grid) Run(ctx context.Context) error {
	g.logEntry().WithFields(map[string]interface{}{
		"legs":        len(g.legs),
		"base_price":  g.cfg.BasePrice,
		"open_range":  g.cfg.OpenRange,
		"close_range": g.cfg.CloseRange,
		"side":        g.cfg.Side,
	}).Info("Сетка запущена.")

	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := g.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logEntry().WithError(err).Error("Сетка остановлена из-за ошибки.")
			return err
		}
		select {
		case <-ctx.Done():
			g.logEntry().Info("Сетка остановлена.")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick walks the legs in rank order. Every leg is gated on the state its predecessor had when the tick began,
// so a leg that recycles during the tick is seen as CLOSED by the leg below it.
// Failures the next tick can retry are logged, anything else is returned.
func (g *Grid) Tick(ctx context.Context) error {
	snaps := make([]lifecycle.Snapshot, len(g.legs))
	for i, leg := range g.legs {
		if leg.Lifecycle == nil {
			g.replaceLifecycle(ctx, leg)
		}
		snaps[i] = leg.Lifecycle.Snapshot()
	}

	for i, leg := range g.legs {
		var pred *lifecycle.Snapshot
		if i > 0 {
			pred = &snaps[i-1]
		}

		if err := g.step(ctx, leg, pred); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !isRecoverable(err) {
				return fmt.Errorf("нога %d: %w", leg.Rank, err)
			}
			g.legEntry(leg).WithError(err).Warn("Не удалось обработать ногу, повторим на следующем тике.")
		}
	}
	g.report()
	return nil
}

func (g *Grid) step(ctx context.Context, leg *Leg, pred *lifecycle.Snapshot) error {
	snap := leg.Lifecycle.Snapshot()

	switch snap.State {
	case lifecycle.StateInit:
		if !predecessorHolds(pred) {
			return nil
		}
		g.legEntry(leg).Info("Выставляем вход.")
		return leg.Lifecycle.OpenAt(ctx, leg.Open)

	case lifecycle.StateHold:
		g.legEntry(leg).Info("Вход исполнен, выставляем тейк-профит.")
		return leg.Lifecycle.CloseAt(ctx, leg.Close)

	case lifecycle.StatePending:
		if snap.Phase == lifecycle.PhaseOpening && pred != nil && pred.State == lifecycle.StateClosed {
			g.legEntry(leg).Info("Предыдущая нога закрыта, отменяем вход.")
			return leg.Lifecycle.Cancel(ctx)
		}
		return nil

	case lifecycle.StateClosed:
		g.realize(leg)
		if !predecessorHolds(pred) {
			return nil
		}
		g.replaceLifecycle(ctx, leg)
		g.legEntry(leg).Info("Нога переоткрыта.")
		return leg.Lifecycle.OpenAt(ctx, leg.Open)
	}
	return nil
}

// predecessorHolds is true for rank 0 and while the leg above is in position.
// A leg places its take-profit on the first tick after its entry fills, so HOLD is seen for a single tick;
// PENDING in the closing phase still means the position is open and counts as holding.
func predecessorHolds(pred *lifecycle.Snapshot) bool {
	if pred == nil {
		return true
	}
	switch pred.State {
	case lifecycle.StateHold:
		return true
	case lifecycle.StatePending:
		return pred.Phase == lifecycle.PhaseClosing
	}
	return false
}

func (g *Grid) realize(leg *Leg) {
	if leg.realized {
		return
	}
	profit, ok := leg.Lifecycle.Profit()
	if !ok {
		return
	}

	g.mu.Lock()
	leg.realized = true
	g.realized = g.realized.Add(profit)
	total := g.realized
	g.mu.Unlock()

	g.legEntry(leg).WithFields(map[string]interface{}{
		"profit": profit.String(),
		"total":  total.String(),
	}).Info("Нога закрыта с прибылью.")
}

func (g *Grid) replaceLifecycle(ctx context.Context, leg *Leg) {
	lc := lifecycle.New(ctx, g.cfg.Order, g.client, g.log)

	g.mu.Lock()
	if leg.Lifecycle != nil {
		leg.Cycles++
	}
	leg.Lifecycle = lc
	leg.realized = false
	g.mu.Unlock()
}

func (g *Grid) report() {
	counts := map[lifecycle.State]int{}
	for _, leg := range g.legs {
		counts[leg.Lifecycle.State()]++
	}
	for _, state := range []lifecycle.State{lifecycle.StateInit, lifecycle.StatePending, lifecycle.StateHold, lifecycle.StateClosed} {
		metrics.GridLegs.WithLabelValues(state.String()).Set(float64(counts[state]))
	}

	realized := g.Realized()
	metrics.RealizedProfit.WithLabelValues("grid").Set(realized.InexactFloat64())
	g.logEntry().WithFields(map[string]interface{}{
		"realized": realized.String(),
		"init":     counts[lifecycle.StateInit],
		"pending":  counts[lifecycle.StatePending],
		"hold":     counts[lifecycle.StateHold],
		"closed":   counts[lifecycle.StateClosed],
	}).Debug("Тик сетки завершён.")
}

func (g *Grid) Realized() decimal.Decimal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.realized
}

func (g *Grid) Legs() []*Leg {
	return g.legs
}

func (g *Grid) Status() GridStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	status := GridStatus{Realized: g.realized.String()}
	for _, leg := range g.legs {
		ls := LegStatus{
			Rank:   leg.Rank,
			Open:   leg.Open.String(),
			Close:  leg.Close.String(),
			State:  lifecycle.StateInit.String(),
			Phase:  lifecycle.PhaseNone.String(),
			Cycles: leg.Cycles,
		}
		if leg.Lifecycle != nil {
			snap := leg.Lifecycle.Snapshot()
			ls.State = snap.State.String()
			ls.Phase = snap.Phase.String()
			if snap.Err != nil {
				ls.Error = snap.Err.Error()
			}
		}
		status.Legs = append(status.Legs, ls)
	}
	return status
}

func (g *Grid) logEntry() *logrus.Entry {
	return componentEntry(g.log, "grid", g.cfg.Pair)
}

func (g *Grid) legEntry(leg *Leg) *logrus.Entry {
	return g.logEntry().WithFields(map[string]interface{}{
		"rank":  leg.Rank,
		"open":  leg.Open.String(),
		"close": leg.Close.String(),
	})
}
