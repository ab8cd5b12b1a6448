package engine

import (
	"bfbot/internal/exchange"
	"bfbot/internal/lifecycle"
	"bfbot/internal/logger"
	"bfbot/internal/metrics"
	"bfbot/internal/models"
	"bfbot/internal/strategy"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type BreakoutConfig struct {
	Pair              string
	CandleSize        time.Duration
	HistoryMultiplier int
	EntryTerm         int
	CloseTerm         int
	TickInterval      time.Duration
	SubmitAttempts    int
	SubmitRetryDelay  time.Duration
	// Order is the lifecycle template; Pair comes from the config and Side from the signal.
	Order lifecycle.Config
}

// Breakout trades a single position slot on breakouts of the candle close range.
type Breakout struct {
	cfg    BreakoutConfig
	client exchange.Client
	feed   exchange.PriceFeed
	log    *logger.Logger

	feedRetry   retryPolicy
	submitRetry retryPolicy

	mu        sync.RWMutex
	position  strategy.Position
	active    *lifecycle.Lifecycle
	completed []*lifecycle.Lifecycle
}

func NewBreakout(cfg BreakoutConfig, client exchange.Client, feed exchange.PriceFeed, log *logger.Logger) (*Breakout, error) {
	if cfg.EntryTerm < 1 || cfg.CloseTerm < 1 {
		return nil, fmt.Errorf("%w: entry=%d close=%d", strategy.ErrInvalidInput, cfg.EntryTerm, cfg.CloseTerm)
	}
	if cfg.CandleSize < time.Minute {
		return nil, fmt.Errorf("%w: размер свечи %s", strategy.ErrInvalidInput, cfg.CandleSize)
	}
	if cfg.HistoryMultiplier < cfg.EntryTerm+2 || cfg.HistoryMultiplier < cfg.CloseTerm+2 {
		return nil, fmt.Errorf("%w: history_multiplier %d меньше окна сигнала", strategy.ErrInvalidInput, cfg.HistoryMultiplier)
	}
	cfg.Order.Pair = cfg.Pair

	return &Breakout{
		cfg:         cfg,
		client:      client,
		feed:        feed,
		log:         log,
		feedRetry:   feedRetry,
		submitRetry: retryPolicy{Attempts: cfg.SubmitAttempts, Delay: cfg.SubmitRetryDelay, Fixed: true},
		position:    strategy.PositionFlat,
	}, nil
}

func (b *Breakout) Run(ctx context.Context) error {
	b.logEntry().WithFields(map[string]interface{}{
		"candle_size": b.cfg.CandleSize.String(),
		"entry_term":  b.cfg.EntryTerm,
		"close_term":  b.cfg.CloseTerm,
	}).Info("Стратегия пробоя запущена.")

	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := b.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logEntry().WithError(err).Error("Стратегия пробоя остановлена из-за ошибки.")
			return err
		}
		select {
		case <-ctx.Done():
			b.logEntry().Info("Стратегия пробоя остановлена.")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Breakout) Tick(ctx context.Context) error {
	history := b.cfg.CandleSize * time.Duration(b.cfg.HistoryMultiplier)
	candles, err := withRetry(ctx, b.logEntry(), b.feedRetry, func() ([]models.Candle, error) {
		return b.feed.OHLC(ctx, history, b.cfg.CandleSize)
	})
	if err != nil {
		return fmt.Errorf("Не удалось получить свечи: %w", err)
	}

	b.reconcile()

	b.mu.RLock()
	position := b.position
	b.mu.RUnlock()

	action, err := strategy.NextAction(position, b.cfg.EntryTerm, b.cfg.CloseTerm, candles)
	if err != nil {
		if errors.Is(err, strategy.ErrInsufficientData) {
			b.logEntry().WithError(err).Warn("Недостаточно свечей, ждём.")
			return nil
		}
		return err
	}
	metrics.Actions.WithLabelValues("breakout", action.String()).Inc()
	b.logEntry().WithFields(map[string]interface{}{
		"position": position.String(),
		"action":   action.String(),
		"candles":  len(candles),
	}).Info("Сигнал рассчитан.")

	switch action {
	case strategy.ActionBuy:
		err = b.enter(ctx, strategy.PositionLong)
	case strategy.ActionSell:
		err = b.enter(ctx, strategy.PositionShort)
	case strategy.ActionExit:
		err = b.exit(ctx)
	}
	if err != nil {
		return err
	}

	b.report()
	return nil
}

// reconcile moves a filled exit to the completed list and drops an entry that was never filled.
func (b *Breakout) reconcile() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active == nil {
		return
	}
	snap := b.active.Snapshot()
	switch snap.State {
	case lifecycle.StateClosed:
		b.completed = append(b.completed, b.active)
		b.active = nil
		b.position = strategy.PositionFlat
		b.logEntry().Info("Позиция закрыта.")
	case lifecycle.StateInit:
		b.active.Stop()
		b.active = nil
		b.position = strategy.PositionFlat
		b.logEntry().WithError(snap.Err).Warn("Вход не исполнен, позиция сброшена.")
	}
}

func (b *Breakout) enter(ctx context.Context, position strategy.Position) error {
	cfg := b.cfg.Order
	cfg.Side = position.Side()
	lc := lifecycle.New(ctx, cfg, b.client, b.log)

	err := withRetryVoid(ctx, b.logEntry(), b.submitRetry, func() error {
		return lc.Open(ctx)
	})
	if err != nil {
		lc.Stop()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logEntry().WithError(err).WithField("side", cfg.Side).Error("Не удалось открыть позицию.")
		return nil
	}

	b.mu.Lock()
	b.active = lc
	b.position = position
	b.mu.Unlock()

	b.logEntry().WithFields(map[string]interface{}{
		"position":  position.String(),
		"lifecycle": lc.ID(),
	}).Info("Позиция открывается.")
	return nil
}

func (b *Breakout) exit(ctx context.Context) error {
	b.mu.RLock()
	active := b.active
	b.mu.RUnlock()

	if active == nil {
		return nil
	}
	snap := active.Snapshot()
	if snap.State != lifecycle.StateHold {
		b.logEntry().WithFields(map[string]interface{}{
			"state": snap.State.String(),
			"phase": snap.Phase.String(),
		}).Info("Сигнал на выход, но позиция ещё не удерживается, ждём.")
		return nil
	}

	err := withRetryVoid(ctx, b.logEntry(), b.submitRetry, func() error {
		return active.Close(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logEntry().WithError(err).Error("Не удалось выставить выход, повторим на следующем тике.")
		return nil
	}
	b.logEntry().WithField("lifecycle", active.ID()).Info("Выход выставлен.")
	return nil
}

func (b *Breakout) report() {
	realized := b.Realized()
	metrics.RealizedProfit.WithLabelValues("breakout").Set(realized.InexactFloat64())

	b.mu.RLock()
	completed := len(b.completed)
	b.mu.RUnlock()

	b.logEntry().WithFields(map[string]interface{}{
		"realized":  realized.String(),
		"completed": completed,
	}).Info("Итог по закрытым сделкам.")
}

func (b *Breakout) Realized() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return SumProfit(b.completed)
}

func (b *Breakout) Position() strategy.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.position
}

func (b *Breakout) Status() BreakoutStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := BreakoutStatus{
		Position:  b.position.String(),
		Completed: len(b.completed),
		Realized:  SumProfit(b.completed).String(),
	}
	if b.active != nil {
		status.Active = b.active.State().String()
	}
	return status
}

func (b *Breakout) logEntry() *logrus.Entry {
	return componentEntry(b.log, "breakout", b.cfg.Pair)
}
