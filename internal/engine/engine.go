package engine

import (
	"bfbot/internal/config"
	"bfbot/internal/exchange"
	"bfbot/internal/lifecycle"
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Engine builds the strategy selected by runtime.mode and runs it until ctx ends.
type Engine struct {
	cfg     *config.Config
	client  exchange.Client
	feed    exchange.PriceFeed
	archive CandleArchive
	log     *logger.Logger

	mu     sync.RWMutex
	status func() interface{}
	result *Result
}

func New(cfg *config.Config, client exchange.Client, feed exchange.PriceFeed, archive CandleArchive, log *logger.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		client:  client,
		feed:    feed,
		archive: archive,
		log:     log,
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.log.WithComponent("engine").WithFields(map[string]interface{}{
		"mode":    e.cfg.Runtime.Mode,
		"pair":    e.cfg.Exchange.Pair,
		"dry_run": e.cfg.Runtime.DryRun,
	}).Info("Двигатель запущен.")

	var err error
	switch e.cfg.Runtime.Mode {
	case config.ModeGrid:
		err = e.runGrid(ctx)
	case config.ModeBreakout:
		err = e.runBreakout(ctx)
	case config.ModeBacktest:
		err = e.runBacktest(ctx)
	default:
		return fmt.Errorf("Неизвестный режим: %s", e.cfg.Runtime.Mode)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) runGrid(ctx context.Context) error {
	cfg, err := GridConfigFrom(e.cfg)
	if err != nil {
		return err
	}
	grid, err := NewGrid(cfg, e.client, e.log)
	if err != nil {
		return err
	}
	e.setStatus(func() interface{} { return grid.Status() })
	return grid.Run(ctx)
}

func (e *Engine) runBreakout(ctx context.Context) error {
	breakout, err := NewBreakout(BreakoutConfigFrom(e.cfg), e.client, e.feed, e.log)
	if err != nil {
		return err
	}
	e.setStatus(func() interface{} { return breakout.Status() })
	return breakout.Run(ctx)
}

func (e *Engine) runBacktest(ctx context.Context) error {
	bt := NewBacktest(BacktestConfigFrom(e.cfg), e.feed, e.archive, e.log)
	result, err := bt.Run(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.result = &result
	e.mu.Unlock()
	e.setStatus(func() interface{} { return result })
	return nil
}

func (e *Engine) setStatus(fn func() interface{}) {
	e.mu.Lock()
	e.status = fn
	e.mu.Unlock()
}

// Status is served on /healthz.
func (e *Engine) Status() map[string]interface{} {
	e.mu.RLock()
	fn := e.status
	e.mu.RUnlock()

	out := map[string]interface{}{
		"mode":    e.cfg.Runtime.Mode,
		"pair":    e.cfg.Exchange.Pair,
		"dry_run": e.cfg.Runtime.DryRun,
	}
	if fn != nil {
		out["strategy"] = fn()
	}
	return out
}

// Result is the finished backtest, nil in the live modes or before the replay is done.
func (e *Engine) Result() *Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.result
}

func orderTemplate(cfg *config.Config, lot float64, ttl time.Duration) lifecycle.Config {
	return lifecycle.Config{
		Pair:             cfg.Exchange.Pair,
		Lot:              decimal.NewFromFloat(lot),
		Slippage:         decimal.NewFromFloat(cfg.Order.Slippage),
		FillWait:         cfg.Order.FillWait,
		OrderTTL:         ttl,
		MaxResubmits:     cfg.Order.MaxResubmits,
		MaxQueryFailures: cfg.Order.MaxQueryFailures,
		ExecutionCount:   cfg.Order.ExecutionCount,
		TimeInForce:      models.TimeInForce(strings.ToUpper(cfg.Order.TimeInForce)),
	}
}

func GridConfigFrom(cfg *config.Config) (GridConfig, error) {
	side, err := normalizeSide(cfg.Grid.Side)
	if err != nil {
		return GridConfig{}, err
	}
	return GridConfig{
		Pair:         cfg.Exchange.Pair,
		Side:         side,
		Legs:         cfg.Grid.Legs,
		BasePrice:    cfg.Grid.BasePrice,
		OpenRange:    cfg.Grid.OpenRange,
		CloseRange:   cfg.Grid.CloseRange,
		TickInterval: cfg.Grid.TickInterval,
		Order:        orderTemplate(cfg, cfg.Grid.Lot, cfg.Grid.OrderTTL),
	}, nil
}

func BreakoutConfigFrom(cfg *config.Config) BreakoutConfig {
	return BreakoutConfig{
		Pair:              cfg.Exchange.Pair,
		CandleSize:        cfg.Breakout.CandleSize,
		HistoryMultiplier: cfg.Breakout.HistoryMultiplier,
		EntryTerm:         cfg.Breakout.EntryTerm,
		CloseTerm:         cfg.Breakout.CloseTerm,
		TickInterval:      cfg.Breakout.TickInterval,
		SubmitAttempts:    cfg.Order.SubmitAttempts,
		SubmitRetryDelay:  cfg.Order.SubmitRetryDelay,
		Order:             orderTemplate(cfg, cfg.Breakout.Lot, cfg.Order.OrderTTL),
	}
}

func BacktestConfigFrom(cfg *config.Config) BacktestConfig {
	return BacktestConfig{
		Pair:              cfg.Exchange.Pair,
		Lot:               decimal.NewFromFloat(cfg.Breakout.Lot),
		CandleSize:        cfg.Breakout.CandleSize,
		HistoryMultiplier: cfg.Backtest.HistoryMultiplier,
		EntryTerm:         cfg.Breakout.EntryTerm,
		CloseTerm:         cfg.Breakout.CloseTerm,
	}
}
