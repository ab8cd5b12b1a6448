package engine

import (
	"bfbot/internal/exchange"
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"bfbot/internal/strategy"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CandleArchive keeps fetched windows so a replay can be repeated offline.
type CandleArchive interface {
	SaveCandles(ctx context.Context, pair string, period time.Duration, candles []models.Candle) error
	LoadCandles(ctx context.Context, pair string, period time.Duration) ([]models.Candle, error)
}

type BacktestConfig struct {
	Pair              string
	Lot               decimal.Decimal
	CandleSize        time.Duration
	HistoryMultiplier int
	EntryTerm         int
	CloseTerm         int
}

type Step struct {
	CloseTime time.Time         `json:"close_time"`
	Position  strategy.Position `json:"-"`
	Action    strategy.Action   `json:"-"`
	Price     float64           `json:"price"`
}

type Trade struct {
	Side   models.OrderSide `json:"side"`
	Open   models.Fill      `json:"open"`
	Close  models.Fill      `json:"close"`
	Profit decimal.Decimal  `json:"profit"`
}

type Result struct {
	Steps  []Step          `json:"-"`
	Trades []Trade         `json:"trades"`
	Total  decimal.Decimal `json:"total"`
}

// Backtest fetches one candle window and replays it through the breakout signal with instant fills.
type Backtest struct {
	cfg     BacktestConfig
	feed    exchange.PriceFeed
	archive CandleArchive
	log     *logger.Logger

	feedRetry retryPolicy
}

// NewBacktest accepts a nil archive; the window is then always fetched from the feed.
func NewBacktest(cfg BacktestConfig, feed exchange.PriceFeed, archive CandleArchive, log *logger.Logger) *Backtest {
	return &Backtest{
		cfg:       cfg,
		feed:      feed,
		archive:   archive,
		log:       log,
		feedRetry: feedRetry,
	}
}

func (b *Backtest) Run(ctx context.Context) (Result, error) {
	candles, err := b.candles(ctx)
	if err != nil {
		return Result{}, err
	}
	b.logEntry().WithField("candles", len(candles)).Info("Бэктест запущен.")

	result, err := Replay(b.cfg, candles)
	if err != nil {
		return Result{}, err
	}

	for _, trade := range result.Trades {
		b.logEntry().WithFields(map[string]interface{}{
			"side":   trade.Side,
			"open":   trade.Open.Price.String(),
			"close":  trade.Close.Price.String(),
			"profit": trade.Profit.String(),
		}).Info("Сделка бэктеста.")
	}
	b.logEntry().WithFields(map[string]interface{}{
		"steps":  len(result.Steps),
		"trades": len(result.Trades),
		"total":  result.Total.String(),
	}).Info("Бэктест завершён.")
	return result, nil
}

func (b *Backtest) candles(ctx context.Context) ([]models.Candle, error) {
	if b.archive != nil {
		stored, err := b.archive.LoadCandles(ctx, b.cfg.Pair, b.cfg.CandleSize)
		if err != nil {
			return nil, fmt.Errorf("Не удалось прочитать архив свечей: %w", err)
		}
		if len(stored) > 0 {
			b.logEntry().WithField("candles", len(stored)).Info("Свечи взяты из архива.")
			return stored, nil
		}
	}

	history := b.cfg.CandleSize * time.Duration(b.cfg.HistoryMultiplier)
	candles, err := withRetry(ctx, b.logEntry(), b.feedRetry, func() ([]models.Candle, error) {
		return b.feed.OHLC(ctx, history, b.cfg.CandleSize)
	})
	if err != nil {
		return nil, fmt.Errorf("Не удалось получить свечи: %w", err)
	}

	if b.archive != nil {
		if err := b.archive.SaveCandles(ctx, b.cfg.Pair, b.cfg.CandleSize, candles); err != nil {
			b.logEntry().WithError(err).Warn("Не удалось сохранить свечи в архив.")
		}
	}
	return candles, nil
}

// Replay walks a growing prefix of candles and fills every order at the evaluation candle close.
func Replay(cfg BacktestConfig, candles []models.Candle) (Result, error) {
	if cfg.EntryTerm < 1 || cfg.CloseTerm < 1 {
		return Result{}, fmt.Errorf("%w: entry=%d close=%d", strategy.ErrInvalidInput, cfg.EntryTerm, cfg.CloseTerm)
	}
	warmup := cfg.EntryTerm
	if cfg.CloseTerm > warmup {
		warmup = cfg.CloseTerm
	}
	warmup++
	if len(candles) < warmup+1 {
		return Result{}, fmt.Errorf("%w: нужно %d свечей, есть %d", strategy.ErrInsufficientData, warmup+1, len(candles))
	}

	result := Result{Total: decimal.Zero}
	position := strategy.PositionFlat
	var open models.Fill

	for cursor := warmup + 1; cursor <= len(candles); cursor++ {
		prefix := candles[:cursor]
		action, err := strategy.NextAction(position, cfg.EntryTerm, cfg.CloseTerm, prefix)
		if err != nil {
			return Result{}, err
		}

		eval := prefix[len(prefix)-2]
		result.Steps = append(result.Steps, Step{
			CloseTime: eval.CloseTime,
			Position:  position,
			Action:    action,
			Price:     eval.Close,
		})

		switch action {
		case strategy.ActionBuy, strategy.ActionSell:
			position = strategy.PositionLong
			if action == strategy.ActionSell {
				position = strategy.PositionShort
			}
			open = instantFill(position.Side(), eval, cfg.Lot)
		case strategy.ActionExit:
			side := position.Side()
			closeFill := instantFill(side.Opposite(), eval, cfg.Lot)
			profit := models.RealizedProfit(side, open, closeFill)
			result.Trades = append(result.Trades, Trade{Side: side, Open: open, Close: closeFill, Profit: profit})
			result.Total = result.Total.Add(profit)
			position = strategy.PositionFlat
		}
	}
	return result, nil
}

func instantFill(side models.OrderSide, eval models.Candle, lot decimal.Decimal) models.Fill {
	return models.Fill{
		AcceptanceID: "BACKTEST",
		Side:         side,
		Price:        decimal.NewFromFloat(eval.Close),
		Lot:          lot,
		Timestamp:    eval.CloseTime,
	}
}

func (b *Backtest) logEntry() *logrus.Entry {
	return componentEntry(b.log, "backtest", b.cfg.Pair)
}
