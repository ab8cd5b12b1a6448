package engine

import (
	"bfbot/internal/exchange"
	"bfbot/internal/exchange/paper"
	"bfbot/internal/lifecycle"
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeFeed struct {
	mu       sync.Mutex
	price    float64
	candles  []models.Candle
	ohlcErrs int
	ohlcCall int
}

func (f *fakeFeed) Price(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, nil
}

func (f *fakeFeed) OHLC(ctx context.Context, after, period time.Duration) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ohlcCall++
	if f.ohlcErrs > 0 {
		f.ohlcErrs--
		return nil, errors.New("feed unavailable")
	}
	out := make([]models.Candle, len(f.candles))
	copy(out, f.candles)
	return out, nil
}

func (f *fakeFeed) setPrice(price float64) {
	f.mu.Lock()
	f.price = price
	f.mu.Unlock()
}

func (f *fakeFeed) setCloses(closes ...float64) {
	f.mu.Lock()
	f.candles = candlesFromCloses(closes...)
	f.mu.Unlock()
}

// recordingClient runs orders through the paper venue and remembers every submission.
type recordingClient struct {
	exchange.Client

	mu      sync.Mutex
	orders  []models.OrderRequest
	health  models.HealthStatus
	rejects int
}

func (c *recordingClient) Health(ctx context.Context, pair string) (models.Health, error) {
	c.mu.Lock()
	status := c.health
	c.mu.Unlock()
	if status != "" {
		return models.Health{Status: status}, nil
	}
	return c.Client.Health(ctx, pair)
}

func (c *recordingClient) SubmitOrder(ctx context.Context, order models.OrderRequest) (string, error) {
	c.mu.Lock()
	if c.rejects > 0 {
		c.rejects--
		c.mu.Unlock()
		return "", errors.New("rejected")
	}
	c.orders = append(c.orders, order)
	c.mu.Unlock()
	return c.Client.SubmitOrder(ctx, order)
}

func (c *recordingClient) submitted() []models.OrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.OrderRequest, len(c.orders))
	copy(out, c.orders)
	return out
}

func (c *recordingClient) setHealth(status models.HealthStatus) {
	c.mu.Lock()
	c.health = status
	c.mu.Unlock()
}

func (c *recordingClient) setRejects(n int) {
	c.mu.Lock()
	c.rejects = n
	c.mu.Unlock()
}

func newPaperClient(price float64) (*recordingClient, *fakeFeed, *logger.Logger, *test.Hook) {
	feed := &fakeFeed{price: price}
	base, hook := test.NewNullLogger()
	log := logger.Wrap(base)
	return &recordingClient{Client: paper.New(feed, log)}, feed, log, hook
}

func testOrder(lot float64) lifecycle.Config {
	return lifecycle.Config{
		Lot:              decimal.NewFromFloat(lot),
		Slippage:         decimal.Zero,
		FillWait:         time.Millisecond,
		MaxResubmits:     2,
		MaxQueryFailures: 3,
	}
}

func candlesFromCloses(closes ...float64) []models.Candle {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, 0, len(closes))
	for i, c := range closes {
		out = append(out, models.Candle{
			CloseTime: start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		})
	}
	return out
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
