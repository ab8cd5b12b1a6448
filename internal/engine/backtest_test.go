package engine

import (
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"bfbot/internal/store"
	"bfbot/internal/strategy"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backtestConfig() BacktestConfig {
	return BacktestConfig{
		Pair:              "BTC_JPY",
		Lot:               decimal.NewFromInt(1),
		CandleSize:        time.Minute,
		HistoryMultiplier: 100,
		EntryTerm:         3,
		CloseTerm:         2,
	}
}

var replayCloses = []float64{100, 101, 102, 103, 110, 111, 105, 104, 90, 91}

func TestReplayActions(t *testing.T) {
	result, err := Replay(backtestConfig(), candlesFromCloses(replayCloses...))
	require.NoError(t, err)

	want := []strategy.Action{
		strategy.ActionBuy,
		strategy.ActionHold,
		strategy.ActionHold,
		strategy.ActionExit,
		strategy.ActionSell,
		strategy.ActionHold,
	}
	require.Len(t, result.Steps, len(want))
	for i, action := range want {
		assert.Equal(t, action, result.Steps[i].Action, "шаг %d", i)
	}
	assert.Equal(t, strategy.PositionFlat, result.Steps[0].Position)
	assert.Equal(t, strategy.PositionLong, result.Steps[3].Position)
	assert.Equal(t, strategy.PositionShort, result.Steps[5].Position)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, models.OrderSideBuy, trade.Side)
	assert.True(t, trade.Open.Price.Equal(dec(103)))
	assert.True(t, trade.Close.Price.Equal(dec(105)))
	assert.True(t, result.Total.Equal(dec(2)), "total %s", result.Total)
}

func TestReplayIsDeterministic(t *testing.T) {
	candles := candlesFromCloses(replayCloses...)
	first, err := Replay(backtestConfig(), candles)
	require.NoError(t, err)
	second, err := Replay(backtestConfig(), candles)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReplayNeedsWarmup(t *testing.T) {
	_, err := Replay(backtestConfig(), candlesFromCloses(1, 2, 3, 4))
	assert.ErrorIs(t, err, strategy.ErrInsufficientData)

	cfg := backtestConfig()
	cfg.EntryTerm = 0
	_, err = Replay(cfg, candlesFromCloses(replayCloses...))
	assert.ErrorIs(t, err, strategy.ErrInvalidInput)
}

func TestBacktestArchivesFeedWindow(t *testing.T) {
	ctx := context.Background()
	archive, err := store.Open(filepath.Join(t.TempDir(), "candles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	feed := &fakeFeed{}
	feed.setCloses(replayCloses...)
	base, _ := test.NewNullLogger()
	bt := NewBacktest(backtestConfig(), feed, archive, logger.Wrap(base))

	first, err := bt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.ohlcCall)

	// The second run replays from the archive without touching the feed.
	feed.setCloses(1, 2)
	second, err := bt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.ohlcCall)
	assert.True(t, first.Total.Equal(second.Total))
	assert.Len(t, second.Steps, len(first.Steps))
}

func TestBacktestWithoutArchiveRetriesFeed(t *testing.T) {
	feed := &fakeFeed{ohlcErrs: 1}
	feed.setCloses(replayCloses...)
	base, _ := test.NewNullLogger()
	bt := NewBacktest(backtestConfig(), feed, nil, logger.Wrap(base))
	bt.feedRetry = retryPolicy{Attempts: 2, Delay: time.Millisecond}

	result, err := bt.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, feed.ohlcCall)
	assert.True(t, result.Total.Equal(dec(2)))
}
