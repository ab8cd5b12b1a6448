package exchange

import (
	"bfbot/internal/models"
	"context"
	"errors"
	"time"
)

var (
	ErrVenueDegraded      = errors.New("Биржа не принимает ордера")
	ErrQuoteUnavailable   = errors.New("Котировка недоступна")
	ErrSubmissionRejected = errors.New("Ордер отклонён биржей")
	ErrExecutionQuery     = errors.New("Не удалось получить исполнения")
	ErrCancelRejected     = errors.New("Отмена ордера отклонена")
)

// Client is the venue surface the order lifecycle consumes.
type Client interface {
	Health(ctx context.Context, pair string) (models.Health, error)
	Ticker(ctx context.Context, pair string) (models.Ticker, error)
	SubmitOrder(ctx context.Context, order models.OrderRequest) (string, error)
	Executions(ctx context.Context, pair, acceptanceID string, count int) ([]models.Execution, error)
	CancelOrder(ctx context.Context, pair, acceptanceID string) error
}

type PriceFeed interface {
	Price(ctx context.Context) (float64, error)
	OHLC(ctx context.Context, after, period time.Duration) ([]models.Candle, error)
}
