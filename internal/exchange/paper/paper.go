package paper

import (
	"bfbot/internal/exchange"
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type order struct {
	request   models.OrderRequest
	cancelled bool
	fill      *models.Execution
}

// Venue simulates the exchange for dry runs. Quotes come from the price feed with no spread and a limit
// order fills in full at its own price once the feed price crosses it.
type Venue struct {
	feed exchange.PriceFeed
	log  *logger.Logger
	now  func() time.Time

	mu     sync.Mutex
	orders map[string]*order
	execID int64
}

func New(feed exchange.PriceFeed, log *logger.Logger) *Venue {
	return &Venue{
		feed:   feed,
		log:    log,
		now:    time.Now,
		orders: map[string]*order{},
	}
}

func (v *Venue) Health(ctx context.Context, pair string) (models.Health, error) {
	return models.Health{Status: models.HealthNormal}, nil
}

func (v *Venue) Ticker(ctx context.Context, pair string) (models.Ticker, error) {
	price, err := v.feed.Price(ctx)
	if err != nil {
		return models.Ticker{}, err
	}
	quote := decimal.NewFromFloat(price)
	return models.Ticker{
		Pair:      pair,
		BestBid:   quote,
		BestAsk:   quote,
		Timestamp: v.now(),
	}, nil
}

func (v *Venue) SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if !req.Price.IsPositive() || !req.Size.IsPositive() {
		return "", fmt.Errorf("Некорректный ордер: цена %s, объём %s", req.Price, req.Size)
	}
	id := "PAPER-" + uuid.NewString()

	v.mu.Lock()
	v.orders[id] = &order{request: req}
	v.mu.Unlock()

	v.logEntry().WithFields(map[string]interface{}{
		"order_id": id,
		"side":     req.Side,
		"price":    req.Price.String(),
		"size":     req.Size.String(),
	}).Info("Бумажный ордер принят.")
	return id, nil
}

func (v *Venue) Executions(ctx context.Context, pair, acceptanceID string, count int) ([]models.Execution, error) {
	v.mu.Lock()
	ord, ok := v.orders[acceptanceID]
	if !ok {
		v.mu.Unlock()
		return nil, fmt.Errorf("Ордер %s не найден", acceptanceID)
	}
	if ord.fill != nil {
		fill := *ord.fill
		v.mu.Unlock()
		return []models.Execution{fill}, nil
	}
	if ord.cancelled {
		v.mu.Unlock()
		return nil, nil
	}
	v.mu.Unlock()

	price, err := v.feed.Price(ctx)
	if err != nil {
		return nil, err
	}
	market := decimal.NewFromFloat(price)

	v.mu.Lock()
	defer v.mu.Unlock()
	if ord.fill == nil && !ord.cancelled && crosses(ord.request, market) {
		v.execID++
		ord.fill = &models.Execution{
			ID:           v.execID,
			AcceptanceID: acceptanceID,
			Side:         ord.request.Side,
			Price:        ord.request.Price,
			Size:         ord.request.Size,
			ExecTime:     v.now(),
		}
	}
	if ord.fill == nil {
		return nil, nil
	}
	return []models.Execution{*ord.fill}, nil
}

func (v *Venue) CancelOrder(ctx context.Context, pair, acceptanceID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	ord, ok := v.orders[acceptanceID]
	if !ok {
		return fmt.Errorf("Ордер %s не найден", acceptanceID)
	}
	if ord.fill == nil {
		ord.cancelled = true
	}
	return nil
}

func crosses(req models.OrderRequest, market decimal.Decimal) bool {
	if req.Side == models.OrderSideBuy {
		return market.LessThanOrEqual(req.Price)
	}
	return market.GreaterThanOrEqual(req.Price)
}

func (v *Venue) logEntry() *logrus.Entry {
	return v.log.WithComponent("paper")
}
