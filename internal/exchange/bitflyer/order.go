package bitflyer

import (
	"bfbot/internal/models"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

func (c *Client) SubmitOrder(ctx context.Context, order models.OrderRequest) (string, error) {
	orderType := order.Type
	if orderType == "" {
		orderType = models.OrderTypeLimit
	}

	body := childOrderRequest{
		ProductCode:    order.Pair,
		ChildOrderType: string(orderType),
		Side:           string(order.Side),
		Price:          order.Price.InexactFloat64(),
		Size:           order.Size.InexactFloat64(),
		MinuteToExpire: order.ExpiryMinutes,
		TimeInForce:    string(order.TimeInForce),
	}

	var resp childOrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/me/sendchildorder", nil, body, true, &resp); err != nil {
		return "", err
	}
	if resp.AcceptanceID == "" {
		return "", errors.New("Биржа не вернула идентификатор ордера")
	}

	c.logEntry().WithFields(map[string]interface{}{
		"order_id": resp.AcceptanceID,
		"side":     order.Side,
		"price":    order.Price.String(),
		"size":     order.Size.String(),
	}).Debug("Ордер принят биржей.")
	return resp.AcceptanceID, nil
}

func (c *Client) Executions(ctx context.Context, pair, acceptanceID string, count int) ([]models.Execution, error) {
	params := url.Values{}
	params.Set("product_code", pair)
	params.Set("child_order_acceptance_id", acceptanceID)
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	var resp []execution
	if err := c.doRequest(ctx, http.MethodGet, "/v1/me/getexecutions", params, nil, true, &resp); err != nil {
		return nil, err
	}

	execs := make([]models.Execution, 0, len(resp))
	for _, item := range resp {
		execs = append(execs, models.Execution{
			ID:           item.ID,
			AcceptanceID: item.AcceptanceID,
			Side:         models.OrderSide(item.Side),
			Price:        item.Price,
			Size:         item.Size,
			Commission:   item.Commission,
			ExecTime:     parseTime(item.ExecDate),
		})
	}
	return execs, nil
}

func (c *Client) CancelOrder(ctx context.Context, pair, acceptanceID string) error {
	body := cancelRequest{
		ProductCode:  pair,
		AcceptanceID: acceptanceID,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/me/cancelchildorder", nil, body, true, nil)
}
