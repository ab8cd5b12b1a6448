package bitflyer

import (
	"bfbot/internal/models"
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

func (c *Client) Health(ctx context.Context, pair string) (models.Health, error) {
	params := url.Values{}
	params.Set("product_code", pair)

	var resp healthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/gethealth", params, nil, false, &resp); err != nil {
		return models.Health{}, err
	}
	return models.Health{Status: models.HealthStatus(resp.Status)}, nil
}

func (c *Client) Ticker(ctx context.Context, pair string) (models.Ticker, error) {
	if c.quotes != nil {
		if quote, ok := c.quotes.Latest(pair); ok && c.now().Sub(quote.Timestamp) <= c.quoteMaxAge {
			return quote, nil
		}
	}

	params := url.Values{}
	params.Set("product_code", pair)

	var resp tickerResponse
	if err := c.doRequest(ctx, http.MethodGet, "/v1/ticker", params, nil, false, &resp); err != nil {
		return models.Ticker{}, err
	}
	if !resp.BestBid.IsPositive() || !resp.BestAsk.IsPositive() {
		return models.Ticker{}, errors.Errorf("Пустая котировка для %s", pair)
	}

	return models.Ticker{
		Pair:      pair,
		BestBid:   resp.BestBid,
		BestAsk:   resp.BestAsk,
		Timestamp: parseTime(resp.Timestamp),
	}, nil
}
