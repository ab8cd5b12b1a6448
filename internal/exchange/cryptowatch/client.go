package cryptowatch

import (
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client reads prices and candles of one market, e.g. https://api.cryptowat.ch/markets/bitflyer/btcjpy.
type Client struct {
	http *resty.Client
	log  *logger.Logger
	now  func() time.Time
}

type priceResponse struct {
	Result struct {
		Price float64 `json:"price"`
	} `json:"result"`
}

type ohlcResponse struct {
	Result map[string][][]float64 `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(marketURL string, log *logger.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(marketURL, "/")).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
		log: log,
		now: time.Now,
	}
}

func (c *Client) Price(ctx context.Context) (float64, error) {
	var resp priceResponse
	if err := c.get(ctx, "/price", nil, &resp); err != nil {
		return 0, err
	}
	if resp.Result.Price <= 0 {
		return 0, errors.New("Фид вернул пустую цену")
	}
	return resp.Result.Price, nil
}

// OHLC returns candles of the given period closed during the last `after`, oldest first.
func (c *Client) OHLC(ctx context.Context, after, period time.Duration) ([]models.Candle, error) {
	periodSec := int64(period / time.Second)
	if periodSec <= 0 {
		return nil, errors.Errorf("Некорректный период свечей: %s", period)
	}
	params := map[string]string{
		"after":   strconv.FormatInt(c.now().Add(-after).Unix(), 10),
		"periods": strconv.FormatInt(periodSec, 10),
	}

	var resp ohlcResponse
	if err := c.get(ctx, "/ohlc", params, &resp); err != nil {
		return nil, err
	}

	rows, ok := resp.Result[strconv.FormatInt(periodSec, 10)]
	if !ok {
		return nil, errors.Errorf("Нет свечей с периодом %d сек.", periodSec)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			c.log.WithComponent("cryptowatch").WithField("row", row).Warn("Пропущена неполная свеча.")
			continue
		}
		candle := models.Candle{
			CloseTime: time.Unix(int64(row[0]), 0).UTC(),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		}
		if len(row) > 6 {
			candle.QuoteVolume = row[6]
		}
		candles = append(candles, candle)
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].CloseTime.Before(candles[j].CloseTime)
	})
	return candles, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return errors.Wrap(err, "Ошибка запроса к фиду")
	}
	if resp.IsError() {
		var apiErr errorResponse
		if jsonErr := json.Unmarshal(resp.Body(), &apiErr); jsonErr == nil && apiErr.Error != "" {
			return errors.Errorf("Ошибка фида: %s (http=%d)", apiErr.Error, resp.StatusCode())
		}
		return errors.Errorf("Неуспешный статус фида: %s", resp.Status())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrap(err, "Не удалось разобрать ответ фида")
	}
	return nil
}
