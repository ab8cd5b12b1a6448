package bitflyer

import (
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "key"
	testSecret = "secret"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base, _ := test.NewNullLogger()
	return New(srv.URL+"/", testKey, testSecret, logger.Wrap(base))
}

func assertSigned(t *testing.T, r *http.Request, body []byte) {
	t.Helper()
	ts := r.Header.Get("ACCESS-TIMESTAMP")
	assert.NotEmpty(t, ts)
	assert.Equal(t, testKey, r.Header.Get("ACCESS-KEY"))
	assert.Equal(t, sign(testSecret, ts+r.Method+r.URL.RequestURI()+string(body)), r.Header.Get("ACCESS-SIGN"))
}

func TestHealthAndTicker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC_JPY", r.URL.Query().Get("product_code"))
		assert.Empty(t, r.Header.Get("ACCESS-SIGN"))
		switch r.URL.Path {
		case "/v1/gethealth":
			_, _ = io.WriteString(w, `{"status":"SUPER BUSY"}`)
		case "/v1/ticker":
			_, _ = io.WriteString(w, `{"product_code":"BTC_JPY","timestamp":"2020-01-28T15:33:43.853","best_bid":982450,"best_ask":982600.5,"ltp":982500}`)
		default:
			http.NotFound(w, r)
		}
	})

	health, err := client.Health(context.Background(), "BTC_JPY")
	require.NoError(t, err)
	assert.Equal(t, models.HealthSuperBusy, health.Status)
	assert.True(t, health.Status.Tradable())

	ticker, err := client.Ticker(context.Background(), "BTC_JPY")
	require.NoError(t, err)
	assert.True(t, ticker.BestBid.Equal(decimal.NewFromInt(982450)))
	assert.True(t, ticker.BestAsk.Equal(decimal.RequireFromString("982600.5")))
	assert.Equal(t, time.Date(2020, 1, 28, 15, 33, 43, 853000000, time.UTC), ticker.Timestamp)
}

func TestSubmitOrderSignsBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/me/sendchildorder", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assertSigned(t, r, body)

		var req map[string]interface{}
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "BTC_JPY", req["product_code"])
		assert.Equal(t, "LIMIT", req["child_order_type"])
		assert.Equal(t, "BUY", req["side"])
		assert.Equal(t, float64(990000), req["price"])
		assert.Equal(t, 0.05, req["size"])
		assert.Equal(t, float64(1), req["minute_to_expire"])
		assert.Equal(t, "GTC", req["time_in_force"])

		_, _ = io.WriteString(w, `{"child_order_acceptance_id":"JRF20200128-153343-847779"}`)
	})

	id, err := client.SubmitOrder(context.Background(), models.OrderRequest{
		Pair:          "BTC_JPY",
		Side:          models.OrderSideBuy,
		Type:          models.OrderTypeLimit,
		Price:         decimal.NewFromInt(990000),
		Size:          decimal.RequireFromString("0.05"),
		TimeInForce:   models.TimeInForceGTC,
		ExpiryMinutes: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "JRF20200128-153343-847779", id)
}

func TestExecutionsSignsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/me/getexecutions", r.URL.Path)
		assertSigned(t, r, nil)
		assert.Equal(t, "JRF1", r.URL.Query().Get("child_order_acceptance_id"))
		assert.Equal(t, "10", r.URL.Query().Get("count"))

		_, _ = io.WriteString(w, `[{"id":1547864197,"side":"BUY","price":982450,"size":0.001,"exec_date":"2020-01-28T15:33:43.853","child_order_id":"JOR1","commission":0.0000011,"child_order_acceptance_id":"JRF1"}]`)
	})

	execs, err := client.Executions(context.Background(), "BTC_JPY", "JRF1", 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, int64(1547864197), execs[0].ID)
	assert.Equal(t, models.OrderSideBuy, execs[0].Side)
	assert.True(t, execs[0].Size.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, "JRF1", execs[0].AcceptanceID)
}

func TestCancelAndApiError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assertSigned(t, r, body)
		switch r.URL.Path {
		case "/v1/me/cancelchildorder":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"status":-200,"error_message":"Insufficient funds","data":null}`)
		}
	})

	require.NoError(t, client.CancelOrder(context.Background(), "BTC_JPY", "JRF1"))

	_, err := client.SubmitOrder(context.Background(), models.OrderRequest{
		Pair:  "BTC_JPY",
		Side:  models.OrderSideSell,
		Price: decimal.NewFromInt(1),
		Size:  decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Insufficient funds")
	assert.Contains(t, err.Error(), "status=-200")
}

type staticQuotes struct {
	ticker models.Ticker
}

func (s staticQuotes) Latest(pair string) (models.Ticker, bool) {
	return s.ticker, s.ticker.Pair == pair
}

func TestTickerPrefersFreshStreamQuote(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"best_bid":100,"best_ask":101}`)
	})

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }
	client.WithQuotes(staticQuotes{ticker: models.Ticker{
		Pair:      "BTC_JPY",
		BestBid:   decimal.NewFromInt(200),
		BestAsk:   decimal.NewFromInt(201),
		Timestamp: now.Add(-2 * time.Second),
	}}, 5*time.Second)

	ticker, err := client.Ticker(context.Background(), "BTC_JPY")
	require.NoError(t, err)
	assert.True(t, ticker.BestBid.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, int32(0), calls.Load())

	now = now.Add(time.Minute)
	ticker, err = client.Ticker(context.Background(), "BTC_JPY")
	require.NoError(t, err)
	assert.True(t, ticker.BestBid.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int32(1), calls.Load())
}
