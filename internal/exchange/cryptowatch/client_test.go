package cryptowatch

import (
	"bfbot/internal/logger"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base, _ := test.NewNullLogger()
	return New(srv.URL+"/markets/bitflyer/btcjpy", logger.Wrap(base))
}

func TestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/bitflyer/btcjpy/price", r.URL.Path)
		_, _ = io.WriteString(w, `{"result":{"price":982450},"allowance":{"cost":1}}`)
	})

	price, err := client.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 982450.0, price)
}

func TestOHLC(t *testing.T) {
	now := time.Unix(1700000000, 0)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/bitflyer/btcjpy/ohlc", r.URL.Path)
		assert.Equal(t, "1699856000", r.URL.Query().Get("after"))
		assert.Equal(t, "14400", r.URL.Query().Get("periods"))
		_, _ = io.WriteString(w, `{"result":{"14400":[
			[1699870400,101,110,100,105,12.5,1300000],
			[1699856000,100,102,99,101,10,1000000],
			[1699884800,105,106,104,104]
		]}}`)
	})
	client.now = func() time.Time { return now }

	candles, err := client.OHLC(context.Background(), 40*time.Hour, 4*time.Hour)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Unix(1699856000, 0).UTC(), candles[0].CloseTime)
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 105.0, candles[1].Close)
	assert.Equal(t, 1300000.0, candles[1].QuoteVolume)
}

func TestOHLCErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("periods") == "60" {
			_, _ = io.WriteString(w, `{"result":{"14400":[]}}`)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"Out of allowance"}`)
	})

	_, err := client.OHLC(context.Background(), time.Hour, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "60")

	_, err = client.OHLC(context.Background(), time.Hour, 4*time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Out of allowance")
	assert.Contains(t, err.Error(), "429")

	_, err = client.OHLC(context.Background(), time.Hour, 0)
	require.Error(t, err)
}
