package stream

import (
	"bfbot/internal/logger"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesTickerAndResubscribes(t *testing.T) {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		n := connections.Add(1)

		var req struct {
			Method string        `json:"method"`
			Params ChannelParams `json:"params"`
		}
		if !assert.NoError(t, conn.ReadJSON(&req)) {
			return
		}
		assert.Equal(t, "subscribe", req.Method)
		assert.Equal(t, "lightning_ticker_BTC_JPY", req.Params.Channel)

		msg := fmt.Sprintf(`{"jsonrpc":"2.0","method":"channelMessage","params":{"channel":"lightning_ticker_BTC_JPY","message":{"product_code":"BTC_JPY","timestamp":"2019-04-11T05:14:12.3739915Z","best_bid":%d,"best_ask":%d,"ltp":0}}}`, 1000000*n, 1000000*n+500)
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

		if n == 1 {
			return
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	base, _ := test.NewNullLogger()
	client := New("ws"+strings.TrimPrefix(srv.URL, "http"), logger.Wrap(base))
	client.reconnectMin = 10 * time.Millisecond
	defer client.Close()

	_, ok := client.Latest("BTC_JPY")
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Subscribe("BTC_JPY"))

	require.Eventually(t, func() bool {
		quote, ok := client.Latest("BTC_JPY")
		return ok && quote.BestBid.Equal(decimal.NewFromInt(2000000))
	}, 3*time.Second, 5*time.Millisecond)

	quote, _ := client.Latest("BTC_JPY")
	assert.True(t, quote.BestAsk.Equal(decimal.NewFromInt(2000500)))
	assert.Equal(t, int32(2), connections.Load())
	assert.WithinDuration(t, time.Now(), quote.Timestamp, time.Minute)
}
