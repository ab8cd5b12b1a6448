package stream

import (
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const tickerChannelPrefix = "lightning_ticker_"

type Client struct {
	url string
	log *logger.Logger

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.RWMutex
	quotes map[string]models.Ticker
	pairs  []string
	nextID int

	stopCh       chan struct{}
	stopOnce     sync.Once
	reconnectMin time.Duration
	reconnectMax time.Duration
	now          func() time.Time
}

type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id,omitempty"`
}

type ChannelParams struct {
	Channel string `json:"channel"`
}

type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
}

type ChannelMessage struct {
	Channel string          `json:"channel"`
	Message json.RawMessage `json:"message"`
}

type TickerMessage struct {
	ProductCode string          `json:"product_code"`
	Timestamp   string          `json:"timestamp"`
	BestBid     decimal.Decimal `json:"best_bid"`
	BestAsk     decimal.Decimal `json:"best_ask"`
	LastPrice   decimal.Decimal `json:"ltp"`
}
