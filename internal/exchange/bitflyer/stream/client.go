package stream

import (
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func New(url string, log *logger.Logger) *Client {
	return &Client{
		url:          url,
		log:          log,
		quotes:       map[string]models.Ticker{},
		stopCh:       make(chan struct{}),
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
		now:          time.Now,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.logEntry().WithField("url", c.url).Info("Подключение к WS.")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("Не удалось подключиться к WS: %w", err)
	}
	conn.SetReadLimit(2 << 20)
	c.setConn(conn)

	c.logEntry().Info("WS соединение установлено.")

	go c.readLoop()

	return nil
}

// Subscribe starts ticker updates for pairs. Subscriptions are restored after a reconnect.
func (c *Client) Subscribe(pairs ...string) error {
	c.mu.Lock()
	c.pairs = append(c.pairs, pairs...)
	c.mu.Unlock()

	for _, pair := range pairs {
		if err := c.subscribe(pair); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the last quote for pair. Timestamp is the local receive time.
func (c *Client) Latest(pair string) (models.Ticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	quote, ok := c.quotes[pair]
	return quote, ok
}

func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.connMu.Unlock()
	})
}

func (c *Client) subscribe(pair string) error {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	msg := Request{
		JSONRPC: "2.0",
		Method:  "subscribe",
		Params:  ChannelParams{Channel: tickerChannelPrefix + pair},
		ID:      id,
	}

	conn := c.getConn()
	if conn == nil {
		return fmt.Errorf("WS не подключён")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
}

func (c *Client) getConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("bitflyer_ws")
}
