package stream

import (
	"bfbot/internal/models"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func (c *Client) readLoop() {
	c.logEntry().Debug("readLoop запущен.")

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		conn := c.getConn()
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.logEntry().WithError(err).Warn("Ошибка чтения WS.")

			if !c.reconnect() {
				return
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logEntry().WithError(err).Warn("Не удалось разобрать WS сообщение.")
			continue
		}
		if msg.Method != "channelMessage" {
			continue
		}

		var params ChannelMessage
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.logEntry().WithError(err).Warn("Не удалось разобрать параметры канала.")
			continue
		}
		if strings.HasPrefix(params.Channel, tickerChannelPrefix) {
			c.handleTicker(params)
		}
	}
}

func (c *Client) handleTicker(params ChannelMessage) {
	var ticker TickerMessage
	if err := json.Unmarshal(params.Message, &ticker); err != nil {
		c.logEntry().WithError(err).Warn("Не удалось разобрать тикер.")
		return
	}

	pair := ticker.ProductCode
	if pair == "" {
		pair = strings.TrimPrefix(params.Channel, tickerChannelPrefix)
	}

	c.mu.Lock()
	c.quotes[pair] = models.Ticker{
		Pair:      pair,
		BestBid:   ticker.BestBid,
		BestAsk:   ticker.BestAsk,
		Timestamp: c.now(),
	}
	c.mu.Unlock()
}

func (c *Client) reconnect() bool {
	backoff := c.reconnectMin

	for {
		c.logEntry().Info("Попытка переподключения к WS.")

		select {
		case <-c.stopCh:
			return false
		case <-time.After(backoff):
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.logEntry().WithError(err).Warn("Не удалось переподключиться к WS.")
			backoff = c.nextBackoff(backoff)
			continue
		}
		conn.SetReadLimit(2 << 20)
		c.setConn(conn)

		c.mu.RLock()
		pairs := append([]string(nil), c.pairs...)
		c.mu.RUnlock()

		resubscribed := true
		for _, pair := range pairs {
			if err := c.subscribe(pair); err != nil {
				c.logEntry().WithError(err).Warn("Не удалось повторно подписаться на WS.")
				resubscribed = false
				break
			}
		}
		if !resubscribed {
			backoff = c.nextBackoff(backoff)
			continue
		}

		c.logEntry().Info("WS переподключён и подписки восстановлены.")
		return true
	}
}

func (c *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > c.reconnectMax {
		return c.reconnectMax
	}
	return next
}
