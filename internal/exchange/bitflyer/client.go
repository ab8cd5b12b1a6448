package bitflyer

import (
	"bfbot/internal/logger"
	"bfbot/internal/models"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// QuoteSource supplies pushed best bid/ask quotes, e.g. the realtime stream.
type QuoteSource interface {
	Latest(pair string) (models.Ticker, bool)
}

type Client struct {
	apiKey string
	secret string

	http *resty.Client
	log  *logger.Logger

	quotes      QuoteSource
	quoteMaxAge time.Duration
	now         func() time.Time
}

func New(baseURL, apiKey, secret string, log *logger.Logger) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		apiKey: apiKey,
		secret: secret,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		log: log,
		now: time.Now,
	}
}

// WithQuotes makes Ticker prefer quotes from src that are younger than maxAge.
func (c *Client) WithQuotes(src QuoteSource, maxAge time.Duration) *Client {
	c.quotes = src
	c.quoteMaxAge = maxAge
	return c
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("bitflyer")
}
