package binance

import (
	"strings"
	"time"
)

// Config describes one Binance spot REST handle.
type Config struct {
	APIKey      string
	APISecret   string
	RESTBaseURL string
	HTTPTimeout time.Duration

	// RateLimit is the minimum spacing between two calls. The per-exchange
	// worker already serializes calls; this paces them.
	RateLimit time.Duration

	// DepthLimit bounds fetchOrderBook depth.
	DepthLimit int

	// TradesLimit bounds fetchTrades page size.
	TradesLimit int
}

func (c Config) withDefaults() Config {
	c.RESTBaseURL = strings.TrimSpace(c.RESTBaseURL)
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 200 * time.Millisecond
	}
	if c.DepthLimit <= 0 {
		c.DepthLimit = 100
	}
	if c.TradesLimit <= 0 {
		c.TradesLimit = 100
	}
	return c
}
