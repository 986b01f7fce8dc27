// Package stream provides the default persistent-connection transport:
// a websocket client with reconnect and channel routing, and a handle
// adapting it to the streaming adapter's capability.
package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"quotra/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	defaultPingInterval     = 15 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	maxReconnectDelay       = 30 * time.Second
)

// MessageHandler receives every routed message. Returning an error stops
// the connection loop; the error propagates to the caller of Run.
type MessageHandler func(channel string, msg []byte) error

// Config describes one websocket endpoint.
type Config struct {
	URL    string
	Header http.Header

	// SubscribePayloads are sent verbatim after every (re)connect.
	SubscribePayloads [][]byte

	// ChannelField is the gjson path used to route inbound messages to a
	// channel, e.g. "channel" or "stream".
	ChannelField string

	PingInterval     time.Duration
	HandshakeTimeout time.Duration

	OnConnect    func()
	OnDisconnect func(error)
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.ChannelField == "" {
		c.ChannelField = "channel"
	}
	return c
}

// Stats counts connection-level events.
type Stats struct {
	Reconnects      int
	SubscribeErrors int
	LastError       string
}

// Client maintains one websocket connection with reconnect/backoff and
// routes inbound messages by channel.
type Client struct {
	cfg Config

	statsMu sync.Mutex
	stats   Stats
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("stream endpoint URL is required")
	}
	return &Client{cfg: cfg.withDefaults()}, nil
}

// Run connects and pumps messages into handler until ctx is cancelled or
// handler reports a fatal delivery error. Transport failures trigger a
// reconnect with exponential backoff; handler failures do not.
func (c *Client) Run(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := c.dial(ctx)
		if err != nil {
			c.recordError(err)
			if c.cfg.OnDisconnect != nil {
				c.cfg.OnDisconnect(err)
			}
			if !sleepWithContext(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay)
			continue
		}

		delay = time.Second
		if c.cfg.OnConnect != nil {
			c.cfg.OnConnect()
		}

		err = c.pump(ctx, conn, handler)
		_ = conn.Close()
		if err != nil {
			if fatal, ok := err.(*deliveryError); ok {
				return fatal.err
			}
			c.recordReconnect(err)
			if c.cfg.OnDisconnect != nil {
				c.cfg.OnDisconnect(err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if !sleepWithContext(ctx, delay) {
			return nil
		}
		delay = nextDelay(delay)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dialing %s failed: %w", c.cfg.URL, err)
	}
	for _, payload := range c.cfg.SubscribePayloads {
		conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.recordSubscribeError(err)
			_ = conn.Close()
			return nil, fmt.Errorf("subscribing on %s failed: %w", c.cfg.URL, err)
		}
	}
	return conn, nil
}

// deliveryError marks handler failures so Run can distinguish them from
// transport failures, which reconnect.
type deliveryError struct{ err error }

func (e *deliveryError) Error() string { return e.err.Error() }

func (c *Client) pump(ctx context.Context, conn *websocket.Conn, handler MessageHandler) error {
	stop := make(chan struct{})
	defer close(stop)

	// Close the connection when ctx ends so the blocking read returns.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	go c.keepalive(ctx, conn, stop)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		channel := gjson.GetBytes(msg, c.cfg.ChannelField).String()
		if err := handler(channel, msg); err != nil {
			return &deliveryError{err: err}
		}
	}
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(defaultWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debugf("[stream] ping failed: %v", err)
				return
			}
		}
	}
}

// Stats returns connection event counters.
func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Client) recordError(err error) {
	c.statsMu.Lock()
	c.stats.LastError = err.Error()
	c.statsMu.Unlock()
}

func (c *Client) recordSubscribeError(err error) {
	c.statsMu.Lock()
	c.stats.SubscribeErrors++
	c.stats.LastError = err.Error()
	c.statsMu.Unlock()
}

func (c *Client) recordReconnect(err error) {
	c.statsMu.Lock()
	c.stats.Reconnects++
	if err != nil {
		c.stats.LastError = err.Error()
	}
	c.statsMu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > maxReconnectDelay {
		next = maxReconnectDelay
	}
	return next
}
