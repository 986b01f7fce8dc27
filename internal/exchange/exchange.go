// Package exchange defines the capability consumed from concrete exchange
// clients and wraps each one in a metadata-bearing unit with a private
// single-flight execution context.
package exchange

import (
	"context"
	"errors"
	"time"
)

// Expected, transient failure kinds. Fan-out layers match these with
// errors.Is and omit the affected exchange or symbol from aggregates; every
// other error propagates unmodified.
var (
	ErrUnavailable = errors.New("exchange not available")
	ErrOperational = errors.New("exchange operational error")
)

// Handle is the operation capability one concrete exchange client provides.
// Implementations own network I/O, authentication and rate limiting.
type Handle interface {
	Name() string
	Invoke(ctx context.Context, callname string, args ...any) (any, error)
	LoadMarkets(ctx context.Context, reload bool) (Catalog, error)
}

// Closer is implemented by handles that hold connections worth releasing.
type Closer interface {
	Close() error
}

// Currency is one tradable currency from an exchange catalogue.
type Currency struct {
	Code      string         `json:"code"`
	Name      string         `json:"name,omitempty"`
	Precision int            `json:"precision,omitempty"`
	Raw       map[string]any `json:"-"`
}

// Market is one tradable pair from an exchange catalogue, keyed by its
// unified slash-joined symbol.
type Market struct {
	Symbol string         `json:"symbol"`
	Base   string         `json:"base"`
	Quote  string         `json:"quote"`
	Active bool           `json:"active"`
	Raw    map[string]any `json:"-"`
}

// Catalog is the full market/currency/symbol inventory of one exchange.
type Catalog struct {
	Currencies map[string]Currency
	Markets    map[string]Market
	Symbols    []string
	RateLimit  time.Duration
}
