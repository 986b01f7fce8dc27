// Package dummy provides an in-memory exchange handle with canned market
// data. It backs local runs and tests where no real venue is reachable.
package dummy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quotra/internal/exchange"
)

// Source serves deterministic payloads for the standard fan-out calls.
// FailCalls and UnavailableCalls inject failures per callname.
type Source struct {
	name    string
	catalog exchange.Catalog

	mu               sync.Mutex
	failCalls        map[string]error
	unavailableCalls map[string]bool
	calls            int
}

// Option adjusts a Source at construction time.
type Option func(*Source)

// WithCatalog replaces the default canned catalogue.
func WithCatalog(cat exchange.Catalog) Option {
	return func(s *Source) { s.catalog = cat }
}

// WithFailure makes callname return err on every invocation.
func WithFailure(callname string, err error) Option {
	return func(s *Source) { s.failCalls[callname] = err }
}

// WithUnavailable makes callname report venue unavailability.
func WithUnavailable(callname string) Option {
	return func(s *Source) { s.unavailableCalls[callname] = true }
}

func New(name string, opts ...Option) *Source {
	if name == "" {
		name = "dummy"
	}
	s := &Source{
		name:             name,
		catalog:          defaultCatalog(),
		failCalls:        make(map[string]error),
		unavailableCalls: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultCatalog() exchange.Catalog {
	currencies := map[string]exchange.Currency{
		"BTC":  {Code: "BTC"},
		"ETH":  {Code: "ETH"},
		"USDT": {Code: "USDT"},
	}
	markets := map[string]exchange.Market{
		"BTC/USDT": {Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Active: true},
		"ETH/USDT": {Symbol: "ETH/USDT", Base: "ETH", Quote: "USDT", Active: true},
		"ETH/BTC":  {Symbol: "ETH/BTC", Base: "ETH", Quote: "BTC", Active: true},
	}
	symbols := make([]string, 0, len(markets))
	for sym := range markets {
		symbols = append(symbols, sym)
	}
	return exchange.Catalog{
		Currencies: currencies,
		Markets:    markets,
		Symbols:    symbols,
		RateLimit:  10 * time.Millisecond,
	}
}

func (s *Source) Name() string { return s.name }

// Calls reports how many invocations the handle has served.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Source) LoadMarkets(ctx context.Context, reload bool) (exchange.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return exchange.Catalog{}, err
	}
	return s.catalog, nil
}

func (s *Source) Invoke(ctx context.Context, callname string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls++
	injected := s.failCalls[callname]
	unavailable := s.unavailableCalls[callname]
	s.mu.Unlock()

	if unavailable {
		return nil, fmt.Errorf("%w: %s: %s", exchange.ErrUnavailable, s.name, callname)
	}
	if injected != nil {
		return nil, injected
	}

	switch callname {
	case "fetchTicker":
		sym := firstSymbol(args)
		return map[string]any{
			"symbol":    sym,
			"bid":       "100.0",
			"ask":       "100.5",
			"last":      "100.2",
			"high":      "110.0",
			"low":       "95.0",
			"timestamp": time.Now().UnixMilli(),
		}, nil
	case "fetchOrderBook":
		sym := firstSymbol(args)
		return map[string]any{
			"symbol": sym,
			"bids": []map[string]any{
				{"price": "100.0", "amount": "1.5"},
				{"price": "99.5", "amount": "3.0"},
			},
			"asks": []map[string]any{
				{"price": "100.5", "amount": "2.0"},
			},
			"timestamp": time.Now().UnixMilli(),
		}, nil
	case "fetchTrades":
		sym := firstSymbol(args)
		return []map[string]any{
			{"id": "1", "symbol": sym, "side": "buy", "price": "100.1", "amount": "0.25", "timestamp": time.Now().UnixMilli()},
		}, nil
	case "fetchBalance":
		return []map[string]any{
			{"currency": "BTC", "free": "0.5", "used": "0.0"},
			{"currency": "USDT", "free": "1200.0", "used": "300.0"},
		}, nil
	default:
		return nil, fmt.Errorf("%s: no endpoint for %q", s.name, callname)
	}
}

func firstSymbol(args []any) string {
	if len(args) > 0 {
		if sym, ok := args[0].(string); ok {
			return sym
		}
	}
	return "BTC/USDT"
}
