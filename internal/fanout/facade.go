package fanout

import (
	"context"

	"quotra/internal/logger"
)

// Strategy selects how a call is spread across the pool.
type Strategy string

const (
	// StrategyOnExchanges runs the call once per exchange.
	StrategyOnExchanges Strategy = "on_exchanges"
	// StrategyOverSymbols runs the call once per (exchange, symbol) pair.
	StrategyOverSymbols Strategy = "over_symbols"
)

// defaultOverrides routes inherently symbol-scoped operations through the
// per-symbol strategy.
var defaultOverrides = map[string]Strategy{
	"fetchOrderBook": StrategyOverSymbols,
}

// defaultAliases maps configured callnames onto the canonical operation the
// pool members implement.
var defaultAliases = map[string]string{
	"fetchPrice": "fetchTicker",
}

// Facade is the operation handle for fan-out contexts: it resolves the
// dispatch strategy per callname and delegates to the pool.
type Facade struct {
	name      string
	pool      *Pool
	overrides map[string]Strategy
	fallback  Strategy
}

// NewFacade builds a facade over pool. Extra overrides are layered on top of
// the built-in ones; the default strategy is once-per-exchange.
func NewFacade(name string, pool *Pool, overrides map[string]Strategy) *Facade {
	merged := make(map[string]Strategy, len(defaultOverrides)+len(overrides))
	for k, v := range defaultOverrides {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	if name == "" {
		name = "fanout"
	}
	return &Facade{
		name:      name,
		pool:      pool,
		overrides: merged,
		fallback:  StrategyOnExchanges,
	}
}

func (f *Facade) Name() string { return f.name }

// EndpointOverrides reports the callname aliases this facade serves, so the
// scheduled adapter can resolve them once at startup.
func (f *Facade) EndpointOverrides() map[string]string {
	out := make(map[string]string, len(defaultAliases))
	for k, v := range defaultAliases {
		out[k] = v
	}
	return out
}

// Pool exposes the underlying exchange set for status reporting.
func (f *Facade) Pool() *Pool { return f.pool }

// Strategy reports the strategy that Call would use for callname.
func (f *Facade) Strategy(callname string) Strategy {
	if s, ok := f.overrides[callname]; ok {
		return s
	}
	return f.fallback
}

// Call dispatches callname across the pool using the resolved strategy and
// returns the aggregate result mapping.
func (f *Facade) Call(ctx context.Context, callname string, args ...any) (any, error) {
	switch f.Strategy(callname) {
	case StrategyOverSymbols:
		return f.pool.CallOverSymbols(ctx, callname, args...)
	default:
		return f.pool.CallOnExchanges(ctx, callname, args...)
	}
}

// Shutdown requests cancellation of outstanding per-exchange work and
// releases every connection. It does not wait for in-flight calls beyond
// the cooperative context signal.
func (f *Facade) Shutdown() {
	logger.Infof("[%s] shutting down %d exchange connections", f.name, len(f.pool.order))
	if err := f.pool.Close(); err != nil {
		logger.Warnf("[%s] close: %v", f.name, err)
	}
}
