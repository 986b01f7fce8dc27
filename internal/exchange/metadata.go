package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"quotra/internal/logger"
)

// Exchange pairs one handle with its loaded metadata and a private worker.
// The handle must only ever be touched from the worker goroutine.
type Exchange struct {
	handle     Handle
	name       string
	configured []string
	rateLimit  time.Duration

	worker *worker

	mu              sync.RWMutex
	availCurrencies map[string]Currency
	currencies      map[string]Currency
	availMarkets    map[string]Market
	availSymbols    []string
	symbols         []string
	markets         map[string]Market
}

// Option tweaks construction of an Exchange.
type Option func(*Exchange)

// WithRateLimit overrides the handle's own pacing hint.
func WithRateLimit(d time.Duration) Option {
	return func(e *Exchange) { e.rateLimit = d }
}

// New wraps handle, starts its worker and loads metadata once. A load
// failure is fatal: the worker is stopped and the error returned.
func New(ctx context.Context, handle Handle, currencies []string, opts ...Option) (*Exchange, error) {
	if handle == nil {
		return nil, fmt.Errorf("exchange handle is required")
	}
	e := &Exchange{
		handle:     handle,
		name:       handle.Name(),
		configured: append([]string(nil), currencies...),
		worker:     newWorker(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if err := e.Load(ctx, false); err != nil {
		e.worker.stop()
		return nil, fmt.Errorf("loading markets for %s failed: %w", e.name, err)
	}
	return e, nil
}

func (e *Exchange) Name() string { return e.name }

// RateLimit reports the effective pacing hint for this exchange.
func (e *Exchange) RateLimit() time.Duration { return e.rateLimit }

// Load populates metadata from the handle's catalogue. It is a no-op when
// metadata is already present unless reload forces a refresh.
func (e *Exchange) Load(ctx context.Context, reload bool) error {
	e.mu.RLock()
	loaded := e.markets != nil
	e.mu.RUnlock()
	if loaded && !reload {
		return nil
	}

	var (
		cat Catalog
		err error
	)
	if werr := e.worker.do(ctx, func(ctx context.Context) {
		cat, err = e.handle.LoadMarkets(ctx, reload)
	}); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rateLimit == 0 && cat.RateLimit > 0 {
		e.rateLimit = cat.RateLimit
	}

	e.availCurrencies = cat.Currencies
	if len(e.configured) == 0 {
		e.currencies = cat.Currencies
	} else {
		e.currencies = make(map[string]Currency, len(e.configured))
		for _, code := range e.configured {
			if cur, ok := cat.Currencies[code]; ok {
				e.currencies[code] = cur
			}
		}
	}

	e.availMarkets = cat.Markets
	e.availSymbols = append([]string(nil), cat.Symbols...)
	if len(e.availSymbols) == 0 {
		for sym := range cat.Markets {
			e.availSymbols = append(e.availSymbols, sym)
		}
		sort.Strings(e.availSymbols)
	}

	e.symbols = deriveSymbols(e.currencyOrder(), e.availSymbols)
	e.markets = make(map[string]Market, len(e.symbols))
	for _, sym := range e.symbols {
		if m, ok := e.availMarkets[sym]; ok {
			e.markets[sym] = m
		}
	}

	logger.Debugf("[%s] markets loaded: %d currencies, %d symbols in universe",
		e.name, len(e.currencies), len(e.symbols))
	return nil
}

// currencyOrder keeps the configured ordering when one was given; otherwise
// the full currency set is used in sorted order for determinism.
func (e *Exchange) currencyOrder() []string {
	if len(e.configured) > 0 {
		out := make([]string, 0, len(e.configured))
		for _, code := range e.configured {
			if _, ok := e.currencies[code]; ok {
				out = append(out, code)
			}
		}
		return out
	}
	out := make([]string, 0, len(e.currencies))
	for code := range e.currencies {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// deriveSymbols builds the tradable universe as the ordered cross product of
// the configured currencies, keeping every slash-joined pair the exchange
// actually lists. Self-pairs survive when the exchange lists them; the
// construction does not filter them.
func deriveSymbols(currencies, available []string) []string {
	availSet := make(map[string]struct{}, len(available))
	for _, sym := range available {
		availSet[sym] = struct{}{}
	}
	var out []string
	for _, base := range currencies {
		for _, quote := range currencies {
			sym := base + "/" + quote
			if _, ok := availSet[sym]; ok {
				out = append(out, sym)
			}
		}
	}
	return out
}

// Symbols returns the derived symbol universe.
func (e *Exchange) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.symbols...)
}

// AvailableSymbols returns the exchange's full symbol catalogue.
func (e *Exchange) AvailableSymbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.availSymbols...)
}

// Markets returns the markets restricted to the derived universe.
func (e *Exchange) Markets() map[string]Market {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Market, len(e.markets))
	for k, v := range e.markets {
		out[k] = v
	}
	return out
}

// Currencies returns the configured currency subset.
func (e *Exchange) Currencies() map[string]Currency {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Currency, len(e.currencies))
	for k, v := range e.currencies {
		out[k] = v
	}
	return out
}

// Call invokes callname once on this exchange through its worker.
func (e *Exchange) Call(ctx context.Context, callname string, args ...any) (any, error) {
	var (
		res any
		err error
	)
	if werr := e.worker.do(ctx, func(ctx context.Context) {
		res, err = e.handle.Invoke(ctx, callname, args...)
	}); werr != nil {
		return nil, werr
	}
	return res, err
}

// CallOverSymbols invokes callname once per symbol in the derived universe,
// sequentially. Unavailability and operational errors drop that symbol from
// the result; any other error aborts the iteration.
func (e *Exchange) CallOverSymbols(ctx context.Context, callname string, args ...any) (map[string]any, error) {
	results := make(map[string]any)
	for _, sym := range e.Symbols() {
		callArgs := append([]any{sym}, args...)
		res, err := e.Call(ctx, callname, callArgs...)
		if err != nil {
			if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrOperational) {
				logger.Debugf("[%s] %s skipped for %s: %v", e.name, callname, sym, err)
				continue
			}
			return nil, err
		}
		results[sym] = res
	}
	return results, nil
}

// Close stops the worker, signalling cancellation to outstanding work, and
// releases the handle's connections when it exposes a Close capability.
func (e *Exchange) Close() error {
	e.worker.stop()
	if closer, ok := e.handle.(Closer); ok {
		return closer.Close()
	}
	return nil
}
