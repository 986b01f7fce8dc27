// Package fanout executes one operation across many exchanges and, when
// asked, across each exchange's derived symbol universe, aggregating the
// partial results.
package fanout

import (
	"context"
	"errors"
	"fmt"

	"quotra/internal/exchange"
	"quotra/internal/logger"
)

// Pool holds the exchanges a context dispatches against. Iteration order is
// the construction order; each exchange serializes its own calls.
type Pool struct {
	order     []string
	exchanges map[string]*exchange.Exchange
}

func NewPool(exchanges ...*exchange.Exchange) *Pool {
	p := &Pool{exchanges: make(map[string]*exchange.Exchange, len(exchanges))}
	for _, ex := range exchanges {
		if ex == nil {
			continue
		}
		if _, dup := p.exchanges[ex.Name()]; dup {
			continue
		}
		p.order = append(p.order, ex.Name())
		p.exchanges[ex.Name()] = ex
	}
	return p
}

// Exchanges returns the pool members in dispatch order.
func (p *Pool) Exchanges() []*exchange.Exchange {
	out := make([]*exchange.Exchange, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.exchanges[name])
	}
	return out
}

// CallOnExchanges invokes callname once per exchange, sequentially through
// each exchange's worker. An unavailable or operationally failing exchange
// is omitted from the result; any other error aborts the whole dispatch.
func (p *Pool) CallOnExchanges(ctx context.Context, callname string, args ...any) (map[string]any, error) {
	results := make(map[string]any)
	for _, name := range p.order {
		res, err := p.exchanges[name].Call(ctx, callname, args...)
		if err != nil {
			if skippable(err) {
				logger.Debugf("[fanout] %s omitted from %s: %v", name, callname, err)
				continue
			}
			return nil, fmt.Errorf("%s on %s: %w", callname, name, err)
		}
		results[name] = res
	}
	return results, nil
}

// CallOverSymbols invokes callname once per (exchange, symbol) pair and
// returns the two-level aggregate exchange -> symbol -> result. The same
// two error kinds drop an entry, at either level.
func (p *Pool) CallOverSymbols(ctx context.Context, callname string, args ...any) (map[string]any, error) {
	results := make(map[string]any)
	for _, name := range p.order {
		perSymbol, err := p.exchanges[name].CallOverSymbols(ctx, callname, args...)
		if err != nil {
			if skippable(err) {
				logger.Debugf("[fanout] %s omitted from %s: %v", name, callname, err)
				continue
			}
			return nil, fmt.Errorf("%s on %s: %w", callname, name, err)
		}
		results[name] = perSymbol
	}
	return results, nil
}

// Reload forces a metadata refresh on every exchange.
func (p *Pool) Reload(ctx context.Context) error {
	for _, name := range p.order {
		if err := p.exchanges[name].Load(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

// Close signals cancellation to every exchange worker and releases all
// handle connections. The first error wins but every exchange is closed.
func (p *Pool) Close() error {
	var first error
	for _, name := range p.order {
		if err := p.exchanges[name].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func skippable(err error) bool {
	return errors.Is(err, exchange.ErrUnavailable) || errors.Is(err, exchange.ErrOperational)
}
