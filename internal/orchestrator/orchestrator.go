// Package orchestrator constructs and controls the per-context adapters:
// one streaming channel adapter and one scheduled call adapter per
// configured context.
package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"quotra/internal/adapter"
	"quotra/internal/fanout"
	"quotra/internal/logger"

	"golang.org/x/sync/errgroup"
)

// Meta is the adapter of adapters. It owns startup ordering (streams before
// scheduled calls, so subscriptions are live before polling begins) and
// joint shutdown.
type Meta struct {
	names  []string
	wsocks []*adapter.StreamAdapter
	apis   []*adapter.APIAdapter
}

// New builds one streaming and one scheduled adapter per context, in a
// stable name order.
func New(contexts map[string]*adapter.Context) *Meta {
	names := make([]string, 0, len(contexts))
	for name := range contexts {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &Meta{names: names}
	for _, name := range names {
		c := contexts[name]
		if c.Name == "" {
			c.Name = name
		}
		logger.Debugf("preparing adapters for context %s", name)
		m.wsocks = append(m.wsocks, adapter.NewStreamAdapter(c))
		m.apis = append(m.apis, adapter.NewAPIAdapter(c))
	}
	return m
}

// Run starts every streaming adapter, then every scheduled adapter. The
// first startup failure aborts and the error is returned; adapters already
// running keep running so the caller can shut them down.
func (m *Meta) Run(ctx context.Context) error {
	for i, w := range m.wsocks {
		if err := w.Run(ctx); err != nil {
			return fmt.Errorf("starting stream adapter %s failed: %w", m.names[i], err)
		}
	}
	for i, a := range m.apis {
		if err := a.Run(ctx); err != nil {
			return fmt.Errorf("starting api adapter %s failed: %w", m.names[i], err)
		}
	}
	logger.Infof("orchestrator running: %d contexts", len(m.names))
	return nil
}

// Shutdown stops every streaming adapter, then every scheduled adapter,
// fanning the signals out concurrently and waiting for each group's loops
// to exit. Adapters that never started are signalled but not awaited, so
// shutdown after a failed Run cannot block.
func (m *Meta) Shutdown() {
	logger.Infof("orchestrator shutdown: %d contexts", len(m.names))

	var g errgroup.Group
	for _, w := range m.wsocks {
		w := w
		g.Go(func() error {
			w.Shutdown()
			if w.Started() {
				<-w.Done()
			}
			return nil
		})
	}
	_ = g.Wait()

	var g2 errgroup.Group
	for _, a := range m.apis {
		a := a
		g2.Go(func() error {
			a.Shutdown()
			if a.Started() {
				<-a.Done()
			}
			return nil
		})
	}
	_ = g2.Wait()
}

// AdapterStatus is one adapter's run state, for the ops surface.
type AdapterStatus struct {
	Context string `json:"context"`
	Kind    string `json:"kind"`
	Running bool   `json:"running"`
}

// Status reports the run state of every adapter pair.
func (m *Meta) Status() []AdapterStatus {
	out := make([]AdapterStatus, 0, 2*len(m.names))
	for i, name := range m.names {
		out = append(out, AdapterStatus{Context: name, Kind: "stream", Running: m.wsocks[i].Running()})
		out = append(out, AdapterStatus{Context: name, Kind: "api", Running: m.apis[i].Running()})
	}
	return out
}

// ExchangeStatus is one pooled exchange's loaded metadata, for the ops
// surface.
type ExchangeStatus struct {
	Context    string   `json:"context"`
	Exchange   string   `json:"exchange"`
	Currencies []string `json:"currencies"`
	Symbols    []string `json:"symbols"`
	RateLimit  string   `json:"rate_limit,omitempty"`
}

// Exchanges reports the loaded metadata of every fan-out backed context.
// Contexts whose handle is not a fan-out pool are skipped.
func (m *Meta) Exchanges() []ExchangeStatus {
	type pooled interface{ Pool() *fanout.Pool }

	var out []ExchangeStatus
	for i, a := range m.apis {
		p, ok := a.Handle().(pooled)
		if !ok || p.Pool() == nil {
			continue
		}
		for _, ex := range p.Pool().Exchanges() {
			currencies := make([]string, 0, len(ex.Currencies()))
			for code := range ex.Currencies() {
				currencies = append(currencies, code)
			}
			sort.Strings(currencies)
			st := ExchangeStatus{
				Context:    m.names[i],
				Exchange:   ex.Name(),
				Currencies: currencies,
				Symbols:    ex.Symbols(),
			}
			if ex.RateLimit() > 0 {
				st.RateLimit = ex.RateLimit().String()
			}
			out = append(out, st)
		}
	}
	return out
}
