// Package gateway assembles adapter contexts from configuration: one fan-out
// handle over the configured exchange backends, plus an optional streaming
// handle when a websocket endpoint is configured.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"quotra/internal/adapter"
	"quotra/internal/config"
	"quotra/internal/exchange"
	"quotra/internal/fanout"
	"quotra/internal/gateway/binance"
	"quotra/internal/gateway/dummy"
	"quotra/internal/stream"
)

// BuildContexts turns every configured context into an adapter.Context wired
// with its handle factories. The handles themselves are only constructed
// when the adapters run.
func BuildContexts(cfg *config.Config, callback adapter.Callback) (map[string]*adapter.Context, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback is required")
	}
	out := make(map[string]*adapter.Context, len(cfg.Contexts))
	for name, cc := range cfg.Contexts {
		c := &adapter.Context{
			Name:          name,
			Callback:      callback,
			Calls:         toCallSpecs(cc.Calls),
			Subscriptions: cc.Subscriptions,
			NewHandle:     handleFactory(cc),
			Conf: map[string]any{
				"exchanges":  append([]string(nil), cc.Exchanges...),
				"currencies": append([]string(nil), cc.Currencies...),
			},
		}
		if creds, ok := firstCredentials(cc); ok {
			c.Credentials = creds
		}
		if cc.WS.URL != "" {
			c.NewStream = streamFactory(cc)
		}
		out[name] = c
	}
	return out, nil
}

func toCallSpecs(calls map[string]config.CallConfig) map[string]adapter.CallSpec {
	if len(calls) == 0 {
		return nil
	}
	out := make(map[string]adapter.CallSpec, len(calls))
	for callname, call := range calls {
		spec := adapter.CallSpec{Delay: call.Delay, Priority: call.Priority}
		if len(call.Arguments) > 0 {
			spec.Arguments = append([]any(nil), call.Arguments...)
		}
		out[callname] = spec
	}
	return out
}

func firstCredentials(cc config.ContextConfig) (adapter.Credentials, bool) {
	for _, ex := range cc.Exchanges {
		if cred, ok := cc.Credentials[ex]; ok {
			return adapter.Credentials{APIKey: cred.APIKey, APISecret: cred.APISecret}, true
		}
	}
	return adapter.Credentials{}, false
}

// handleFactory builds the fan-out facade: one paced, worker-isolated
// exchange per configured backend, pooled in configuration order.
func handleFactory(cc config.ContextConfig) adapter.HandleFactory {
	return func(ctx context.Context, c *adapter.Context) (adapter.Handle, error) {
		exchanges := make([]*exchange.Exchange, 0, len(cc.Exchanges))
		fail := func(err error) (adapter.Handle, error) {
			for _, ex := range exchanges {
				_ = ex.Close()
			}
			return nil, err
		}
		for _, name := range cc.Exchanges {
			src, err := buildSource(name, cc)
			if err != nil {
				return fail(err)
			}
			var opts []exchange.Option
			if rl := cc.Backends[name].RateLimit; rl > 0 {
				opts = append(opts, exchange.WithRateLimit(rl))
			}
			ex, err := exchange.New(ctx, src, cc.Currencies, opts...)
			if err != nil {
				return fail(fmt.Errorf("context %s: %w", c.Name, err))
			}
			exchanges = append(exchanges, ex)
		}
		return fanout.NewFacade(c.Name, fanout.NewPool(exchanges...), nil), nil
	}
}

func buildSource(name string, cc config.ContextConfig) (exchange.Handle, error) {
	backend := cc.Backends[name]
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binance":
		cred := cc.Credentials[name]
		return binance.New(binance.Config{
			APIKey:      cred.APIKey,
			APISecret:   cred.APISecret,
			RESTBaseURL: backend.RESTBaseURL,
			HTTPTimeout: backend.HTTPTimeout,
			RateLimit:   backend.RateLimit,
			DepthLimit:  backend.DepthLimit,
			TradesLimit: backend.TradesLimit,
		})
	case "dummy":
		return dummy.New(name), nil
	default:
		return nil, fmt.Errorf("unsupported exchange backend: %s", name)
	}
}

// streamFactory builds the websocket handle from the context's WS block.
func streamFactory(cc config.ContextConfig) adapter.StreamFactory {
	return func(ctx context.Context, c *adapter.Context) (adapter.StreamHandle, error) {
		payloads := make([][]byte, 0, len(cc.WS.Subscribe))
		for _, p := range cc.WS.Subscribe {
			payloads = append(payloads, []byte(p))
		}
		client, err := stream.NewClient(stream.Config{
			URL:               cc.WS.URL,
			SubscribePayloads: payloads,
			ChannelField:      cc.WS.ChannelField,
			PingInterval:      cc.WS.PingInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("context %s: %w", c.Name, err)
		}
		return stream.NewHandle(c.Name, client, nil), nil
	}
}
