package gateway

import (
	"context"
	"testing"
	"time"

	"quotra/internal/config"
	"quotra/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopCallback(schema.Result, any) {}

func TestBuildContextsWiresCallsAndSubscriptions(t *testing.T) {
	cfg := &config.Config{
		Contexts: map[string]config.ContextConfig{
			"sandbox": {
				Exchanges:  []string{"dummy"},
				Currencies: []string{"BTC", "USDT"},
				Calls: map[string]config.CallConfig{
					"fetchTicker":    {},
					"fetchOrderBook": {Delay: 2 * time.Second, Priority: 1, Arguments: []any{"BTC/USDT"}},
				},
				Subscriptions: map[string]string{"ticker": "ticker"},
				WS:            config.WSConfig{URL: "wss://example.test/ws"},
			},
		},
	}
	contexts, err := BuildContexts(cfg, noopCallback)
	require.NoError(t, err)
	require.Len(t, contexts, 1)

	c := contexts["sandbox"]
	require.NotNil(t, c)
	assert.Equal(t, "sandbox", c.Name)
	require.NotNil(t, c.NewHandle)
	require.NotNil(t, c.NewStream)

	book := c.Calls["fetchOrderBook"]
	assert.Equal(t, 2*time.Second, book.Delay)
	assert.Equal(t, 1, book.Priority)
	assert.Equal(t, []any{"BTC/USDT"}, book.Arguments)
	assert.Equal(t, "ticker", c.Subscriptions["ticker"])
}

func TestBuildContextsOmitsStreamFactoryWithoutWSURL(t *testing.T) {
	cfg := &config.Config{
		Contexts: map[string]config.ContextConfig{
			"sandbox": {Exchanges: []string{"dummy"}},
		},
	}
	contexts, err := BuildContexts(cfg, noopCallback)
	require.NoError(t, err)
	assert.Nil(t, contexts["sandbox"].NewStream)
}

func TestBuildContextsRequiresConfigAndCallback(t *testing.T) {
	_, err := BuildContexts(nil, noopCallback)
	require.Error(t, err)

	_, err = BuildContexts(&config.Config{}, nil)
	require.Error(t, err)
}

func TestHandleFactoryBuildsWorkingFanout(t *testing.T) {
	cfg := &config.Config{
		Contexts: map[string]config.ContextConfig{
			"sandbox": {
				Exchanges:  []string{"dummy"},
				Currencies: []string{"BTC", "USDT"},
			},
		},
	}
	contexts, err := BuildContexts(cfg, noopCallback)
	require.NoError(t, err)

	c := contexts["sandbox"]
	handle, err := c.NewHandle(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, handle)
	defer func() {
		type shutdowner interface{ Shutdown() }
		handle.(shutdowner).Shutdown()
	}()

	raw, err := handle.Call(context.Background(), "fetchTicker")
	require.NoError(t, err)
	perExchange, ok := raw.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, perExchange, "dummy")
}

func TestHandleFactoryRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{
		Contexts: map[string]config.ContextConfig{
			"broken": {Exchanges: []string{"kraken"}},
		},
	}
	contexts, err := BuildContexts(cfg, noopCallback)
	require.NoError(t, err)

	c := contexts["broken"]
	_, err = c.NewHandle(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kraken")
}

func TestFirstCredentialsFollowsExchangeOrder(t *testing.T) {
	cc := config.ContextConfig{
		Exchanges: []string{"dummy", "binance"},
		Credentials: map[string]config.CredentialConfig{
			"binance": {APIKey: "key", APISecret: "secret"},
		},
	}
	creds, ok := firstCredentials(cc)
	require.True(t, ok)
	assert.Equal(t, "key", creds.APIKey)
	assert.Equal(t, "secret", creds.APISecret)

	_, ok = firstCredentials(config.ContextConfig{Exchanges: []string{"dummy"}})
	assert.False(t, ok)
}
