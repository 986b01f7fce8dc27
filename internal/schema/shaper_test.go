package schema

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShaper(t *testing.T) *Shaper {
	t.Helper()
	s := NewShaper(DefaultRegistry())
	s.newTraceID = func() string { return "trace-1" }
	return s
}

func TestShapeResultDecodesTicker(t *testing.T) {
	s := newTestShaper(t)

	raw := map[string]any{
		"symbol":    "BTC/USDT",
		"bid":       "100.5",
		"ask":       101.25,
		"last":      "100.9",
		"high":      "110",
		"low":       "95",
		"timestamp": 1724400000000,
	}
	res, err := s.ShapeChannelResult("ticker", raw)
	require.NoError(t, err)

	assert.Equal(t, "ticker", res.Channel)
	assert.Equal(t, "trace-1", res.TraceID)
	assert.False(t, res.IsError())

	ticker, ok := res.Result.(*Ticker)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", ticker.Symbol)
	assert.True(t, ticker.Bid.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, ticker.Ask.Equal(decimal.RequireFromString("101.25")))
	assert.Equal(t, int64(1724400000000), ticker.Timestamp)
}

func TestShapeResultErrorsMemberProducesErrorOnlyResult(t *testing.T) {
	s := newTestShaper(t)

	raw := map[string]any{
		"errors": []any{"rate limit exceeded"},
		"result": map[string]any{"ignored": true},
	}
	res, err := s.ShapeResult("fetchTicker", raw)
	require.NoError(t, err)

	assert.True(t, res.IsError())
	assert.Nil(t, res.Result)
	assert.Equal(t, []any{"rate limit exceeded"}, res.Errors)
	assert.Equal(t, "fetchTicker", res.Callname)
}

func TestShapeResultEmptyErrorsMemberIsNotAnError(t *testing.T) {
	s := newTestShaper(t)

	res, err := s.ShapeResult("fetchTicker", map[string]any{
		"errors":  map[string]any{},
		"binance": map[string]any{"last": "1"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError())
}

func TestShapeResultUnknownNameFailsWithShapingError(t *testing.T) {
	s := newTestShaper(t)

	_, err := s.ShapeResult("unknownCall", map[string]any{"x": 1})
	require.Error(t, err)

	var shapeErr *ShapingError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "unknownCall", shapeErr.Callname)
	assert.NotNil(t, shapeErr.Data)
}

func TestShapeChannelResultMalformedPayloadFails(t *testing.T) {
	s := newTestShaper(t)

	_, err := s.ShapeChannelResult("ticker", map[string]any{
		"symbol": "BTC/USDT",
		"bid":    "not-a-number",
	})
	var shapeErr *ShapingError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "ticker", shapeErr.Channel)
	assert.Empty(t, shapeErr.Callname)
}

func TestShapeResultValidatesAgainstRegisteredSchema(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterWithSchema("ticker", func() any { return new(Ticker) }, `{
		"type": "object",
		"required": ["symbol", "last"],
		"properties": {
			"symbol": {"type": "string"},
			"last": {"type": "string"}
		}
	}`)
	require.NoError(t, err)

	s := NewShaper(reg)

	_, err = s.ShapeChannelResult("ticker", map[string]any{"symbol": "BTC/USDT"})
	var shapeErr *ShapingError
	require.True(t, errors.As(err, &shapeErr))

	res, err := s.ShapeChannelResult("ticker", map[string]any{"symbol": "BTC/USDT", "last": "42"})
	require.NoError(t, err)
	ticker := res.Result.(*Ticker)
	assert.True(t, ticker.Last.Equal(decimal.NewFromInt(42)))
}

func TestShapeRequestValidatesRegisteredSchema(t *testing.T) {
	reg := DefaultRegistry()
	require.NoError(t, reg.RegisterRequest("fetchOrderBook", `{
		"type": "array",
		"items": {"type": "string"},
		"minItems": 1
	}`))
	s := NewShaper(reg)

	req, err := s.ShapeRequest("fetchOrderBook", []any{"BTC/USDT"})
	require.NoError(t, err)
	assert.Equal(t, "fetchOrderBook", req.Callname)
	assert.Equal(t, []any{"BTC/USDT"}, req.Payload)

	_, err = s.ShapeRequest("fetchOrderBook", []any{})
	var shapeErr *ShapingError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "fetchOrderBook", shapeErr.Callname)
}

func TestShapeRequestWithoutSchemaPassesThrough(t *testing.T) {
	s := newTestShaper(t)

	req, err := s.ShapeRequest("fetchTicker", nil)
	require.NoError(t, err)
	assert.Equal(t, "fetchTicker", req.Callname)
	assert.Nil(t, req.Payload)
}

func TestShapingErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &ShapingError{Callname: "fetchTicker", Err: inner}
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "fetchTicker")
}

func TestDefaultRegistryCoversFanoutAliases(t *testing.T) {
	reg := DefaultRegistry()
	names := reg.Names()
	for _, want := range []string{"ticker", "orderBook", "trades", "balances",
		"fetchTicker", "fetchPrice", "fetchOrderBook", "fetchTrades", "fetchBalance"} {
		assert.Contains(t, names, want)
	}
}
