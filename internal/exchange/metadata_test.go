package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	name    string
	catalog Catalog
	loadErr error

	mu        sync.Mutex
	loads     int
	invokes   []string
	invokeFn  func(callname string, args ...any) (any, error)
	closed    bool
	closeErr error
}

func (f *fakeHandle) Name() string { return f.name }

func (f *fakeHandle) LoadMarkets(ctx context.Context, reload bool) (Catalog, error) {
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	if f.loadErr != nil {
		return Catalog{}, f.loadErr
	}
	return f.catalog, nil
}

func (f *fakeHandle) Invoke(ctx context.Context, callname string, args ...any) (any, error) {
	f.mu.Lock()
	f.invokes = append(f.invokes, callname)
	f.mu.Unlock()
	if f.invokeFn != nil {
		return f.invokeFn(callname, args...)
	}
	return map[string]any{"call": callname}, nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.closeErr
}

func (f *fakeHandle) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func testCatalog() Catalog {
	return Catalog{
		Currencies: map[string]Currency{
			"BTC":  {Code: "BTC"},
			"ETH":  {Code: "ETH"},
			"USDT": {Code: "USDT"},
			"XRP":  {Code: "XRP"},
		},
		Markets: map[string]Market{
			"BTC/USDT": {Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Active: true},
			"ETH/USDT": {Symbol: "ETH/USDT", Base: "ETH", Quote: "USDT", Active: true},
			"ETH/BTC":  {Symbol: "ETH/BTC", Base: "ETH", Quote: "BTC", Active: true},
			"XRP/USDT": {Symbol: "XRP/USDT", Base: "XRP", Quote: "USDT", Active: true},
		},
		Symbols: []string{"BTC/USDT", "ETH/USDT", "ETH/BTC", "XRP/USDT"},
	}
}

func TestNewLoadsMetadataAndRestrictsUniverse(t *testing.T) {
	h := &fakeHandle{name: "fake", catalog: testCatalog()}
	ex, err := New(context.Background(), h, []string{"BTC", "ETH", "USDT"})
	require.NoError(t, err)
	defer ex.Close()

	// Cross product of the configured currencies, restricted to what the
	// venue lists, in configured order.
	assert.Equal(t, []string{"BTC/USDT", "ETH/BTC", "ETH/USDT"}, ex.Symbols())
	assert.NotContains(t, ex.Symbols(), "XRP/USDT")

	cur := ex.Currencies()
	assert.Len(t, cur, 3)
	assert.NotContains(t, cur, "XRP")

	markets := ex.Markets()
	assert.Len(t, markets, 3)
	assert.NotContains(t, markets, "XRP/USDT")

	assert.ElementsMatch(t, []string{"BTC/USDT", "ETH/USDT", "ETH/BTC", "XRP/USDT"}, ex.AvailableSymbols())
}

func TestNewWithoutCurrenciesUsesWholeCatalog(t *testing.T) {
	h := &fakeHandle{name: "fake", catalog: testCatalog()}
	ex, err := New(context.Background(), h, nil)
	require.NoError(t, err)
	defer ex.Close()

	assert.Len(t, ex.Currencies(), 4)
	assert.Contains(t, ex.Symbols(), "XRP/USDT")
}

func TestDeriveSymbolsKeepsSelfPairsTheVenueLists(t *testing.T) {
	got := deriveSymbols([]string{"USD", "BTC"}, []string{"USD/USD", "BTC/USD"})
	assert.Equal(t, []string{"USD/USD", "BTC/USD"}, got)
}

func TestNewFailsWhenLoadFails(t *testing.T) {
	h := &fakeHandle{name: "fake", loadErr: errors.New("venue down")}
	_, err := New(context.Background(), h, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake")
}

func TestLoadIsIdempotentUnlessReloadForced(t *testing.T) {
	h := &fakeHandle{name: "fake", catalog: testCatalog()}
	ex, err := New(context.Background(), h, nil)
	require.NoError(t, err)
	defer ex.Close()

	require.NoError(t, ex.Load(context.Background(), false))
	assert.Equal(t, 1, h.loadCount())

	require.NoError(t, ex.Load(context.Background(), true))
	assert.Equal(t, 2, h.loadCount())
}

func TestCallOverSymbolsPrependsSymbolAndSkipsFailures(t *testing.T) {
	h := &fakeHandle{name: "fake", catalog: testCatalog()}
	var gotArgs [][]any
	h.invokeFn = func(callname string, args ...any) (any, error) {
		gotArgs = append(gotArgs, args)
		if args[0] == "ETH/BTC" {
			return nil, fmt.Errorf("%w: maintenance", ErrUnavailable)
		}
		if args[0] == "ETH/USDT" {
			return nil, fmt.Errorf("%w: bad symbol", ErrOperational)
		}
		return map[string]any{"symbol": args[0]}, nil
	}
	ex, err := New(context.Background(), h, []string{"BTC", "ETH", "USDT"})
	require.NoError(t, err)
	defer ex.Close()

	res, err := ex.CallOverSymbols(context.Background(), "fetchOrderBook", 25)
	require.NoError(t, err)

	// Failing symbols are omitted, not reported.
	assert.Len(t, res, 1)
	assert.Contains(t, res, "BTC/USDT")
	for _, args := range gotArgs {
		require.Len(t, args, 2)
		assert.Equal(t, 25, args[1])
	}
}

func TestCallOverSymbolsAbortsOnOtherErrors(t *testing.T) {
	h := &fakeHandle{name: "fake", catalog: testCatalog()}
	h.invokeFn = func(callname string, args ...any) (any, error) {
		return nil, errors.New("programming error")
	}
	ex, err := New(context.Background(), h, []string{"BTC", "USDT"})
	require.NoError(t, err)
	defer ex.Close()

	_, err = ex.CallOverSymbols(context.Background(), "fetchOrderBook")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "programming error")
}

func TestCloseStopsWorkerAndClosesHandle(t *testing.T) {
	h := &fakeHandle{name: "fake", catalog: testCatalog()}
	ex, err := New(context.Background(), h, nil)
	require.NoError(t, err)

	require.NoError(t, ex.Close())
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	assert.True(t, closed)

	_, err = ex.Call(context.Background(), "fetchTicker")
	require.Error(t, err)
}
