// Package binance implements the exchange handle capability over the
// go-binance SDK.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"quotra/internal/exchange"
	"quotra/internal/logger"

	sdk "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

// Source is one Binance REST handle. All calls arrive through the owning
// exchange's worker, so no internal locking beyond pacing is needed.
type Source struct {
	cfg    Config
	client *sdk.Client

	paceMu   sync.Mutex
	lastCall time.Time
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := sdk.NewClient(final.APIKey, final.APISecret)
	if final.RESTBaseURL != "" {
		client.BaseURL = final.RESTBaseURL
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}, nil
}

func (s *Source) Name() string { return "binance" }

// Invoke executes one named operation. Unknown callnames are a
// configuration problem and propagate as plain errors.
func (s *Source) Invoke(ctx context.Context, callname string, args ...any) (any, error) {
	s.pace(ctx)
	switch callname {
	case "fetchTicker":
		return s.fetchTicker(ctx, args)
	case "fetchOrderBook":
		return s.fetchOrderBook(ctx, args)
	case "fetchTrades":
		return s.fetchTrades(ctx, args)
	case "fetchBalance":
		return s.fetchBalance(ctx)
	default:
		return nil, fmt.Errorf("binance: no endpoint for %q", callname)
	}
}

// pace enforces the minimum spacing between two calls on this handle.
func (s *Source) pace(ctx context.Context) {
	s.paceMu.Lock()
	var wait time.Duration
	if !s.lastCall.IsZero() {
		wait = s.cfg.RateLimit - time.Since(s.lastCall)
	}
	if wait < 0 {
		wait = 0
	}
	s.lastCall = time.Now().Add(wait)
	s.paceMu.Unlock()
	if wait == 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Source) fetchTicker(ctx context.Context, args []any) (any, error) {
	sym, err := symbolArg(args)
	if err != nil {
		return nil, err
	}
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(toExchangeSymbol(sym)).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w: binance: no ticker for %s", exchange.ErrOperational, sym)
	}
	st := stats[0]
	return map[string]any{
		"symbol":    sym,
		"bid":       st.BidPrice,
		"ask":       st.AskPrice,
		"last":      st.LastPrice,
		"high":      st.HighPrice,
		"low":       st.LowPrice,
		"timestamp": st.CloseTime,
	}, nil
}

func (s *Source) fetchOrderBook(ctx context.Context, args []any) (any, error) {
	sym, err := symbolArg(args)
	if err != nil {
		return nil, err
	}
	depth, err := s.client.NewDepthService().Symbol(toExchangeSymbol(sym)).Limit(s.cfg.DepthLimit).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	bids := make([]map[string]any, 0, len(depth.Bids))
	for _, lvl := range depth.Bids {
		bids = append(bids, map[string]any{"price": lvl.Price, "amount": lvl.Quantity})
	}
	asks := make([]map[string]any, 0, len(depth.Asks))
	for _, lvl := range depth.Asks {
		asks = append(asks, map[string]any{"price": lvl.Price, "amount": lvl.Quantity})
	}
	return map[string]any{
		"symbol":    sym,
		"bids":      bids,
		"asks":      asks,
		"timestamp": time.Now().UnixMilli(),
	}, nil
}

func (s *Source) fetchTrades(ctx context.Context, args []any) (any, error) {
	sym, err := symbolArg(args)
	if err != nil {
		return nil, err
	}
	trades, err := s.client.NewAggTradesService().Symbol(toExchangeSymbol(sym)).Limit(s.cfg.TradesLimit).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]map[string]any, 0, len(trades))
	for _, t := range trades {
		side := "buy"
		if t.IsBuyerMaker {
			side = "sell"
		}
		out = append(out, map[string]any{
			"id":        strconv.FormatInt(t.AggTradeID, 10),
			"symbol":    sym,
			"side":      side,
			"price":     t.Price,
			"amount":    t.Quantity,
			"timestamp": t.Timestamp,
		})
	}
	return out, nil
}

func (s *Source) fetchBalance(ctx context.Context) (any, error) {
	acct, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]map[string]any, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		out = append(out, map[string]any{
			"currency": b.Asset,
			"free":     b.Free,
			"used":     b.Locked,
		})
	}
	return out, nil
}

// LoadMarkets retrieves the full exchange catalogue.
func (s *Source) LoadMarkets(ctx context.Context, reload bool) (exchange.Catalog, error) {
	info, err := s.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return exchange.Catalog{}, classify(err)
	}
	logger.Debugf("[binance] exchange info: %d symbols", len(info.Symbols))
	return catalogFromSymbols(info.Symbols, s.cfg.RateLimit), nil
}

func catalogFromSymbols(symbols []sdk.Symbol, rateLimit time.Duration) exchange.Catalog {
	cat := exchange.Catalog{
		Currencies: make(map[string]exchange.Currency),
		Markets:    make(map[string]exchange.Market),
		RateLimit:  rateLimit,
	}
	for _, sym := range symbols {
		if sym.Status != "TRADING" {
			continue
		}
		unified := sym.BaseAsset + "/" + sym.QuoteAsset
		cat.Markets[unified] = exchange.Market{
			Symbol: unified,
			Base:   sym.BaseAsset,
			Quote:  sym.QuoteAsset,
			Active: true,
		}
		cat.Symbols = append(cat.Symbols, unified)
		if _, ok := cat.Currencies[sym.BaseAsset]; !ok {
			cat.Currencies[sym.BaseAsset] = exchange.Currency{Code: sym.BaseAsset}
		}
		if _, ok := cat.Currencies[sym.QuoteAsset]; !ok {
			cat.Currencies[sym.QuoteAsset] = exchange.Currency{Code: sym.QuoteAsset}
		}
	}
	return cat
}

// toExchangeSymbol converts a unified "BTC/USDT" symbol to Binance's
// slash-free form.
func toExchangeSymbol(sym string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(sym), "/", ""))
}

func symbolArg(args []any) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("binance: symbol argument is required")
	}
	switch v := args[0].(type) {
	case string:
		return v, nil
	case map[string]any:
		if sym, ok := v["symbol"].(string); ok && sym != "" {
			return sym, nil
		}
	}
	return "", fmt.Errorf("binance: unsupported symbol argument %T", args[0])
}

// classify maps SDK and transport failures onto the expected error kinds.
// Rate-limit rejections and network faults read as unavailability; other
// API rejections as operational errors. Context errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1015:
			return fmt.Errorf("%w: binance: %v", exchange.ErrUnavailable, err)
		default:
			return fmt.Errorf("%w: binance: %v", exchange.ErrOperational, err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: binance: %v", exchange.ErrUnavailable, err)
	}
	return err
}
