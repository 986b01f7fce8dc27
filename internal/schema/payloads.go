package schema

import "github.com/shopspring/decimal"

// Ticker is the unified best-price snapshot for one symbol.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Timestamp int64           `json:"timestamp"`
}

// PriceLevel is one side entry of an order book.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// OrderBook is the unified depth snapshot for one symbol.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// Trade is one public trade.
type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"`
}

// Balance is one currency's account balance.
type Balance struct {
	Currency string          `json:"currency"`
	Free     decimal.Decimal `json:"free"`
	Used     decimal.Decimal `json:"used"`
	Total    decimal.Decimal `json:"total"`
}

// FanoutResult is the aggregate of a call executed across exchanges. Values
// are the per-exchange (or per-exchange, per-symbol) raw results.
type FanoutResult map[string]any

// DefaultRegistry returns a registry covering the built-in call and channel
// names. Callers register additional shapes on top of it.
func DefaultRegistry() *Registry {
	reg := NewRegistry()

	reg.Register("ticker", func() any { return new(Ticker) })
	reg.Register("orderBook", func() any { return new(OrderBook) })
	reg.Register("trades", func() any { return new([]Trade) })
	reg.Register("balances", func() any { return new([]Balance) })

	// Fan-out callnames aggregate per-exchange results, so their top level
	// is a plain mapping regardless of the per-exchange payload.
	reg.Register("fetchTicker", func() any { return new(FanoutResult) })
	reg.Register("fetchPrice", func() any { return new(FanoutResult) })
	reg.Register("fetchOrderBook", func() any { return new(FanoutResult) })
	reg.Register("fetchTrades", func() any { return new(FanoutResult) })
	reg.Register("fetchBalance", func() any { return new(FanoutResult) })

	return reg
}
