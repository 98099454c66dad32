package market

import "context"

// FetchRequest describes one remote kline page.
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64 // Unix ms
	End      int64 // Unix ms, 0 means open
	Limit    int
}

// CandleSource fetches historical klines from an exchange.
type CandleSource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Candle, error)
	Name() string
}
