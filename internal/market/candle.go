package market

import "fmt"

// Candle is one OHLCV bar. Timestamps are Unix milliseconds.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Validate rejects candles whose high/low do not bracket open and close.
func (c Candle) Validate() error {
	if c.High < c.Low {
		return fmt.Errorf("candle %d: high %.8f below low %.8f", c.OpenTime, c.High, c.Low)
	}
	if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
		return fmt.Errorf("candle %d: open/close outside high-low range", c.OpenTime)
	}
	return nil
}
