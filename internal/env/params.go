package env

import (
	"fmt"
	"math"
)

// Params is the constants surface of one environment instance. Two
// environments with different horizons can coexist because nothing here is global.
type Params struct {
	MaxAccountBalance     float64 `json:"max_account_balance"`
	MaxNumShares          int64   `json:"max_num_shares"`
	MaxSharePrice         float64 `json:"max_share_price"`
	MaxOpenPositions      int     `json:"max_open_positions"`
	MaxSteps              int     `json:"max_steps"`
	InitialAccountBalance float64 `json:"initial_account_balance"`
	LookbackWindowSize    int     `json:"lookback_window_size"`
}

func DefaultParams() Params {
	return Params{
		MaxAccountBalance:     math.MaxInt32,
		MaxNumShares:          math.MaxInt32,
		MaxSharePrice:         5000,
		MaxOpenPositions:      5,
		MaxSteps:              20000,
		InitialAccountBalance: 10000,
		LookbackWindowSize:    40,
	}
}

func (p Params) Validate() error {
	switch {
	case p.MaxSteps <= 0:
		return fmt.Errorf("max_steps must be > 0, got %d", p.MaxSteps)
	case p.InitialAccountBalance <= 0:
		return fmt.Errorf("initial_account_balance must be > 0, got %v", p.InitialAccountBalance)
	case p.LookbackWindowSize <= 0:
		return fmt.Errorf("lookback_window_size must be > 0, got %d", p.LookbackWindowSize)
	case p.MaxAccountBalance < p.InitialAccountBalance:
		return fmt.Errorf("max_account_balance %v below initial_account_balance %v", p.MaxAccountBalance, p.InitialAccountBalance)
	}
	return nil
}
