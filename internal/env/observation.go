package env

import (
	"fmt"
	"math"

	"stockenv/internal/market"
)

const (
	// MarketFeatureCount is the number of indicator slots at the head of an observation.
	MarketFeatureCount = 12
	// PortfolioFeatureCount trails the market slots: balance, max net worth,
	// shares held, cost basis, total sales value.
	PortfolioFeatureCount = 5
	ObservationSize       = MarketFeatureCount + PortfolioFeatureCount
)

// Observations are unscaled, so every slot is bounded only by float32 range.
const (
	ObservationLow  = -math.MaxFloat32
	ObservationHigh = math.MaxFloat32
)

// Observation is the fixed-length, unscaled feature vector handed to the agent.
type Observation [ObservationSize]float64

// Slice returns the observation as a fresh []float64.
func (o Observation) Slice() []float64 {
	out := make([]float64, ObservationSize)
	copy(out, o[:])
	return out
}

// RequiredColumns lists the data source columns an environment needs.
func RequiredColumns() []string {
	return append([]string(nil), market.FeatureColumns...)
}

// DataSource is the read-only tabular market data the environment steps through.
type DataSource interface {
	Len() int
	Value(row int, column string) (float64, error)
}

// Observe builds the observation for step without touching any state. The
// terminal step (step == rows) reads the last row; anything past it fails.
func Observe(src DataSource, step int, p Portfolio) (Observation, error) {
	var obs Observation
	rows := src.Len()
	row := step
	if step == rows {
		row = rows - 1
	}
	if step < 0 || step > rows || row < 0 {
		return obs, &IndexExhaustedError{Step: step, Rows: rows}
	}
	for i, col := range market.FeatureColumns {
		v, err := src.Value(row, col)
		if err != nil {
			return obs, fmt.Errorf("observe step %d column %s: %w", step, col, err)
		}
		obs[i] = v
	}
	obs[MarketFeatureCount+0] = p.Balance
	obs[MarketFeatureCount+1] = p.MaxNetWorth
	obs[MarketFeatureCount+2] = float64(p.SharesHeld)
	obs[MarketFeatureCount+3] = p.CostBasis
	obs[MarketFeatureCount+4] = p.TotalSalesValue
	return obs, nil
}
