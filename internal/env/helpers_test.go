package env

import (
	"testing"

	"stockenv/internal/market"

	"github.com/stretchr/testify/require"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

// frameWithPrices builds a frame whose indicator columns are distinct per row
// and whose open/close come from prices.
func frameWithPrices(t *testing.T, prices [][2]float64) *market.Frame {
	t.Helper()
	cols := make(map[string][]float64, len(market.FeatureColumns))
	for c, name := range market.FeatureColumns {
		values := make([]float64, len(prices))
		for i := range prices {
			values[i] = float64(1000*c + i)
		}
		cols[name] = values
	}
	for i, p := range prices {
		cols[market.ColOpen][i] = p[0]
		cols[market.ColClose][i] = p[1]
	}
	f, err := market.NewFrame(cols)
	require.NoError(t, err)
	return f
}

func flatFrame(t *testing.T, rows int, price float64) *market.Frame {
	t.Helper()
	prices := make([][2]float64, rows)
	for i := range prices {
		prices[i] = [2]float64{price, price}
	}
	return frameWithPrices(t, prices)
}

func newReadyEnv(t *testing.T, src DataSource, opts ...Option) *Environment {
	t.Helper()
	e, err := New(src, opts...)
	require.NoError(t, err)
	_, err = e.Reset()
	require.NoError(t, err)
	return e
}
