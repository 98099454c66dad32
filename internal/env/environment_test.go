package env

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"stockenv/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSources(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	empty, err := market.NewFrame(map[string][]float64{})
	require.NoError(t, err)
	_, err = New(empty)
	assert.ErrorIs(t, err, ErrConfiguration)

	partial, err := market.NewFrame(map[string][]float64{
		market.ColOpen:  {1},
		market.ColClose: {1},
	})
	require.NoError(t, err)
	_, err = New(partial)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.MissingColumns, market.ColRSI)
	assert.NotContains(t, cfgErr.MissingColumns, market.ColOpen)
}

func TestNewRejectsInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.MaxSteps = 0
	_, err := New(flatFrame(t, 3, 100), WithParams(p))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResetInitialisesPortfolio(t *testing.T) {
	e, err := New(flatFrame(t, 5, 100), WithRand(fixedRand(0)))
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, e.State())

	obs, err := e.Reset()
	require.NoError(t, err)
	assert.Equal(t, StateReady, e.State())
	assert.Len(t, obs.Slice(), ObservationSize)
	assert.Equal(t, 10000.0, obs[12])
	assert.Equal(t, 10000.0, obs[13])
	assert.Zero(t, obs[14])
	assert.Zero(t, obs[15])
	assert.Zero(t, obs[16])

	p := e.Portfolio()
	assert.Equal(t, 10000.0, p.Balance)
	assert.Equal(t, 10000.0, p.NetWorth)
	assert.Equal(t, 10000.0, p.MaxNetWorth)
	assert.Empty(t, p.Trades)
	assert.Zero(t, p.CurrentStep)
}

func TestStepBeforeResetFails(t *testing.T) {
	e, err := New(flatFrame(t, 5, 100))
	require.NoError(t, err)
	_, err = e.Step(Hold())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestBuyThenSellScenario(t *testing.T) {
	e := newReadyEnv(t, flatFrame(t, 10, 100), WithRand(fixedRand(0.5)))

	res, err := e.Step(Action{Type: 0.5, Amount: 1.0})
	require.NoError(t, err)
	p := e.Portfolio()
	assert.Equal(t, 100.0, e.LastPrice())
	assert.Equal(t, int64(100), p.SharesHeld)
	assert.Equal(t, 0.0, p.Balance)
	assert.Equal(t, 100.0, p.CostBasis)
	require.Len(t, p.Trades, 1)
	assert.Equal(t, Trade{Step: 0, Shares: 100, Total: 10000, Type: TradeBuy}, p.Trades[0])
	assert.False(t, res.Done)
	assert.Equal(t, 1.0, res.Reward, "zero balance leaves only the step term")

	_, err = e.Step(Action{Type: 1.5, Amount: 0.5})
	require.NoError(t, err)
	p = e.Portfolio()
	assert.Equal(t, int64(50), p.SharesHeld)
	assert.Equal(t, 5000.0, p.Balance)
	assert.Equal(t, int64(50), p.TotalSharesSold)
	assert.Equal(t, 5000.0, p.TotalSalesValue)
	assert.Equal(t, 100.0, p.CostBasis)
	require.Len(t, p.Trades, 2)
	assert.Equal(t, Trade{Step: 1, Shares: 50, Total: 5000, Type: TradeSell}, p.Trades[1])
}

func TestHoldNeverTrades(t *testing.T) {
	e := newReadyEnv(t, flatFrame(t, 10, 100), WithRand(fixedRand(0)))
	_, err := e.Step(Buy(0.3))
	require.NoError(t, err)
	before := e.Portfolio()

	_, err = e.Step(Action{Type: 2.5, Amount: 1.0})
	require.NoError(t, err)
	after := e.Portfolio()
	assert.Equal(t, before.Balance, after.Balance)
	assert.Equal(t, before.SharesHeld, after.SharesHeld)
	assert.Len(t, after.Trades, len(before.Trades))
}

func TestRewardScalesWithStep(t *testing.T) {
	e := newReadyEnv(t, flatFrame(t, 10, 100), WithRand(fixedRand(0)))
	res, err := e.Step(Hold())
	require.NoError(t, err)
	assert.InDelta(t, 10000*(1.0/20000)+1, res.Reward, 1e-9)

	res, err = e.Step(Hold())
	require.NoError(t, err)
	assert.InDelta(t, 10000*(2.0/20000)+2, res.Reward, 1e-9)
}

func TestHoldEpisodeTerminatesExactlyAtLength(t *testing.T) {
	const rows = 7
	src := flatFrame(t, rows, 100)
	e := newReadyEnv(t, src, WithRand(fixedRand(0)))

	for i := 1; i <= rows; i++ {
		res, err := e.Step(Hold())
		require.NoError(t, err)
		assert.Len(t, res.Observation.Slice(), ObservationSize)
		assert.NotNil(t, res.Info)
		if i < rows {
			require.False(t, res.Done, "step %d", i)
			continue
		}
		require.True(t, res.Done)
		assert.Equal(t, StateTerminated, e.State())
		// terminal observation reads the last row
		last, _ := src.Value(rows-1, market.ColRSI)
		assert.Equal(t, last, res.Observation[6])
	}

	_, err := e.Step(Hold())
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = e.Reset()
	require.NoError(t, err)
	_, err = e.Step(Hold())
	assert.NoError(t, err)
}

func TestObservationReadsCurrentRow(t *testing.T) {
	src := flatFrame(t, 5, 100)
	e := newReadyEnv(t, src, WithRand(fixedRand(0)))
	res, err := e.Step(Hold())
	require.NoError(t, err)
	for i, col := range market.FeatureColumns {
		want, err := src.Value(1, col)
		require.NoError(t, err)
		assert.Equal(t, want, res.Observation[i], col)
	}
}

func TestBankruptcyTerminates(t *testing.T) {
	e := newReadyEnv(t, frameWithPrices(t, [][2]float64{{100, 100}, {0, 0}, {0, 0}, {5, 5}}), WithRand(fixedRand(0)))
	_, err := e.Step(Buy(1))
	require.NoError(t, err)
	res, err := e.Step(Hold())
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, 0.0, e.Portfolio().NetWorth)
}

func TestZeroPriceBuyIsNoop(t *testing.T) {
	e := newReadyEnv(t, flatFrame(t, 3, 0), WithRand(fixedRand(0)))
	_, err := e.Step(Buy(1))
	require.NoError(t, err)
	p := e.Portfolio()
	assert.Zero(t, p.SharesHeld)
	assert.Equal(t, 10000.0, p.Balance)
	assert.Empty(t, p.Trades)
}

func TestExecutionPriceWithinOpenCloseRange(t *testing.T) {
	src := frameWithPrices(t, [][2]float64{{110, 90}, {90, 110}, {100, 100}})
	e := newReadyEnv(t, src, WithSeed(7))
	for i := 0; i < 2; i++ {
		_, err := e.Step(Hold())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, e.LastPrice(), 90.0)
		assert.LessOrEqual(t, e.LastPrice(), 110.0)
	}

	e = newReadyEnv(t, src, WithRand(fixedRand(0.25)))
	_, err := e.Step(Hold())
	require.NoError(t, err)
	assert.Equal(t, 95.0, e.LastPrice())
}

func TestStepRejectsNaNAndClipsAction(t *testing.T) {
	e := newReadyEnv(t, flatFrame(t, 5, 100), WithRand(fixedRand(0)))
	_, err := e.Step(Action{Type: math.NaN(), Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Equal(t, 0, e.Portfolio().CurrentStep)

	_, err = e.Step(Action{Type: -4, Amount: 7})
	require.NoError(t, err)
	p := e.Portfolio()
	assert.Equal(t, int64(100), p.SharesHeld)
	assert.Zero(t, p.Balance)
}

func TestCostBasisResetsWhenFlat(t *testing.T) {
	e := newReadyEnv(t, flatFrame(t, 5, 100), WithRand(fixedRand(0)))
	_, err := e.Step(Buy(0.5))
	require.NoError(t, err)
	require.Equal(t, 100.0, e.Portfolio().CostBasis)

	res, err := e.Step(Sell(1))
	require.NoError(t, err)
	assert.Zero(t, e.Portfolio().SharesHeld)
	assert.Zero(t, e.Portfolio().CostBasis)
	assert.Zero(t, res.Observation[MarketFeatureCount+3])
}

func TestCostBasisIsVolumeWeighted(t *testing.T) {
	src := frameWithPrices(t, [][2]float64{{100, 100}, {200, 200}, {1, 1}})
	e := newReadyEnv(t, src, WithRand(fixedRand(0)))
	_, err := e.Step(Buy(0.5)) // 50 @ 100
	require.NoError(t, err)
	_, err = e.Step(Buy(1)) // 25 @ 200
	require.NoError(t, err)
	p := e.Portfolio()
	assert.Equal(t, int64(75), p.SharesHeld)
	assert.InDelta(t, (50*100.0+25*200.0)/75, p.CostBasis, 1e-9)
}

func TestRandomEpisodeInvariants(t *testing.T) {
	const rows = 300
	prices := make([][2]float64, rows)
	r := rand.New(rand.NewPCG(3, 4))
	for i := range prices {
		base := 50 + r.Float64()*100
		prices[i] = [2]float64{base, base * (0.9 + r.Float64()*0.2)}
	}
	e := newReadyEnv(t, frameWithPrices(t, prices), WithSeed(11))

	prev := e.Portfolio()
	for {
		a := Action{Type: r.Float64() * 3, Amount: r.Float64()}
		res, err := e.Step(a)
		require.NoError(t, err)
		cur := e.Portfolio()

		assert.GreaterOrEqual(t, cur.SharesHeld, int64(0))
		assert.GreaterOrEqual(t, cur.Balance, -1e-9)
		assert.GreaterOrEqual(t, cur.MaxNetWorth, prev.MaxNetWorth)
		if cur.SharesHeld == 0 {
			assert.Zero(t, cur.CostBasis)
		}

		// cash moves by exactly the value of the fill appended this step
		delta := cur.Balance - prev.Balance
		switch {
		case len(cur.Trades) == len(prev.Trades):
			assert.Equal(t, prev.SharesHeld, cur.SharesHeld)
			assert.InDelta(t, 0, delta, 1e-9)
		default:
			require.Len(t, cur.Trades, len(prev.Trades)+1)
			tr := cur.Trades[len(cur.Trades)-1]
			assert.InDelta(t, tr.Total, float64(tr.Shares)*e.LastPrice(), 1e-6)
			if tr.Type == TradeBuy {
				assert.InDelta(t, -tr.Total, delta, 1e-6)
				assert.Equal(t, prev.SharesHeld+tr.Shares, cur.SharesHeld)
			} else {
				assert.InDelta(t, tr.Total, delta, 1e-6)
				assert.Equal(t, prev.SharesHeld-tr.Shares, cur.SharesHeld)
			}
		}
		assert.InDelta(t, cur.Balance+float64(cur.SharesHeld)*e.LastPrice(), cur.NetWorth, 1e-6)

		prev = cur
		if res.Done {
			break
		}
	}
	assert.Equal(t, rows, prev.CurrentStep)
}

func TestEnvironmentsWithDifferentHorizonsCoexist(t *testing.T) {
	src := flatFrame(t, 5, 100)
	short := DefaultParams()
	short.MaxSteps = 10
	a := newReadyEnv(t, src, WithParams(short), WithRand(fixedRand(0)))
	b := newReadyEnv(t, src, WithRand(fixedRand(0)))

	ra, err := a.Step(Hold())
	require.NoError(t, err)
	rb, err := b.Step(Hold())
	require.NoError(t, err)
	assert.InDelta(t, 10000*0.1+1, ra.Reward, 1e-9)
	assert.InDelta(t, 10000*(1.0/20000)+1, rb.Reward, 1e-9)
}

func TestPortfolioIsACopy(t *testing.T) {
	e := newReadyEnv(t, flatFrame(t, 5, 100), WithRand(fixedRand(0)))
	_, err := e.Step(Buy(1))
	require.NoError(t, err)
	p := e.Portfolio()
	p.Trades[0].Shares = 1
	p.Balance = 123
	assert.Equal(t, int64(100), e.Portfolio().Trades[0].Shares)
	assert.Zero(t, e.Portfolio().Balance)
}

func TestAccountOmitsTradeHistory(t *testing.T) {
	e := newReadyEnv(t, flatFrame(t, 5, 100), WithRand(fixedRand(0)))
	_, err := e.Step(Buy(1))
	require.NoError(t, err)

	acct := e.Account()
	assert.Nil(t, acct.Trades)
	assert.Equal(t, int64(100), acct.SharesHeld)
	assert.Equal(t, 1, acct.CurrentStep)
	assert.Len(t, e.Portfolio().Trades, 1)
}
