package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stockenv/internal/env"
	"stockenv/internal/market"
	"stockenv/internal/recorder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func flatFrame(t *testing.T, rows int, price float64) *market.Frame {
	t.Helper()
	cols := make(map[string][]float64, len(market.FeatureColumns))
	for _, name := range market.FeatureColumns {
		values := make([]float64, rows)
		for i := range values {
			values[i] = price
		}
		cols[name] = values
	}
	f, err := market.NewFrame(cols)
	require.NoError(t, err)
	return f
}

func trendFrame(t *testing.T, rows int) *market.Frame {
	t.Helper()
	cols := make(map[string][]float64, len(market.FeatureColumns))
	for _, name := range market.FeatureColumns {
		values := make([]float64, rows)
		for i := range values {
			values[i] = 100 + float64(i%7) - float64(i%3)
		}
		cols[name] = values
	}
	for i := 0; i < rows; i++ {
		cols[market.ColClose][i] = cols[market.ColOpen][i] + 2
	}
	f, err := market.NewFrame(cols)
	require.NoError(t, err)
	return f
}

func newRunner(t *testing.T, src env.DataSource, opts Options) *Runner {
	t.Helper()
	r, err := New(src, opts)
	require.NoError(t, err)
	return r
}

func TestRunEpisodeHold(t *testing.T) {
	r := newRunner(t, flatFrame(t, 10, 100), Options{})
	s, err := r.RunEpisode(context.Background(), HoldPolicy{}, 1)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "hold", s.Policy)
	assert.Equal(t, 10, s.Steps)
	assert.True(t, s.Terminated)
	// sum over s=1..10 of 10000*s/20000 + s
	assert.InDelta(t, 82.5, s.TotalReward, 1e-9)
	assert.InDelta(t, 10000, s.FinalNetWorth, 1e-9)
	assert.InDelta(t, 0, s.Profit, 1e-9)
	assert.Empty(t, s.Trades)
}

func TestRunEpisodeBuyAndHold(t *testing.T) {
	r := newRunner(t, flatFrame(t, 10, 100), Options{})
	s, err := r.RunEpisode(context.Background(), &BuyAndHoldPolicy{}, 1)
	require.NoError(t, err)

	require.Len(t, s.Trades, 1)
	assert.Equal(t, env.TradeBuy, s.Trades[0].Type)
	assert.EqualValues(t, 100, s.Trades[0].Shares)
	// balance is zero after the first step so only the step term remains
	assert.InDelta(t, 55, s.TotalReward, 1e-9)
	assert.InDelta(t, 10000, s.FinalNetWorth, 1e-9)
}

func TestRunEpisodeStepCap(t *testing.T) {
	r := newRunner(t, flatFrame(t, 10, 100), Options{MaxEpisodeSteps: 3})
	s, err := r.RunEpisode(context.Background(), HoldPolicy{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Steps)
	assert.False(t, s.Terminated)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) StartEpisode(ctx context.Context, meta recorder.EpisodeMeta) (string, error) {
	args := m.Called(ctx, meta)
	return args.String(0), args.Error(1)
}

func (m *mockRecorder) RecordStep(ctx context.Context, rec recorder.StepRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockRecorder) FinishEpisode(ctx context.Context, id string, res recorder.EpisodeResult) error {
	return m.Called(ctx, id, res).Error(0)
}

func (m *mockRecorder) Close() error { return m.Called().Error(0) }

func TestRunEpisodeCanceledStillFinishesRecord(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("StartEpisode", mock.Anything, mock.MatchedBy(func(meta recorder.EpisodeMeta) bool {
		return meta.Policy == "hold" && meta.Seed == 9 && meta.Rows == 10
	})).Return("ep-1", nil).Once()
	rec.On("FinishEpisode", mock.Anything, "ep-1", mock.MatchedBy(func(res recorder.EpisodeResult) bool {
		return res.Steps == 0 && res.Err == context.Canceled.Error()
	})).Return(nil).Once()

	r := newRunner(t, flatFrame(t, 10, 100), Options{Recorder: rec})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := r.RunEpisode(ctx, HoldPolicy{}, 9)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "ep-1", s.ID)
	rec.AssertExpectations(t)
	rec.AssertNotCalled(t, "RecordStep", mock.Anything, mock.Anything)
}

func TestRunEpisodeRecorderFailure(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("StartEpisode", mock.Anything, mock.Anything).Return("", errors.New("disk full"))
	r := newRunner(t, flatFrame(t, 10, 100), Options{Recorder: rec})
	_, err := r.RunEpisode(context.Background(), HoldPolicy{}, 1)
	assert.EqualError(t, err, "disk full")
}

func TestRunEpisodeRecordsToSQLite(t *testing.T) {
	rec, err := recorder.NewSQLite(filepath.Join(t.TempDir(), "episodes.db"))
	require.NoError(t, err)
	defer rec.Close()

	r := newRunner(t, trendFrame(t, 25), Options{Recorder: rec})
	s, err := r.RunEpisode(context.Background(), NewRandomPolicy(3), 3)
	require.NoError(t, err)

	ctx := context.Background()
	steps, err := rec.Steps(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, steps, s.Steps)
	assert.True(t, steps[len(steps)-1].Done)

	trades, err := rec.Trades(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, trades, len(s.Trades))

	ep, err := rec.Episode(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, recorder.EpisodeFinished, ep.Status)
	assert.InDelta(t, s.TotalReward, ep.TotalReward, 1e-9)
}

func TestRunManyIsDeterministicAcrossParallelism(t *testing.T) {
	src := trendFrame(t, 60)
	factory, err := PolicyByName("random")
	require.NoError(t, err)

	seq, err := newRunner(t, src, Options{}).RunMany(context.Background(), 6, factory, 100, 1)
	require.NoError(t, err)
	par, err := newRunner(t, src, Options{}).RunMany(context.Background(), 6, factory, 100, 4)
	require.NoError(t, err)

	require.Len(t, par, 6)
	for i := range seq {
		assert.Equal(t, uint64(100+i), par[i].Seed)
		assert.Equal(t, seq[i].Steps, par[i].Steps)
		assert.InDelta(t, seq[i].TotalReward, par[i].TotalReward, 1e-9)
		assert.Equal(t, seq[i].Trades, par[i].Trades)
	}
}

func TestRunManyWritesOneRenderFilePerEpisode(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(t, flatFrame(t, 5, 100), Options{
		RenderMode:  env.RenderFile,
		RenderFile:  filepath.Join(dir, "render.txt"),
		RenderEvery: 2,
	})
	_, err := r.RunMany(context.Background(), 2, func(int, uint64) Policy { return HoldPolicy{} }, 1, 2)
	require.NoError(t, err)

	for _, name := range []string{"render-000.txt", "render-001.txt"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		// steps 2 and 4, then the final step 5
		assert.Contains(t, string(raw), "Step: 2\n")
		assert.Contains(t, string(raw), "Step: 4\n")
		assert.Contains(t, string(raw), "Step: 5\n")
		assert.NotContains(t, string(raw), "Step: 3\n")
	}
	assert.NoFileExists(t, filepath.Join(dir, "render.txt"))
}

type nopVis struct{}

func (nopVis) Render(int, float64, []env.Trade, int) error { return nil }
func (nopVis) Close() error                                { return nil }

func TestRunManyRejectsParallelLiveRendering(t *testing.T) {
	r := newRunner(t, flatFrame(t, 5, 100), Options{
		RenderMode: env.RenderLive,
		Visualization: func(env.DataSource) (env.Visualization, error) {
			return nopVis{}, nil
		},
	})
	_, err := r.RunMany(context.Background(), 2, func(int, uint64) Policy { return HoldPolicy{} }, 1, 2)
	assert.Error(t, err)

	_, err = r.RunMany(context.Background(), 2, func(int, uint64) Policy { return HoldPolicy{} }, 1, 1)
	assert.NoError(t, err)
}

func TestNewValidatesOptions(t *testing.T) {
	src := flatFrame(t, 5, 100)
	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, env.ErrConfiguration)

	_, err = New(src, Options{RenderMode: "hologram"})
	assert.ErrorIs(t, err, env.ErrUnsupportedRenderMode)

	_, err = New(src, Options{RenderMode: env.RenderLive})
	assert.Error(t, err)

	bad := env.DefaultParams()
	bad.MaxSteps = 0
	_, err = New(src, Options{Params: bad})
	assert.ErrorIs(t, err, env.ErrConfiguration)
}

func TestPolicyByName(t *testing.T) {
	for _, name := range PolicyNames {
		f, err := PolicyByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, policyName(f(0, 1)))
	}
	_, err := PolicyByName("oracle")
	assert.Error(t, err)
}

func TestRandomPolicyStaysInActionSpace(t *testing.T) {
	p := NewRandomPolicy(5)
	for i := 0; i < 1000; i++ {
		a := p.Act(env.Observation{})
		assert.Equal(t, a, a.Clip())
	}
}

func TestRandomPolicyDrawsIndependentlyOfPrices(t *testing.T) {
	const draws = 64
	for seed := uint64(0); seed < 8; seed++ {
		prices := env.NewRand(seed)
		priceFractions := make(map[float64]bool, 2*draws)
		for i := 0; i < 2*draws; i++ {
			priceFractions[prices.Float64()] = true
		}
		p := NewRandomPolicy(seed)
		for i := 0; i < draws; i++ {
			a := p.Act(env.Observation{})
			assert.False(t, priceFractions[a.Type/3], "seed %d draw %d: type follows the price stream", seed, i)
			assert.False(t, priceFractions[a.Amount], "seed %d draw %d: amount follows the price stream", seed, i)
		}
	}
}

func TestRandomPolicyBuysAcrossWholePriceRange(t *testing.T) {
	// first-step buys must not be confined to the low third of the open-close range
	var buys, highBuys int
	for seed := uint64(0); seed < 300; seed++ {
		a := NewRandomPolicy(seed).Act(env.Observation{})
		if a.Kind() != env.ActionBuy {
			continue
		}
		buys++
		if env.NewRand(seed).Float64() >= 1.0/3 {
			highBuys++
		}
	}
	require.NotZero(t, buys)
	assert.NotZero(t, highBuys)
}

func TestSummarize(t *testing.T) {
	agg := Summarize([]EpisodeSummary{
		{Steps: 10, TotalReward: 20, Profit: 100, FinalNetWorth: 10100},
		{Steps: 4, TotalReward: 10, Profit: -10000, FinalNetWorth: 0},
	})
	assert.Equal(t, 2, agg.Episodes)
	assert.InDelta(t, 15, agg.MeanReward, 1e-9)
	assert.InDelta(t, -4950, agg.MeanProfit, 1e-9)
	assert.InDelta(t, 100, agg.BestProfit, 1e-9)
	assert.InDelta(t, -10000, agg.WorstProfit, 1e-9)
	assert.InDelta(t, 7, agg.MeanSteps, 1e-9)
	assert.Equal(t, 1, agg.Bankruptcies)
	assert.Equal(t, Aggregate{}, Summarize(nil))
}
