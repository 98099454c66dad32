package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"stockenv/internal/env"
	"stockenv/internal/logger"
	"stockenv/internal/recorder"

	"golang.org/x/sync/errgroup"
)

// Options controls an evaluation run.
type Options struct {
	Params env.Params
	// RenderMode none disables rendering. RenderEvery <= 0 renders only the final state.
	RenderMode  env.RenderMode
	RenderFile  string
	RenderEvery int
	// MaxEpisodeSteps caps an episode before the environment terminates it. 0 means no cap.
	MaxEpisodeSteps int
	Visualization   env.VisualizationFactory
	Recorder        recorder.Recorder
}

// EpisodeSummary is what a finished episode reports back.
type EpisodeSummary struct {
	ID            string      `json:"id"`
	Policy        string      `json:"policy"`
	Seed          uint64      `json:"seed"`
	Steps         int         `json:"steps"`
	TotalReward   float64     `json:"total_reward"`
	FinalNetWorth float64     `json:"final_net_worth"`
	MaxNetWorth   float64     `json:"max_net_worth"`
	Profit        float64     `json:"profit"`
	Trades        []env.Trade `json:"trades"`
	Terminated    bool        `json:"terminated"`
	Elapsed       string      `json:"elapsed"`
}

// Runner drives policies against fresh environments over one data source.
// The source is only read, so episodes can run concurrently.
type Runner struct {
	src  env.DataSource
	opts Options
}

func New(src env.DataSource, opts Options) (*Runner, error) {
	if src == nil {
		return nil, &env.ConfigurationError{Reason: "data source is nil"}
	}
	if opts.Params == (env.Params{}) {
		opts.Params = env.DefaultParams()
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", env.ErrConfiguration, err)
	}
	if opts.RenderMode == "" {
		opts.RenderMode = env.RenderNone
	}
	if _, err := env.ParseRenderMode(string(opts.RenderMode)); err != nil {
		return nil, err
	}
	if opts.RenderMode == env.RenderLive && opts.Visualization == nil {
		return nil, fmt.Errorf("runner: live render mode needs a visualization")
	}
	if opts.Recorder == nil {
		opts.Recorder = recorder.Noop{}
	}
	return &Runner{src: src, opts: opts}, nil
}

// RunEpisode plays one episode of policy with the environment seeded by seed.
func (r *Runner) RunEpisode(ctx context.Context, policy Policy, seed uint64) (EpisodeSummary, error) {
	return r.runEpisode(ctx, policy, seed, r.opts.RenderFile)
}

func (r *Runner) runEpisode(ctx context.Context, policy Policy, seed uint64, renderFile string) (EpisodeSummary, error) {
	start := time.Now()
	summary := EpisodeSummary{Policy: policyName(policy), Seed: seed}

	e, err := env.New(r.src,
		env.WithParams(r.opts.Params),
		env.WithSeed(seed),
		env.WithVisualizationFactory(r.opts.Visualization),
	)
	if err != nil {
		return summary, err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			logger.Warnf("[runner] 关闭环境失败: %v", cerr)
		}
	}()

	id, err := r.opts.Recorder.StartEpisode(ctx, recorder.EpisodeMeta{
		Policy: summary.Policy,
		Seed:   seed,
		Rows:   r.src.Len(),
		Params: r.opts.Params,
	})
	if err != nil {
		return summary, err
	}
	summary.ID = id

	runErr := r.play(ctx, e, policy, renderFile, &summary)

	p := e.Portfolio()
	summary.FinalNetWorth = p.NetWorth
	summary.MaxNetWorth = p.MaxNetWorth
	summary.Profit = p.Profit(r.opts.Params.InitialAccountBalance)
	summary.Trades = p.Trades
	summary.Terminated = e.State() == env.StateTerminated
	summary.Elapsed = time.Since(start).Round(time.Millisecond).String()

	res := recorder.EpisodeResult{
		Steps:         summary.Steps,
		TotalReward:   summary.TotalReward,
		FinalNetWorth: summary.FinalNetWorth,
		MaxNetWorth:   summary.MaxNetWorth,
		Profit:        summary.Profit,
		Trades:        summary.Trades,
	}
	if runErr != nil {
		res.Err = runErr.Error()
	}
	// the episode row is closed out even when ctx was canceled
	finishCtx := context.WithoutCancel(ctx)
	if err := r.opts.Recorder.FinishEpisode(finishCtx, id, res); err != nil {
		return summary, errors.Join(runErr, err)
	}
	if runErr != nil {
		return summary, runErr
	}
	logger.Infof("[runner] episode %s 完成: policy=%s steps=%d reward=%.2f net_worth=%.2f profit=%.2f trades=%d",
		id, summary.Policy, summary.Steps, summary.TotalReward, summary.FinalNetWorth, summary.Profit, len(summary.Trades))
	return summary, nil
}

func (r *Runner) play(ctx context.Context, e *env.Environment, policy Policy, renderFile string, summary *EpisodeSummary) error {
	obs, err := e.Reset()
	if err != nil {
		return err
	}
	renderOpts := env.RenderOptions{Filename: renderFile}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		action := policy.Act(obs)
		res, err := e.Step(action)
		if err != nil {
			return fmt.Errorf("step %d: %w", summary.Steps+1, err)
		}
		summary.Steps++
		summary.TotalReward += res.Reward
		obs = res.Observation

		account := e.Account()
		if err := r.opts.Recorder.RecordStep(ctx, recorder.StepRecord{
			EpisodeID:   summary.ID,
			Step:        account.CurrentStep,
			Action:      action.Clip(),
			Price:       e.LastPrice(),
			Reward:      res.Reward,
			Done:        res.Done,
			Observation: res.Observation,
			Portfolio:   account,
		}); err != nil {
			return err
		}

		last := res.Done || (r.opts.MaxEpisodeSteps > 0 && summary.Steps >= r.opts.MaxEpisodeSteps)
		if r.shouldRender(summary.Steps, last) {
			if err := e.Render(r.opts.RenderMode, renderOpts); err != nil {
				return fmt.Errorf("render at step %d: %w", summary.Steps, err)
			}
		}
		if last {
			return nil
		}
	}
}

func (r *Runner) shouldRender(steps int, last bool) bool {
	if r.opts.RenderMode == env.RenderNone {
		return false
	}
	if last {
		return true
	}
	return r.opts.RenderEvery > 0 && steps%r.opts.RenderEvery == 0
}

// RunMany plays n episodes, at most parallel at a time. Episode i is seeded
// with baseSeed+i. Summaries come back in episode order.
func (r *Runner) RunMany(ctx context.Context, n int, factory PolicyFactory, baseSeed uint64, parallel int) ([]EpisodeSummary, error) {
	if n <= 0 {
		return nil, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("runner: policy factory is nil")
	}
	if parallel <= 0 {
		parallel = 1
	}
	if parallel > 1 && r.opts.RenderMode == env.RenderLive {
		return nil, fmt.Errorf("runner: live rendering needs parallel=1, got %d", parallel)
	}

	summaries := make([]EpisodeSummary, n)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(parallel)
	for i := 0; i < n; i++ {
		seed := baseSeed + uint64(i)
		renderFile := r.opts.RenderFile
		if n > 1 && r.opts.RenderMode == env.RenderFile {
			renderFile = episodeFile(renderFile, i)
		}
		group.Go(func() error {
			summary, err := r.runEpisode(gctx, factory(i, seed), seed, renderFile)
			summaries[i] = summary
			if err != nil {
				return fmt.Errorf("episode %d (seed %d): %w", i, seed, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return summaries, err
	}
	return summaries, nil
}

// episodeFile turns render.txt into render-003.txt.
func episodeFile(base string, i int) string {
	if base == "" {
		base = env.DefaultRenderFile
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%03d%s", strings.TrimSuffix(base, ext), i, ext)
}

// Aggregate summarises a batch of episodes.
type Aggregate struct {
	Episodes     int     `json:"episodes"`
	MeanReward   float64 `json:"mean_reward"`
	MeanProfit   float64 `json:"mean_profit"`
	BestProfit   float64 `json:"best_profit"`
	WorstProfit  float64 `json:"worst_profit"`
	MeanSteps    float64 `json:"mean_steps"`
	Bankruptcies int     `json:"bankruptcies"`
}

func Summarize(summaries []EpisodeSummary) Aggregate {
	var agg Aggregate
	for i, s := range summaries {
		agg.Episodes++
		agg.MeanReward += s.TotalReward
		agg.MeanProfit += s.Profit
		agg.MeanSteps += float64(s.Steps)
		if i == 0 || s.Profit > agg.BestProfit {
			agg.BestProfit = s.Profit
		}
		if i == 0 || s.Profit < agg.WorstProfit {
			agg.WorstProfit = s.Profit
		}
		if s.FinalNetWorth <= 0 {
			agg.Bankruptcies++
		}
	}
	if agg.Episodes > 0 {
		n := float64(agg.Episodes)
		agg.MeanReward /= n
		agg.MeanProfit /= n
		agg.MeanSteps /= n
	}
	return agg
}
