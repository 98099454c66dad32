package app

import (
	"context"
	"fmt"

	"stockenv/internal/config"
	"stockenv/internal/logger"
	"stockenv/internal/market"
	"stockenv/internal/recorder"
	"stockenv/internal/runner"
	"stockenv/internal/transport/http/gym"
)

// App 持有按配置装配好的数据源、评估器与 HTTP 服务。
type App struct {
	cfg      *config.Config
	source   *market.Frame
	runner   *runner.Runner
	recorder recorder.Recorder
	server   *gym.Server
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)
	return buildAppWithWire(ctx, cfg)
}

func (a *App) Source() *market.Frame  { return a.source }
func (a *App) Runner() *runner.Runner { return a.runner }

// RunEpisodes 按 runner 配置运行评估并汇总结果。
func (a *App) RunEpisodes(ctx context.Context) ([]runner.EpisodeSummary, runner.Aggregate, error) {
	if a == nil || a.runner == nil {
		return nil, runner.Aggregate{}, fmt.Errorf("app not initialized")
	}
	rc := a.cfg.Runner
	factory, err := runner.PolicyByName(rc.Policy)
	if err != nil {
		return nil, runner.Aggregate{}, err
	}
	summaries, err := a.runner.RunMany(ctx, rc.Episodes, factory, a.cfg.Env.Seed, rc.Parallel)
	return summaries, runner.Summarize(summaries), err
}

// Serve 启动 gym HTTP 服务，直到 ctx 结束。
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("gym http server error: %w", err)
	}
	return nil
}

func (a *App) Server() *gym.Server { return a.server }

// Close 释放记录器数据库。
func (a *App) Close() error {
	if a == nil || a.recorder == nil {
		return nil
	}
	err := a.recorder.Close()
	a.recorder = nil
	return err
}
