package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"stockenv/internal/config"
	"stockenv/internal/env"
	"stockenv/internal/logger"
	"stockenv/internal/market"
	"stockenv/internal/recorder"
	"stockenv/internal/render"
	"stockenv/internal/runner"
	"stockenv/internal/transport/http/gym"
)

type AppBuilder struct {
	cfg *config.Config

	sourceFn   func(context.Context, *config.Config) (*market.Frame, error)
	recorderFn func(config.RecorderConfig) (recorder.Recorder, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSource 替换数据加载，主要用于测试。
func WithSource(frame *market.Frame) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(context.Context, *config.Config) (*market.Frame, error) { return frame, nil }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		sourceFn:   LoadSource,
		recorderFn: buildRecorder,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	frame, err := b.sourceFn(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load data source: %w", err)
	}
	mode, err := env.ParseRenderMode(cfg.Render.Mode)
	if err != nil {
		return nil, err
	}
	vis := buildVisualization(cfg.Render)

	rec, err := b.recorderFn(cfg.Recorder)
	if err != nil {
		return nil, fmt.Errorf("init recorder: %w", err)
	}
	run, err := runner.New(frame, runner.Options{
		Params:          cfg.Env.Params(),
		RenderMode:      mode,
		RenderFile:      cfg.Render.Filename,
		RenderEvery:     cfg.Render.RenderEvery,
		MaxEpisodeSteps: cfg.Runner.MaxEpisodeSteps,
		Visualization:   vis,
		Recorder:        rec,
	})
	if err != nil {
		_ = rec.Close()
		return nil, err
	}

	served, err := env.New(frame,
		env.WithParams(cfg.Env.Params()),
		env.WithSeed(cfg.Env.Seed),
		env.WithVisualizationFactory(vis),
	)
	if err != nil {
		_ = rec.Close()
		return nil, err
	}
	serverMode := mode
	if serverMode == env.RenderNone {
		serverMode = env.RenderFile
	}
	server, err := gym.NewServer(gym.Config{
		Addr:       cfg.HTTP.Addr,
		Env:        served,
		RenderMode: serverMode,
		RenderFile: cfg.Render.Filename,
	})
	if err != nil {
		_ = rec.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		source:   frame,
		runner:   run,
		recorder: rec,
		server:   server,
		Summary:  newStartupSummary(cfg, frame),
	}, nil
}

func buildVisualization(rc config.RenderConfig) env.VisualizationFactory {
	if strings.TrimSpace(rc.ChartPath) == "" {
		return nil
	}
	return render.NewFactory(render.ChartOptions{
		Path:         rc.ChartPath,
		Title:        "stockenv",
		SnapshotPath: rc.PNGPath,
	})
}

func buildRecorder(rc config.RecorderConfig) (recorder.Recorder, error) {
	if !rc.Enabled {
		return recorder.Noop{}, nil
	}
	rec, err := recorder.NewSQLite(rc.Path)
	if err != nil {
		return nil, err
	}
	logger.Infof("[app] episode 记录写入 %s", filepath.Clean(rc.Path))
	return rec, nil
}
