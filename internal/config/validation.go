package config

import (
	"fmt"
	"strings"

	"stockenv/internal/env"
	"stockenv/internal/logger"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Env.Params().Validate(); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Render.validate(); err != nil {
		return err
	}
	if err := c.Runner.validate(c.Render); err != nil {
		return err
	}
	if c.Recorder.Enabled && strings.TrimSpace(c.Recorder.Path) == "" {
		return fmt.Errorf("recorder.path is required when recorder.enabled")
	}
	return nil
}

func (a *AppConfig) validate() error {
	if _, err := logger.ParseLevel(a.LogLevel); err != nil {
		return fmt.Errorf("app.log_level: %w", err)
	}
	switch strings.ToLower(a.LogFormat) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
}

func (d *DataConfig) validate() error {
	switch d.Source {
	case DataSourceCSV:
		if strings.TrimSpace(d.Path) == "" {
			return fmt.Errorf("data.path is required for csv source")
		}
	case DataSourceSQLite:
		if strings.TrimSpace(d.StoreDir) == "" || d.Symbol == "" || strings.TrimSpace(d.Interval) == "" {
			return fmt.Errorf("data.store_dir, data.symbol and data.interval are required for sqlite source")
		}
	default:
		return fmt.Errorf("data.source must be csv or sqlite, got %q", d.Source)
	}
	if d.Warmup < 0 {
		return fmt.Errorf("data.warmup must be >= 0")
	}
	start, end, err := d.Range()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if start > 0 && end > 0 && end <= start {
		return fmt.Errorf("data.end must be after data.start")
	}
	return nil
}

func (r *RenderConfig) validate() error {
	mode, err := env.ParseRenderMode(r.Mode)
	if err != nil {
		return fmt.Errorf("render.mode: %w", err)
	}
	if mode == env.RenderLive && strings.TrimSpace(r.ChartPath) == "" {
		return fmt.Errorf("render.chart_path is required for live mode")
	}
	if r.RenderEvery < 0 {
		return fmt.Errorf("render.render_every must be >= 0")
	}
	return nil
}

func (r *RunnerConfig) validate(render RenderConfig) error {
	if r.Episodes <= 0 {
		return fmt.Errorf("runner.episodes must be > 0")
	}
	if r.Parallel <= 0 {
		return fmt.Errorf("runner.parallel must be > 0")
	}
	if r.MaxEpisodeSteps < 0 {
		return fmt.Errorf("runner.max_episode_steps must be >= 0")
	}
	if r.Parallel > 1 && strings.EqualFold(render.Mode, string(env.RenderLive)) {
		return fmt.Errorf("render.mode live requires runner.parallel = 1")
	}
	return nil
}
