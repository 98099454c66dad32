package app

import (
	"fmt"
	"io"
	"strings"

	"stockenv/internal/config"
	"stockenv/internal/market"
)

type StartupSummary struct {
	Data     DataSummary
	Env      config.EnvConfig
	Render   config.RenderConfig
	Recorder config.RecorderConfig
	Runner   config.RunnerConfig
	HTTPAddr string
}

type DataSummary struct {
	Source  string
	Origin  string
	Rows    int
	Columns []string
}

func newStartupSummary(cfg *config.Config, frame *market.Frame) *StartupSummary {
	origin := cfg.Data.Path
	if cfg.Data.Source == config.DataSourceSQLite {
		origin = fmt.Sprintf("%s %s @ %s", cfg.Data.Symbol, cfg.Data.Interval, cfg.Data.StoreDir)
	}
	return &StartupSummary{
		Data: DataSummary{
			Source:  cfg.Data.Source,
			Origin:  origin,
			Rows:    frame.Len(),
			Columns: frame.Columns(),
		},
		Env:      cfg.Env,
		Render:   cfg.Render,
		Recorder: cfg.Recorder,
		Runner:   cfg.Runner,
		HTTPAddr: cfg.HTTP.Addr,
	}
}

func (s *StartupSummary) Print(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[行情数据 (DATA)]")
	fmt.Fprintf(w, "  来源: %s (%s)\n", s.Data.Source, s.Data.Origin)
	fmt.Fprintf(w, "  行数: %d\n", s.Data.Rows)
	fmt.Fprintf(w, "  列: %s\n", formatList(s.Data.Columns))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[环境参数 (ENV)]")
	fmt.Fprintf(w, "  初始资金: %.2f\n", s.Env.InitialAccountBalance)
	fmt.Fprintf(w, "  最大步数: %d\n", s.Env.MaxSteps)
	fmt.Fprintf(w, "  回看窗口: %d\n", s.Env.LookbackWindowSize)
	fmt.Fprintf(w, "  随机种子: %d\n", s.Env.Seed)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[运行 (RUNNER)]")
	fmt.Fprintf(w, "  策略: %s  episodes: %d  并发: %d\n", s.Runner.Policy, s.Runner.Episodes, s.Runner.Parallel)
	fmt.Fprintf(w, "  渲染: %s (every %d)\n", s.Render.Mode, s.Render.RenderEvery)
	if s.Recorder.Enabled {
		fmt.Fprintf(w, "  记录: %s\n", s.Recorder.Path)
	} else {
		fmt.Fprintln(w, "  记录: (关闭)")
	}
	fmt.Fprintf(w, "  HTTP: %s\n", s.HTTPAddr)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
