package config

import (
	"fmt"
	"strings"
	"time"

	"stockenv/internal/env"
	"stockenv/internal/market"
)

// Config 是 stockenv 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app" yaml:"app"`
	Env      EnvConfig      `toml:"env" yaml:"env"`
	Data     DataConfig     `toml:"data" yaml:"data"`
	Render   RenderConfig   `toml:"render" yaml:"render"`
	Recorder RecorderConfig `toml:"recorder" yaml:"recorder"`
	Runner   RunnerConfig   `toml:"runner" yaml:"runner"`
	HTTP     HTTPConfig     `toml:"http" yaml:"http"`
	Market   MarketConfig   `toml:"market" yaml:"market"`
}

type AppConfig struct {
	Env       string `toml:"env" yaml:"env"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	LogPath   string `toml:"log_path" yaml:"log_path"`
	LogFormat string `toml:"log_format" yaml:"log_format"`
}

// EnvConfig 对应 env.Params，另加 episode 种子。
type EnvConfig struct {
	MaxAccountBalance     float64 `toml:"max_account_balance" yaml:"max_account_balance"`
	MaxNumShares          int64   `toml:"max_num_shares" yaml:"max_num_shares"`
	MaxSharePrice         float64 `toml:"max_share_price" yaml:"max_share_price"`
	MaxOpenPositions      int     `toml:"max_open_positions" yaml:"max_open_positions"`
	MaxSteps              int     `toml:"max_steps" yaml:"max_steps"`
	InitialAccountBalance float64 `toml:"initial_account_balance" yaml:"initial_account_balance"`
	LookbackWindowSize    int     `toml:"lookback_window_size" yaml:"lookback_window_size"`
	Seed                  uint64  `toml:"seed" yaml:"seed"`
}

func (e EnvConfig) Params() env.Params {
	return env.Params{
		MaxAccountBalance:     e.MaxAccountBalance,
		MaxNumShares:          e.MaxNumShares,
		MaxSharePrice:         e.MaxSharePrice,
		MaxOpenPositions:      e.MaxOpenPositions,
		MaxSteps:              e.MaxSteps,
		InitialAccountBalance: e.InitialAccountBalance,
		LookbackWindowSize:    e.LookbackWindowSize,
	}
}

const (
	DataSourceCSV    = "csv"
	DataSourceSQLite = "sqlite"
)

// DataConfig 选择行情数据来源。csv 直接读取特征表；sqlite 从 K 线库计算指标。
type DataConfig struct {
	Source   string `toml:"source" yaml:"source"`
	Path     string `toml:"path" yaml:"path"`
	StoreDir string `toml:"store_dir" yaml:"store_dir"`
	Symbol   string `toml:"symbol" yaml:"symbol"`
	Interval string `toml:"interval" yaml:"interval"`
	// Start/End 限定 sqlite 读取区间（RFC3339 或 YYYY-MM-DD），留空表示全部。
	Start string `toml:"start" yaml:"start"`
	End   string `toml:"end" yaml:"end"`

	Warmup       int     `toml:"warmup" yaml:"warmup"`
	MOMPeriod    int     `toml:"mom_period" yaml:"mom_period"`
	RSIPeriod    int     `toml:"rsi_period" yaml:"rsi_period"`
	EMAPeriod    int     `toml:"ema_period" yaml:"ema_period"`
	WILLRPeriod  int     `toml:"willr_period" yaml:"willr_period"`
	BBandsPeriod int     `toml:"bbands_period" yaml:"bbands_period"`
	BBandsDev    float64 `toml:"bbands_dev" yaml:"bbands_dev"`
	PPOFast      int     `toml:"ppo_fast" yaml:"ppo_fast"`
	PPOSlow      int     `toml:"ppo_slow" yaml:"ppo_slow"`
}

func (d DataConfig) FeatureSettings() market.FeatureSettings {
	return market.FeatureSettings{
		MOMPeriod:    d.MOMPeriod,
		RSIPeriod:    d.RSIPeriod,
		EMAPeriod:    d.EMAPeriod,
		WILLRPeriod:  d.WILLRPeriod,
		BBandsPeriod: d.BBandsPeriod,
		BBandsDev:    d.BBandsDev,
		PPOFast:      d.PPOFast,
		PPOSlow:      d.PPOSlow,
		Warmup:       d.Warmup,
	}
}

// Range 返回 sqlite 区间的 Unix 毫秒边界，0 表示不限。
func (d DataConfig) Range() (int64, int64, error) {
	start, err := parseTime(d.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTime(d.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

type RenderConfig struct {
	Mode        string `toml:"mode" yaml:"mode"`
	Filename    string `toml:"filename" yaml:"filename"`
	ChartPath   string `toml:"chart_path" yaml:"chart_path"`
	PNGPath     string `toml:"png_path" yaml:"png_path"`
	RenderEvery int    `toml:"render_every" yaml:"render_every"`
}

type RecorderConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

type RunnerConfig struct {
	Policy          string `toml:"policy" yaml:"policy"`
	Episodes        int    `toml:"episodes" yaml:"episodes"`
	Parallel        int    `toml:"parallel" yaml:"parallel"`
	MaxEpisodeSteps int    `toml:"max_episode_steps" yaml:"max_episode_steps"`
}

type HTTPConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

type MarketConfig struct {
	RESTBaseURL    string `toml:"rest_base_url" yaml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

func (m MarketConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q (want RFC3339 or YYYY-MM-DD)", s)
}
