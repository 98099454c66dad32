package config

import (
	"strings"

	"stockenv/internal/env"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultDataSource      = DataSourceCSV
	defaultDataPath        = "data/coinbase_hourly.csv"
	defaultDataStoreDir    = "data/candles"
	defaultDataSymbol      = "BTCUSDT"
	defaultDataInterval    = "1h"
	defaultRenderMode      = "none"
	defaultRenderChartPath = "render/chart.html"
	defaultRecorderPath    = "data/episodes.db"
	defaultRunnerPolicy    = "random"
	defaultRunnerEpisodes  = 1
	defaultRunnerParallel  = 1
	defaultHTTPAddr        = ":9990"
	defaultMarketREST      = "https://fapi.binance.com"
	defaultMarketTimeout   = 15
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Env.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Render.applyDefaults(keys)
	c.Recorder.applyDefaults(keys)
	c.Runner.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
	c.Market.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
	)
}

func (e *EnvConfig) applyDefaults(keys keySet) {
	def := env.DefaultParams()
	applyFieldDefaults(keys,
		floatFieldDefault("env.max_account_balance", &e.MaxAccountBalance, def.MaxAccountBalance),
		fieldDefault{
			key:   "env.max_num_shares",
			need:  func() bool { return e.MaxNumShares <= 0 },
			apply: func() { e.MaxNumShares = def.MaxNumShares },
		},
		floatFieldDefault("env.max_share_price", &e.MaxSharePrice, def.MaxSharePrice),
		intFieldDefault("env.max_open_positions", &e.MaxOpenPositions, def.MaxOpenPositions),
		intFieldDefault("env.max_steps", &e.MaxSteps, def.MaxSteps),
		floatFieldDefault("env.initial_account_balance", &e.InitialAccountBalance, def.InitialAccountBalance),
		intFieldDefault("env.lookback_window_size", &e.LookbackWindowSize, def.LookbackWindowSize),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	d.Source = strings.ToLower(strings.TrimSpace(d.Source))
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	applyFieldDefaults(keys,
		stringFieldDefault("data.source", &d.Source, defaultDataSource),
		stringFieldDefault("data.path", &d.Path, defaultDataPath),
		stringFieldDefault("data.store_dir", &d.StoreDir, defaultDataStoreDir),
		stringFieldDefault("data.symbol", &d.Symbol, defaultDataSymbol),
		stringFieldDefault("data.interval", &d.Interval, defaultDataInterval),
	)
}

func (r *RenderConfig) applyDefaults(keys keySet) {
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	applyFieldDefaults(keys,
		stringFieldDefault("render.mode", &r.Mode, defaultRenderMode),
		stringFieldDefault("render.filename", &r.Filename, env.DefaultRenderFile),
		stringFieldDefault("render.chart_path", &r.ChartPath, defaultRenderChartPath),
	)
}

func (r *RecorderConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("recorder.path", &r.Path, defaultRecorderPath),
	)
}

func (r *RunnerConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("runner.policy", &r.Policy, defaultRunnerPolicy),
		intFieldDefault("runner.episodes", &r.Episodes, defaultRunnerEpisodes),
		intFieldDefault("runner.parallel", &r.Parallel, defaultRunnerParallel),
	)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}
