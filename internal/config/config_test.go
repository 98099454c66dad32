package config

import (
	"os"
	"path/filepath"
	"testing"

	"stockenv/internal/env"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stockenv.yaml", "app:\n  log_level: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, defaultAppEnv, cfg.App.Env)
	assert.Equal(t, env.DefaultParams(), cfg.Env.Params())
	assert.Equal(t, DataSourceCSV, cfg.Data.Source)
	assert.Equal(t, "none", cfg.Render.Mode)
	assert.Equal(t, env.DefaultRenderFile, cfg.Render.Filename)
	assert.Equal(t, 1, cfg.Runner.Episodes)
	assert.Equal(t, defaultHTTPAddr, cfg.HTTP.Addr)
	assert.Equal(t, defaultMarketREST, cfg.Market.RESTBaseURL)
	assert.False(t, cfg.Recorder.Enabled)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
env:
  max_steps: 500
  initial_account_balance: 2500
data:
  source: SQLite
  symbol: ethusdt
  interval: 4h
`)
	path := writeFile(t, dir, "main.yaml", `
include:
  - base.yaml
env:
  max_steps: 800
  seed: 42
render:
  mode: FILE
  render_every: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Env.MaxSteps, "including file wins")
	assert.InDelta(t, 2500, cfg.Env.InitialAccountBalance, 1e-9)
	assert.EqualValues(t, 42, cfg.Env.Seed)
	assert.Equal(t, DataSourceSQLite, cfg.Data.Source)
	assert.Equal(t, "ETHUSDT", cfg.Data.Symbol)
	assert.Equal(t, "file", cfg.Render.Mode)
	assert.Equal(t, 10, cfg.Render.RenderEvery)
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "include cycle")
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stockenv.yaml", "env:\n  seed: 1\n")
	t.Setenv("STOCKENV_ENV_SEED", "99")
	t.Setenv("STOCKENV_RUNNER_POLICY", "hold")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 99, cfg.Env.Seed)
	assert.Equal(t, "hold", cfg.Runner.Policy)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"explicit zero max_steps": "env:\n  max_steps: 0\n",
		"unknown source":          "data:\n  source: parquet\n",
		"unknown render mode":     "render:\n  mode: hologram\n",
		"live with parallel":      "render:\n  mode: live\nrunner:\n  parallel: 4\n",
		"bad log level":           "app:\n  log_level: loud\n",
		"bad log format":          "app:\n  log_format: xml\n",
		"bad start":               "data:\n  start: yesterday\n",
		"end before start":        "data:\n  start: \"2024-02-01\"\n  end: \"2024-01-01\"\n",
		"recorder without path":   "recorder:\n  enabled: true\n  path: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "stockenv.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDataRange(t *testing.T) {
	d := DataConfig{Start: "2024-01-01", End: "2024-01-02T00:00:00Z"}
	start, end, err := d.Range()
	require.NoError(t, err)
	assert.EqualValues(t, 1704067200000, start)
	assert.EqualValues(t, 1704153600000, end)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/stockenv.yaml")
	assert.Equal(t, "explicit.yaml", ResolvePath(" explicit.yaml "))
	assert.Equal(t, "/etc/stockenv.yaml", ResolvePath(""))
	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, filepath.Join("configs", "stockenv.yaml"), ResolvePath(""))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, validate(cfg))
	assert.Equal(t, env.DefaultParams(), cfg.Env.Params())
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "stockenv.yaml"))
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Env, cfg.Env)
	assert.Equal(t, def.Data, cfg.Data)
	assert.Equal(t, def.Runner, cfg.Runner)
	assert.Equal(t, def.HTTP.Addr, cfg.HTTP.Addr)
}
