package app

import (
	"context"
	"fmt"

	"stockenv/internal/config"
	"stockenv/internal/logger"
	"stockenv/internal/market"
)

// LoadSource 按 data.source 加载观测表：csv 直接读取，sqlite 读取 K 线后计算指标。
func LoadSource(ctx context.Context, cfg *config.Config) (*market.Frame, error) {
	dc := cfg.Data
	switch dc.Source {
	case config.DataSourceCSV:
		frame, err := market.LoadCSVFile(dc.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("[app] 已加载 %s: %d 行", dc.Path, frame.Len())
		return frame, nil
	case config.DataSourceSQLite:
		candles, err := LoadCandles(ctx, dc)
		if err != nil {
			return nil, err
		}
		frame, err := market.BuildFeatures(candles, dc.FeatureSettings())
		if err != nil {
			return nil, err
		}
		logger.Infof("[app] %s %s: %d 根 K 线 → %d 行特征", dc.Symbol, dc.Interval, len(candles), frame.Len())
		return frame, nil
	default:
		return nil, fmt.Errorf("unsupported data source %q", dc.Source)
	}
}

// LoadCandles 从本地 K 线库读取配置区间内的数据；库内有缺口时只告警。
func LoadCandles(ctx context.Context, dc config.DataConfig) ([]market.Candle, error) {
	start, end, err := dc.Range()
	if err != nil {
		return nil, err
	}
	store, err := market.NewStore(dc.StoreDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	series := market.NewSeries(dc.Symbol, dc.Interval)
	cov, err := store.Coverage(ctx, series)
	if err != nil {
		return nil, err
	}
	if cov.Rows == 0 {
		return nil, fmt.Errorf("no candles for %s in %s (run fetch first)", series, store.Path())
	}
	if cov.Missing > 0 {
		logger.Warnf("[app] %s 本地缺少 %d 根 K 线，指标可能失真", series, cov.Missing)
	}
	candles, err := store.Load(ctx, series, start, end)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles for %s between %d and %d (stored %d..%d)", series, start, end, cov.First, cov.Last)
	}
	return candles, nil
}
