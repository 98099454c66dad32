package market

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// ColCloseTime carries each row's close time (Unix ms) so charts can label the x axis.
const ColCloseTime = "close_time"

// htDcPeriodLookback is TA-Lib's fixed lookback for the Hilbert dominant cycle period.
const htDcPeriodLookback = 32

// FeatureSettings holds indicator periods. Zero fields take the defaults.
type FeatureSettings struct {
	MOMPeriod    int     `json:"mom_period,omitempty"`
	RSIPeriod    int     `json:"rsi_period,omitempty"`
	EMAPeriod    int     `json:"ema_period,omitempty"`
	WILLRPeriod  int     `json:"willr_period,omitempty"`
	BBandsPeriod int     `json:"bbands_period,omitempty"`
	BBandsDev    float64 `json:"bbands_dev,omitempty"`
	PPOFast      int     `json:"ppo_fast,omitempty"`
	PPOSlow      int     `json:"ppo_slow,omitempty"`
	// Warmup rows are dropped from the head of the frame; 0 means the longest indicator lookback.
	Warmup int `json:"warmup,omitempty"`
}

func (s FeatureSettings) withDefaults() FeatureSettings {
	if s.MOMPeriod <= 0 {
		s.MOMPeriod = 10
	}
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.EMAPeriod <= 0 {
		s.EMAPeriod = 20
	}
	if s.WILLRPeriod <= 0 {
		s.WILLRPeriod = 14
	}
	if s.BBandsPeriod <= 0 {
		s.BBandsPeriod = 20
	}
	if s.BBandsDev <= 0 {
		s.BBandsDev = 2
	}
	if s.PPOFast <= 0 {
		s.PPOFast = 12
	}
	if s.PPOSlow <= 0 {
		s.PPOSlow = 26
	}
	if s.PPOFast >= s.PPOSlow {
		s.PPOFast, s.PPOSlow = s.PPOSlow, s.PPOFast
	}
	if s.Warmup <= 0 {
		s.Warmup = s.lookback()
	}
	return s
}

func (s FeatureSettings) lookback() int {
	out := htDcPeriodLookback
	for _, v := range []int{s.MOMPeriod, s.RSIPeriod, s.EMAPeriod - 1, s.WILLRPeriod - 1, s.BBandsPeriod - 1, s.PPOSlow - 1} {
		if v > out {
			out = v
		}
	}
	return out
}

// BuildFeatures computes every observation column from candles and drops the
// indicator warm-up rows.
func BuildFeatures(candles []Candle, settings FeatureSettings) (*Frame, error) {
	cfg := settings.withDefaults()
	if len(candles) <= cfg.Warmup {
		return nil, fmt.Errorf("features: %d candles, need more than %d warmup rows", len(candles), cfg.Warmup)
	}
	n := len(candles)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	closeTimes := make([]float64, n)
	for i, c := range candles {
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
		closeTimes[i] = float64(c.CloseTime)
	}
	upper, _, _ := talib.BBands(closes, cfg.BBandsPeriod, cfg.BBandsDev, cfg.BBandsDev, talib.SMA)
	cols := map[string][]float64{
		ColOpen:        opens,
		ColHigh:        highs,
		ColLow:         lows,
		ColClose:       closes,
		ColVolumeFrom:  volumes,
		ColCloseTime:   closeTimes,
		ColMOM:         sanitizeSeries(talib.Mom(closes, cfg.MOMPeriod)),
		ColRSI:         sanitizeSeries(talib.Rsi(closes, cfg.RSIPeriod)),
		ColHTDCPeriod:  sanitizeSeries(talib.HtDcPeriod(closes)),
		ColEMA:         sanitizeSeries(talib.Ema(closes, cfg.EMAPeriod)),
		ColWILLR:       sanitizeSeries(talib.WillR(highs, lows, closes, cfg.WILLRPeriod)),
		ColBBandsUpper: sanitizeSeries(upper),
		ColPPO:         sanitizeSeries(talib.Ppo(closes, cfg.PPOFast, cfg.PPOSlow, talib.SMA)),
	}
	for name, values := range cols {
		if len(values) != n {
			return nil, fmt.Errorf("features: %s produced %d values for %d candles", name, len(values), n)
		}
		cols[name] = values[cfg.Warmup:]
	}
	return NewFrame(cols)
}

func sanitizeSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = v
	}
	return out
}
