// Package indicator provides technical indicator calculations over candle data.
//
// The streaming indicators (EMA, SMMA, RSI, ATR, SMA) implement the Indicator
// interface and are O(1) per update. Compute runs them over a whole series and
// returns a Frame with one column per indicator plus the structure markers
// (swing levels, break of structure, fair value gap, order block, liquidity
// sweep) used by the feature builder.
package indicator

import (
	"errors"
	"fmt"

	"fxanalyst/internal/model"
)

// Indicator is the interface for all streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "RSI").
	Name() string

	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value.
	Value() float64

	// Ready returns true once the warm-up period has been consumed.
	Ready() bool
}

// ErrNonFinite is returned when the latest frame row holds NaN or Inf.
var ErrNonFinite = errors.New("non-finite indicator value on latest candle")

// InsufficientDataError reports a series shorter than the longest lookback.
type InsufficientDataError struct {
	Timeframe model.Timeframe
	Have      int
	Need      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d candles, need %d", e.Timeframe, e.Have, e.Need)
}

// Config holds the indicator periods used by Compute.
type Config struct {
	FastEMA         int `yaml:"fast_ema" default:"20"`
	SlowEMA         int `yaml:"slow_ema" default:"50"`
	TrendEMA        int `yaml:"trend_ema" default:"200"`
	RSIPeriod       int `yaml:"rsi_period" default:"14"`
	ATRPeriod       int `yaml:"atr_period" default:"14"`
	MACDFast        int `yaml:"macd_fast" default:"12"`
	MACDSlow        int `yaml:"macd_slow" default:"26"`
	MACDSignal      int `yaml:"macd_signal" default:"9"`
	StructureWindow int `yaml:"structure_window" default:"5"`
	VolumeWindow    int `yaml:"volume_window" default:"20"`
	// MinCandles is the floor on series length regardless of periods.
	MinCandles int `yaml:"min_candles" default:"200"`
}

// DefaultConfig returns the standard periods (EMA 20/50/200, RSI 14, ATR 14,
// MACD 12/26/9, structure window 5, volume window 20).
func DefaultConfig() Config {
	return Config{
		FastEMA:         20,
		SlowEMA:         50,
		TrendEMA:        200,
		RSIPeriod:       14,
		ATRPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		StructureWindow: 5,
		VolumeWindow:    20,
		MinCandles:      200,
	}
}

// RequiredLookback returns the minimum series length Compute accepts.
func (c Config) RequiredLookback() int {
	need := c.MinCandles
	for _, p := range []int{
		c.FastEMA, c.SlowEMA, c.TrendEMA, c.RSIPeriod + 1, c.ATRPeriod + 1,
		c.MACDSlow + c.MACDSignal, c.StructureWindow + 2, c.VolumeWindow,
	} {
		if p > need {
			need = p
		}
	}
	return need
}

// ValidateConfig rejects non-positive periods.
func ValidateConfig(c Config) error {
	periods := map[string]int{
		"fast_ema": c.FastEMA, "slow_ema": c.SlowEMA, "trend_ema": c.TrendEMA,
		"rsi_period": c.RSIPeriod, "atr_period": c.ATRPeriod,
		"macd_fast": c.MACDFast, "macd_slow": c.MACDSlow, "macd_signal": c.MACDSignal,
		"structure_window": c.StructureWindow, "volume_window": c.VolumeWindow,
	}
	for name, p := range periods {
		if p <= 0 {
			return fmt.Errorf("indicator %s: period must be > 0, got %d", name, p)
		}
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("indicator macd: fast (%d) must be < slow (%d)", c.MACDFast, c.MACDSlow)
	}
	return nil
}
