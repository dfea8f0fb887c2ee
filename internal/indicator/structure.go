package indicator

import (
	"math"

	"fxanalyst/internal/model"
)

// Structure holds the price-structure marker columns for a series. Swing
// levels are NaN until the window is full; marker flags are false wherever
// their inputs are undefined.
type Structure struct {
	SwingHigh      []float64
	SwingLow       []float64
	BOSBull        []bool
	BOSBear        []bool
	FVG            []bool
	Orderblock     []bool
	LiquiditySweep []bool
}

// RollingMax returns the max over each trailing window of size w (NaN while
// fewer than w values are available).
func RollingMax(values []float64, w int) []float64 {
	return rolling(values, w, math.Max)
}

// RollingMin returns the min over each trailing window of size w.
func RollingMin(values []float64, w int) []float64 {
	return rolling(values, w, math.Min)
}

func rolling(values []float64, w int, pick func(a, b float64) float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i+1 < w {
			out[i] = math.NaN()
			continue
		}
		best := values[i-w+1]
		for _, v := range values[i-w+2 : i+1] {
			best = pick(best, v)
		}
		out[i] = best
	}
	return out
}

// ComputeStructure derives the structure markers:
//   - bos_bull: close breaks above the previous bar's swing high
//   - bos_bear: close breaks below the previous bar's swing low
//   - fvg: the range of candle i-2 and candle i do not overlap, i.e. the
//     gap around candle i-1 is confirmed once candle i closes
//   - orderblock: bearish candle with volume above its rolling mean
//   - liquidity_sweep: low pierces the previous bar's swing low
func ComputeStructure(candles []model.Candle, window, volumeWindow int) Structure {
	n := len(candles)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	st := Structure{
		SwingHigh:      RollingMax(highs, window),
		SwingLow:       RollingMin(lows, window),
		BOSBull:        make([]bool, n),
		BOSBear:        make([]bool, n),
		FVG:            make([]bool, n),
		Orderblock:     make([]bool, n),
		LiquiditySweep: make([]bool, n),
	}

	volMean := NewSMA(volumeWindow)
	for i, c := range candles {
		volMean.Push(c.Volume)

		if i >= 1 {
			prevHigh := st.SwingHigh[i-1]
			prevLow := st.SwingLow[i-1]
			// NaN comparisons are false, so warm-up rows never flag.
			st.BOSBull[i] = c.Close > prevHigh
			st.BOSBear[i] = c.Close < prevLow
			st.LiquiditySweep[i] = c.Low < prevLow
		}
		if i >= 2 {
			left := candles[i-2]
			st.FVG[i] = c.Low > left.High || c.High < left.Low
		}
		if volMean.Ready() {
			st.Orderblock[i] = c.Volume > volMean.Value() && c.Close < c.Open
		}
	}
	return st
}

// BoolFloat maps true to 1 and false to 0.
func BoolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
