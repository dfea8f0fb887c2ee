package indicator

import (
	"math"

	"fxanalyst/internal/model"
)

// ATR calculates the Average True Range, Wilder-smoothed (alpha = 1/period).
// The first true range is high-low since there is no previous close.
type ATR struct {
	period    int
	count     int
	prevClose float64
	tr        *SMMA
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, tr: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(candle model.Candle) {
	a.count++
	tr := candle.High - candle.Low
	if a.count > 1 {
		tr = TrueRange(candle.High, candle.Low, a.prevClose)
	}
	a.prevClose = candle.Close
	a.tr.Push(tr)
}

func (a *ATR) Value() float64 { return a.tr.Value() }
func (a *ATR) Ready() bool    { return a.count > a.period }

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATRSeries returns the ATR after every candle.
func ATRSeries(candles []model.Candle, period int) []float64 {
	a := NewATR(period)
	out := make([]float64, len(candles))
	for i, c := range candles {
		a.Update(c)
		out[i] = a.Value()
	}
	return out
}
