package indicator

import "fxanalyst/internal/model"

// EMA calculates Exponential Moving Average with smoothing 2/(period+1).
// Seeded with the first value, no bias adjustment. O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

// Update feeds the candle close.
func (e *EMA) Update(candle model.Candle) { e.Push(candle.Close) }

// Push feeds a raw value; used for EMA-of-EMA series such as the MACD signal.
func (e *EMA) Push(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	// EMA = (v * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// EMASeries returns the EMA of every prefix of values.
func EMASeries(values []float64, period int) []float64 {
	e := NewEMA(period)
	out := make([]float64, len(values))
	for i, v := range values {
		e.Push(v)
		out[i] = e.Value()
	}
	return out
}
