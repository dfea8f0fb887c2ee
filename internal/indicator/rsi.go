package indicator

import "fxanalyst/internal/model"

// neutralRSI is reported while the average loss is exactly zero.
const neutralRSI = 50.0

// RSI calculates the Relative Strength Index using Wilder's smoothing
// (alpha = 1/period) over gains and losses. The first close has no delta and
// contributes a zero gain and zero loss. Update is O(1) per candle.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   *SMMA
	avgLoss   *SMMA
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period:  period,
		avgGain: NewSMMA(period),
		avgLoss: NewSMMA(period),
		current: neutralRSI,
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(candle model.Candle) { r.Push(candle.Close) }

// Push feeds a raw close price.
func (r *RSI) Push(price float64) {
	r.count++

	gain, loss := 0.0, 0.0
	if r.count > 1 {
		delta := price - r.prevClose
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
	}
	r.prevClose = price

	r.avgGain.Push(gain)
	r.avgLoss.Push(loss)

	al := r.avgLoss.Value()
	if al == 0 {
		r.current = neutralRSI
		return
	}
	rs := r.avgGain.Value() / al
	r.current = 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

// RSISeries returns the RSI after every close.
func RSISeries(closes []float64, period int) []float64 {
	r := NewRSI(period)
	out := make([]float64, len(closes))
	for i, c := range closes {
		r.Push(c)
		out[i] = r.Value()
	}
	return out
}
