package indicator

import "fxanalyst/internal/model"

// SMMA calculates the Wilder smoothed moving average: an exponential average
// with alpha = 1/period, seeded with the first value.
type SMMA struct {
	period  int
	alpha   float64
	count   int
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period, alpha: 1.0 / float64(period)}
}

func (s *SMMA) Name() string { return "SMMA" }

func (s *SMMA) Update(candle model.Candle) { s.Push(candle.Close) }

// Push feeds a raw value.
func (s *SMMA) Push(v float64) {
	s.count++
	if s.count == 1 {
		s.current = v
		return
	}
	// Wilder smoothing: prev + alpha*(v - prev) == (prev*(period-1) + v) / period
	s.current += s.alpha * (v - s.current)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.current = 0
}
