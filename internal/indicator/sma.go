package indicator

import (
	"math"

	"fxanalyst/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
// Value is NaN until the window is full.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period:  period,
		buf:     make([]float64, period),
		current: math.NaN(),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(candle model.Candle) { s.Push(candle.Close) }

// Push feeds a raw value.
func (s *SMA) Push(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = math.NaN()
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// Mean returns the arithmetic mean of the last n values (all values when
// len(values) < n). Returns NaN for an empty slice.
func Mean(values []float64, n int) float64 {
	if len(values) == 0 || n <= 0 {
		return math.NaN()
	}
	if n > len(values) {
		n = len(values)
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}
