package indicator

import "fxanalyst/internal/model"

// MACD tracks macd_line = EMA(fast) - EMA(slow), signal = EMA(macd_line, signal)
// and histogram = macd_line - signal.
type MACD struct {
	fast, slow, signal *EMA
	slowPeriod         int
	signalPeriod       int
	line, sig          float64
	count              int
}

// NewMACD creates a MACD indicator (typically 12/26/9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:         NewEMA(fast),
		slow:         NewEMA(slow),
		signal:       NewEMA(signal),
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(candle model.Candle) { m.Push(candle.Close) }

// Push feeds a raw close price.
func (m *MACD) Push(v float64) {
	m.count++
	m.fast.Push(v)
	m.slow.Push(v)
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Push(m.line)
	m.sig = m.signal.Value()
}

// Value returns the MACD line.
func (m *MACD) Value() float64     { return m.line }
func (m *MACD) Signal() float64    { return m.sig }
func (m *MACD) Histogram() float64 { return m.line - m.sig }
func (m *MACD) Ready() bool        { return m.count >= m.slowPeriod+m.signalPeriod }
