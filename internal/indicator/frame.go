package indicator

import (
	"fmt"
	"math"

	"fxanalyst/internal/model"
)

// Frame holds one column per indicator, aligned with the input candles.
type Frame struct {
	Timeframe model.Timeframe

	Close      []float64
	EMAFast    []float64
	EMASlow    []float64
	EMATrend   []float64
	RSI        []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64
	ATR        []float64
	VWAP       []float64

	Structure Structure
}

// Row is the indicator state at a single candle.
type Row struct {
	Close          float64 `json:"close"`
	EMAFast        float64 `json:"ema_fast"`
	EMASlow        float64 `json:"ema_slow"`
	EMATrend       float64 `json:"ema_trend"`
	RSI            float64 `json:"rsi"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	MACDHist       float64 `json:"macd_hist"`
	ATR            float64 `json:"atr"`
	VWAP           float64 `json:"vwap"`
	SwingHigh      float64 `json:"swing_high"`
	SwingLow       float64 `json:"swing_low"`
	BOSBull        bool    `json:"bos_bull"`
	BOSBear        bool    `json:"bos_bear"`
	FVG            bool    `json:"fvg"`
	Orderblock     bool    `json:"orderblock"`
	LiquiditySweep bool    `json:"liquidity_sweep"`
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Close) }

// At returns row i.
func (f *Frame) At(i int) Row {
	return Row{
		Close:          f.Close[i],
		EMAFast:        f.EMAFast[i],
		EMASlow:        f.EMASlow[i],
		EMATrend:       f.EMATrend[i],
		RSI:            f.RSI[i],
		MACD:           f.MACD[i],
		MACDSignal:     f.MACDSignal[i],
		MACDHist:       f.MACDHist[i],
		ATR:            f.ATR[i],
		VWAP:           f.VWAP[i],
		SwingHigh:      f.Structure.SwingHigh[i],
		SwingLow:       f.Structure.SwingLow[i],
		BOSBull:        f.Structure.BOSBull[i],
		BOSBear:        f.Structure.BOSBear[i],
		FVG:            f.Structure.FVG[i],
		Orderblock:     f.Structure.Orderblock[i],
		LiquiditySweep: f.Structure.LiquiditySweep[i],
	}
}

// Latest returns the most recent row.
func (f *Frame) Latest() Row { return f.At(f.Len() - 1) }

// Compute runs every indicator over the series. It fails with
// *InsufficientDataError when the series is shorter than cfg.RequiredLookback()
// and with ErrNonFinite when the latest row is not fully defined.
func Compute(s model.Series, cfg Config) (*Frame, error) {
	need := cfg.RequiredLookback()
	if s.Len() < need {
		return nil, &InsufficientDataError{Timeframe: s.Timeframe, Have: s.Len(), Need: need}
	}

	n := s.Len()
	f := &Frame{
		Timeframe:  s.Timeframe,
		Close:      make([]float64, n),
		EMAFast:    make([]float64, n),
		EMASlow:    make([]float64, n),
		EMATrend:   make([]float64, n),
		RSI:        make([]float64, n),
		MACD:       make([]float64, n),
		MACDSignal: make([]float64, n),
		MACDHist:   make([]float64, n),
		ATR:        make([]float64, n),
		VWAP:       make([]float64, n),
	}

	fast, slow, trend := NewEMA(cfg.FastEMA), NewEMA(cfg.SlowEMA), NewEMA(cfg.TrendEMA)
	rsi := NewRSI(cfg.RSIPeriod)
	macd := NewMACD(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	atr := NewATR(cfg.ATRPeriod)
	vwap := NewVWAP()
	streams := []Indicator{fast, slow, trend, rsi, macd, atr, vwap}

	for i, c := range s.Candles {
		for _, ind := range streams {
			ind.Update(c)
		}
		f.Close[i] = c.Close
		f.EMAFast[i] = fast.Value()
		f.EMASlow[i] = slow.Value()
		f.EMATrend[i] = trend.Value()
		f.RSI[i] = rsi.Value()
		f.MACD[i] = macd.Value()
		f.MACDSignal[i] = macd.Signal()
		f.MACDHist[i] = macd.Histogram()
		f.ATR[i] = atr.Value()
		f.VWAP[i] = vwap.Value()
	}
	f.Structure = ComputeStructure(s.Candles, cfg.StructureWindow, cfg.VolumeWindow)

	if err := checkFinite(f.Latest()); err != nil {
		return nil, fmt.Errorf("%s %s: %w", s.Symbol, s.Timeframe, err)
	}
	return f, nil
}

func checkFinite(r Row) error {
	named := []struct {
		name string
		v    float64
	}{
		{"close", r.Close}, {"ema_fast", r.EMAFast}, {"ema_slow", r.EMASlow},
		{"ema_trend", r.EMATrend}, {"rsi", r.RSI}, {"macd", r.MACD},
		{"macd_signal", r.MACDSignal}, {"macd_hist", r.MACDHist}, {"atr", r.ATR},
		{"vwap", r.VWAP}, {"swing_high", r.SwingHigh}, {"swing_low", r.SwingLow},
	}
	for _, x := range named {
		if math.IsNaN(x.v) || math.IsInf(x.v, 0) {
			return fmt.Errorf("%w: %s", ErrNonFinite, x.name)
		}
	}
	return nil
}
