package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"fxanalyst/internal/model"
)

func waveSeries(n int) model.Series {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	prev := 1.1000
	for i := range candles {
		c := 1.1000 + 0.0050*math.Sin(float64(i)/9) + 0.0002*float64(i%4)
		hi := math.Max(prev, c) + 0.0006
		lo := math.Min(prev, c) - 0.0006
		candles[i] = model.Candle{
			TS:     start.Add(time.Duration(i) * 15 * time.Minute),
			Open:   prev,
			High:   hi,
			Low:    lo,
			Close:  c,
			Volume: float64(100 + (i*37)%250),
		}
		prev = c
	}
	return model.Series{Symbol: "EURUSD", Timeframe: model.M15, Candles: candles}
}

func TestStructure_Markers(t *testing.T) {
	candles := []model.Candle{
		{Open: 10, High: 11, Low: 9, Close: 10, Volume: 100},
		{Open: 10, High: 12, Low: 10, Close: 11, Volume: 100},
		{Open: 11, High: 13, Low: 11, Close: 12, Volume: 100},
		{Open: 14, High: 16, Low: 14, Close: 15, Volume: 300},
		{Open: 15, High: 15.5, Low: 8, Close: 8.5, Volume: 500},
	}
	st := ComputeStructure(candles, 3, 2)

	if !math.IsNaN(st.SwingHigh[1]) || !math.IsNaN(st.SwingLow[1]) {
		t.Errorf("swing levels should be NaN before the window fills")
	}
	assertClose(t, "swing_high[2]", st.SwingHigh[2], 13, 1e-12)
	assertClose(t, "swing_low[2]", st.SwingLow[2], 9, 1e-12)
	assertClose(t, "swing_low[3]", st.SwingLow[3], 10, 1e-12)

	tests := []struct {
		name string
		col  []bool
		want []bool
	}{
		// close 15 > swing_high[2]=13
		{"bos_bull", st.BOSBull, []bool{false, false, false, true, false}},
		// close 8.5 < swing_low[3]=10
		{"bos_bear", st.BOSBear, []bool{false, false, false, false, true}},
		// candle 3 low 14 > candle 1 high 12; candle 2 low 11 == candle 0 high 11 is no gap
		{"fvg", st.FVG, []bool{false, false, false, true, false}},
		// mean(300,500)=400, 500 > 400 and bearish
		{"orderblock", st.Orderblock, []bool{false, false, false, false, true}},
		// low 8 < swing_low[3]=10
		{"liquidity_sweep", st.LiquiditySweep, []bool{false, false, false, false, true}},
	}
	for _, tt := range tests {
		for i := range tt.want {
			if tt.col[i] != tt.want[i] {
				t.Errorf("%s[%d] = %v, want %v", tt.name, i, tt.col[i], tt.want[i])
			}
		}
	}
}

func TestCompute_InsufficientData(t *testing.T) {
	cfg := DefaultConfig()
	_, err := Compute(waveSeries(cfg.RequiredLookback()-1), cfg)

	var ide *InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Need != 200 || ide.Have != 199 || ide.Timeframe != model.M15 {
		t.Errorf("unexpected error fields: %+v", ide)
	}
}

func TestCompute_LatestRowFinite(t *testing.T) {
	cfg := DefaultConfig()
	for _, n := range []int{200, 201, 350} {
		f, err := Compute(waveSeries(n), cfg)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if f.Len() != n {
			t.Fatalf("n=%d: frame has %d rows", n, f.Len())
		}
		r := f.Latest()
		for name, v := range map[string]float64{
			"ema_fast": r.EMAFast, "ema_slow": r.EMASlow, "ema_trend": r.EMATrend,
			"rsi": r.RSI, "macd": r.MACD, "macd_signal": r.MACDSignal, "atr": r.ATR,
			"vwap": r.VWAP, "swing_high": r.SwingHigh, "swing_low": r.SwingLow,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("n=%d: %s is not finite", n, name)
			}
		}
		if r.Close != waveSeries(n).Last().Close {
			t.Errorf("n=%d: latest close mismatch", n)
		}
	}
}

func TestCompute_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	s := waveSeries(260)
	a, err := Compute(s, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(s, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < a.Len(); i++ {
		if a.At(i).EMAFast != b.At(i).EMAFast || a.At(i).RSI != b.At(i).RSI || a.At(i).ATR != b.At(i).ATR {
			t.Fatalf("row %d differs between identical computations", i)
		}
	}
}

func TestCompute_NonFiniteLatestFails(t *testing.T) {
	s := waveSeries(210)
	s.Candles[len(s.Candles)-1].Close = math.Inf(1)

	_, err := Compute(s, DefaultConfig())
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
}

func TestRequiredLookback(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.RequiredLookback(); got != 200 {
		t.Errorf("default lookback = %d, want 200", got)
	}
	cfg.TrendEMA = 300
	if got := cfg.RequiredLookback(); got != 300 {
		t.Errorf("lookback with EMA 300 = %d, want 300", got)
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	cfg := DefaultConfig()
	cfg.RSIPeriod = 0
	if err := ValidateConfig(cfg); err == nil {
		t.Error("expected error for zero RSI period")
	}
	cfg = DefaultConfig()
	cfg.MACDFast = 30
	if err := ValidateConfig(cfg); err == nil {
		t.Error("expected error for fast >= slow")
	}
}
