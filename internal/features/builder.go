package features

import (
	"fmt"
	"math"
	"time"

	"fxanalyst/internal/indicator"
	"fxanalyst/internal/model"
)

// Epsilon floors price denominators.
const Epsilon = 1e-6

const (
	defaultATRMeanWindow  = 50
	defaultRSISlopeWindow = 5
	maxVolatilitySpike    = 3.0
)

// Snapshot carries the lower-timeframe state the signal evaluator sizes
// levels from.
type Snapshot struct {
	TS    time.Time     `json:"ts"`
	Close float64       `json:"close"`
	ATR   float64       `json:"atr"`
	Lower indicator.Row `json:"lower"`
}

// Builder derives feature vectors. The zero value is not usable; use
// NewBuilder.
type Builder struct {
	cfg            indicator.Config
	atrMeanWindow  int
	rsiSlopeWindow int
}

// NewBuilder creates a Builder over the given indicator periods.
func NewBuilder(cfg indicator.Config) *Builder {
	return &Builder{
		cfg:            cfg,
		atrMeanWindow:  defaultATRMeanWindow,
		rsiSlopeWindow: defaultRSISlopeWindow,
	}
}

// RequiredLookback is the minimum length of each input series.
func (b *Builder) RequiredLookback() int {
	need := b.cfg.RequiredLookback()
	if b.atrMeanWindow > need {
		need = b.atrMeanWindow
	}
	if b.rsiSlopeWindow+1 > need {
		need = b.rsiSlopeWindow + 1
	}
	return need
}

// Build computes the feature vector from the higher, mid and lower timeframe
// series and an externally supplied session score in [0,1].
func (b *Builder) Build(higher, mid, lower model.Series, sessionScore float64) (Vector, Snapshot, error) {
	frames := make([]*indicator.Frame, 3)
	for i, s := range []model.Series{higher, mid, lower} {
		if err := s.Validate(); err != nil {
			return Vector{}, Snapshot{}, err
		}
		f, err := indicator.Compute(s, b.cfg)
		if err != nil {
			return Vector{}, Snapshot{}, err
		}
		frames[i] = f
	}
	h, m, l := frames[0], frames[1], frames[2]

	lr := l.Latest()
	price := math.Max(lr.Close, Epsilon)

	var v Vector
	v.EMADistanceRatio = (lr.EMAFast - lr.EMASlow) / price
	v.RSISlope = b.rsiSlope(l.RSI)
	v.ATRExpansionRatio = b.atrExpansion(l.ATR)
	v.DistanceToVWAP = (lr.Close - lr.VWAP) / price
	v.SessionScore = clamp(sessionScore, 0, 1)
	v.VolatilitySpikeScore = clamp(v.ATRExpansionRatio, 0, maxVolatilitySpike) / maxVolatilitySpike
	v.StructureStrengthIndex = (indicator.BoolFloat(lr.BOSBull) +
		indicator.BoolFloat(lr.Orderblock) +
		indicator.BoolFloat(lr.FVG)) / 3
	v.LiquidityGrabScore = indicator.BoolFloat(lr.LiquiditySweep)
	v.H4TrendBull = trendBull(h.Latest())
	v.H1TrendBull = trendBull(m.Latest())
	v.M15BOSBull = indicator.BoolFloat(lr.BOSBull)
	v.ATR14 = lr.ATR

	for i, x := range v.Values() {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Vector{}, Snapshot{}, fmt.Errorf("feature %s: %w", names[i], indicator.ErrNonFinite)
		}
	}

	snap := Snapshot{TS: lower.Last().TS, Close: lr.Close, ATR: lr.ATR, Lower: lr}
	return v, snap, nil
}

// rsiSlope is the mean of the last N first differences.
func (b *Builder) rsiSlope(rsi []float64) float64 {
	n := len(rsi)
	k := b.rsiSlopeWindow
	if n < k+1 {
		k = n - 1
	}
	if k <= 0 {
		return 0
	}
	diffs := make([]float64, k)
	for i := 0; i < k; i++ {
		j := n - k + i
		diffs[i] = rsi[j] - rsi[j-1]
	}
	return indicator.Mean(diffs, k)
}

func (b *Builder) atrExpansion(atr []float64) float64 {
	mean := indicator.Mean(atr, b.atrMeanWindow)
	if mean == 0 || math.IsNaN(mean) {
		return 0
	}
	return atr[len(atr)-1] / mean
}

// trendBull reports EMA(slow) above EMA(trend), i.e. EMA50 > EMA200 by default.
func trendBull(r indicator.Row) float64 {
	return indicator.BoolFloat(r.EMASlow > r.EMATrend)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
