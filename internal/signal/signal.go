// Package signal combines technical confluence with the oracle probability
// into a candidate trade signal with entry, stop and target levels.
package signal

import (
	"math"

	"github.com/shopspring/decimal"

	"fxanalyst/internal/features"
)

// Direction of a signal.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	None  Direction = "NONE"
)

// Signal is produced fresh every cycle and never mutated afterwards.
type Signal struct {
	Direction           Direction `json:"direction"`
	TechnicalConfluence float64   `json:"technical_confluence"`
	AIProbability       float64   `json:"ai_probability"`
	ConfidenceScore     float64   `json:"confidence_score"`
	Entry               float64   `json:"entry"`
	Stop                float64   `json:"stop"`
	TakeProfit          float64   `json:"take_profit"`
	RiskReward          float64   `json:"risk_reward"`
	Valid               bool      `json:"valid"`
}

// Thresholds parameterize the evaluator. DefaultThresholds holds the standard
// values.
type Thresholds struct {
	MinProbability    float64 `yaml:"min_probability" default:"0.72" validate:"gte=0,lte=1"`
	MinConfidence     float64 `yaml:"min_confidence" default:"0.7" validate:"gte=0,lte=1"`
	ATRExpansionMin   float64 `yaml:"atr_expansion_min" default:"1.2" validate:"gte=0"`
	StopATRMultiple   float64 `yaml:"stop_atr_multiple" default:"1.2" validate:"gt=0"`
	TechnicalWeight   float64 `yaml:"technical_weight" default:"0.6" validate:"gte=0,lte=1"`
	ProbabilityWeight float64 `yaml:"probability_weight" default:"0.4" validate:"gte=0,lte=1"`
}

// DefaultThresholds returns p > 0.72, confidence > 0.7, ATR expansion > 1.2,
// stop = 1.2 ATR and the 0.6/0.4 confidence blend.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinProbability:    0.72,
		MinConfidence:     0.7,
		ATRExpansionMin:   1.2,
		StopATRMultiple:   1.2,
		TechnicalWeight:   0.6,
		ProbabilityWeight: 0.4,
	}
}

// confluenceWeight applies to each of the five confluence terms.
const confluenceWeight = 0.2

// Evaluator is a stateless signal evaluator.
type Evaluator struct {
	Thresholds Thresholds
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(th Thresholds) *Evaluator {
	return &Evaluator{Thresholds: th}
}

// Evaluate runs the evaluator with the default thresholds.
func Evaluate(v features.Vector, aiProbability, close, minRR float64) Signal {
	return (&Evaluator{Thresholds: DefaultThresholds()}).Evaluate(v, aiProbability, close, minRR)
}

// Evaluate derives the candidate signal.
//
// Direction is binary: LONG when the higher timeframe is bullish, the lower
// timeframe broke structure upward, liquidity was grabbed and ATR is
// expanding; SHORT otherwise. There is no separate bearish confirmation.
func (e *Evaluator) Evaluate(v features.Vector, aiProbability, close, minRR float64) Signal {
	th := e.Thresholds
	expanding := v.ATRExpansionRatio > th.ATRExpansionMin
	grab := v.LiquidityGrabScore > 0

	longOK := v.H4TrendBull > 0 && v.M15BOSBull > 0 && grab && expanding
	dir := Short
	if longOK {
		dir = Long
	}

	confluence := confluenceWeight * (v.H4TrendBull +
		v.M15BOSBull +
		boolScore(grab) +
		boolScore(expanding) +
		v.StructureStrengthIndex)
	confluence = clamp01(confluence)

	confidence := th.TechnicalWeight*confluence + th.ProbabilityWeight*aiProbability

	stopDistance := th.StopATRMultiple * math.Max(v.ATR14, features.Epsilon)
	s := Signal{
		Direction:           dir,
		TechnicalConfluence: confluence,
		AIProbability:       aiProbability,
		ConfidenceScore:     confidence,
		Entry:               close,
		RiskReward:          minRR,
	}
	switch dir {
	case Long:
		s.Stop = close - stopDistance
		s.TakeProfit = close + stopDistance*minRR
	case Short:
		s.Stop = close + stopDistance
		s.TakeProfit = close - stopDistance*minRR
	}
	s.Valid = dir != None && aiProbability > th.MinProbability && confidence > th.MinConfidence
	return s
}

// Rounded returns s with its levels placed on a grid of precision decimals.
// The entry rounds to nearest; the stop rounds away from the entry and the
// target is rebuilt from the rounded stop distance and rounded away as well,
// so the stop distance never shrinks and the level RR never falls below
// RiskReward. Non-directional signals and precision <= 0 are returned as is.
func (s Signal) Rounded(precision int32) Signal {
	if precision <= 0 || (s.Direction != Long && s.Direction != Short) {
		return s
	}
	rawEntry := decimal.NewFromFloat(s.Entry)
	dist := rawEntry.Sub(decimal.NewFromFloat(s.Stop)).Abs()
	rr := decimal.NewFromFloat(s.RiskReward)
	entry := rawEntry.Round(precision)

	var stop, target decimal.Decimal
	if s.Direction == Long {
		stop = entry.Sub(dist).RoundFloor(precision)
		target = entry.Add(entry.Sub(stop).Mul(rr)).RoundCeil(precision)
	} else {
		stop = entry.Add(dist).RoundCeil(precision)
		target = entry.Sub(stop.Sub(entry).Mul(rr)).RoundFloor(precision)
	}
	s.Entry, _ = entry.Float64()
	s.Stop, _ = stop.Float64()
	s.TakeProfit, _ = target.Float64()
	return s
}

// Neutral returns a NONE signal carrying only the scores.
func Neutral(confluence, aiProbability, confidence float64) Signal {
	return Signal{
		Direction:           None,
		TechnicalConfluence: confluence,
		AIProbability:       aiProbability,
		ConfidenceScore:     confidence,
	}
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
