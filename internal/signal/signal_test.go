package signal

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"fxanalyst/internal/features"
)

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func scenarioD(structure float64) features.Vector {
	return features.Vector{
		H4TrendBull:            1,
		M15BOSBull:             1,
		LiquidityGrabScore:     1,
		ATRExpansionRatio:      1.5,
		StructureStrengthIndex: structure,
		ATR14:                  0.40,
	}
}

func TestEvaluate_ScenarioD(t *testing.T) {
	// confluence = 0.2 * (1 + 1 + 1 + 1 + 0.67) = 0.934
	// confidence = 0.6*0.934 + 0.4*0.80 = 0.8804
	s := Evaluate(scenarioD(0.67), 0.80, 150, 2)
	if s.Direction != Long || !s.Valid {
		t.Fatalf("expected valid LONG, got %+v", s)
	}
	assertClose(t, "technical_confluence", s.TechnicalConfluence, 0.934)
	assertClose(t, "confidence_score", s.ConfidenceScore, 0.8804)
	assertClose(t, "ai_probability", s.AIProbability, 0.80)
}

func TestEvaluate_ScenarioD_FullStructure(t *testing.T) {
	// all five terms set: confluence 1.0, confidence 0.6 + 0.32 = 0.92
	s := Evaluate(scenarioD(1), 0.80, 150, 2)
	if s.Direction != Long || !s.Valid {
		t.Fatalf("expected valid LONG, got %+v", s)
	}
	assertClose(t, "technical_confluence", s.TechnicalConfluence, 1.0)
	assertClose(t, "confidence_score", s.ConfidenceScore, 0.92)
}

func TestEvaluate_LongLevels(t *testing.T) {
	// stop distance = 1.2 * 0.40 = 0.48
	s := Evaluate(scenarioD(1), 0.80, 150, 2)
	assertClose(t, "entry", s.Entry, 150)
	assertClose(t, "stop", s.Stop, 149.52)
	assertClose(t, "take_profit", s.TakeProfit, 150.96)
	assertClose(t, "risk_reward", s.RiskReward, 2)
}

func TestEvaluate_ShortIsMirrored(t *testing.T) {
	v := scenarioD(1)
	v.H4TrendBull = 0
	s := Evaluate(v, 0.80, 150, 2)
	if s.Direction != Short {
		t.Fatalf("expected SHORT when long is not confirmed, got %s", s.Direction)
	}
	assertClose(t, "stop", s.Stop, 150.48)
	assertClose(t, "take_profit", s.TakeProfit, 149.04)
	// confluence 0.8, confidence 0.48 + 0.32 = 0.80
	assertClose(t, "technical_confluence", s.TechnicalConfluence, 0.8)
	assertClose(t, "confidence_score", s.ConfidenceScore, 0.8)
	if !s.Valid {
		t.Error("short with p=0.8 and confidence 0.8 should be valid")
	}
}

func TestEvaluate_LongRequiresEveryCondition(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*features.Vector)
	}{
		{"no higher trend", func(v *features.Vector) { v.H4TrendBull = 0 }},
		{"no bos", func(v *features.Vector) { v.M15BOSBull = 0 }},
		{"no liquidity grab", func(v *features.Vector) { v.LiquidityGrabScore = 0 }},
		{"atr at threshold", func(v *features.Vector) { v.ATRExpansionRatio = 1.2 }},
	}
	for _, tt := range tests {
		v := scenarioD(1)
		tt.mutate(&v)
		if d := Evaluate(v, 0.9, 150, 2).Direction; d != Short {
			t.Errorf("%s: direction = %s, want SHORT", tt.name, d)
		}
	}
}

func TestEvaluate_ValidityThresholds(t *testing.T) {
	// p must be strictly above 0.72
	if s := Evaluate(scenarioD(1), 0.72, 150, 2); s.Valid {
		t.Errorf("p == 0.72 must be invalid, got %+v", s)
	}
	// confluence 0.2 (structure only) with p=0.9: confidence 0.12+0.36 = 0.48
	weak := features.Vector{StructureStrengthIndex: 1, ATR14: 0.4}
	s := Evaluate(weak, 0.9, 150, 2)
	assertClose(t, "weak confidence", s.ConfidenceScore, 0.48)
	if s.Valid {
		t.Error("confidence 0.48 must be invalid")
	}
}

func TestEvaluate_ZeroATRUsesEpsilon(t *testing.T) {
	v := scenarioD(1)
	v.ATR14 = 0
	s := Evaluate(v, 0.9, 1.1, 2)
	if s.Stop >= s.Entry || s.TakeProfit <= s.Entry {
		t.Errorf("levels collapsed with zero ATR: %+v", s)
	}
	assertClose(t, "stop", s.Stop, 1.1-1.2e-6)
}

func TestEvaluator_CustomThresholds(t *testing.T) {
	th := DefaultThresholds()
	th.MinProbability = 0.9
	e := NewEvaluator(th)
	if e.Evaluate(scenarioD(1), 0.85, 150, 2).Valid {
		t.Error("p=0.85 must be invalid with a 0.9 threshold")
	}
	if !e.Evaluate(scenarioD(1), 0.95, 150, 2).Valid {
		t.Error("p=0.95 should pass a 0.9 threshold")
	}
}

func TestNeutral_NeverValid(t *testing.T) {
	s := Neutral(1, 1, 1)
	if s.Valid || s.Direction != None || s.Entry != 0 {
		t.Errorf("neutral signal = %+v", s)
	}
}

func TestRounded_Levels(t *testing.T) {
	long := Signal{Direction: Long, Entry: 1.100036, Stop: 1.098802, TakeProfit: 1.10250, RiskReward: 2}.Rounded(5)
	assertClose(t, "long entry", long.Entry, 1.10004)
	assertClose(t, "long stop", long.Stop, 1.0988)
	assertClose(t, "long target", long.TakeProfit, 1.10252)

	short := Signal{Direction: Short, Entry: 1.0849963, Stop: 1.0867893, TakeProfit: 1.0814, RiskReward: 2}.Rounded(5)
	assertClose(t, "short entry", short.Entry, 1.085)
	assertClose(t, "short stop", short.Stop, 1.0868)
	assertClose(t, "short target", short.TakeProfit, 1.0814)
}

func TestRounded_KeepsRRAndStopDistance(t *testing.T) {
	for _, close := range []float64{1.085, 1.0849963, 0.654321, 149.87345} {
		for _, atr := range []float64{0.00037, 0.000813, 0.0019, 0.2137} {
			v := scenarioD(1)
			v.ATR14 = atr
			for _, dir := range []Direction{Long, Short} {
				raw := Evaluate(v, 0.9, close, 2)
				raw.Direction = dir
				raw.Stop, raw.TakeProfit = close-1.2*atr, close+2.4*atr
				if dir == Short {
					raw.Stop, raw.TakeProfit = close+1.2*atr, close-2.4*atr
				}
				s := raw.Rounded(5)

				entry := decimal.NewFromFloat(s.Entry)
				risk := entry.Sub(decimal.NewFromFloat(s.Stop)).Abs()
				reward := entry.Sub(decimal.NewFromFloat(s.TakeProfit)).Abs()
				if reward.LessThan(risk.Mul(decimal.NewFromInt(2))) {
					t.Errorf("%s close=%v atr=%v: level rr %v < 2", dir, close, atr, reward.Div(risk))
				}
				rawDist := decimal.NewFromFloat(raw.Entry).Sub(decimal.NewFromFloat(raw.Stop)).Abs()
				if risk.LessThan(rawDist) {
					t.Errorf("%s close=%v atr=%v: stop distance shrank %v -> %v", dir, close, atr, rawDist, risk)
				}
				if (dir == Long) != (s.Stop < s.Entry && s.TakeProfit > s.Entry) {
					t.Errorf("%s levels on the wrong side: %+v", dir, s)
				}
				if !entry.Equal(entry.Round(5)) || !decimal.NewFromFloat(s.Stop).Equal(decimal.NewFromFloat(s.Stop).Round(5)) {
					t.Errorf("levels off the 5 decimal grid: %+v", s)
				}
			}
		}
	}
}

func TestRounded_PassThrough(t *testing.T) {
	s := Signal{Direction: Long, Entry: 1.1000001, Stop: 1.0990001, TakeProfit: 1.1020001, RiskReward: 2}
	if got := s.Rounded(0); got != s {
		t.Errorf("precision 0 changed the signal: %+v", got)
	}
	n := Neutral(0.5, 0.5, 0.5)
	if got := n.Rounded(5); got != n {
		t.Errorf("neutral signal changed: %+v", got)
	}
}
