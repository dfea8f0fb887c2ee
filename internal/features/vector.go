// Package features turns indicator frames from three timeframes into the fixed
// feature vector consumed by the probability oracle and the signal evaluator.
package features

// SchemaVersion identifies the feature set. Bump it whenever a field is added,
// removed or changes meaning.
const SchemaVersion = "v1"

// Vector is the fixed-schema feature record. Boolean features are encoded as
// 0/1.
type Vector struct {
	EMADistanceRatio       float64 `json:"ema_distance_ratio"`
	RSISlope               float64 `json:"rsi_slope"`
	ATRExpansionRatio      float64 `json:"atr_expansion_ratio"`
	DistanceToVWAP         float64 `json:"distance_to_vwap"`
	SessionScore           float64 `json:"session_score"`
	VolatilitySpikeScore   float64 `json:"volatility_spike_score"`
	StructureStrengthIndex float64 `json:"structure_strength_index"`
	LiquidityGrabScore     float64 `json:"liquidity_grab_score"`
	H4TrendBull            float64 `json:"h4_trend_bull"`
	H1TrendBull            float64 `json:"h1_trend_bull"`
	M15BOSBull             float64 `json:"m15_bos_bull"`
	ATR14                  float64 `json:"atr14"`
}

var names = []string{
	"ema_distance_ratio",
	"rsi_slope",
	"atr_expansion_ratio",
	"distance_to_vwap",
	"session_score",
	"volatility_spike_score",
	"structure_strength_index",
	"liquidity_grab_score",
	"h4_trend_bull",
	"h1_trend_bull",
	"m15_bos_bull",
	"atr14",
}

// Names returns the schema keys in canonical order.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

func (v *Vector) fields() []*float64 {
	return []*float64{
		&v.EMADistanceRatio,
		&v.RSISlope,
		&v.ATRExpansionRatio,
		&v.DistanceToVWAP,
		&v.SessionScore,
		&v.VolatilitySpikeScore,
		&v.StructureStrengthIndex,
		&v.LiquidityGrabScore,
		&v.H4TrendBull,
		&v.H1TrendBull,
		&v.M15BOSBull,
		&v.ATR14,
	}
}

// Values returns the features in Names() order.
func (v Vector) Values() []float64 {
	ptrs := v.fields()
	out := make([]float64, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// Map returns exactly the schema keys.
func (v Vector) Map() map[string]float64 {
	vals := v.Values()
	m := make(map[string]float64, len(names))
	for i, name := range names {
		m[name] = vals[i]
	}
	return m
}

// FromMap builds a Vector from a loose mapping. Missing keys default to 0 and
// unknown keys are ignored.
func FromMap(m map[string]float64) Vector {
	var v Vector
	for i, p := range v.fields() {
		*p = m[names[i]]
	}
	return v
}
