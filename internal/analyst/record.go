package analyst

import (
	"time"

	"fxanalyst/internal/features"
	"fxanalyst/internal/oracle"
	"fxanalyst/internal/risk"
	"fxanalyst/internal/signal"
)

// Neutral record reasons for cycles that could not evaluate.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonDataError        = "data_error"
	ReasonInternalError    = "internal_error"
)

// OracleInfo is the probability actually used and whether it was a fallback.
type OracleInfo struct {
	Probability float64            `json:"probability"`
	Fallback    bool               `json:"fallback"`
	Failure     oracle.FailureKind `json:"failure,omitempty"`
	LatencyMs   float64            `json:"latency_ms"`
}

// Record is the output of one cycle. Every cycle yields exactly one record,
// including cycles that failed on data or panicked.
type Record struct {
	ID            string             `json:"id"`
	Symbol        string             `json:"symbol"`
	Interval      string             `json:"interval"`
	TS            time.Time          `json:"ts"`
	TraceID       string             `json:"trace_id"`
	SchemaVersion string             `json:"schema_version"`
	Features      *features.Vector   `json:"features,omitempty"`
	Market        *features.Snapshot `json:"market,omitempty"`
	Oracle        *OracleInfo        `json:"oracle,omitempty"`
	Signal        signal.Signal      `json:"signal"`
	Decision      risk.Decision      `json:"decision"`
	Counter       risk.CounterState  `json:"counter"`
	Error         string             `json:"error,omitempty"`
}

// Outcome labels the record for metrics and health: approved, rejected,
// no_trade, or the neutral reason.
func (r Record) Outcome() string {
	switch {
	case r.Error != "" && len(r.Decision.Reasons) > 0:
		return r.Decision.Reasons[0]
	case r.Decision.Approved:
		return "approved"
	case r.Decision.Rejected():
		return "rejected"
	default:
		return "no_trade"
	}
}
