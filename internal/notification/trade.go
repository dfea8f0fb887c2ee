package notification

import (
	"fmt"
	"strconv"
)

// Trade is an approved decision as notifiers present it.
type Trade struct {
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"`
	Entry       float64 `json:"entry"`
	StopLoss    float64 `json:"stop_loss"`
	TakeProfit  float64 `json:"take_profit"`
	RiskReward  float64 `json:"risk_reward"`
	Confidence  float64 `json:"confidence"`
	Probability float64 `json:"probability"`
	TraceID     string  `json:"trace_id,omitempty"`
}

// TradeAlert builds the info alert announcing t.
func TradeAlert(t Trade) Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   t.Symbol + " " + t.Action,
		Message: t.Summary(),
		Trade:   &t,
	}
}

// Summary is the one-line form used by plain-text channels.
func (t Trade) Summary() string {
	return fmt.Sprintf("entry %s stop %s target %s rr %.2f confidence %.3f p %.3f",
		price(t.Entry), price(t.StopLoss), price(t.TakeProfit),
		t.RiskReward, t.Confidence, t.Probability)
}

// price prints levels as stored, without padding or float noise beyond the
// shortest representation.
func price(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
