// Package risk applies the hard risk gates to candidate signals and owns the
// per-day trade counter.
package risk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"fxanalyst/internal/signal"
)

// Action is the order intent of a decision.
type Action string

const (
	BuyLimit  Action = "buy_limit"
	SellLimit Action = "sell_limit"
	NoTrade   Action = "no_trade"
)

// Rejection reason codes, in gate order.
const (
	ReasonCounterUnavailable = "counter_unavailable"
	ReasonDailyLimit         = "daily_trade_limit_reached"
	ReasonInvalidLevels      = "invalid_stop_or_target"
	ReasonInvalidRR          = "invalid_rr"
	ReasonStopTooTight       = "stop_too_tight"
	ReasonHorizonExceeds     = "tp_horizon_exceeded"
)

// Config holds the risk limits.
type Config struct {
	MaxTradesPerDay int     `yaml:"max_trades_per_day" default:"3" validate:"gte=0"`
	MinRR           float64 `yaml:"min_rr" default:"2" validate:"gte=0"`
	SLATRFactor     float64 `yaml:"sl_atr_factor" default:"1" validate:"gte=0"`
	// TPHorizonHours disables the horizon gate when 0.
	TPHorizonHours float64 `yaml:"tp_horizon_hours" default:"0" validate:"gte=0"`
}

// Candidate is a proposed trade.
type Candidate struct {
	Action     Action  `json:"decision"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// CandidateFromSignal maps a valid LONG to buy_limit, a valid SHORT to
// sell_limit and anything else to no_trade.
func CandidateFromSignal(s signal.Signal) Candidate {
	if !s.Valid {
		return Candidate{Action: NoTrade}
	}
	var a Action
	switch s.Direction {
	case signal.Long:
		a = BuyLimit
	case signal.Short:
		a = SellLimit
	default:
		return Candidate{Action: NoTrade}
	}
	return Candidate{Action: a, Entry: s.Entry, StopLoss: s.Stop, TakeProfit: s.TakeProfit}
}

// Decision is the validated outcome. Approved decisions carry the candidate
// levels unchanged; rejected ones carry a single reason and no levels.
type Decision struct {
	Action     Action   `json:"decision"`
	Approved   bool     `json:"approved"`
	Entry      float64  `json:"entry,omitempty"`
	StopLoss   float64  `json:"stop_loss,omitempty"`
	TakeProfit float64  `json:"take_profit,omitempty"`
	RiskReward float64  `json:"risk_reward,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
}

// Rejected reports whether a gate turned the candidate into no_trade.
func (d Decision) Rejected() bool { return len(d.Reasons) > 0 }

func reject(reason string) Decision {
	return Decision{Action: NoTrade, Reasons: []string{reason}}
}

// Validator applies the gates in order; the first failing gate wins.
// Validate calls are serialized so that the limit check and the increment
// are atomic.
type Validator struct {
	mu              sync.Mutex
	cfg             Config
	counter         *Counter
	intervalMinutes float64
}

// NewValidator creates a validator. intervalMinutes is the bar length of the
// timeframe the ATR was measured on, used by the horizon gate.
func NewValidator(cfg Config, counter *Counter, intervalMinutes float64) *Validator {
	return &Validator{cfg: cfg, counter: counter, intervalMinutes: intervalMinutes}
}

// Config returns the active limits.
func (v *Validator) Config() Config { return v.cfg }

// Counter returns the trade counter.
func (v *Validator) Counter() *Counter { return v.counter }

// Validate gates a candidate against the current ATR.
func (v *Validator) Validate(ctx context.Context, c Candidate, atr float64) Decision {
	if c.Action != BuyLimit && c.Action != SellLimit {
		return Decision{Action: NoTrade}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	st, err := v.counter.State(ctx)
	if err != nil {
		return reject(ReasonCounterUnavailable)
	}
	if st.Count >= v.cfg.MaxTradesPerDay {
		return reject(ReasonDailyLimit)
	}
	if c.StopLoss == 0 || c.TakeProfit == 0 {
		return reject(ReasonInvalidLevels)
	}

	entry := decimal.NewFromFloat(c.Entry)
	stop := decimal.NewFromFloat(c.StopLoss)
	target := decimal.NewFromFloat(c.TakeProfit)
	atrD := decimal.NewFromFloat(atr)

	if belowMinRR(c.Action, entry, stop, target, decimal.NewFromFloat(v.cfg.MinRR)) {
		return reject(ReasonInvalidRR)
	}

	stopDistance := entry.Sub(stop).Abs()
	if stopDistance.LessThan(atrD.Mul(decimal.NewFromFloat(v.cfg.SLATRFactor))) {
		return reject(ReasonStopTooTight)
	}

	if v.cfg.TPHorizonHours > 0 {
		hours, ok := HoursToTarget(entry, target, atrD, v.intervalMinutes)
		if !ok || hours.GreaterThan(decimal.NewFromFloat(v.cfg.TPHorizonHours)) {
			return reject(ReasonHorizonExceeds)
		}
	}

	if st, err = v.counter.Increment(ctx); err != nil {
		slog.Warn("approval kept in memory only", "count", st.Count, "error", err)
	}

	rrf, _ := RiskReward(c.Action, entry, stop, target).Float64()
	return Decision{
		Action:     c.Action,
		Approved:   true,
		Entry:      c.Entry,
		StopLoss:   c.StopLoss,
		TakeProfit: c.TakeProfit,
		RiskReward: rrf,
	}
}

// RiskReward is (tp-entry)/(entry-sl) for buys and (entry-tp)/(sl-entry) for
// sells. A non-positive risk distance yields zero.
func RiskReward(a Action, entry, stop, target decimal.Decimal) decimal.Decimal {
	reward, risk, ok := legs(a, entry, stop, target)
	if !ok || !risk.IsPositive() {
		return decimal.Zero
	}
	return reward.Div(risk)
}

// belowMinRR compares reward against risk·minRR without dividing, so the
// boundary is exact for decimal levels.
func belowMinRR(a Action, entry, stop, target, minRR decimal.Decimal) bool {
	reward, risk, ok := legs(a, entry, stop, target)
	if !ok || !risk.IsPositive() {
		return minRR.IsPositive()
	}
	return reward.LessThan(risk.Mul(minRR))
}

func legs(a Action, entry, stop, target decimal.Decimal) (reward, risk decimal.Decimal, ok bool) {
	switch a {
	case BuyLimit:
		return target.Sub(entry), entry.Sub(stop), true
	case SellLimit:
		return entry.Sub(target), stop.Sub(entry), true
	}
	return decimal.Zero, decimal.Zero, false
}

// HoursToTarget estimates |tp-entry|/atr bars of intervalMinutes, in hours.
// It reports false when atr is not positive.
func HoursToTarget(entry, target, atr decimal.Decimal, intervalMinutes float64) (decimal.Decimal, bool) {
	if !atr.IsPositive() {
		return decimal.Zero, false
	}
	bars := target.Sub(entry).Abs().Div(atr)
	return bars.Mul(decimal.NewFromFloat(intervalMinutes)).Div(decimal.NewFromInt(60)), true
}
