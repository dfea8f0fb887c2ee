// Package analyst runs the decision cycle: fetch candles, build features,
// score them with the oracle, evaluate the signal, gate it through the risk
// validator and hand the resulting record to the sinks.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"fxanalyst/internal/features"
	"fxanalyst/internal/indicator"
	"fxanalyst/internal/logger"
	"fxanalyst/internal/marketdata"
	"fxanalyst/internal/markethours"
	"fxanalyst/internal/metrics"
	"fxanalyst/internal/model"
	"fxanalyst/internal/oracle"
	"fxanalyst/internal/risk"
	"fxanalyst/internal/signal"
)

// Config describes the instrument and timeframes of a service.
type Config struct {
	Symbol         string
	Higher         model.Timeframe
	Mid            model.Timeframe
	Lower          model.Timeframe
	History        int
	SessionFilter  bool
	// PricePrecision is the decimal grid signal levels are placed on before
	// the risk gates see them.
	PricePrecision int
}

const defaultPricePrecision = 5

// Deps are the collaborators of a service. Metrics and Health may be nil.
type Deps struct {
	Source    marketdata.Source
	Builder   *features.Builder
	Oracle    oracle.Oracle
	Evaluator *signal.Evaluator
	Validator *risk.Validator
	Sinks     []Sink
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
}

// Service owns the cycle. Cycles are serialized: a scheduled cycle and an
// out-of-band analyze request never interleave.
type Service struct {
	cfg  Config
	deps Deps

	cycleMu sync.Mutex

	stateMu sync.RWMutex
	latest  *Record

	now   func() time.Time
	newID func() string
}

// New creates a service.
func New(cfg Config, deps Deps) *Service {
	if cfg.History <= 0 {
		cfg.History = deps.Builder.RequiredLookback() + 50
	}
	if cfg.PricePrecision <= 0 {
		cfg.PricePrecision = defaultPricePrecision
	}
	return &Service{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// Validator returns the risk validator.
func (s *Service) Validator() *risk.Validator { return s.deps.Validator }

// Latest returns the most recent record, if any cycle has run.
func (s *Service) Latest() (Record, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.latest == nil {
		return Record{}, false
	}
	return *s.latest, true
}

// Tick runs one cycle at the current time. It implements scheduler.Tick;
// failures are carried in the record, so it only returns ctx errors.
func (s *Service) Tick(ctx context.Context) error {
	s.RunCycle(ctx)
	return ctx.Err()
}

// RunCycle evaluates the market at the current time.
func (s *Service) RunCycle(ctx context.Context) Record {
	return s.Analyze(ctx, s.now())
}

// Analyze evaluates the market as of at and emits the record to every sink.
func (s *Service) Analyze(ctx context.Context, at time.Time) Record {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	traceID := logger.GenerateTraceID(s.cfg.Symbol, at)
	ctx = logger.WithTraceID(ctx, traceID)

	rec := Record{
		ID:            s.newID(),
		Symbol:        s.cfg.Symbol,
		Interval:      s.cfg.Lower.String(),
		TS:            at.UTC(),
		TraceID:       traceID,
		SchemaVersion: features.SchemaVersion,
	}
	s.evaluateSafely(ctx, &rec, at)

	s.emit(ctx, rec)
	s.observe(rec, time.Since(start))
	return rec
}

func (s *Service) evaluateSafely(ctx context.Context, rec *Record, at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cycle panicked", append(logger.LogWithTrace(ctx),
				"panic", r, "stack", string(debug.Stack()))...)
			s.neutral(ctx, rec, ReasonInternalError, fmt.Errorf("panic: %v", r))
		}
	}()
	s.evaluate(ctx, rec, at)
}

func (s *Service) evaluate(ctx context.Context, rec *Record, at time.Time) {
	set, err := marketdata.Fetch(ctx, s.deps.Source, marketdata.Request{
		Symbol: s.cfg.Symbol,
		Higher: s.cfg.Higher,
		Mid:    s.cfg.Mid,
		Lower:  s.cfg.Lower,
		Limit:  s.cfg.History,
		Until:  at,
	})
	if err != nil {
		s.neutral(ctx, rec, dataReason(err), err)
		return
	}

	session := markethours.SessionScore(at, s.cfg.SessionFilter)
	vec, snap, err := s.deps.Builder.Build(set.Higher, set.Mid, set.Lower, session)
	if err != nil {
		s.neutral(ctx, rec, dataReason(err), err)
		return
	}
	rec.Features = &vec
	rec.Market = &snap

	res := s.deps.Oracle.Score(ctx, vec)
	rec.Oracle = &OracleInfo{
		Probability: res.Probability,
		Fallback:    res.Fallback,
		Failure:     res.Failure,
		LatencyMs:   float64(res.Latency.Microseconds()) / 1000.0,
	}
	if res.Fallback {
		slog.Warn("oracle fallback, using neutral probability", append(logger.LogWithTrace(ctx),
			"kind", string(res.Failure), "error", res.Err)...)
	}

	v := s.deps.Validator
	sig := s.deps.Evaluator.Evaluate(vec, res.Probability, snap.Close, v.Config().MinRR).
		Rounded(int32(s.cfg.PricePrecision))
	rec.Signal = sig
	rec.Decision = v.Validate(ctx, risk.CandidateFromSignal(sig), snap.ATR)
	rec.Counter = v.Counter().Today(ctx)

	slog.Info("cycle evaluated", append(logger.LogWithTrace(ctx),
		"symbol", rec.Symbol,
		"direction", string(sig.Direction),
		"confidence", sig.ConfidenceScore,
		"probability", res.Probability,
		"decision", string(rec.Decision.Action),
		"reasons", rec.Decision.Reasons,
	)...)
}

// dataReason maps a data failure to its neutral reason.
func dataReason(err error) string {
	var insufficient *indicator.InsufficientDataError
	if errors.As(err, &insufficient) || errors.Is(err, marketdata.ErrNoData) {
		return ReasonInsufficientData
	}
	return ReasonDataError
}

func (s *Service) neutral(ctx context.Context, rec *Record, reason string, err error) {
	slog.Warn("cycle yielded neutral record", append(logger.LogWithTrace(ctx),
		"reason", reason, "error", err)...)
	rec.Features = nil
	rec.Market = nil
	rec.Oracle = nil
	rec.Signal = signal.Neutral(0, 0, 0)
	rec.Decision = risk.Decision{Action: risk.NoTrade, Reasons: []string{reason}}
	rec.Error = err.Error()
	if v := s.deps.Validator; v != nil {
		rec.Counter = v.Counter().Today(ctx)
	}
}

func (s *Service) emit(ctx context.Context, rec Record) {
	for _, sink := range s.deps.Sinks {
		if err := sink.Write(ctx, rec); err != nil {
			slog.Error("sink write failed", append(logger.LogWithTrace(ctx),
				"sink", sink.Name(), "error", err)...)
			if m := s.deps.Metrics; m != nil {
				m.PersistErrors.WithLabelValues(sink.Name()).Inc()
			}
		}
	}

	s.stateMu.Lock()
	s.latest = &rec
	s.stateMu.Unlock()
}

func (s *Service) observe(rec Record, took time.Duration) {
	outcome := rec.Outcome()
	if h := s.deps.Health; h != nil {
		h.SetLastCycle(s.now(), outcome)
	}
	m := s.deps.Metrics
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(took.Seconds())
	m.LastCycleTS.Set(float64(s.now().Unix()))
	m.TradesToday.Set(float64(rec.Counter.Count))
	if rec.Oracle != nil {
		m.OracleLatency.Observe(rec.Oracle.LatencyMs / 1000)
		m.OracleProbability.Set(rec.Oracle.Probability)
		if rec.Oracle.Fallback {
			m.OracleFallbacks.WithLabelValues(string(rec.Oracle.Failure)).Inc()
		}
	}
	switch {
	case rec.Decision.Approved:
		m.Approvals.WithLabelValues(string(rec.Decision.Action)).Inc()
	case rec.Decision.Rejected() && rec.Error == "":
		m.Rejections.WithLabelValues(rec.Decision.Reasons[0]).Inc()
	}
}
