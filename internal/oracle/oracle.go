// Package oracle calls the external probability model. Every failure is
// turned into an explicit Result carrying the neutral fallback probability so
// the analysis loop never blocks or aborts on the model.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"fxanalyst/internal/breaker"
	"fxanalyst/internal/features"
)

// NeutralProbability is substituted whenever the oracle cannot answer.
const NeutralProbability = 0.5

// FailureKind classifies why a score fell back.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureTimeout     FailureKind = "timeout"
	FailureUnreachable FailureKind = "unreachable"
	FailureBadStatus   FailureKind = "bad_status"
	FailureMalformed   FailureKind = "malformed"
	FailureOutOfRange  FailureKind = "out_of_range"
	FailureCircuitOpen FailureKind = "circuit_open"
)

// Kinds lists every failure kind, for metric pre-registration.
var Kinds = []FailureKind{
	FailureTimeout, FailureUnreachable, FailureBadStatus,
	FailureMalformed, FailureOutOfRange, FailureCircuitOpen,
}

// Result is either a probability from the model or a fallback with the
// failure that caused it.
type Result struct {
	Probability float64
	Fallback    bool
	Failure     FailureKind
	Err         error
	Latency     time.Duration
}

// OK builds a successful result.
func OK(p float64) Result { return Result{Probability: p} }

// Fallback builds a neutral result for the given failure.
func Fallback(kind FailureKind, err error) Result {
	return Result{Probability: NeutralProbability, Fallback: true, Failure: kind, Err: err}
}

// Oracle scores a feature vector. Implementations must respect ctx and must
// never return a probability outside [0,1].
type Oracle interface {
	Score(ctx context.Context, v features.Vector) Result
}

// StatusError is a non-2xx answer from the model service.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle returned status %d", e.StatusCode)
}

// ErrMalformed marks an undecodable response.
var ErrMalformed = errors.New("malformed oracle response")

// ErrOutOfRange marks a probability outside [0,1] (or NaN).
var ErrOutOfRange = errors.New("oracle probability out of range")

// Classify maps an error to its failure kind.
func Classify(err error) FailureKind {
	var se *StatusError
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, breaker.ErrOpen):
		return FailureCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &se):
		return FailureBadStatus
	case errors.Is(err, ErrOutOfRange):
		return FailureOutOfRange
	case errors.Is(err, ErrMalformed):
		return FailureMalformed
	default:
		return FailureUnreachable
	}
}

func checkRange(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: %v", ErrOutOfRange, p)
	}
	return nil
}

// Func adapts an in-process scoring function. Calls are bounded by
// DefaultLocalTimeout; use Local for a different bound.
type Func func(ctx context.Context, v features.Vector) (float64, error)

// Score implements Oracle.
func (f Func) Score(ctx context.Context, v features.Vector) Result {
	return Local{Fn: f}.Score(ctx, v)
}

// DefaultLocalTimeout bounds a Local call with no Timeout set.
const DefaultLocalTimeout = 5 * time.Second

// Local runs an in-process scoring function under its own timeout. A function
// that ignores ctx is abandoned once the timeout passes; a panic in it becomes
// an unreachable fallback.
type Local struct {
	Fn      Func
	Timeout time.Duration
}

type localOutcome struct {
	p   float64
	err error
}

// Score implements Oracle.
func (l Local) Score(ctx context.Context, v features.Vector) Result {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultLocalTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan localOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- localOutcome{err: fmt.Errorf("scoring panicked: %v", r)}
			}
		}()
		p, err := l.Fn(ctx, v)
		done <- localOutcome{p: p, err: err}
	}()

	var out localOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	if out.err == nil {
		out.err = checkRange(out.p)
	}
	if out.err == nil && ctx.Err() != nil {
		out.err = ctx.Err()
	}

	var res Result
	if out.err != nil {
		res = Fallback(Classify(out.err), out.err)
	} else {
		res = OK(out.p)
	}
	res.Latency = time.Since(start)
	return res
}

// Rule is an offline stand-in for the model service: it favours expanding
// volatility with structure confirmation inside a liquid session.
type Rule struct{}

// Score implements Oracle.
func (Rule) Score(_ context.Context, v features.Vector) Result {
	p := 0.35
	if v.ATRExpansionRatio > 1.1 {
		p += 0.15
	}
	if v.StructureStrengthIndex > 0.45 {
		p += 0.2
	}
	if v.SessionScore > 0.3 {
		p += 0.1
	}
	if v.H4TrendBull == v.H1TrendBull {
		p += 0.05
	}
	return OK(p)
}
