package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"fxanalyst/internal/model"
)

// SyntheticConfig parameterizes the random walk.
type SyntheticConfig struct {
	Seed       uint64          `yaml:"seed" default:"42"`
	Price      float64         `yaml:"price" default:"1.0850" validate:"gt=0"`
	Volatility float64         `yaml:"volatility" default:"0.0008" validate:"gte=0"`
	Drift      float64         `yaml:"drift"`
	Base       model.Timeframe `yaml:"base" default:"M15"`
}

// Synthetic generates a deterministic random walk of Base bars. The walk runs
// backwards from Price at the requested end time, so two requests ending at
// the same bar share their most recent candles regardless of length, and
// coarser timeframes are resampled from the same walk.
type Synthetic struct {
	cfg SyntheticConfig
}

// NewSynthetic creates a synthetic source.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Base == "" {
		cfg.Base = model.M15
	}
	return &Synthetic{cfg: cfg}
}

// Candles implements Source. A zero until means now.
func (s *Synthetic) Candles(ctx context.Context, symbol string, tf model.Timeframe, limit int, until time.Time) (model.Series, error) {
	if err := ctx.Err(); err != nil {
		return model.Series{}, err
	}
	if until.IsZero() {
		until = time.Now()
	}
	n := ratio(s.cfg.Base, tf)
	if n == 0 || limit <= 0 {
		return model.Series{Symbol: symbol, Timeframe: tf}, nil
	}

	// all timeframes of one cycle share the walk ending at the same base bar
	end := until.UTC().Truncate(s.cfg.Base.Duration())
	base := s.walk(symbol, end, (limit+2)*n)
	if tf == s.cfg.Base {
		base.Candles = base.Candles[len(base.Candles)-limit:]
		return base, nil
	}
	out, err := Resample(base, tf)
	if err != nil {
		return model.Series{}, err
	}
	if out.Len() > limit {
		out.Candles = out.Candles[out.Len()-limit:]
	}
	return out, nil
}

// walk returns count base bars whose last bar closes at end.
func (s *Synthetic) walk(symbol string, end time.Time, count int) model.Series {
	step := s.cfg.Base.Duration()
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewPCG(s.cfg.Seed, h.Sum64()^uint64(end.Unix())))

	candles := make([]model.Candle, count)
	price := s.cfg.Price
	for i := count - 1; i >= 0; i-- {
		ret := s.cfg.Drift + rng.NormFloat64()*s.cfg.Volatility
		closePx := price
		openPx := closePx / (1 + ret)
		wick := math.Abs(rng.NormFloat64()) * s.cfg.Volatility / 2
		candles[i] = model.Candle{
			TS:     end.Add(-time.Duration(count-i) * step),
			Open:   openPx,
			High:   math.Max(openPx, closePx) * (1 + wick),
			Low:    math.Min(openPx, closePx) * (1 - wick),
			Close:  closePx,
			Volume: math.Round(100 + rng.Float64()*900),
		}
		price = openPx
	}
	return model.Series{Symbol: symbol, Timeframe: s.cfg.Base, Candles: candles}
}
