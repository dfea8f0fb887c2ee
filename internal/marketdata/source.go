// Package marketdata supplies the three candle series an analysis cycle
// needs, from the SQLite candle store or a synthetic random walk.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fxanalyst/internal/model"
)

// ErrNoData is returned when a source has no candles for a request.
var ErrNoData = errors.New("no candles available")

// Source loads the latest limit candles at or before until, oldest first.
type Source interface {
	Candles(ctx context.Context, symbol string, tf model.Timeframe, limit int, until time.Time) (model.Series, error)
}

// Request names the three timeframes of one cycle.
type Request struct {
	Symbol string
	Higher model.Timeframe
	Mid    model.Timeframe
	Lower  model.Timeframe
	Limit  int
	Until  time.Time
}

// Set is the input of one cycle.
type Set struct {
	Higher model.Series
	Mid    model.Series
	Lower  model.Series
}

// Fetch loads all three series.
func Fetch(ctx context.Context, src Source, req Request) (Set, error) {
	var set Set
	for _, x := range []struct {
		tf  model.Timeframe
		dst *model.Series
	}{
		{req.Higher, &set.Higher},
		{req.Mid, &set.Mid},
		{req.Lower, &set.Lower},
	} {
		s, err := src.Candles(ctx, req.Symbol, x.tf, req.Limit, req.Until)
		if err != nil {
			return Set{}, fmt.Errorf("fetch %s %s: %w", req.Symbol, x.tf, err)
		}
		if s.Len() == 0 {
			return Set{}, fmt.Errorf("fetch %s %s: %w", req.Symbol, x.tf, ErrNoData)
		}
		*x.dst = s
	}
	return set, nil
}
