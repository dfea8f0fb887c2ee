package marketdata

import (
	"context"
	"log"
	"time"

	"fxanalyst/internal/model"
	"fxanalyst/internal/store/sqlite"
)

// SQLiteSource reads candles from the SQLite candle store. A timeframe with no
// stored bars is resampled from Base.
type SQLiteSource struct {
	DB   *sqlite.DB
	Base model.Timeframe
}

// Candles implements Source.
func (s *SQLiteSource) Candles(ctx context.Context, symbol string, tf model.Timeframe, limit int, until time.Time) (model.Series, error) {
	series, err := s.DB.LoadCandles(ctx, symbol, tf, limit, until)
	if err != nil || series.Len() > 0 || s.Base == "" || s.Base == tf {
		return series, err
	}
	n := ratio(s.Base, tf)
	if n == 0 {
		return series, nil
	}
	// one extra bucket of base bars in case the first one is partial
	base, err := s.DB.LoadCandles(ctx, symbol, s.Base, (limit+1)*n, until)
	if err != nil {
		return model.Series{}, err
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

// Persist stores every series of set, so that a synthetic or remote feed can
// be replayed from SQLite later.
func Persist(ctx context.Context, db *sqlite.DB, set Set) error {
	for _, s := range []model.Series{set.Higher, set.Mid, set.Lower} {
		if err := db.UpsertCandles(ctx, s.Symbol, s.Timeframe, s.Candles); err != nil {
			return err
		}
	}
	return nil
}

// Recorder passes requests through to Source and stores every returned
// series in DB. Storage failures are logged and reported to OnError; the
// series is returned regardless.
type Recorder struct {
	Source  Source
	DB      *sqlite.DB
	OnError func(err error)
}

// Candles implements Source.
func (r *Recorder) Candles(ctx context.Context, symbol string, tf model.Timeframe, limit int, until time.Time) (model.Series, error) {
	series, err := r.Source.Candles(ctx, symbol, tf, limit, until)
	if err != nil || series.Len() == 0 {
		return series, err
	}
	if perr := r.DB.UpsertCandles(ctx, symbol, tf, series.Candles); perr != nil {
		log.Printf("[marketdata] persist %s %s failed: %v", symbol, tf, perr)
		if r.OnError != nil {
			r.OnError(perr)
		}
	}
	return series, nil
}
