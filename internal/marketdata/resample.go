package marketdata

import (
	"fmt"
	"time"

	"fxanalyst/internal/model"
)

// Resample aggregates s into the coarser timeframe to. Buckets are aligned to
// Unix time multiples of the target duration. A leading bucket whose first bar
// is not at the bucket start is dropped as partial, and so is a trailing
// bucket with fewer source bars than a full one.
func Resample(s model.Series, to model.Timeframe) (model.Series, error) {
	n := ratio(s.Timeframe, to)
	if n == 0 {
		return model.Series{}, fmt.Errorf("cannot resample %s to %s", s.Timeframe, to)
	}
	tf := int64(to.Duration() / time.Second)

	out := model.Series{Symbol: s.Symbol, Timeframe: to}
	var (
		forming model.Candle
		bucket  int64
		count   int
		started bool
		partial bool
	)
	flush := func() {
		if started && !partial {
			out.Candles = append(out.Candles, forming)
		}
		started, partial = false, false
	}

	for i, c := range s.Candles {
		ts := c.TS.Unix()
		b := ts - (ts % tf)

		if started && b > bucket {
			flush()
		}
		if !started {
			bucket, count, started = b, 1, true
			partial = i == 0 && ts != b
			forming = model.Candle{
				TS:     time.Unix(b, 0).UTC(),
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			}
			continue
		}

		if c.High > forming.High {
			forming.High = c.High
		}
		if c.Low < forming.Low {
			forming.Low = c.Low
		}
		forming.Close = c.Close
		forming.Volume += c.Volume
		count++
	}
	if count < n {
		partial = true
	}
	flush()
	return out, nil
}

// ratio returns how many from bars make one to bar, or 0 if to is not an
// exact multiple of from.
func ratio(from, to model.Timeframe) int {
	f, t := from.Duration(), to.Duration()
	if f == 0 || t < f || t%f != 0 {
		return 0
	}
	return int(t / f)
}
