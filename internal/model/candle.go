package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedSeries is returned when a candle series breaks ordering or
// OHLC consistency rules.
var ErrMalformedSeries = errors.New("malformed candle series")

// Candle is one OHLC(V) bar. Prices are plain float64 quotes; Volume is 0
// when the feed does not carry volume (most FX sources).
type Candle struct {
	TS     time.Time `json:"ts"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
}

// TypicalPrice returns (high+low+close)/3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Series is an ordered run of candles for one symbol and timeframe.
type Series struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candles   []Candle  `json:"candles"`
}

// Len returns the number of candles.
func (s Series) Len() int { return len(s.Candles) }

// Last returns the most recent candle. Callers must check Len() first.
func (s Series) Last() Candle { return s.Candles[len(s.Candles)-1] }

// Closes, Highs, Lows, Opens and Volumes extract single columns.
func (s Series) Closes() []float64 { return s.column(func(c Candle) float64 { return c.Close }) }
func (s Series) Highs() []float64  { return s.column(func(c Candle) float64 { return c.High }) }
func (s Series) Lows() []float64   { return s.column(func(c Candle) float64 { return c.Low }) }
func (s Series) Opens() []float64  { return s.column(func(c Candle) float64 { return c.Open }) }
func (s Series) Volumes() []float64 {
	return s.column(func(c Candle) float64 { return c.Volume })
}

func (s Series) column(f func(Candle) float64) []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = f(c)
	}
	return out
}

// Validate checks strictly increasing timestamps and sane OHLC values.
func (s Series) Validate() error {
	for i, c := range s.Candles {
		for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s %s candle %d has non-finite value", ErrMalformedSeries, s.Symbol, s.Timeframe, i)
			}
		}
		if c.Volume < 0 {
			return fmt.Errorf("%w: %s %s candle %d has negative volume", ErrMalformedSeries, s.Symbol, s.Timeframe, i)
		}
		if c.High < c.Low || c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
			return fmt.Errorf("%w: %s %s candle %d OHLC out of range", ErrMalformedSeries, s.Symbol, s.Timeframe, i)
		}
		if i > 0 && !c.TS.After(s.Candles[i-1].TS) {
			return fmt.Errorf("%w: %s %s candle %d timestamp %s not after %s",
				ErrMalformedSeries, s.Symbol, s.Timeframe, i,
				c.TS.Format(time.RFC3339), s.Candles[i-1].TS.Format(time.RFC3339))
		}
	}
	return nil
}
