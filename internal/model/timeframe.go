package model

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe names a candle resolution, e.g. "H4", "H1", "M15".
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

var tfDurations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
	D1:  24 * time.Hour,
}

// ParseTimeframe accepts "M15", "m15", "15m", "1h", "4h" style names.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if _, ok := tfDurations[Timeframe(s)]; ok {
		return Timeframe(s), nil
	}
	// "15M" / "4H" → "M15" / "H4"
	if n := len(s); n > 1 {
		alt := Timeframe(s[n-1:] + s[:n-1])
		if _, ok := tfDurations[alt]; ok {
			return alt, nil
		}
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Duration returns the bar length, or 0 for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	return tfDurations[tf]
}

// Minutes returns the bar length in minutes.
func (tf Timeframe) Minutes() float64 {
	return tf.Duration().Minutes()
}

func (tf Timeframe) String() string { return string(tf) }
