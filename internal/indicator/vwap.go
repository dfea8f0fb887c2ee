package indicator

import "fxanalyst/internal/model"

// VWAP is the volume weighted average price accumulated over the whole
// series (no session reset): sum(typical*volume) / sum(volume).
//
// Volume-less feeds (cumulative volume 0) fall back to the running mean of
// the typical price, i.e. every bar weighted equally.
type VWAP struct {
	count   int
	pvSum   float64
	volSum  float64
	tpSum   float64
	current float64
}

// NewVWAP creates a cumulative VWAP.
func NewVWAP() *VWAP { return &VWAP{} }

func (v *VWAP) Name() string { return "VWAP" }

func (v *VWAP) Update(candle model.Candle) {
	tp := candle.TypicalPrice()
	v.count++
	v.tpSum += tp
	v.pvSum += tp * candle.Volume
	v.volSum += candle.Volume

	if v.volSum > 0 {
		v.current = v.pvSum / v.volSum
		return
	}
	v.current = v.tpSum / float64(v.count)
}

func (v *VWAP) Value() float64 { return v.current }
func (v *VWAP) Ready() bool    { return v.count > 0 }
