package markethours

import (
	"time"
	_ "time/tzdata"
)

// Session score values.
const (
	ActiveSessionScore   = 1.0
	InactiveSessionScore = 0.2
)

// Berlin is the reference zone for the London and New York sessions.
var Berlin = mustLoad("Europe/Berlin")

var (
	londonSession  = Window{Start: 7 * 60, End: 11*60 + 30}
	newYorkSession = Window{Start: 14 * 60, End: 18*60 + 30}
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// SessionScore returns 1.0 inside the London (07:00-11:30) or New York
// (14:00-18:30) session, Berlin wall clock with both ends inclusive, and 0.2
// otherwise. With filter disabled every time scores 1.0.
func SessionScore(t time.Time, filter bool) float64 {
	if !filter {
		return ActiveSessionScore
	}
	local := t.In(Berlin)
	if londonSession.Contains(local) || newYorkSession.Contains(local) {
		return ActiveSessionScore
	}
	return InactiveSessionScore
}
