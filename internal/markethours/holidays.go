package markethours

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Holidays is a set of closed dates keyed "YYYY-MM-DD".
type Holidays map[string]bool

// ParseHolidays parses ISO dates.
func ParseHolidays(dates []string) (Holidays, error) {
	h := make(Holidays, len(dates))
	for _, d := range dates {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", d, err)
		}
		h[t.Format(dateLayout)] = true
	}
	return h, nil
}

// Contains returns true if the calendar date of t is a holiday.
func (h Holidays) Contains(t time.Time) bool {
	return h[t.Format(dateLayout)]
}
