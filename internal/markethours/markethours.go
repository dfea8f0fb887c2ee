// Package markethours decides when analysis cycles may run: allowed weekdays,
// intra-day windows and holidays in a configured timezone, plus the trading
// session score.
package markethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is an inclusive clock range in minutes after midnight.
type Window struct {
	Start int
	End   int
}

// ParseWindow parses "HH:MM" start and end strings.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}
	if e < s {
		return Window{}, fmt.Errorf("window %s-%s ends before it starts", start, end)
	}
	return Window{Start: s, End: e}, nil
}

func parseClock(v string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q", v)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	return hh*60 + mm, nil
}

// Contains reports whether the wall-clock minute of t is inside the window.
func (w Window) Contains(t time.Time) bool {
	hm := t.Hour()*60 + t.Minute()
	return hm >= w.Start && hm <= w.End
}

// Calendar is the usage schedule. A Calendar without windows is open all day.
type Calendar struct {
	Loc      *time.Location
	Weekdays map[time.Weekday]bool
	Windows  []Window
	Holidays Holidays
}

// ParseWeekdays accepts "MO".."SU" (any case, first two letters used).
func ParseWeekdays(days []string) (map[time.Weekday]bool, error) {
	names := map[string]time.Weekday{
		"SU": time.Sunday, "MO": time.Monday, "TU": time.Tuesday, "WE": time.Wednesday,
		"TH": time.Thursday, "FR": time.Friday, "SA": time.Saturday,
	}
	out := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		d = strings.ToUpper(strings.TrimSpace(d))
		if len(d) > 2 {
			d = d[:2]
		}
		wd, ok := names[d]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", d)
		}
		out[wd] = true
	}
	return out, nil
}

func (c *Calendar) loc() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

// IsWeekday reports whether t falls on an allowed weekday. An empty set
// allows Monday to Friday.
func (c *Calendar) IsWeekday(t time.Time) bool {
	wd := t.In(c.loc()).Weekday()
	if len(c.Weekdays) == 0 {
		return wd >= time.Monday && wd <= time.Friday
	}
	return c.Weekdays[wd]
}

// IsTradingDay returns true if t is an allowed weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc())
	return c.IsWeekday(local) && !c.Holidays.Contains(local)
}

// InWindow reports whether t is inside any window.
func (c *Calendar) InWindow(t time.Time) bool {
	if len(c.Windows) == 0 {
		return true
	}
	local := t.In(c.loc())
	for _, w := range c.Windows {
		if w.Contains(local) {
			return true
		}
	}
	return false
}

// IsOpen returns true if cycles may run at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	return c.IsTradingDay(t) && c.InWindow(t)
}

// NextOpen returns the earliest window start after t on a trading day.
// If t is already open it returns t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	if c.IsOpen(t) {
		return t
	}
	local := t.In(c.loc())
	windows := c.Windows
	if len(windows) == 0 {
		windows = []Window{{Start: 0, End: 24*60 - 1}}
	}

	// max 14 days ahead (holidays + weekends)
	for day := 0; day < 14; day++ {
		d := local.AddDate(0, 0, day)
		if !c.IsTradingDay(d) {
			continue
		}
		var best time.Time
		for _, w := range windows {
			start := time.Date(d.Year(), d.Month(), d.Day(), w.Start/60, w.Start%60, 0, 0, c.loc())
			if !start.After(local) {
				continue
			}
			if best.IsZero() || start.Before(best) {
				best = start
			}
		}
		if !best.IsZero() {
			return best
		}
	}
	// Fallback: next day
	return time.Date(local.Year(), local.Month(), local.Day()+1, windows[0].Start/60, windows[0].Start%60, 0, 0, c.loc())
}

// CeilToInterval returns the next boundary of interval strictly after t,
// aligned to the local wall clock of t.
func CeilToInterval(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	elapsed := t.Sub(midnight)
	slots := elapsed/interval + 1
	return midnight.Add(slots * interval)
}

// StatusString returns a human-readable schedule status.
func (c *Calendar) StatusString(t time.Time) string {
	if c.IsOpen(t) {
		return "Schedule open"
	}
	next := c.NextOpen(t)
	local := next.In(c.loc())
	return fmt.Sprintf("Schedule closed, opens %s %s (%s)",
		local.Weekday().String()[:3], local.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
