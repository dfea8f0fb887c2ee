// Package scheduler runs the analysis cycle on interval boundaries inside the
// configured usage schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"fxanalyst/internal/markethours"
)

// ErrFatal stops Run when returned (wrapped) by a tick.
var ErrFatal = errors.New("fatal cycle error")

// WindowConfig is one "HH:MM" usage window.
type WindowConfig struct {
	Start string `yaml:"start" validate:"required"`
	End   string `yaml:"end" validate:"required"`
}

// Config is the usage schedule.
type Config struct {
	IntervalMinutes int            `yaml:"interval_minutes" default:"15" validate:"gt=0,lte=1440"`
	JitterSeconds   int            `yaml:"jitter_seconds" default:"20" validate:"gte=0"`
	BackfillOnStart bool           `yaml:"backfill_on_start" default:"true"`
	Weekdays        []string       `yaml:"weekdays" default:"[\"MO\",\"TU\",\"WE\",\"TH\",\"FR\"]"`
	Windows         []WindowConfig `yaml:"windows" validate:"dive"`
	Holidays        []string       `yaml:"holidays"`
}

// Interval returns the cycle interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Calendar builds the usage calendar in loc.
func (c Config) Calendar(loc *time.Location) (*markethours.Calendar, error) {
	days, err := markethours.ParseWeekdays(c.Weekdays)
	if err != nil {
		return nil, err
	}
	hol, err := markethours.ParseHolidays(c.Holidays)
	if err != nil {
		return nil, err
	}
	cal := &markethours.Calendar{Loc: loc, Weekdays: days, Holidays: hol}
	for _, w := range c.Windows {
		win, err := markethours.ParseWindow(w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("schedule window: %w", err)
		}
		cal.Windows = append(cal.Windows, win)
	}
	return cal, nil
}

// Tick runs one cycle.
type Tick func(ctx context.Context) error

// Scheduler is a single serial loop; a tick never overlaps the next.
type Scheduler struct {
	cal      *markethours.Calendar
	interval time.Duration
	jitter   time.Duration
	backfill bool
	tick     Tick

	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	jitterFunc func(limit time.Duration) time.Duration
}

// New creates a scheduler.
func New(cfg Config, cal *markethours.Calendar, tick Tick) *Scheduler {
	return &Scheduler{
		cal:        cal,
		interval:   cfg.Interval(),
		jitter:     time.Duration(cfg.JitterSeconds) * time.Second,
		backfill:   cfg.BackfillOnStart,
		tick:       tick,
		now:        time.Now,
		sleep:      sleepCtx,
		jitterFunc: randomJitter,
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Next returns the next fire time after now and whether now is inside the
// schedule. Outside the schedule it is the next window opening.
func (s *Scheduler) Next(now time.Time) (time.Time, bool) {
	if !s.cal.IsOpen(now) {
		return s.cal.NextOpen(now), false
	}
	loc := s.cal.Loc
	if loc == nil {
		loc = time.UTC
	}
	return markethours.CeilToInterval(now.In(loc), s.interval).Add(s.jitterFunc(s.jitter)), true
}

// Run loops until ctx is cancelled or a tick returns ErrFatal. With backfill
// enabled and the schedule open, one cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.backfill && s.cal.IsOpen(s.now()) {
		if err := s.runTick(ctx); err != nil {
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		now := s.now()
		next, open := s.Next(now)
		if open {
			slog.Debug("sleeping until next interval", "at", next.Format(time.RFC3339))
		} else {
			slog.Info("outside schedule", "status", s.cal.StatusString(now), "next", next.Format(time.RFC3339))
		}
		if err := s.sleep(ctx, next.Sub(now)); err != nil {
			return nil
		}
		if !open {
			continue
		}
		if err := s.runTick(ctx); err != nil {
			return err
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) error {
	err := s.tick(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFatal):
		slog.Error("cycle failed fatally, stopping scheduler", "error", err)
		return err
	default:
		slog.Warn("cycle failed", "error", err)
		return nil
	}
}
