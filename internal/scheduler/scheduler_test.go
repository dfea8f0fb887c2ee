package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var zurich, _ = time.LoadLocation("Europe/Zurich")

func testConfig() Config {
	return Config{
		IntervalMinutes: 15,
		JitterSeconds:   20,
		BackfillOnStart: true,
		Weekdays:        []string{"MO", "TU", "WE", "TH", "FR"},
		Windows:         []WindowConfig{{Start: "08:00", End: "09:00"}},
	}
}

type fakeClock struct{ t time.Time }

func newTestScheduler(t *testing.T, cfg Config, start time.Time, tick Tick) (*Scheduler, *fakeClock, *[]time.Duration) {
	t.Helper()
	cal, err := cfg.Calendar(zurich)
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{t: start}
	var sleeps []time.Duration
	s := New(cfg, cal, tick)
	s.now = func() time.Time { return clock.t }
	s.jitterFunc = func(limit time.Duration) time.Duration { return limit / 2 }
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sleeps = append(sleeps, d)
		clock.t = clock.t.Add(d)
		return nil
	}
	return s, clock, &sleeps
}

func TestConfig_Calendar(t *testing.T) {
	cfg := testConfig()
	cfg.Holidays = []string{"2024-12-25"}
	cal, err := cfg.Calendar(zurich)
	if err != nil {
		t.Fatal(err)
	}
	if len(cal.Windows) != 1 || !cal.Holidays["2024-12-25"] || !cal.Weekdays[time.Monday] {
		t.Errorf("unexpected calendar %+v", cal)
	}

	cfg.Windows = []WindowConfig{{Start: "9", End: "10:00"}}
	if _, err := cfg.Calendar(zurich); err == nil {
		t.Error("expected window parse error")
	}
}

func TestNext(t *testing.T) {
	s, _, _ := newTestScheduler(t, testConfig(), time.Time{}, nil)

	next, open := s.Next(time.Date(2024, 6, 3, 8, 7, 30, 0, zurich))
	if !open || !next.Equal(time.Date(2024, 6, 3, 8, 15, 10, 0, zurich)) {
		t.Errorf("in window: next=%s open=%v", next, open)
	}

	next, open = s.Next(time.Date(2024, 6, 3, 10, 0, 0, 0, zurich))
	if open || !next.Equal(time.Date(2024, 6, 4, 8, 0, 0, 0, zurich)) {
		t.Errorf("after window: next=%s open=%v", next, open)
	}
}

func TestRun_BackfillThenIntervals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired []time.Time
	var clock *fakeClock
	s, clock, _ := newTestScheduler(t, testConfig(), time.Date(2024, 6, 3, 8, 7, 0, 0, zurich), func(ctx context.Context) error {
		fired = append(fired, clock.t)
		if len(fired) == 3 {
			cancel()
		}
		return nil
	})

	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(2024, 6, 3, 8, 7, 0, 0, zurich), // backfill
		time.Date(2024, 6, 3, 8, 15, 10, 0, zurich),
		time.Date(2024, 6, 3, 8, 30, 10, 0, zurich),
	}
	if len(fired) != len(want) {
		t.Fatalf("fired %d times: %v", len(fired), fired)
	}
	for i := range want {
		if !fired[i].Equal(want[i]) {
			t.Errorf("tick %d at %s, want %s", i, fired[i], want[i])
		}
	}
}

func TestRun_WaitsOutsideSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var clock *fakeClock
	var firedAt time.Time
	// Saturday evening: no backfill, first tick Monday after 08:00.
	s, clock, _ := newTestScheduler(t, testConfig(), time.Date(2024, 6, 8, 18, 0, 0, 0, zurich), func(ctx context.Context) error {
		firedAt = clock.t
		cancel()
		return nil
	})
	if err := s.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 6, 10, 8, 15, 10, 0, zurich); !firedAt.Equal(want) {
		t.Errorf("first tick at %s, want %s", firedAt, want)
	}
}

func TestRun_TickErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	s, _, _ := newTestScheduler(t, testConfig(), time.Date(2024, 6, 3, 8, 0, 0, 0, zurich), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return fmt.Errorf("bad config: %w", ErrFatal)
	})
	err := s.Run(ctx)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
