package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fxanalyst/internal/risk"
)

func TestCounterStore_RoundTrip(t *testing.T) {
	s := NewCounterStore(filepath.Join(t.TempDir(), "state", "trade_counter.json"))
	ctx := context.Background()

	if _, err := s.Load(ctx); !errors.Is(err, risk.ErrNoState) {
		t.Fatalf("missing file should report ErrNoState, got %v", err)
	}
	want := risk.CounterState{Date: "2024-06-03", Count: 2}
	if err := s.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil || got != want {
		t.Fatalf("Load = %+v, %v", got, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(s.Path()))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestCounterStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_counter.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	_, err := NewCounterStore(path).Load(context.Background())
	if err == nil || errors.Is(err, risk.ErrNoState) {
		t.Fatalf("corrupt file should be a read error, got %v", err)
	}
}

func TestCounterStore_CorruptBlocksApprovals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_counter.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	ctx := context.Background()

	v := risk.NewValidator(risk.Config{MaxTradesPerDay: 3, MinRR: 2, SLATRFactor: 1},
		risk.NewCounter(NewCounterStore(path), time.UTC), 15)
	buy := risk.Candidate{Action: risk.BuyLimit, Entry: 150, StopLoss: 149.5, TakeProfit: 151.5}

	d := v.Validate(ctx, buy, 0.4)
	if d.Approved || len(d.Reasons) != 1 || d.Reasons[0] != risk.ReasonCounterUnavailable {
		t.Fatalf("expected counter_unavailable, got %+v", d)
	}
	if data, _ := os.ReadFile(path); string(data) != "{not json" {
		t.Errorf("unreadable counter file was overwritten: %q", data)
	}

	today := time.Now().UTC().Format(risk.DateLayout)
	os.WriteFile(path, []byte(`{"date":"`+today+`","count":3}`), 0o644)
	d = v.Validate(ctx, buy, 0.4)
	if len(d.Reasons) != 1 || d.Reasons[0] != risk.ReasonDailyLimit {
		t.Errorf("expected daily limit after repair, got %+v", d)
	}
}

func TestCounterStore_WithCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_counter.json")
	ctx := context.Background()

	c := risk.NewCounter(NewCounterStore(path), time.UTC)
	c.Increment(ctx)
	c.Increment(ctx)

	// A fresh process reads the persisted count.
	restarted := risk.NewCounter(NewCounterStore(path), time.UTC)
	if n := restarted.Count(ctx); n != 2 {
		t.Errorf("count after restart = %d, want 2", n)
	}
}

func TestRecordWriter_PathLayout(t *testing.T) {
	w := NewRecordWriter("/data/signals", time.UTC)
	ts := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	want := filepath.Join("/data/signals", "2024", "06", "03", "EURUSD_M15_091500.json")
	if got := w.Path("EURUSD", "M15", ts); got != want {
		t.Errorf("path = %s, want %s", got, want)
	}
	if got := w.Path("EUR/USD", "M15", ts); filepath.Base(got) != "EUR-USD_M15_091500.json" {
		t.Errorf("symbol not sanitized: %s", got)
	}
}

func TestRecordWriter_NeverOverwrites(t *testing.T) {
	w := NewRecordWriter(t.TempDir(), time.UTC)
	ts := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	path, created, err := w.Write("EURUSD", "M15", ts, map[string]int{"v": 1})
	if err != nil || !created {
		t.Fatalf("first write: created=%v err=%v", created, err)
	}
	_, created, err = w.Write("EURUSD", "M15", ts, map[string]int{"v": 2})
	if err != nil || created {
		t.Fatalf("second write: created=%v err=%v", created, err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "{\n  \"v\": 1\n}\n" {
		t.Errorf("record overwritten: %q", data)
	}

	w.Write("EURUSD", "M15", ts.Add(15*time.Minute), map[string]int{"v": 3})
	files, err := w.List(ts)
	if err != nil || len(files) != 2 {
		t.Fatalf("List = %v, %v", files, err)
	}
	if filepath.Base(files[1]) != "EURUSD_M15_0930.json" {
		t.Errorf("unexpected order %v", files)
	}
}

func TestRecordWriter_SameMinuteDistinctSeconds(t *testing.T) {
	w := NewRecordWriter(t.TempDir(), time.UTC)
	ts := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	for _, at := range []time.Time{ts, ts.Add(20 * time.Second)} {
		if _, created, err := w.Write("EURUSD", "M15", at, map[string]int{"v": 1}); err != nil || !created {
			t.Fatalf("write at %s: created=%v err=%v", at.Format(time.TimeOnly), created, err)
		}
	}
	if files, _ := w.List(ts); len(files) != 2 {
		t.Errorf("files = %v, want 2", files)
	}
}

func TestRecordWriter_FailedWriteLeavesSlotFree(t *testing.T) {
	w := NewRecordWriter(t.TempDir(), time.UTC)
	ts := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	path, created, err := w.Write("EURUSD", "M15", ts, map[string]any{"bad": make(chan int)})
	if err == nil || created {
		t.Fatalf("expected encode failure, created=%v err=%v", created, err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file left behind: %v", err)
	}
	if _, created, err := w.Write("EURUSD", "M15", ts, map[string]int{"v": 1}); err != nil || !created {
		t.Errorf("retry: created=%v err=%v", created, err)
	}
}
