package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"fxanalyst/internal/signal"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

type flakyStore struct {
	MemoryStore
	loadErr error
	saveErr error
}

func (f *flakyStore) Load(ctx context.Context) (CounterState, error) {
	if f.loadErr != nil {
		return CounterState{}, f.loadErr
	}
	return f.MemoryStore.Load(ctx)
}

func (f *flakyStore) Save(ctx context.Context, st CounterState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, st)
}

var zurich, _ = time.LoadLocation("Europe/Zurich")

func newTestCounter(store Store) (*Counter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 6, 3, 9, 0, 0, 0, zurich)}
	c := NewCounter(store, zurich)
	c.now = clk.now
	return c, clk
}

func scenarioA() Candidate {
	return Candidate{Action: BuyLimit, Entry: 150.00, StopLoss: 149.50, TakeProfit: 151.50}
}

func defaultConfig() Config {
	return Config{MaxTradesPerDay: 3, MinRR: 2.0, SLATRFactor: 1.0}
}

func newTestValidator(cfg Config) (*Validator, *Counter, *fakeClock) {
	c, clk := newTestCounter(&MemoryStore{})
	return NewValidator(cfg, c, 15), c, clk
}

func assertRejected(t *testing.T, d Decision, reason string) {
	t.Helper()
	if d.Approved || d.Action != NoTrade || len(d.Reasons) != 1 || d.Reasons[0] != reason {
		t.Fatalf("expected rejection %q, got %+v", reason, d)
	}
	if d.Entry != 0 || d.StopLoss != 0 || d.TakeProfit != 0 {
		t.Errorf("rejected decision must discard levels: %+v", d)
	}
}

func TestValidate_ScenarioA_Approved(t *testing.T) {
	v, c, _ := newTestValidator(defaultConfig())
	ctx := context.Background()

	d := v.Validate(ctx, scenarioA(), 0.40)
	if !d.Approved || d.Action != BuyLimit || d.Rejected() {
		t.Fatalf("expected approval, got %+v", d)
	}
	if d.Entry != 150 || d.StopLoss != 149.5 || d.TakeProfit != 151.5 {
		t.Errorf("approved levels changed: %+v", d)
	}
	if d.RiskReward != 3 {
		t.Errorf("risk_reward = %v, want 3", d.RiskReward)
	}
	if n := c.Count(ctx); n != 1 {
		t.Errorf("counter = %d, want 1", n)
	}
}

func TestValidate_ScenarioB_InvalidRR(t *testing.T) {
	v, c, _ := newTestValidator(defaultConfig())
	cand := scenarioA()
	cand.TakeProfit = 150.60 // RR = 0.6/0.5 = 1.2

	assertRejected(t, v.Validate(context.Background(), cand, 0.40), ReasonInvalidRR)
	if n := c.Count(context.Background()); n != 0 {
		t.Errorf("rejection must not increment, counter = %d", n)
	}
}

func TestValidate_ScenarioC_DailyLimit(t *testing.T) {
	v, c, _ := newTestValidator(defaultConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d := v.Validate(ctx, scenarioA(), 0.40); !d.Approved {
			t.Fatalf("approval %d rejected: %+v", i+1, d)
		}
	}
	assertRejected(t, v.Validate(ctx, scenarioA(), 0.40), ReasonDailyLimit)
	if n := c.Count(ctx); n != 3 {
		t.Errorf("counter = %d, want 3", n)
	}
}

func TestValidate_NoTradePassesThrough(t *testing.T) {
	v, c, _ := newTestValidator(Config{MaxTradesPerDay: 0, MinRR: 2})
	d := v.Validate(context.Background(), Candidate{Action: NoTrade}, 0.4)
	if d.Action != NoTrade || d.Approved || d.Rejected() {
		t.Errorf("no_trade should pass through without reasons, got %+v", d)
	}
	if c.Count(context.Background()) != 0 {
		t.Error("no_trade must not increment")
	}
}

func TestValidate_GateOrder(t *testing.T) {
	// Limit reached wins over broken levels.
	v, _, _ := newTestValidator(Config{MaxTradesPerDay: 0, MinRR: 2, SLATRFactor: 1})
	assertRejected(t, v.Validate(context.Background(), Candidate{Action: BuyLimit, Entry: 150}, 0.4), ReasonDailyLimit)

	// Missing levels win over RR.
	v, _, _ = newTestValidator(defaultConfig())
	assertRejected(t, v.Validate(context.Background(), Candidate{Action: SellLimit, Entry: 150, StopLoss: 151}, 0.4), ReasonInvalidLevels)

	// RR wins over stop distance.
	cand := Candidate{Action: BuyLimit, Entry: 150, StopLoss: 149.9, TakeProfit: 150.1}
	assertRejected(t, v.Validate(context.Background(), cand, 0.4), ReasonInvalidRR)
}

func TestValidate_RRBoundaryInclusive(t *testing.T) {
	tests := []struct {
		name string
		cand Candidate
		ok   bool
	}{
		{"long rr == 2", Candidate{Action: BuyLimit, Entry: 150, StopLoss: 149.5, TakeProfit: 151}, true},
		{"long rr just below", Candidate{Action: BuyLimit, Entry: 150, StopLoss: 149.5, TakeProfit: 150.999}, false},
		// 0.0020/0.0010 is not exactly 2 in binary floating point
		{"fx pips rr == 2", Candidate{Action: BuyLimit, Entry: 1.1000, StopLoss: 1.0990, TakeProfit: 1.1020}, true},
		{"short rr == 2", Candidate{Action: SellLimit, Entry: 150, StopLoss: 150.5, TakeProfit: 149}, true},
		{"short rr below", Candidate{Action: SellLimit, Entry: 150, StopLoss: 150.5, TakeProfit: 149.5}, false},
		{"long stop above entry", Candidate{Action: BuyLimit, Entry: 150, StopLoss: 150.5, TakeProfit: 151}, false},
		{"short stop below entry", Candidate{Action: SellLimit, Entry: 150, StopLoss: 149.5, TakeProfit: 149}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, _ := newTestValidator(Config{MaxTradesPerDay: 10, MinRR: 2, SLATRFactor: 0})
			d := v.Validate(context.Background(), tt.cand, 0.0001)
			if tt.ok && !d.Approved {
				t.Errorf("expected approval, got %+v", d)
			}
			if !tt.ok {
				assertRejected(t, d, ReasonInvalidRR)
			}
		})
	}
}

func TestValidate_RRJustBelowMinIsRejected(t *testing.T) {
	// reward 0.0019999999 against risk 0.001 is rr 1.9999999
	tests := []Candidate{
		{Action: BuyLimit, Entry: 1.1, StopLoss: 1.099, TakeProfit: 1.1019999999},
		{Action: SellLimit, Entry: 1.1, StopLoss: 1.101, TakeProfit: 1.0980000001},
	}
	for _, c := range tests {
		v, _, _ := newTestValidator(Config{MaxTradesPerDay: 10, MinRR: 2, SLATRFactor: 0})
		assertRejected(t, v.Validate(context.Background(), c, 0.0001), ReasonInvalidRR)
	}
}

func TestValidate_RoundedSignalsAtMinRR(t *testing.T) {
	entries := []float64{1.085, 1.0999, 149.873, 0.65432}
	atrs := []float64{0.0008, 0.00037, 0.213, 0.00011}
	for i, entry := range entries {
		dist := 1.2 * atrs[i]
		for _, s := range []signal.Signal{
			{Direction: signal.Long, Valid: true, Entry: entry, Stop: entry - dist, TakeProfit: entry + dist*2, RiskReward: 2},
			{Direction: signal.Short, Valid: true, Entry: entry, Stop: entry + dist, TakeProfit: entry - dist*2, RiskReward: 2},
		} {
			c := CandidateFromSignal(s.Rounded(5))
			v, _, _ := newTestValidator(Config{MaxTradesPerDay: 10, MinRR: 2, SLATRFactor: 1})
			d := v.Validate(context.Background(), c, atrs[i])
			if !d.Approved {
				t.Errorf("%+v rejected: %v", c, d.Reasons)
			}
			if d.RiskReward < 2 {
				t.Errorf("%+v reported rr %v", c, d.RiskReward)
			}
		}
	}
}

func TestValidate_StopTooTightBoundary(t *testing.T) {
	tests := []struct {
		name  string
		entry float64
		stop  float64
		atr   float64
		ok    bool
	}{
		{"equal passes", 150, 149.6, 0.4, true},
		{"tighter rejects", 150, 149.61, 0.4, false},
		// 0.3-0.1 < 0.2 in float64, equal in decimal
		{"decimal equality", 0.3, 0.1, 0.1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{MaxTradesPerDay: 10, MinRR: 1, SLATRFactor: 1}
			if tt.name == "decimal equality" {
				cfg.SLATRFactor = 2
			}
			v, _, _ := newTestValidator(cfg)
			target := tt.entry + 2*(tt.entry-tt.stop)
			d := v.Validate(context.Background(), Candidate{Action: BuyLimit, Entry: tt.entry, StopLoss: tt.stop, TakeProfit: target}, tt.atr)
			if tt.ok && !d.Approved {
				t.Errorf("expected approval, got %+v", d)
			}
			if !tt.ok {
				assertRejected(t, d, ReasonStopTooTight)
			}
		})
	}
}

func TestValidate_TPHorizon(t *testing.T) {
	cfg := defaultConfig()
	cfg.TPHorizonHours = 1
	v, _, _ := newTestValidator(cfg)

	// |151.5-150| / 0.4 = 3.75 bars × 15 min = 56.25 min
	if d := v.Validate(context.Background(), scenarioA(), 0.40); !d.Approved {
		t.Fatalf("0.94h to target should pass a 1h horizon: %+v", d)
	}
	// 1.5 / 0.3 = 5 bars = 75 min
	assertRejected(t, v.Validate(context.Background(), Candidate{Action: BuyLimit, Entry: 150, StopLoss: 149.5, TakeProfit: 151.5}, 0.3), ReasonHorizonExceeds)
}

func TestValidate_ApprovalRoundTrip(t *testing.T) {
	ctx := context.Background()
	for limit := 1; limit <= 4; limit++ {
		v, c, _ := newTestValidator(Config{MaxTradesPerDay: limit, MinRR: 2, SLATRFactor: 1})
		for n := 1; n <= limit+2; n++ {
			before := c.Count(ctx)
			d := v.Validate(ctx, scenarioA(), 0.4)
			if n <= limit {
				if !d.Approved || c.Count(ctx) != before+1 {
					t.Fatalf("limit=%d n=%d: expected approval incrementing by one, got %+v count=%d", limit, n, d, c.Count(ctx))
				}
			} else {
				assertRejected(t, d, ReasonDailyLimit)
			}
		}
	}
}

func TestValidate_CounterResetsNextDay(t *testing.T) {
	v, c, clk := newTestValidator(Config{MaxTradesPerDay: 1, MinRR: 2, SLATRFactor: 1})
	ctx := context.Background()

	if !v.Validate(ctx, scenarioA(), 0.4).Approved {
		t.Fatal("first approval rejected")
	}
	assertRejected(t, v.Validate(ctx, scenarioA(), 0.4), ReasonDailyLimit)

	clk.t = clk.t.Add(24 * time.Hour)
	if !v.Validate(ctx, scenarioA(), 0.4).Approved {
		t.Fatal("limit should reset on a new day")
	}
	if st := c.Today(ctx); st.Date != "2024-06-04" || st.Count != 1 {
		t.Errorf("state = %+v", st)
	}
}

func TestCandidateFromSignal(t *testing.T) {
	long := signal.Signal{Direction: signal.Long, Valid: true, Entry: 150, Stop: 149.52, TakeProfit: 150.96}
	if c := CandidateFromSignal(long); c.Action != BuyLimit || c.StopLoss != 149.52 || c.TakeProfit != 150.96 {
		t.Errorf("long candidate = %+v", c)
	}
	short := signal.Signal{Direction: signal.Short, Valid: true, Entry: 150}
	if c := CandidateFromSignal(short); c.Action != SellLimit {
		t.Errorf("short candidate = %+v", c)
	}
	long.Valid = false
	if c := CandidateFromSignal(long); c.Action != NoTrade {
		t.Errorf("invalid signal candidate = %+v", c)
	}
	if c := CandidateFromSignal(signal.Signal{Direction: signal.None, Valid: true}); c.Action != NoTrade {
		t.Errorf("NONE candidate = %+v", c)
	}
}

func TestCounter_DateRolloverUsesTimezone(t *testing.T) {
	c, clk := newTestCounter(&MemoryStore{})
	ctx := context.Background()
	// 23:30 UTC on June 3 is already June 4 in Zurich (UTC+2).
	clk.t = time.Date(2024, 6, 3, 23, 30, 0, 0, time.UTC)
	if st := c.Today(ctx); st.Date != "2024-06-04" {
		t.Errorf("date = %s, want 2024-06-04", st.Date)
	}
}

func TestCounter_StaleStoredDateResets(t *testing.T) {
	store := &MemoryStore{}
	store.Save(context.Background(), CounterState{Date: "2024-06-02", Count: 3})
	c, _ := newTestCounter(store)

	if st := c.Today(context.Background()); st.Date != "2024-06-03" || st.Count != 0 {
		t.Errorf("state = %+v, want reset to today", st)
	}
	if st, _ := store.Load(context.Background()); st.Date != "2024-06-03" || st.Count != 0 {
		t.Errorf("reset not persisted: %+v", st)
	}
}

func TestCounter_SaveFailureKeepsIncrement(t *testing.T) {
	store := &flakyStore{}
	c, _ := newTestCounter(store)
	var ops []string
	c.OnPersistError = func(op string, err error) { ops = append(ops, op) }
	ctx := context.Background()

	c.Increment(ctx)
	store.saveErr = errors.New("disk full")
	st, err := c.Increment(ctx)
	if err == nil || st.Count != 2 {
		t.Fatalf("expected in-memory count 2 with error, got %+v err=%v", st, err)
	}
	// The store still says 1; the cached 2 must win.
	if n := c.Count(ctx); n != 2 {
		t.Errorf("count = %d, want 2 (never lowered)", n)
	}
	if len(ops) != 1 || ops[0] != "save" {
		t.Errorf("persist errors = %v", ops)
	}
}

func TestCounter_LoadFailureUsesCache(t *testing.T) {
	store := &flakyStore{}
	c, _ := newTestCounter(store)
	ctx := context.Background()
	c.Increment(ctx)
	c.Increment(ctx)

	store.loadErr = errors.New("permission denied")
	if n := c.Count(ctx); n != 2 {
		t.Errorf("count with unreadable store = %d, want cached 2", n)
	}
}

func TestCounter_LoadFailureWithoutCacheIsUnavailable(t *testing.T) {
	store := &flakyStore{loadErr: errors.New("corrupt")}
	store.MemoryStore.Save(context.Background(), CounterState{Date: "2024-06-03", Count: 3})
	c, _ := newTestCounter(store)
	ctx := context.Background()

	if st, err := c.State(ctx); !errors.Is(err, ErrUnavailable) || st.Count != 0 || st.Date != "2024-06-03" {
		t.Errorf("state = %+v, err = %v", st, err)
	}
	if _, err := c.Increment(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("increment err = %v, want ErrUnavailable", err)
	}

	store.loadErr = nil
	if st, err := c.State(ctx); err != nil || st.Count != 3 {
		t.Errorf("after recovery state = %+v, err = %v", st, err)
	}
}

func TestValidate_UnreadableCounterBlocksApprovals(t *testing.T) {
	store := &flakyStore{loadErr: errors.New("corrupt")}
	c, _ := newTestCounter(store)
	v := NewValidator(defaultConfig(), c, 15)
	ctx := context.Background()

	assertRejected(t, v.Validate(ctx, scenarioA(), 0.40), ReasonCounterUnavailable)
	if st, _ := store.MemoryStore.Load(ctx); st.Count != 0 || st.Date != "" {
		t.Errorf("unreadable state must not be overwritten: %+v", st)
	}

	store.loadErr = nil
	if d := v.Validate(ctx, scenarioA(), 0.40); !d.Approved {
		t.Errorf("expected approval once the store reads, got %+v", d)
	}
}
