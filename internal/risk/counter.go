package risk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DateLayout is the ISO date format of CounterState.Date.
const DateLayout = "2006-01-02"

// ErrNoState is returned by a Store that has never been written.
var ErrNoState = errors.New("no trade counter state")

// ErrUnavailable is returned when today's count cannot be established: the
// store is unreadable and nothing was read for today in this process.
var ErrUnavailable = errors.New("trade counter unavailable")

// CounterState is the persisted per-day approval count.
type CounterState struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Store persists CounterState.
type Store interface {
	Load(ctx context.Context) (CounterState, error)
	Save(ctx context.Context, st CounterState) error
}

// Counter owns the per-day approval count. It is the only writer of its
// Store; all access is serialized.
//
// Persistence is best effort: a failed Save keeps the in-memory increment and
// a failed Load falls back to the cached count when it is for today. The count
// only resets to zero once a different date (or no state at all) has actually
// been read; an unreadable store with no cache for today leaves the counter
// unavailable. The count for a day is never lowered.
type Counter struct {
	mu     sync.Mutex
	store  Store
	loc    *time.Location
	now    func() time.Time
	cached CounterState

	// OnPersistError is called for every failed Load or Save.
	OnPersistError func(op string, err error)
}

// NewCounter creates a counter whose day boundary follows loc.
func NewCounter(store Store, loc *time.Location) *Counter {
	if loc == nil {
		loc = time.UTC
	}
	return &Counter{store: store, loc: loc, now: time.Now}
}

func (c *Counter) today() string {
	return c.now().In(c.loc).Format(DateLayout)
}

// Today returns today's state, resetting a stale date. An unavailable
// counter reports zero.
func (c *Counter) Today(ctx context.Context) CounterState {
	st, _ := c.State(ctx)
	return st
}

// State is Today with ErrUnavailable when the count is not established.
func (c *Counter) State(ctx context.Context) (CounterState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.ensureToday(ctx)
	if !ok {
		return st, ErrUnavailable
	}
	return st, nil
}

// Count returns today's approval count.
func (c *Counter) Count(ctx context.Context) int {
	return c.Today(ctx).Count
}

// Increment records one approval for today and returns the new state. It
// fails with ErrUnavailable without counting when today's count is unknown;
// any other error reports a persistence failure and the increment is kept in
// memory regardless.
func (c *Counter) Increment(ctx context.Context) (CounterState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.ensureToday(ctx)
	if !ok {
		return st, ErrUnavailable
	}
	st.Count++
	c.cached = st
	if err := c.store.Save(ctx, st); err != nil {
		c.persistError("save", err)
		return st, err
	}
	return st, nil
}

// ensureToday reports false when today's count could not be established.
func (c *Counter) ensureToday(ctx context.Context) (CounterState, bool) {
	today := c.today()

	loaded, err := c.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoState):
		loaded = CounterState{Date: today}
	case err != nil:
		c.persistError("load", err)
		if c.cached.Date == today {
			return c.cached, true
		}
		slog.Warn("trade counter state unreadable, approvals blocked until it loads",
			"date", today, "error", err)
		return CounterState{Date: today}, false
	}

	if loaded.Date != today {
		st := CounterState{Date: today}
		c.cached = st
		if err := c.store.Save(ctx, st); err != nil {
			c.persistError("save", err)
		}
		return st, true
	}

	if c.cached.Date == today && c.cached.Count > loaded.Count {
		loaded.Count = c.cached.Count
	}
	c.cached = loaded
	return loaded, true
}

func (c *Counter) persistError(op string, err error) {
	slog.Error("trade counter persistence failed", "op", op, "error", err)
	if c.OnPersistError != nil {
		c.OnPersistError(op, err)
	}
}

// MemoryStore keeps CounterState in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	st  CounterState
	set bool
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) (CounterState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return CounterState{}, ErrNoState
	}
	return m.st, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, st CounterState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st, m.set = st, true
	return nil
}
