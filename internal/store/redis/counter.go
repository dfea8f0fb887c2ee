package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"fxanalyst/internal/risk"
)

const counterTTL = 72 * time.Hour

// CounterStore keeps risk.CounterState at <prefix>:counter:<symbol>.
type CounterStore struct {
	c   *Client
	key string
}

// NewCounterStore creates a counter store for symbol.
func NewCounterStore(c *Client, symbol string) *CounterStore {
	return &CounterStore{c: c, key: c.Key("counter", symbol)}
}

// Key returns the Redis key.
func (s *CounterStore) Key() string { return s.key }

// Load implements risk.Store.
func (s *CounterStore) Load(ctx context.Context) (risk.CounterState, error) {
	var data []byte
	err := s.c.do(func() error {
		var err error
		data, err = s.c.rdb.Get(ctx, s.key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return risk.CounterState{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	if data == nil {
		return risk.CounterState{}, risk.ErrNoState
	}
	var st risk.CounterState
	if err := json.Unmarshal(data, &st); err != nil {
		return risk.CounterState{}, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return st, nil
}

// Save implements risk.Store.
func (s *CounterStore) Save(ctx context.Context, st risk.CounterState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.c.do(func() error {
		return s.c.rdb.Set(ctx, s.key, data, counterTTL).Err()
	})
}
