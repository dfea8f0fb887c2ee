// Package redis shares trade counter state and decision records through
// Redis: a counter key per symbol, a Pub/Sub channel of decisions and a
// latest-record cache.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"fxanalyst/internal/breaker"
)

// Config configures the Redis connection.
type Config struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr" default:"localhost:6379"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix" default:"fxanalyst"`
	LatestTTL   time.Duration `yaml:"latest_ttl" default:"24h"`
	MaxFailures int           `yaml:"max_failures" default:"3"`
	Cooldown    time.Duration `yaml:"cooldown" default:"10s"`
	MaxBuffer   int           `yaml:"max_buffer" default:"1000"`
}

// Client is a go-redis client behind a circuit breaker.
type Client struct {
	rdb    *goredis.Client
	br     *breaker.Breaker
	prefix string
}

// NewClient creates a client without contacting the server.
func NewClient(cfg Config, br *breaker.Breaker) *Client {
	if br == nil {
		br = breaker.New("redis", cfg.MaxFailures, cfg.Cooldown)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "fxanalyst"
	}
	return &Client{
		rdb: goredis.NewClient(&goredis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: 2 * time.Second,
		}),
		br:     br,
		prefix: prefix,
	}
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config, br *breaker.Breaker) (*Client, error) {
	c := NewClient(cfg, br)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return c, nil
}

// Key joins parts under the client prefix.
func (c *Client) Key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Ping checks connectivity, bypassing the breaker.
func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Breaker returns the client's circuit breaker.
func (c *Client) Breaker() *breaker.Breaker { return c.br }

// Raw returns the go-redis client for health checks.
func (c *Client) Raw() *goredis.Client { return c.rdb }

// Close closes the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) do(fn func() error) error {
	return c.br.Execute(fn)
}
