package redis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"fxanalyst/internal/breaker"
)

type pendingPublish struct {
	symbol  string
	payload []byte
}

// Publisher publishes decision records on <prefix>:decisions and caches the
// latest record per symbol at <prefix>:latest:<symbol>. While the breaker is
// open records are buffered (oldest dropped past maxBuf) and replayed once it
// closes.
type Publisher struct {
	c       *Client
	channel string
	ttl     time.Duration

	mu     sync.Mutex
	buffer []pendingPublish
	maxBuf int

	OnBuffer func()
	OnFlush  func(count int)
}

// NewPublisher creates a publisher and hooks buffer replay on breaker close.
func NewPublisher(c *Client, ttl time.Duration, maxBuf int) *Publisher {
	if maxBuf <= 0 {
		maxBuf = 1000
	}
	p := &Publisher{
		c:       c,
		channel: c.Key("decisions"),
		ttl:     ttl,
		maxBuf:  maxBuf,
	}

	prev := c.br.OnStateChange
	c.br.OnStateChange = func(name string, from, to breaker.State) {
		if prev != nil {
			prev(name, from, to)
		}
		if to == breaker.StateClosed {
			go p.flush(context.Background())
		}
	}
	return p
}

// Channel returns the Pub/Sub channel name.
func (p *Publisher) Channel() string { return p.channel }

// Publish sends one record. It returns nil when the record was buffered
// because the breaker is open.
func (p *Publisher) Publish(ctx context.Context, symbol string, payload []byte) error {
	err := p.c.do(func() error { return p.write(ctx, symbol, payload) })
	if errors.Is(err, breaker.ErrOpen) {
		p.bufferPublish(symbol, payload)
		return nil
	}
	return err
}

func (p *Publisher) write(ctx context.Context, symbol string, payload []byte) error {
	pipe := p.c.rdb.TxPipeline()
	pipe.Set(ctx, p.c.Key("latest", symbol), payload, p.ttl)
	pipe.Publish(ctx, p.channel, payload)
	_, err := pipe.Exec(ctx)
	return err
}

// Latest returns the cached record for symbol, or nil when none exists.
func (p *Publisher) Latest(ctx context.Context, symbol string) ([]byte, error) {
	var data []byte
	err := p.c.do(func() error {
		var err error
		data, err = p.c.rdb.Get(ctx, p.c.Key("latest", symbol)).Bytes()
		if errors.Is(err, goredis.Nil) {
			data = nil
			return nil
		}
		return err
	})
	return data, err
}

// Subscribe returns a Pub/Sub subscription on the decisions channel.
func (p *Publisher) Subscribe(ctx context.Context) *goredis.PubSub {
	return p.c.rdb.Subscribe(ctx, p.channel)
}

func (p *Publisher) bufferPublish(symbol string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, pendingPublish{symbol: symbol, payload: payload})
	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	flushed := 0
	for _, pp := range toFlush {
		if err := p.write(ctx, pp.symbol, pp.payload); err != nil {
			log.Printf("[redis-publisher] replay failed after %d records: %v", flushed, err)
			break
		}
		flushed++
	}

	log.Printf("[redis-publisher] flushed %d buffered records", flushed)
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered records.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}
