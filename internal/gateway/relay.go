package gateway

import (
	"context"
	"encoding/json"
	"log"

	goredis "github.com/go-redis/redis/v8"
)

// Relay forwards records published on a Redis decisions channel to the hub,
// so that every gateway instance streams decisions made by any analyst.
type Relay struct {
	hub *Hub
}

// NewRelay creates a relay feeding hub.
func NewRelay(hub *Hub) *Relay {
	return &Relay{hub: hub}
}

// Run consumes sub until ctx is cancelled or the subscription closes.
func (r *Relay) Run(ctx context.Context, sub *goredis.PubSub) {
	defer sub.Close()
	log.Printf("[gateway] relaying redis decisions")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.Forward([]byte(msg.Payload))
		}
	}
}

// Forward routes one record payload by its symbol field.
func (r *Relay) Forward(payload []byte) {
	var head struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Symbol == "" {
		log.Printf("[gateway] dropping relay payload without symbol")
		return
	}
	r.hub.Publish(head.Symbol, payload)
}
