package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed symbols; empty means everything.
	subMu sync.RWMutex
	subs  map[string]bool
}

// clientMsg is any message a client may send.
//
//	{"type":"subscribe","symbols":["EURUSD"]}
//	{"type":"unsubscribe","symbols":["EURUSD"]}
//	{"type":"replay","channel":"decisions:EURUSD","from_seq":3,"to_seq":7}
//	{"ping":1718000000000}
type clientMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Channel string   `json:"channel"`
	FromSeq int64    `json:"from_seq"`
	ToSeq   int64    `json:"to_seq"`
	Ping    int64    `json:"ping"`
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		envelope, _ := json.Marshal(map[string]any{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		c.enqueue(envelope)
	}
}

func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg clientMsg) {
	switch msg.Type {
	case "subscribe":
		c.subMu.Lock()
		if c.subs == nil {
			c.subs = make(map[string]bool)
		}
		for _, s := range msg.Symbols {
			c.subs[s] = true
		}
		c.subMu.Unlock()
	case "unsubscribe":
		c.subMu.Lock()
		for _, s := range msg.Symbols {
			delete(c.subs, s)
		}
		c.subMu.Unlock()
	case "replay":
		if oldest, ok := c.hub.OldestSeq(msg.Channel); ok && msg.FromSeq < oldest {
			gap, _ := json.Marshal(map[string]any{
				"type":       "replay_gap",
				"channel":    msg.Channel,
				"oldest_seq": oldest,
			})
			c.enqueue(gap)
		}
		for _, env := range c.hub.GetReplayRange(msg.Channel, msg.FromSeq, msg.ToSeq) {
			c.enqueue(env)
		}
	default:
		if msg.Ping > 0 {
			pong, _ := json.Marshal(map[string]any{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.enqueue(pong)
		}
	}
}

// matchesChannel reports whether the client wants messages on channel.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	if len(channel) <= len(ChannelPrefix) || channel[:len(ChannelPrefix)] != ChannelPrefix {
		return true
	}
	return c.subs[channel[len(ChannelPrefix):]]
}
