// Package gateway fans decision records out to WebSocket clients. Every
// message is wrapped in an envelope carrying a global and a per-channel
// sequence number so clients can detect gaps and backfill them from the
// replay buffers.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChannelPrefix prefixes per-symbol decision channels.
const ChannelPrefix = "decisions:"

// Channel returns the stream channel of symbol.
func Channel(symbol string) string { return ChannelPrefix + symbol }

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// Hub manages WebSocket clients, the latest payload per channel and the
// replay buffers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	replayCap   int

	upgrader websocket.Upgrader
	now      func() time.Time

	// OnClients is called with the client count after every connect and
	// disconnect.
	OnClients func(n int)
}

// NewHub creates a hub keeping replayCap envelopes per channel.
func NewHub(replayCap int) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		replayCap:   replayCap,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Publish broadcasts a decision record of symbol. It implements the
// analyst stream sink.
func (h *Hub) Publish(symbol string, payload []byte) {
	h.Broadcast(Channel(symbol), payload)
}

// ServeHTTP upgrades the request to a WebSocket. The optional last_ts query
// parameter limits the initial state to entries newer than it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade failed: %v", err)
		return
	}
	h.register(conn, r.URL.Query().Get("last_ts"))
}

func (h *Hub) register(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	h.notifyClients(count)

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	h.notifyClients(count)
}

func (h *Hub) notifyClients(n int) {
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}

// GetLatestAll returns a snapshot of the latest payload per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// OldestSeq returns the oldest channel_seq still replayable on channel.
func (h *Hub) OldestSeq(channel string) (int64, bool) {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return 0, false
	}
	oldest, _, ok := rb.Bounds()
	return oldest, ok
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
