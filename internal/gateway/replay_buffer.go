package gateway

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte // envelope JSON
}

// ReplayBuffer is a ring of the most recent envelopes of one channel, used
// to backfill clients that noticed a channel_seq gap.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	size int
	pos  int
	full bool
}

// NewReplayBuffer creates a replay buffer holding capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity), size: capacity}
}

// Push stores a copy of data, overwriting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: cp}
	rb.pos = (rb.pos + 1) % rb.size
	if rb.pos == 0 {
		rb.full = true
	}
}

// Range returns the entries with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	for i := 0; i < rb.len(); i++ {
		if e := rb.buf[rb.index(i)]; e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Bounds returns the oldest and newest buffered seq; ok is false when empty.
func (rb *ReplayBuffer) Bounds() (oldest, newest int64, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	n := rb.len()
	if n == 0 {
		return 0, 0, false
	}
	return rb.buf[rb.index(0)].Seq, rb.buf[rb.index(n-1)].Seq, true
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return rb.size
	}
	return rb.pos
}

// index maps a logical position (0 = oldest) to the slot in buf.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.size
	}
	return logical
}
