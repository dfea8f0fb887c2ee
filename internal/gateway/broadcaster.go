package gateway

import (
	"strconv"
	"time"
)

// Broadcast stores data as the latest payload of channel, appends its
// envelope to the channel's replay buffer and sends it to every client
// subscribed to the channel. Slow clients whose queue is full miss the
// message and must backfill.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	seq := h.seq

	rb, exists := h.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(h.replayCap)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// buildEnvelope writes {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}
// by hand; data is already JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
