package api

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Event is one frame crossing the radio, as published to tail subscribers.
type Event struct {
	Direction   string    `json:"direction"`
	RawHex      string    `json:"raw_hex"`
	MessageType int       `json:"message_type"`
	Sender      int       `json:"sender"`
	Time        time.Time `json:"time"`
}

// PacketHub fans packet events out to any number of subscribers. A subscriber
// that falls behind misses events rather than blocking the publisher.
type PacketHub struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
	closed      bool
}

func NewPacketHub() *PacketHub {
	return &PacketHub{
		subscribers: make(map[string]chan Event),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving packet events. The returned
// ID identifies the channel when unsubscribing.
func (h *PacketHub) Subscribe() (string, chan Event) {
	id := randomID()
	ch := make(chan Event, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *PacketHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish delivers an event to every subscriber that has room for it.
func (h *PacketHub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// skip a full subscriber so as not to block the radio loop
		}
	}
}

// Close closes every subscriber channel. Further publishes are dropped.
func (h *PacketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
