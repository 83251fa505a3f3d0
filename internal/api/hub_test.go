package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketHub_PublishReachesAllSubscribers(t *testing.T) {
	hub := NewPacketHub()
	defer hub.Close()

	id1, ch1 := hub.Subscribe()
	defer hub.Unsubscribe(id1)
	id2, ch2 := hub.Subscribe()
	defer hub.Unsubscribe(id2)

	ev := Event{Direction: "rx", RawHex: "0001", Sender: 5}
	hub.Publish(ev)

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, ev, got)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestPacketHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewPacketHub()
	defer hub.Close()

	id, ch := hub.Subscribe()
	defer hub.Unsubscribe(id)

	// overflow the subscriber buffer; Publish must never block
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(ch)+10; i++ {
			hub.Publish(Event{Sender: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestPacketHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewPacketHub()
	defer hub.Close()

	id, ch := hub.Subscribe()
	hub.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// double unsubscribe is a no-op
	hub.Unsubscribe(id)
}

func TestPacketHub_CloseClosesAll(t *testing.T) {
	hub := NewPacketHub()

	_, ch1 := hub.Subscribe()
	_, ch2 := hub.Subscribe()
	hub.Close()

	_, open := <-ch1
	require.False(t, open)
	_, open = <-ch2
	require.False(t, open)

	// a late subscriber gets a closed channel instead of a leak
	_, ch3 := hub.Subscribe()
	_, open = <-ch3
	assert.False(t, open)
}
