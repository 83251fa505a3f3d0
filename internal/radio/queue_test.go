package radio

import (
	"testing"
	"time"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := newQueue[int]()
	defer q.close()

	const n = 1000
	for i := 0; i < n; i++ {
		q.in <- i
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-q.out:
			if got != i {
				t.Fatalf("dequeued %d, want %d", got, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for element %d", i)
		}
	}
}

func TestQueue_EnqueueNeverBlocks(t *testing.T) {
	q := newQueue[int]()
	defer q.close()

	// no consumer at all; a bounded channel would deadlock here
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.in <- i
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue blocked without a consumer")
	}
}

func TestQueue_CloseDrainsBuffered(t *testing.T) {
	q := newQueue[string]()
	q.in <- "a"
	q.in <- "b"
	q.close()

	var got []string
	for v := range q.out {
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("drained %v, want [a b]", got)
	}
}
