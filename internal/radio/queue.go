package radio

// queue is an unbounded FIFO connecting a producer channel to a consumer
// channel through a slice-backed buffer, so enqueues never block on a slow
// consumer. Go has no unbounded channel primitive; the link layer needs one
// for the serial line stream and both packet queues.
type queue[T any] struct {
	in  chan T
	out chan T
}

func newQueue[T any]() *queue[T] {
	q := &queue[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go q.pump()
	return q
}

func (q *queue[T]) pump() {
	var buf []T
	for {
		if len(buf) == 0 {
			v, ok := <-q.in
			if !ok {
				close(q.out)
				return
			}
			buf = append(buf, v)
		}

		select {
		case v, ok := <-q.in:
			if !ok {
				for _, v := range buf {
					q.out <- v
				}
				close(q.out)
				return
			}
			buf = append(buf, v)
		case q.out <- buf[0]:
			buf = buf[1:]
		}
	}
}

// close stops the pump after the buffered items drain. Only used on shutdown
// paths; producers must not send afterwards.
func (q *queue[T]) close() {
	close(q.in)
}
