// Package radio drives a half-duplex LoRa radio over a line-oriented serial
// command protocol, turning it into a bidirectional packet pipe. One Link
// exists per physical radio. A reader goroutine republishes every serial line
// onto an internal queue; the arbitration loop owns the radio exclusively,
// sharing the single channel between transmit and receive under a rate
// limiter so the node is never starved of listening time.
package radio

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Transport is the byte-stream endpoint the radio is reached through.
// ok=false from ReadLine signals a transient end-of-stream to be retried,
// not a failure.
type Transport interface {
	WriteLine(line string) error
	ReadLine() (line string, ok bool, err error)
}

// Link owns the hardware session for one radio.
type Link struct {
	tr      Transport
	limiter *TxLimiter
	log     zerolog.Logger

	lines *queue[string]
	rxq   *queue[[]byte]
	txq   *queue[[]byte]

	// receiving mirrors the physical radio mode. Only the arbitration loop
	// goroutine touches it, which is the entire concurrency discipline: no
	// other goroutine may issue radio commands.
	receiving bool

	settle time.Duration
	idle   time.Duration
}

// New creates the link and starts its line reader. The logger is the link's
// observability collaborator; pass a disabled logger to mute it.
func New(tr Transport, limiter *TxLimiter, logger zerolog.Logger) *Link {
	l := &Link{
		tr:      tr,
		limiter: limiter,
		log:     logger,
		lines:   newQueue[string](),
		rxq:     newQueue[[]byte](),
		txq:     newQueue[[]byte](),
		settle:  time.Second,
		idle:    time.Millisecond,
	}
	go l.readLoop()
	return l
}

// Packets returns the stream of decoded inbound packets.
func (l *Link) Packets() <-chan []byte {
	return l.rxq.out
}

// Send queues an already frame-encoded packet for transmission. It never
// blocks on radio availability.
func (l *Link) Send(frame []byte) {
	l.txq.in <- frame
}

// readLoop runs for the life of the process, republishing each serial line
// onto the line queue. End-of-stream is transient; a hard read error kills
// the link, which a caller blocked on the queue observes as
// ErrTransportClosed.
func (l *Link) readLoop() {
	for {
		line, ok, err := l.tr.ReadLine()
		if err != nil {
			l.log.Error().Err(err).Msg("serial read failed, radio link is down")
			l.lines.close()
			return
		}
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		l.lines.in <- line
	}
}

// Run is the arbitration loop. It must be the only goroutine issuing radio
// commands; it runs until the context is cancelled or the radio fails.
func (l *Link) Run(ctx context.Context) error {
	if err := l.rxStart(); err != nil {
		return err
	}
	l.receiving = true
	l.log.Info().Msg("radio link running")

	var deferred []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		idle := true

		if deferred != nil {
			// a rate-limited frame is retried before anything newer
			if l.limiter.Allow() {
				if err := l.beginTransmit(); err != nil {
					return err
				}
				if err := l.transmit(deferred); err != nil {
					return err
				}
				deferred = nil
				if err := l.beginReceive(); err != nil {
					return err
				}
				idle = false
			}
		} else {
			select {
			case frame := <-l.txq.out:
				idle = false
				if !l.limiter.Allow() {
					deferred = frame
					l.log.Debug().Msg("transmission rate limited, frame deferred")
					if err := l.beginReceive(); err != nil {
						return err
					}
					break
				}
				if err := l.beginTransmit(); err != nil {
					return err
				}
				if err := l.transmit(frame); err != nil {
					return err
				}
				// greedy burst: keep draining the queue while the budget
				// holds, then yield the channel back to receive
			burst:
				for {
					select {
					case next := <-l.txq.out:
						if !l.limiter.Allow() {
							deferred = next
							break burst
						}
						if err := l.transmit(next); err != nil {
							return err
						}
					default:
						break burst
					}
				}
				if err := l.beginReceive(); err != nil {
					return err
				}
			default:
				if !l.receiving {
					if err := l.beginReceive(); err != nil {
						return err
					}
					idle = false
				}
			}
		}

		// the line queue is only valid to poll while the radio is listening
		if l.receiving {
			select {
			case line, ok := <-l.lines.out:
				if !ok {
					return ErrTransportClosed
				}
				if err := l.onLine(line); err != nil {
					l.log.Warn().Err(err).Str("line", line).Msg("dropping undecodable packet")
				}
				// any line ends the receive window; re-arm
				if err := l.rxStart(); err != nil {
					return err
				}
				idle = false
			default:
			}
		}

		if idle {
			time.Sleep(l.idle)
		}
	}
}

func (l *Link) beginTransmit() error {
	if l.receiving {
		if err := l.rxStop(); err != nil {
			return err
		}
		l.receiving = false
	}
	return nil
}

func (l *Link) beginReceive() error {
	if !l.receiving {
		if err := l.rxStart(); err != nil {
			return err
		}
		l.receiving = true
	}
	return nil
}
