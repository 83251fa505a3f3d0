package radio

import (
	"time"

	"golang.org/x/time/rate"
)

// TxLimiter is the leaky-bucket budget on transmissions. The radio is
// half-duplex on a shared channel: capping the number of transmit slots per
// window guarantees a minimum fraction of time spent listening.
type TxLimiter struct {
	lim *rate.Limiter
}

// NewTxLimiter permits at most burst transmissions per window, with tokens
// replenished continuously across the window.
func NewTxLimiter(window time.Duration, burst int) *TxLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TxLimiter{
		lim: rate.NewLimiter(rate.Every(window/time.Duration(burst)), burst),
	}
}

// Allow consumes a token if one is available. A failed check has no side
// effect.
func (t *TxLimiter) Allow() bool {
	return t.lim.Allow()
}
