// Package retry computes exponential backoff delays.  The acceptor uses
// it to pace re-arming after consecutive accept failures so a persistent
// condition such as descriptor exhaustion never turns the accept loop
// into a busy spin.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with optional jitter.  The
// zero value is usable and yields 5ms doubling up to 1s.
type Backoff struct {
	// InitialDelay is the delay after the first failure (default 5ms).
	InitialDelay time.Duration
	// MaxDelay caps the delay (default 1s).
	MaxDelay time.Duration
	// Multiplier grows the delay per failure (default 2.0).
	Multiplier float64
	// Jitter adds ±25% randomisation.
	Jitter bool
}

// AcceptBackoff returns the pacing used by the acceptor.  Jitter keeps
// servers sharing a descriptor limit from retrying in lockstep.
func AcceptBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Delay returns the wait before the next attempt after the given
// number of consecutive failures.  failures <= 0 yields no delay.
func (b *Backoff) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	initial := b.InitialDelay
	if initial <= 0 {
		initial = 5 * time.Millisecond
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Second
	}

	d := float64(initial) * math.Pow(multiplier, float64(failures-1))
	if d > float64(maxDelay) || math.IsInf(d, 0) {
		d = float64(maxDelay)
	}
	delay := time.Duration(d)
	if b.Jitter {
		delay = addJitter(delay)
	}
	return delay
}

// addJitter adds ±25% randomisation to a duration.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	result := float64(d) + delta
	return time.Duration(math.Max(result, float64(time.Millisecond)))
}
