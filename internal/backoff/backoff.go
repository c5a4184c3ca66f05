// Package backoff computes reconnect delays for failed device connections.
//
// Policies are pure: Delay depends only on the attempt number, so callers
// own all scheduling state and policies can be shared between devices.
package backoff

import (
	"math/rand"
	"time"
)

// Policy computes the delay before a connect attempt.
//
// attempt is the number of consecutive failures so far. Delay(0) must
// return 0 so the first attempt runs immediately.
type Policy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay with each failed attempt, capped at Max.
//
// With Jitter enabled each delay is scaled by a random factor in [0.5, 1.0)
// so that a fleet of devices losing a shared upstream does not reconnect
// in lockstep.
type Exponential struct {
	// Base is the delay after the first failure.
	Base time.Duration

	// Max caps the delay. Zero means no cap.
	Max time.Duration

	// Jitter randomises each delay within [0.5d, d).
	Jitter bool
}

// Delay returns the delay before the given attempt.
//
// Parameters:
//   - attempt: consecutive failures so far; 0 yields no delay
//
// Returns:
//   - time.Duration: how long to wait before connecting
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 || e.Base <= 0 {
		return 0
	}

	d := e.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			d = e.Max
			break
		}
		if d < 0 {
			// Overflow from repeated doubling.
			d = e.Max
			if d <= 0 {
				d = e.Base
			}
			break
		}
	}
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}

	if e.Jitter {
		// Scale into [0.5d, d).
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}

	return d
}

// Constant returns the same delay for every attempt after the first.
type Constant struct {
	Interval time.Duration
}

// Delay returns Interval for any attempt after the first, 0 otherwise.
func (c Constant) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return c.Interval
}
