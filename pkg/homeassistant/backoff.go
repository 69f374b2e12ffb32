package homeassistant

import (
	"math"
	"math/rand"
	"time"
)

// ExponentialBackoff computes the sleep interval between polling attempts, such as
// when waiting for an entity to reach an expected state.
type ExponentialBackoff struct {
	// BaseDuration is the initial duration / sleep interval.
	BaseDuration time.Duration

	// BaseDuration is multiplied by Multiplier each subsequent iteration.
	//
	// Multiplier should not be negative.
	Multiplier float64

	// Jitter defines the upper bound of a random additive quantity, in seconds,
	// added to the duration. The quantity is chosen uniformly at random from 0 - Jitter.
	Jitter float64

	// NumAttempts is the current number of attempts.
	NumAttempts int

	// MaxDuration is the maximum duration.
	MaxDuration time.Duration
}

// Delay returns the sleep interval for the current attempt and increments the
// attempt counter.
func (e *ExponentialBackoff) Delay() time.Duration {
	delay := time.Duration(float64(e.BaseDuration) * math.Pow(e.Multiplier, float64(e.NumAttempts)))
	delay += time.Duration(rand.Float64() * e.Jitter * float64(time.Second))

	if e.MaxDuration > 0 && delay > e.MaxDuration {
		delay = e.MaxDuration
	}

	e.NumAttempts += 1
	return delay
}
