package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidArgument indicates a malformed input, such as a negative duration,
	// an out-of-range calendar field, or an unknown preset name. Always a caller bug.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNonMonotonicTime indicates that a requested mutation would move simulated
	// time backwards (or leave it in place). Simulated time only moves forward.
	ErrNonMonotonicTime = errors.New("simulated time may only move forward")

	// ErrConfiguration indicates that a required collaborator was not supplied,
	// such as the sun-state lookup needed to resolve sunrise/sunset presets.
	ErrConfiguration = errors.New("required collaborator is not configured")

	// ErrPresetResolution indicates that the oracle's response for a sunrise/sunset
	// preset could not be parsed or was otherwise unusable.
	ErrPresetResolution = errors.New("failed to resolve astronomical preset")

	// ErrStoreWrite indicates that the atomic write to the clock store failed.
	ErrStoreWrite = errors.New("failed to write clock store")
)

// NonMonotonicTimeError is returned when a computed target instant is not strictly
// later than the current simulated instant. It carries enough context for a test
// author to understand why the requested point was not in the future.
type NonMonotonicTimeError struct {
	// Operation is the name of the mutation that was attempted (e.g., "advance-to-preset").
	Operation string

	// Current is the simulated instant at the time of the attempted mutation.
	Current time.Time

	// Raw is the unadjusted instant the operation resolved to before any offset
	// was applied. Zero if the operation had no intermediate resolution step.
	Raw time.Time

	// Offset is the signed duration that was applied to Raw, if any.
	Offset time.Duration

	// Target is the instant the mutation ultimately attempted to commit.
	Target time.Time
}

func (e *NonMonotonicTimeError) Error() string {
	if !e.Raw.IsZero() {
		return fmt.Sprintf("%s: operation \"%s\" computed target %v (raw=%v, offset=%v), but the current simulated time is already %v",
			ErrNonMonotonicTime.Error(), e.Operation, e.Target, e.Raw, e.Offset, e.Current)
	}

	return fmt.Sprintf("%s: operation \"%s\" computed target %v, but the current simulated time is already %v",
		ErrNonMonotonicTime.Error(), e.Operation, e.Target, e.Current)
}

func (e *NonMonotonicTimeError) Unwrap() error {
	return ErrNonMonotonicTime
}
