package domain

import (
	"fmt"
	"strings"
	"time"
)

// Clock abstracts wall-clock access. The time machine uses it to establish the
// session baseline (simulated time equals real time until the first mutation);
// substituting a fixed clock makes that baseline deterministic in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the wall clock used outside of tests.
var RealClock Clock = realClock{}

// Preset identifies an astronomical event used as a relative anchor for time advancement.
type Preset string

const (
	PresetSunrise Preset = "sunrise"
	PresetSunset  Preset = "sunset"
)

// ParsePreset converts a case-insensitive preset name into a Preset.
func ParsePreset(name string) (Preset, error) {
	switch Preset(strings.ToLower(name)) {
	case PresetSunrise:
		return PresetSunrise, nil
	case PresetSunset:
		return PresetSunset, nil
	default:
		return "", fmt.Errorf("%w: unknown preset \"%s\" (must be \"sunrise\" or \"sunset\")", ErrInvalidArgument, name)
	}
}

func (p Preset) String() string {
	return string(p)
}

// SunStateProvider exposes the next occurrence of a sun event as currently known by
// the application under test. The returned value is the raw timestamp string reported
// by the application (ISO 8601), computed against its own, possibly already-advanced,
// simulated clock. Implementations perform no astronomical computation of their own.
type SunStateProvider interface {
	NextSunEvent(preset Preset) (string, error)
}

// TimeMutationObserver receives a notification for every committed clock mutation.
type TimeMutationObserver interface {
	// ObserveTimeMutation records that a mutation of the given operation kind
	// committed the given target instant.
	ObserveTimeMutation(operation string, target time.Time)

	// ObserveClockStoreWrite records a successful write of the clock store file.
	ObserveClockStoreWrite()
}

// MetricsConsumer aggregates the metric sinks exposed by the harness.
type MetricsConsumer interface {
	TimeMutationObserver

	// ObserveApiRequest records an HTTP request issued against the application
	// under test, along with the response status code.
	ObserveApiRequest(method string, statusCode int)

	// ObserveEntityStateWaitMillis records how long an entity-state assertion
	// polled before it was satisfied.
	ObserveEntityStateWaitMillis(latencyMillis int64)
}
