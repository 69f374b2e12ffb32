package clock

import (
	"fmt"
	"time"

	"github.com/ha-testbed/harness/internal/domain"
)

// PresetResolver translates a symbolic sunrise/sunset preset into a concrete target
// instant using the next-occurrence value reported by the application under test.
// It performs no astronomical computation of its own: recomputing solar position
// independently would not be guaranteed to agree with the value the application
// observes, defeating the purpose of the assertion.
type PresetResolver struct {
	provider domain.SunStateProvider
	location *time.Location
}

func NewPresetResolver(provider domain.SunStateProvider, location *time.Location) *PresetResolver {
	return &PresetResolver{
		provider: provider,
		location: location,
	}
}

// Resolve returns both the raw preset instant reported by the oracle and the
// offset-adjusted target, truncated to whole seconds.
func (r *PresetResolver) Resolve(preset domain.Preset, offset time.Duration) (raw time.Time, target time.Time, err error) {
	if r.provider == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: cannot resolve preset \"%s\" without a sun-state provider", domain.ErrConfiguration, preset)
	}

	value, err := r.provider.NextSunEvent(preset)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: lookup of next \"%s\" failed: %s", domain.ErrPresetResolution, preset, err)
	}

	raw, err = time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: could not parse next \"%s\" value \"%s\": %s", domain.ErrPresetResolution, preset, value, err)
	}

	raw = raw.In(r.location).Truncate(time.Second)
	target = raw.Add(offset.Truncate(time.Second))

	return raw, target, nil
}
