package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/ha-testbed/harness/internal/domain"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	OperationAdvance         = "advance"
	OperationJumpToNext      = "jump-to-next"
	OperationAdvanceToPreset = "advance-to-preset"
	OperationSetTime         = "set-time"
)

// TimeAdvancedHandler is invoked after every successful clock commit, so dependent
// state (such as credentials whose validity is computed relative to time) can be
// refreshed. A handler error is reported to the caller of the mutation but never
// rolls back the already-committed clock value.
type TimeAdvancedHandler func(newTime time.Time) error

// TimeMachine is the sole authority for mutating simulated time. It validates
// requested mutations, delegates target computation to the calendar and preset
// resolvers, enforces the forward-only invariant, and performs the atomic write to
// the clock store. Exactly one TimeMachine runs per session; mutation calls are
// issued serially by the test code.
//
// Simulated time, once advanced, can never be set to an earlier value for the
// remainder of the session. There is no reset. All mutations are truncated to
// whole-second resolution, since the time-interception mechanism the controller
// drives only supports second granularity.
type TimeMachine struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger

	store     *Store
	location  *time.Location
	sun       domain.SunStateProvider
	metrics   domain.TimeMutationObserver
	wallClock domain.Clock

	// Hooks are invoked in registration order after every successful commit.
	hooks *orderedmap.OrderedMap[string, TimeAdvancedHandler]

	// current is zero until the first mutation commits; until then the session's
	// simulated time equals real time.
	current time.Time
	mutex   sync.Mutex
}

func NewTimeMachine(store *Store, location *time.Location, atom *zap.AtomicLevel) *TimeMachine {
	machine := &TimeMachine{
		store:     store,
		location:  location,
		wallClock: domain.RealClock,
		hooks:     orderedmap.NewOrderedMap[string, TimeAdvancedHandler](),
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(colorable.NewColorableStdout()), atom)
	machine.logger = zap.New(core, zap.Development())
	machine.sugaredLogger = machine.logger.Sugar()

	return machine
}

// SetSunStateProvider supplies the oracle used to resolve sunrise/sunset presets.
func (tm *TimeMachine) SetSunStateProvider(provider domain.SunStateProvider) {
	tm.sun = provider
}

// SetMetricsObserver supplies an optional sink for mutation metrics.
func (tm *TimeMachine) SetMetricsObserver(observer domain.TimeMutationObserver) {
	tm.metrics = observer
}

// SetWallClock substitutes the wall clock used for the session baseline.
func (tm *TimeMachine) SetWallClock(wallClock domain.Clock) {
	tm.wallClock = wallClock
}

// RegisterOnTimeAdvanced registers a named post-mutation hook. Hooks run in
// registration order; re-registering a name replaces the previous handler.
func (tm *TimeMachine) RegisterOnTimeAdvanced(name string, handler TimeAdvancedHandler) {
	tm.hooks.Set(name, handler)
}

// Current returns the current simulated instant. Before the first mutation this is
// real time in the session timezone, truncated to whole seconds.
func (tm *TimeMachine) Current() time.Time {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	return tm.currentLocked()
}

func (tm *TimeMachine) currentLocked() time.Time {
	if tm.current.IsZero() {
		return tm.wallClock.Now().In(tm.location).Truncate(time.Second)
	}

	return tm.current
}

// Advance moves simulated time forward by the given non-negative duration and
// returns the resulting instant. A zero duration is a legal no-op that still
// performs a write (an idempotent visibility refresh) but is not considered a time
// change for invariant-checking purposes. Sub-second components are discarded.
func (tm *TimeMachine) Advance(byDuration time.Duration) (time.Time, error) {
	if byDuration < 0 {
		return time.Time{}, fmt.Errorf("%w: cannot advance time backwards (received %v); simulated time is forward-only", domain.ErrInvalidArgument, byDuration)
	}

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	byDuration = byDuration.Truncate(time.Second)
	current := tm.currentLocked()
	target := current.Add(byDuration)

	tm.sugaredLogger.Debugf("Advancing simulated time by %v: %v -> %v.", byDuration, current, target)
	return tm.commit(OperationAdvance, target, byDuration == 0)
}

// JumpToNext moves simulated time forward to the next instant satisfying the given
// calendar constraints and returns it.
func (tm *TimeMachine) JumpToNext(constraints Constraints) (time.Time, error) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	current := tm.currentLocked()
	target, err := constraints.Resolve(current)
	if err != nil {
		return time.Time{}, err
	}

	// The resolver guarantees a strictly-future instant. A violation here is a
	// resolver bug, not a user error.
	if !target.After(current) {
		panic(fmt.Sprintf("calendar resolver produced non-future instant %v for %v at current time %v", target, constraints, current))
	}

	tm.sugaredLogger.Debugf("Jumping simulated time to next %v: %v -> %v.", constraints, current, target)
	return tm.commit(OperationJumpToNext, target, false)
}

// AdvanceToPreset moves simulated time forward to the next occurrence of the given
// astronomical event, shifted by the given signed offset, and returns the resulting
// instant. The next occurrence is looked up live from the application under test.
func (tm *TimeMachine) AdvanceToPreset(preset domain.Preset, offset time.Duration) (time.Time, error) {
	if _, err := domain.ParsePreset(preset.String()); err != nil {
		return time.Time{}, err
	}

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	resolver := NewPresetResolver(tm.sun, tm.location)
	raw, target, err := resolver.Resolve(preset, offset)
	if err != nil {
		return time.Time{}, err
	}

	current := tm.currentLocked()
	if !target.After(current) {
		return time.Time{}, &domain.NonMonotonicTimeError{
			Operation: OperationAdvanceToPreset,
			Current:   current,
			Raw:       raw,
			Offset:    offset.Truncate(time.Second),
			Target:    target,
		}
	}

	tm.sugaredLogger.Debugf("Advancing simulated time to %s%+v: %v -> %v (raw %s at %v).", preset, offset, current, target, preset, raw)
	return tm.commit(OperationAdvanceToPreset, target, false)
}

// SetTime pins simulated time to the given absolute instant. The instant must be
// strictly later than the current simulated time: the forward-only invariant applies
// to absolute sets just as it does to relative advancement.
func (tm *TimeMachine) SetTime(t time.Time) (time.Time, error) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	target := t.In(tm.location).Truncate(time.Second)
	current := tm.currentLocked()
	if !target.After(current) {
		return time.Time{}, &domain.NonMonotonicTimeError{
			Operation: OperationSetTime,
			Current:   current,
			Target:    target,
		}
	}

	tm.sugaredLogger.Debugf("Setting simulated time: %v -> %v.", current, target)
	return tm.commit(OperationSetTime, target, false)
}

// SetTimeOfDay pins simulated time to the given time on the current simulated date,
// subject to the forward-only invariant.
func (tm *TimeMachine) SetTimeOfDay(hour, minute, second int) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: %02d:%02d:%02d is not a valid time of day", domain.ErrInvalidArgument, hour, minute, second)
	}

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	current := tm.currentLocked()
	target := time.Date(current.Year(), current.Month(), current.Day(), hour, minute, second, 0, tm.location)
	if !target.After(current) {
		return time.Time{}, &domain.NonMonotonicTimeError{
			Operation: OperationSetTime,
			Current:   current,
			Target:    target,
		}
	}

	tm.sugaredLogger.Debugf("Setting simulated time of day: %v -> %v.", current, target)
	return tm.commit(OperationSetTime, target, false)
}

// commit is the single place the forward-only invariant is enforced and the clock
// store is written. The clock commit is durable the instant the atomic write
// succeeds; a subsequent hook failure is surfaced to the caller without rolling the
// committed value back.
//
// Callers must hold tm.mutex.
func (tm *TimeMachine) commit(operation string, target time.Time, refreshOnly bool) (time.Time, error) {
	target = target.Truncate(time.Second)
	current := tm.currentLocked()

	if !refreshOnly && !target.After(current) {
		return time.Time{}, &domain.NonMonotonicTimeError{
			Operation: operation,
			Current:   current,
			Target:    target,
		}
	}

	if err := tm.store.WriteInstant(target); err != nil {
		return time.Time{}, fmt.Errorf("operation \"%s\" failed to commit %v: %w", operation, target, err)
	}

	tm.current = target

	if tm.metrics != nil {
		tm.metrics.ObserveClockStoreWrite()
		tm.metrics.ObserveTimeMutation(operation, target)
	}

	for el := tm.hooks.Front(); el != nil; el = el.Next() {
		if err := el.Value(target); err != nil {
			tm.logger.Warn("Post-mutation hook failed after committed time advance.",
				zap.String("hook", el.Key), zap.Time("new_time", target), zap.Error(err))
			return target, fmt.Errorf("time advanced to %v, but post-mutation hook \"%s\" failed: %w", target, el.Key, err)
		}
	}

	return target, nil
}
