package clock_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ha-testbed/harness/internal/domain"
	"github.com/ha-testbed/harness/internal/harness/clock"
	"github.com/ha-testbed/harness/internal/mock_domain"
)

var _ = Describe("Time Machine", func() {
	var (
		mockCtrl *gomock.Controller
		atom     zap.AtomicLevel
		store    *clock.Store
		machine  *clock.TimeMachine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		atom = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		store = clock.NewStore(filepath.Join(GinkgoT().TempDir(), ".faketime"), time.UTC, &atom)
		machine = clock.NewTimeMachine(store, time.UTC, &atom)

		// Fix the session baseline so the literal instants below are always in
		// the future relative to it.
		machine.SetWallClock(fixedClock{now: instant("2026-01-01T00:00:00")})
	})

	// pin moves the machine onto a known simulated instant so subsequent
	// assertions are deterministic.
	pin := func(t time.Time) {
		result, err := machine.SetTime(t)
		Expect(err).To(BeNil())
		Expect(result.Equal(t)).To(BeTrue())
	}

	Describe("Advancing by a duration", func() {
		It("Will advance by the requested duration", func() {
			pin(instant("2026-01-05T09:00:00"))

			result, err := machine.Advance(time.Hour)
			Expect(err).To(BeNil())
			Expect(result.Equal(instant("2026-01-05T10:00:00"))).To(BeTrue())
			Expect(machine.Current().Equal(result)).To(BeTrue())
		})

		It("Will reject a negative duration without writing", func() {
			pin(instant("2026-01-05T09:00:00"))

			_, err := machine.Advance(-5 * time.Second)
			Expect(err).To(MatchError(domain.ErrInvalidArgument))
			Expect(machine.Current().Equal(instant("2026-01-05T09:00:00"))).To(BeTrue())

			record, err := store.Read()
			Expect(err).To(BeNil())
			Expect(record.Instant.Equal(instant("2026-01-05T09:00:00"))).To(BeTrue())
		})

		It("Will accept a zero duration as a visibility refresh", func() {
			pin(instant("2026-01-05T09:00:00"))

			result, err := machine.Advance(0)
			Expect(err).To(BeNil())
			Expect(result.Equal(instant("2026-01-05T09:00:00"))).To(BeTrue())
			Expect(machine.Current().Equal(instant("2026-01-05T09:00:00"))).To(BeTrue())
		})

		It("Will discard sub-second components rather than round them", func() {
			pin(instant("2026-01-05T09:00:00"))

			result, err := machine.Advance(1900 * time.Millisecond)
			Expect(err).To(BeNil())
			Expect(result.Equal(instant("2026-01-05T09:00:01"))).To(BeTrue())
		})

		It("Will produce strictly increasing instants across successive mutations", func() {
			pin(instant("2026-01-05T09:00:00"))

			var results []time.Time
			for _, d := range []time.Duration{time.Second, time.Minute, time.Hour, 24 * time.Hour} {
				result, err := machine.Advance(d)
				Expect(err).To(BeNil())
				results = append(results, result)
			}

			for i := 1; i < len(results); i++ {
				Expect(results[i].After(results[i-1])).To(BeTrue())
			}
		})
	})

	Describe("Jumping to a calendar constraint", func() {
		It("Will commit the resolver's target", func() {
			pin(instant("2026-01-31T14:30:00"))

			result, err := machine.JumpToNext(clock.Constraints{
				DayOfMonth: clock.Field(1),
				Weekday:    clock.Weekday(time.Monday),
				Hour:       clock.Field(10),
			})
			Expect(err).To(BeNil())
			Expect(result.Equal(instant("2026-02-02T10:30:00"))).To(BeTrue())

			record, err := store.Read()
			Expect(err).To(BeNil())
			Expect(record.Instant.Equal(result)).To(BeTrue())
		})

		It("Will surface invalid constraint fields without writing", func() {
			pin(instant("2026-01-05T09:00:00"))

			_, err := machine.JumpToNext(clock.Constraints{Hour: clock.Field(24)})
			Expect(err).To(MatchError(domain.ErrInvalidArgument))
			Expect(machine.Current().Equal(instant("2026-01-05T09:00:00"))).To(BeTrue())
		})
	})

	Describe("Advancing to an astronomical preset", func() {
		It("Will advance to the oracle's next occurrence plus the offset", func() {
			pin(instant("2026-06-15T20:00:00"))

			provider := mock_domain.NewMockSunStateProvider(mockCtrl)
			provider.EXPECT().NextSunEvent(domain.PresetSunrise).Return("2026-06-16T04:45:00Z", nil)
			machine.SetSunStateProvider(provider)

			result, err := machine.AdvanceToPreset(domain.PresetSunrise, 30*time.Minute)
			Expect(err).To(BeNil())
			Expect(result.Equal(instant("2026-06-16T05:15:00"))).To(BeTrue())
		})

		It("Will fail with full diagnostics when the oracle reports a passed occurrence", func() {
			pin(instant("2026-03-01T08:00:00"))

			provider := mock_domain.NewMockSunStateProvider(mockCtrl)
			provider.EXPECT().NextSunEvent(domain.PresetSunset).Return("2026-03-01T06:00:00Z", nil)
			machine.SetSunStateProvider(provider)

			_, err := machine.AdvanceToPreset(domain.PresetSunset, 0)
			Expect(err).To(MatchError(domain.ErrNonMonotonicTime))

			var nonMonotonic *domain.NonMonotonicTimeError
			Expect(errors.As(err, &nonMonotonic)).To(BeTrue())
			Expect(nonMonotonic.Current.Equal(instant("2026-03-01T08:00:00"))).To(BeTrue())
			Expect(nonMonotonic.Raw.Equal(instant("2026-03-01T06:00:00"))).To(BeTrue())
			Expect(nonMonotonic.Offset).To(Equal(time.Duration(0)))
			Expect(nonMonotonic.Target.Equal(instant("2026-03-01T06:00:00"))).To(BeTrue())

			Expect(machine.Current().Equal(instant("2026-03-01T08:00:00"))).To(BeTrue())
		})

		It("Will fail when a large negative offset places the target in the past", func() {
			pin(instant("2026-06-15T20:00:00"))

			provider := mock_domain.NewMockSunStateProvider(mockCtrl)
			provider.EXPECT().NextSunEvent(domain.PresetSunrise).Return("2026-06-16T04:45:00Z", nil)
			machine.SetSunStateProvider(provider)

			_, err := machine.AdvanceToPreset(domain.PresetSunrise, -24*time.Hour)
			Expect(err).To(MatchError(domain.ErrNonMonotonicTime))

			var nonMonotonic *domain.NonMonotonicTimeError
			Expect(errors.As(err, &nonMonotonic)).To(BeTrue())
			Expect(nonMonotonic.Raw.Equal(instant("2026-06-16T04:45:00"))).To(BeTrue())
			Expect(nonMonotonic.Offset).To(Equal(-24 * time.Hour))
		})

		It("Will fail when no sun-state provider is configured", func() {
			_, err := machine.AdvanceToPreset(domain.PresetSunrise, 0)
			Expect(err).To(MatchError(domain.ErrConfiguration))
		})

		It("Will fail when the oracle's value cannot be parsed", func() {
			provider := mock_domain.NewMockSunStateProvider(mockCtrl)
			provider.EXPECT().NextSunEvent(domain.PresetSunset).Return("not-a-timestamp", nil)
			machine.SetSunStateProvider(provider)

			_, err := machine.AdvanceToPreset(domain.PresetSunset, 0)
			Expect(err).To(MatchError(domain.ErrPresetResolution))
		})

		It("Will reject an unknown preset before consulting the oracle", func() {
			_, err := machine.AdvanceToPreset(domain.Preset("noon"), 0)
			Expect(err).To(MatchError(domain.ErrInvalidArgument))
		})
	})

	Describe("Setting an absolute time", func() {
		It("Will refuse to move backwards", func() {
			pin(instant("2026-06-15T20:00:00"))

			_, err := machine.SetTime(instant("2026-06-15T19:00:00"))
			Expect(err).To(MatchError(domain.ErrNonMonotonicTime))
			Expect(machine.Current().Equal(instant("2026-06-15T20:00:00"))).To(BeTrue())
		})

		It("Will set a time of day on the current simulated date", func() {
			pin(instant("2026-06-15T07:00:00"))

			result, err := machine.SetTimeOfDay(9, 30, 0)
			Expect(err).To(BeNil())
			Expect(result.Equal(instant("2026-06-15T09:30:00"))).To(BeTrue())
		})

		It("Will refuse a time of day that has already passed today", func() {
			pin(instant("2026-06-15T20:00:00"))

			_, err := machine.SetTimeOfDay(9, 30, 0)
			Expect(err).To(MatchError(domain.ErrNonMonotonicTime))
		})
	})

	Describe("Post-mutation hooks", func() {
		It("Will invoke hooks in registration order after every commit", func() {
			var invocations []string
			machine.RegisterOnTimeAdvanced("first", func(newTime time.Time) error {
				invocations = append(invocations, "first")
				return nil
			})
			machine.RegisterOnTimeAdvanced("second", func(newTime time.Time) error {
				invocations = append(invocations, "second")
				return nil
			})

			pin(instant("2026-01-05T09:00:00"))
			Expect(invocations).To(Equal([]string{"first", "second"}))

			_, err := machine.Advance(time.Minute)
			Expect(err).To(BeNil())
			Expect(invocations).To(Equal([]string{"first", "second", "first", "second"}))
		})

		It("Will report a hook failure without rolling back the committed value", func() {
			pin(instant("2026-01-05T09:00:00"))

			machine.RegisterOnTimeAdvanced("failing", func(newTime time.Time) error {
				return fmt.Errorf("token refresh failed")
			})

			result, err := machine.Advance(time.Hour)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failing"))
			Expect(result.Equal(instant("2026-01-05T10:00:00"))).To(BeTrue())

			// The commit is durable: both the in-memory clock and the store moved.
			Expect(machine.Current().Equal(instant("2026-01-05T10:00:00"))).To(BeTrue())
			record, readErr := store.Read()
			Expect(readErr).To(BeNil())
			Expect(record.Instant.Equal(instant("2026-01-05T10:00:00"))).To(BeTrue())
		})

		It("Will invoke hooks for a zero-duration refresh", func() {
			pin(instant("2026-01-05T09:00:00"))

			invoked := 0
			machine.RegisterOnTimeAdvanced("counter", func(newTime time.Time) error {
				invoked++
				return nil
			})

			_, err := machine.Advance(0)
			Expect(err).To(BeNil())
			Expect(invoked).To(Equal(1))
		})
	})

	Describe("Metrics", func() {
		It("Will record each committed mutation", func() {
			observer := mock_domain.NewMockTimeMutationObserver(mockCtrl)
			observer.EXPECT().ObserveClockStoreWrite().Times(2)
			observer.EXPECT().ObserveTimeMutation(clock.OperationSetTime, gomock.Any()).Times(1)
			observer.EXPECT().ObserveTimeMutation(clock.OperationAdvance, gomock.Any()).Times(1)
			machine.SetMetricsObserver(observer)

			pin(instant("2026-01-05T09:00:00"))

			_, err := machine.Advance(time.Minute)
			Expect(err).To(BeNil())
		})
	})
})
