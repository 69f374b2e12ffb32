package clock_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ha-testbed/harness/internal/domain"
	"github.com/ha-testbed/harness/internal/harness/clock"
)

var _ = Describe("Calendar Resolver", func() {
	resolve := func(current time.Time, constraints clock.Constraints) time.Time {
		result, err := constraints.Resolve(current)
		Expect(err).To(BeNil())
		return result
	}

	It("Will resolve the documented day-of-month + weekday + hour example", func() {
		// Saturday, January 31st. Day 1 pushes into February; Feb 1, 2026 is a
		// Sunday, so the next Monday is Feb 2; hour is set to 10 with minute and
		// second carried from the input.
		current := instant("2026-01-31T14:30:00")
		result := resolve(current, clock.Constraints{
			DayOfMonth: clock.Field(1),
			Weekday:    clock.Weekday(time.Monday),
			Hour:       clock.Field(10),
		})

		Expect(result).To(Equal(instant("2026-02-02T10:30:00")))
	})

	It("Will keep the current date for a time-of-day still ahead today", func() {
		current := instant("2026-01-05T09:00:00")
		result := resolve(current, clock.Constraints{Hour: clock.Field(10)})

		Expect(result).To(Equal(instant("2026-01-05T10:00:00")))
	})

	It("Will advance exactly one day for a time-of-day already passed", func() {
		current := instant("2026-01-05T09:00:00")
		result := resolve(current, clock.Constraints{Hour: clock.Field(8)})

		Expect(result).To(Equal(instant("2026-01-06T08:00:00")))
	})

	It("Will advance exactly one day for a time-of-day equal to the current one", func() {
		current := instant("2026-01-05T09:00:00")
		result := resolve(current, clock.Constraints{
			Hour:   clock.Field(9),
			Minute: clock.Field(0),
			Second: clock.Field(0),
		})

		Expect(result).To(Equal(instant("2026-01-06T09:00:00")))
	})

	It("Will carry unspecified minute and second from the input instant", func() {
		current := instant("2026-01-05T09:42:17")
		result := resolve(current, clock.Constraints{Hour: clock.Field(11)})

		Expect(result).To(Equal(instant("2026-01-05T11:42:17")))
	})

	It("Will clamp day-of-month 31 to the last day of a shorter month", func() {
		// April has 30 days.
		current := instant("2026-04-10T12:00:00")
		result := resolve(current, clock.Constraints{DayOfMonth: clock.Field(31)})

		Expect(result).To(Equal(instant("2026-04-30T12:00:00")))
	})

	It("Will clamp day-of-month 31 to February's last day", func() {
		current := instant("2026-02-10T12:00:00")
		result := resolve(current, clock.Constraints{DayOfMonth: clock.Field(31)})

		Expect(result).To(Equal(instant("2026-02-28T12:00:00")))
	})

	It("Will advance a full seven days for the current weekday with no time change", func() {
		// 2026-01-05 is a Monday.
		current := instant("2026-01-05T09:00:00")
		result := resolve(current, clock.Constraints{Weekday: clock.Weekday(time.Monday)})

		Expect(result).To(Equal(instant("2026-01-12T09:00:00")))
	})

	It("Will keep the same day for the current weekday when the time-of-day is still ahead", func() {
		current := instant("2026-01-05T09:00:00")
		result := resolve(current, clock.Constraints{
			Weekday: clock.Weekday(time.Monday),
			Hour:    clock.Field(18),
		})

		Expect(result).To(Equal(instant("2026-01-05T18:00:00")))
	})

	It("Will advance seven days for the current weekday when the time-of-day has passed", func() {
		current := instant("2026-01-05T09:00:00")
		result := resolve(current, clock.Constraints{
			Weekday: clock.Weekday(time.Monday),
			Hour:    clock.Field(7),
		})

		Expect(result).To(Equal(instant("2026-01-12T07:00:00")))
	})

	It("Will advance to a later weekday within the same week", func() {
		// Monday -> Thursday.
		current := instant("2026-01-05T09:00:00")
		result := resolve(current, clock.Constraints{Weekday: clock.Weekday(time.Thursday)})

		Expect(result).To(Equal(instant("2026-01-08T09:00:00")))
	})

	It("Will advance into the following year for a month already passed", func() {
		current := instant("2026-06-15T08:00:00")
		result := resolve(current, clock.Constraints{Month: clock.Month(time.March)})

		Expect(result.Year()).To(Equal(2027))
		Expect(result.Month()).To(Equal(time.March))
		Expect(result.Day()).To(Equal(15))
		Expect(result.Hour()).To(Equal(8))
	})

	It("Will advance within the year for a month still ahead", func() {
		current := instant("2026-03-15T08:00:00")
		result := resolve(current, clock.Constraints{Month: clock.Month(time.October)})

		Expect(result).To(Equal(instant("2026-10-15T08:00:00")))
	})

	It("Will clamp the preserved day-of-month when advancing to a shorter month", func() {
		current := instant("2026-01-31T08:00:00")
		result := resolve(current, clock.Constraints{Month: clock.Month(time.February)})

		Expect(result).To(Equal(instant("2026-02-28T08:00:00")))
	})

	It("Will move day-of-month into the next month when today's occurrence is not in the future", func() {
		current := instant("2026-01-15T14:00:00")
		result := resolve(current, clock.Constraints{DayOfMonth: clock.Field(15)})

		Expect(result).To(Equal(instant("2026-02-15T14:00:00")))
	})

	It("Will move a month-constrained day-of-month into the next year rather than leave the month", func() {
		current := instant("2026-02-20T09:00:00")
		result := resolve(current, clock.Constraints{
			Month:      clock.Month(time.February),
			DayOfMonth: clock.Field(15),
		})

		Expect(result).To(Equal(instant("2027-02-15T09:00:00")))
	})

	It("Will resolve an empty constraint set to the same time on the next day", func() {
		current := instant("2026-01-05T09:30:00")
		result := resolve(current, clock.Constraints{})

		Expect(result).To(Equal(instant("2026-01-06T09:30:00")))
	})

	It("Will never return an instant earlier than or equal to its input", func() {
		currents := []time.Time{
			instant("2026-01-01T00:00:00"),
			instant("2026-01-31T23:59:59"),
			instant("2026-02-28T12:00:00"),
			instant("2026-12-31T23:59:59"),
		}
		constraintSets := []clock.Constraints{
			{},
			{Hour: clock.Field(0)},
			{Hour: clock.Field(23), Minute: clock.Field(59), Second: clock.Field(59)},
			{DayOfMonth: clock.Field(1)},
			{DayOfMonth: clock.Field(31)},
			{Weekday: clock.Weekday(time.Sunday)},
			{Month: clock.Month(time.January)},
			{Month: clock.Month(time.December), DayOfMonth: clock.Field(31), Hour: clock.Field(0)},
		}

		for _, current := range currents {
			for _, constraints := range constraintSets {
				result, err := constraints.Resolve(current)
				Expect(err).To(BeNil())
				Expect(result.After(current)).To(BeTrue(),
					"resolving %v at %v must be strictly in the future, got %v", constraints, current, result)
			}
		}
	})

	It("Will reject out-of-range calendar fields", func() {
		current := instant("2026-01-05T09:00:00")

		_, err := clock.Constraints{DayOfMonth: clock.Field(32)}.Resolve(current)
		Expect(err).To(MatchError(domain.ErrInvalidArgument))

		_, err = clock.Constraints{DayOfMonth: clock.Field(0)}.Resolve(current)
		Expect(err).To(MatchError(domain.ErrInvalidArgument))

		_, err = clock.Constraints{Hour: clock.Field(24)}.Resolve(current)
		Expect(err).To(MatchError(domain.ErrInvalidArgument))

		_, err = clock.Constraints{Minute: clock.Field(60)}.Resolve(current)
		Expect(err).To(MatchError(domain.ErrInvalidArgument))

		badMonth := time.Month(13)
		_, err = clock.Constraints{Month: &badMonth}.Resolve(current)
		Expect(err).To(MatchError(domain.ErrInvalidArgument))
	})
})
