package clock

import (
	"fmt"
	"strings"
	"time"

	"github.com/ha-testbed/harness/internal/domain"
)

// Constraints partially describes a desired future instant. Nil fields are
// unconstrained: hour/minute/second are carried forward from the current instant,
// while month/day-of-month/weekday only matter when explicitly requested.
type Constraints struct {
	Month      *time.Month
	DayOfMonth *int
	Weekday    *time.Weekday
	Hour       *int
	Minute     *int
	Second     *int
}

// Month returns a pointer suitable for a Constraints field.
func Month(m time.Month) *time.Month { return &m }

// Weekday returns a pointer suitable for a Constraints field.
func Weekday(w time.Weekday) *time.Weekday { return &w }

// Field returns a pointer suitable for an integer Constraints field.
func Field(n int) *int { return &n }

func (c Constraints) String() string {
	parts := make([]string, 0, 6)
	if c.Month != nil {
		parts = append(parts, fmt.Sprintf("month=%s", c.Month.String()))
	}
	if c.DayOfMonth != nil {
		parts = append(parts, fmt.Sprintf("day_of_month=%d", *c.DayOfMonth))
	}
	if c.Weekday != nil {
		parts = append(parts, fmt.Sprintf("weekday=%s", c.Weekday.String()))
	}
	if c.Hour != nil {
		parts = append(parts, fmt.Sprintf("hour=%d", *c.Hour))
	}
	if c.Minute != nil {
		parts = append(parts, fmt.Sprintf("minute=%d", *c.Minute))
	}
	if c.Second != nil {
		parts = append(parts, fmt.Sprintf("second=%d", *c.Second))
	}

	if len(parts) == 0 {
		return "Constraints[<empty>]"
	}

	return fmt.Sprintf("Constraints[%s]", strings.Join(parts, ","))
}

func (c Constraints) validate() error {
	if c.Month != nil && (*c.Month < time.January || *c.Month > time.December) {
		return fmt.Errorf("%w: month %d is out of range", domain.ErrInvalidArgument, int(*c.Month))
	}
	if c.DayOfMonth != nil && (*c.DayOfMonth < 1 || *c.DayOfMonth > 31) {
		return fmt.Errorf("%w: day-of-month %d is out of range", domain.ErrInvalidArgument, *c.DayOfMonth)
	}
	if c.Weekday != nil && (*c.Weekday < time.Sunday || *c.Weekday > time.Saturday) {
		return fmt.Errorf("%w: weekday %d is out of range", domain.ErrInvalidArgument, int(*c.Weekday))
	}
	if c.Hour != nil && (*c.Hour < 0 || *c.Hour > 23) {
		return fmt.Errorf("%w: hour %d is out of range", domain.ErrInvalidArgument, *c.Hour)
	}
	if c.Minute != nil && (*c.Minute < 0 || *c.Minute > 59) {
		return fmt.Errorf("%w: minute %d is out of range", domain.ErrInvalidArgument, *c.Minute)
	}
	if c.Second != nil && (*c.Second < 0 || *c.Second > 59) {
		return fmt.Errorf("%w: second %d is out of range", domain.ErrInvalidArgument, *c.Second)
	}

	return nil
}

// Resolve computes the next instant after 'current' satisfying the constraints.
// The constraints are applied in a fixed order -- month, day-of-month, weekday,
// time-of-day -- with each step operating on the result of the previous one and
// never producing an instant earlier than its input. The returned instant is
// always strictly later than 'current'.
//
// Resolve is a pure function: it touches no real or simulated global state.
func (c Constraints) Resolve(current time.Time) (time.Time, error) {
	if err := c.validate(); err != nil {
		return time.Time{}, err
	}

	current = current.Truncate(time.Second)
	working := current

	// Step 1: month. Advance to the next calendar date falling in the requested
	// month, advancing the year if necessary. The original day-of-month is
	// preserved where valid and clamped to the last day of the target month
	// otherwise. If the current month already matches, later steps (or the final
	// fallback) take care of keeping the result in the future.
	if c.Month != nil {
		m := *c.Month
		if working.Month() != m {
			year := working.Year()
			if working.Month() > m {
				year++
			}
			working = time.Date(year, m, clampDay(working.Day(), m, year),
				working.Hour(), working.Minute(), working.Second(), 0, working.Location())
		}
	}

	// Step 2: day-of-month. Set the requested day within the month fixed so far;
	// if the resulting instant is not strictly later than the instant produced so
	// far, advance to the same day-of-month in the next month -- or the next
	// occurrence of the requested month, when one was requested.
	if c.DayOfMonth != nil {
		d := *c.DayOfMonth
		year, month := working.Year(), working.Month()
		candidate := time.Date(year, month, clampDay(d, month, year),
			working.Hour(), working.Minute(), working.Second(), 0, working.Location())

		if !candidate.After(working) {
			if c.Month != nil {
				year++
			} else {
				month++
				if month > time.December {
					month = time.January
					year++
				}
			}
			candidate = time.Date(year, month, clampDay(d, month, year),
				working.Hour(), working.Minute(), working.Second(), 0, working.Location())
		}

		working = candidate
	}

	// Step 3: weekday. Advance forward to the next date whose weekday matches.
	// When the date resolved so far already matches, the decision is deferred to
	// the time-of-day step: the same day is kept only if the requested time-of-day
	// still lies in the future; otherwise a full seven days are added below.
	weekdayDeferred := false
	if c.Weekday != nil {
		w := *c.Weekday
		if working.Weekday() != w {
			days := (int(w) - int(working.Weekday()) + 7) % 7
			working = working.AddDate(0, 0, days)
		} else {
			weekdayDeferred = true
		}
	}

	// Step 4: time-of-day. Omitted components are copied from the original input
	// instant, not from intermediate results, preserving the "same time of day"
	// expectation.
	hour, minute, second := current.Hour(), current.Minute(), current.Second()
	if c.Hour != nil {
		hour = *c.Hour
	}
	if c.Minute != nil {
		minute = *c.Minute
	}
	if c.Second != nil {
		second = *c.Second
	}

	result := time.Date(working.Year(), working.Month(), working.Day(), hour, minute, second, 0, working.Location())

	if !result.After(current) {
		switch {
		case weekdayDeferred:
			// A weekday equal to the current day's weekday is never treated as
			// "already satisfied today" unless the time-of-day pushed the same
			// day into the future.
			result = result.AddDate(0, 0, 7)
		case c.Month != nil:
			next := result.AddDate(0, 0, 1)
			if next.Month() != *c.Month {
				// Tomorrow leaves the requested month; jump to its next occurrence.
				year := result.Year() + 1
				next = time.Date(year, *c.Month, clampDay(current.Day(), *c.Month, year),
					hour, minute, second, 0, result.Location())
			}
			result = next
		default:
			result = result.AddDate(0, 0, 1)
		}
	}

	return result, nil
}

// clampDay clamps a requested day-of-month to the last valid day of the given month.
func clampDay(day int, month time.Month, year int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}

	return day
}
