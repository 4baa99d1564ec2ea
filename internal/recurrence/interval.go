// Package recurrence decides when recurring task instances become due and
// materializes them through injected stores.
package recurrence

import (
	"time"

	"todo-planner/internal/model"
)

// AddInterval adds interval periods of freq to date. Months keep the
// day-of-month and clip to the last day of the target month, so Jan 31 plus
// one month is Feb 29 in a leap year and Feb 28 otherwise.
func AddInterval(date time.Time, freq model.Frequency, interval int) time.Time {
	interval = clampInterval(interval)
	switch freq {
	case model.FrequencyWeekly:
		return date.AddDate(0, 0, 7*interval)
	case model.FrequencyMonthly:
		return addMonths(date, interval)
	default:
		return date.AddDate(0, 0, interval)
	}
}

// AdvanceToFuture steps date forward until it is strictly after now.
// A date already in the future is returned unchanged.
func AdvanceToFuture(date time.Time, freq model.Frequency, interval int, now time.Time) time.Time {
	next := date
	for !next.After(now) {
		next = AddInterval(next, freq, interval)
	}
	return next
}

// NextAfter returns the first occurrence after base that is strictly later
// than after. At least one period is always added.
func NextAfter(base time.Time, freq model.Frequency, interval int, after time.Time) time.Time {
	next := AddInterval(base, freq, interval)
	for !next.After(after) {
		next = AddInterval(next, freq, interval)
	}
	return next
}

func clampInterval(interval int) int {
	if interval < 1 {
		return 1
	}
	return interval
}

func addMonths(date time.Time, months int) time.Time {
	year, month, day := date.Date()
	hour, minute, sec := date.Clock()
	first := time.Date(year, month+time.Month(months), 1, hour, minute, sec, date.Nanosecond(), date.Location())
	if last := daysInMonth(first.Year(), first.Month(), date.Location()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysInMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
