package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"todo-planner/internal/model"
)

func TestAddInterval(t *testing.T) {
	tests := []struct {
		name     string
		date     time.Time
		freq     model.Frequency
		interval int
		want     time.Time
	}{
		{"daily", day(2024, 1, 30), model.FrequencyDaily, 3, day(2024, 2, 2)},
		{"weekly", day(2024, 1, 1), model.FrequencyWeekly, 2, day(2024, 1, 15)},
		{"monthly keeps day", day(2024, 1, 15), model.FrequencyMonthly, 1, day(2024, 2, 15)},
		{"monthly clips leap february", day(2024, 1, 31), model.FrequencyMonthly, 1, day(2024, 2, 29)},
		{"monthly clips february", day(2023, 1, 31), model.FrequencyMonthly, 1, day(2023, 2, 28)},
		{"monthly clips thirty day month", day(2024, 3, 31), model.FrequencyMonthly, 1, day(2024, 4, 30)},
		{"monthly crosses year", day(2024, 11, 30), model.FrequencyMonthly, 3, day(2025, 2, 28)},
		{"zero interval clamps to one", day(2024, 1, 1), model.FrequencyDaily, 0, day(2024, 1, 2)},
		{"negative interval clamps to one", day(2024, 1, 1), model.FrequencyWeekly, -4, day(2024, 1, 8)},
		{"unknown frequency is daily", day(2024, 1, 1), model.Frequency("hourly"), 1, day(2024, 1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddInterval(tt.date, tt.freq, tt.interval))
		})
	}
}

func TestAddIntervalKeepsTimeOfDay(t *testing.T) {
	start := time.Date(2024, 1, 31, 9, 30, 15, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 29, 9, 30, 15, 0, time.UTC), AddInterval(start, model.FrequencyMonthly, 1))
}

func TestAddIntervalWeeklyAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	start := time.Date(2024, 3, 25, 8, 0, 0, 0, loc).AddDate(0, 0, -7)
	got := AddInterval(start, model.FrequencyWeekly, 1)
	assert.Equal(t, 8, got.Hour())
	assert.Equal(t, 25, got.Day())
}

func TestAdvanceToFutureStopsAtFirstLaterOccurrence(t *testing.T) {
	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	for _, freq := range []model.Frequency{model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly} {
		for interval := 1; interval <= 3; interval++ {
			start := day(2023, 12, 31)
			got := AdvanceToFuture(start, freq, interval, now)

			expected := start
			for !expected.After(now) {
				expected = AddInterval(expected, freq, interval)
			}
			assert.Equal(t, expected, got, "%s every %d", freq, interval)
			assert.True(t, got.After(now))
		}
	}
}

func TestAdvanceToFutureReturnsFutureDateUnchanged(t *testing.T) {
	future := day(2030, 1, 1)
	assert.Equal(t, future, AdvanceToFuture(future, model.FrequencyDaily, 1, day(2024, 1, 1)))
}

func TestAdvanceToFutureTerminatesOnBadInterval(t *testing.T) {
	got := AdvanceToFuture(day(2024, 1, 1), model.FrequencyDaily, 0, day(2024, 1, 5))
	assert.Equal(t, day(2024, 1, 6), got)
}

func TestAdvanceToFutureEqualIsNotFuture(t *testing.T) {
	now := day(2024, 1, 10)
	assert.Equal(t, day(2024, 1, 11), AdvanceToFuture(now, model.FrequencyDaily, 1, now))
}

func TestNextAfter(t *testing.T) {
	t.Run("single step already later", func(t *testing.T) {
		got := NextAfter(day(2024, 1, 1), model.FrequencyWeekly, 2, day(2024, 1, 10))
		assert.Equal(t, day(2024, 1, 15), got)
	})
	t.Run("equal instant is skipped", func(t *testing.T) {
		got := NextAfter(day(2024, 1, 1), model.FrequencyWeekly, 1, day(2024, 1, 8))
		assert.Equal(t, day(2024, 1, 15), got)
	})
	t.Run("month clipping carries forward", func(t *testing.T) {
		// Jan 31 -> Feb 28 -> Mar 28 -> ... each step clips from the previous result.
		got := NextAfter(day(2023, 1, 31), model.FrequencyMonthly, 1, day(2023, 6, 1))
		assert.Equal(t, day(2023, 6, 28), got)
	})
	t.Run("always adds a period", func(t *testing.T) {
		got := NextAfter(day(2024, 1, 10), model.FrequencyDaily, 1, day(2024, 1, 1))
		assert.Equal(t, day(2024, 1, 11), got)
	})
}
