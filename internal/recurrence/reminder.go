package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeOfDay validates an HH:MM string.
func ParseTimeOfDay(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour, minute, nil
}

// ApplyReminderTime places the HH:MM time of day on date's calendar day in
// date's location. It returns nil when no reminder is configured.
func ApplyReminderTime(date time.Time, clock string) *time.Time {
	if strings.TrimSpace(clock) == "" {
		return nil
	}
	hour, minute, err := ParseTimeOfDay(clock)
	if err != nil {
		return nil
	}
	year, month, day := date.Date()
	reminder := time.Date(year, month, day, hour, minute, 0, 0, date.Location())
	return &reminder
}
