package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecurrenceMode string

const (
	ModeScheduled       RecurrenceMode = "scheduled"
	ModeAfterCompletion RecurrenceMode = "after_completion"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

func (m RecurrenceMode) Valid() bool {
	return m == ModeScheduled || m == ModeAfterCompletion
}

// RecurringTask describes how instances of a template task are generated.
// NextRunAt is the cursor for scheduled mode.
type RecurringTask struct {
	ID              string         `gorm:"primaryKey;size:36"`
	UserID          uint           `gorm:"index;not null"`
	TemplateID      string         `gorm:"column:todo_id;size:36;index;not null"`
	Mode            RecurrenceMode `gorm:"size:20;not null"`
	Frequency       Frequency      `gorm:"size:10;not null"`
	Interval        int            `gorm:"not null;default:1"`
	StartDate       *time.Time
	NextRunAt       *time.Time
	EndDate         *time.Time
	ReminderTime    *string `gorm:"size:5"`
	LastGeneratedAt *time.Time
	CreatedAt       time.Time
}

func (r *RecurringTask) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Interval < 1 {
		r.Interval = 1
	}
	return nil
}

// ReminderClock returns the configured HH:MM or an empty string.
func (r RecurringTask) ReminderClock() string {
	if r.ReminderTime == nil {
		return ""
	}
	return *r.ReminderTime
}
