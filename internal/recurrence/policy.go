package recurrence

import (
	"time"

	"todo-planner/internal/model"
)

// Policy computes due dates for both recurrence modes. Calendar arithmetic
// runs in Location so month and day boundaries follow the user's wall clock.
type Policy struct {
	Location *time.Location
}

// ScheduledPlan is the outcome of one scheduled-mode evaluation.
type ScheduledPlan struct {
	// Due is the occurrence to materialize, nil when nothing is due yet.
	Due *time.Time
	// Cursor is the value next_run_at must hold after this step.
	Cursor time.Time
	// Persist is false when the stored cursor is already correct.
	Persist bool
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// SeedCursor returns the first cursor of a scheduled definition that has
// none: one period after the start date, or the first future occurrence
// counted from now.
func (p Policy) SeedCursor(def model.RecurringTask, now time.Time) time.Time {
	now = now.In(p.loc())
	if def.StartDate != nil {
		return AddInterval(def.StartDate.In(p.loc()), def.Frequency, def.Interval)
	}
	return AdvanceToFuture(now, def.Frequency, def.Interval, now)
}

// PlanScheduled fires at most one occurrence per call. Periods that elapsed
// while nobody looked are skipped, not replayed.
func (p Policy) PlanScheduled(def model.RecurringTask, now time.Time) ScheduledPlan {
	now = now.In(p.loc())

	seeded := def.NextRunAt == nil
	var cursor time.Time
	if seeded {
		cursor = p.SeedCursor(def, now)
	} else {
		cursor = def.NextRunAt.In(p.loc())
	}

	if cursor.After(now) {
		return ScheduledPlan{Cursor: cursor, Persist: seeded}
	}

	due := cursor
	next := AdvanceToFuture(AddInterval(cursor, def.Frequency, def.Interval), def.Frequency, def.Interval, now)
	return ScheduledPlan{Due: &due, Cursor: next, Persist: true}
}

// PlanAfterCompletion returns the due date of the instance that follows a
// completion at completedAt. The base is the completed task's due date, then
// the definition's start date, then the completion instant itself.
func (p Policy) PlanAfterCompletion(def model.RecurringTask, completed model.Task, completedAt time.Time) time.Time {
	base := completedAt
	switch {
	case completed.DueDate != nil:
		base = *completed.DueDate
	case def.StartDate != nil:
		base = *def.StartDate
	}
	return NextAfter(base.In(p.loc()), def.Frequency, def.Interval, completedAt)
}
