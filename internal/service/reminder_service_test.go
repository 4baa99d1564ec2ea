package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-planner/internal/model"
)

type staticReminders struct {
	tasks    []model.Task
	from, to time.Time
}

func (s *staticReminders) ListPendingReminders(_ context.Context, from, to time.Time) ([]model.Task, error) {
	s.from, s.to = from, to
	return s.tasks, nil
}

type staticTasks struct {
	tasks []model.Task
	defs  []model.RecurringTask
}

func (s staticTasks) Tasks(context.Context, *model.User) ([]model.Task, error) { return s.tasks, nil }

func (s staticTasks) Definitions(context.Context, *model.User) ([]model.RecurringTask, error) {
	return s.defs, nil
}

type staticCategories map[uint]string

func (s staticCategories) ListByUser(context.Context, uint) ([]model.Category, error) {
	var out []model.Category
	for id, name := range s {
		out = append(out, model.Category{ID: id, Name: name})
	}
	return out, nil
}

func TestDueRemindersNotifiesOnce(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	at := now
	source := &staticReminders{tasks: []model.Task{{ID: "t1", Title: "standup", ReminderTime: &at}}}
	svc := NewReminderService(source, nil, nil, 0)

	due, err := svc.DueReminders(context.Background(), now)
	require.NoError(t, err)
	assert.Len(t, due, 1)
	assert.Equal(t, now.Add(-time.Minute), source.from)
	assert.Equal(t, now.Add(time.Minute), source.to)

	due, err = svc.DueReminders(context.Background(), now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, due)

	// A rescheduled reminder fires again.
	moved := now.Add(time.Hour)
	source.tasks[0].ReminderTime = &moved
	due, err = svc.DueReminders(context.Background(), moved)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestDailySummarySections(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	tasks := sampleTasks(now)
	catID := uint(7)
	tasks[1].CategoryID = &catID
	next := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	clock := "09:30"
	defs := []model.RecurringTask{{
		ID: "r1", TemplateID: "b", Mode: model.ModeScheduled, Frequency: model.FrequencyWeekly,
		Interval: 2, NextRunAt: &next, ReminderTime: &clock,
	}}

	svc := NewReminderService(nil, staticTasks{tasks: tasks, defs: defs}, staticCategories{7: "Work"}, time.Minute)
	out, err := svc.DailySummary(context.Background(), model.User{ID: 1}, now)
	require.NoError(t, err)

	assert.Contains(t, out, "<b>Daily report</b>")
	assert.Contains(t, out, "overdue")
	assert.Contains(t, out, "today")
	assert.Contains(t, out, "<i>[Work]</i>")
	assert.Contains(t, out, "every 2 weeks, remind at 09:30")
	assert.Contains(t, out, "next 2024-03-06")
	assert.Contains(t, out, "4 open · 1 done · 1 overdue")
	assert.NotContains(t, out, "someday", "undated tasks are not part of the digest")
}

func TestFormatTaskEscapesHTML(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	task := model.Task{ID: "12345678-aaaa", Title: "<script>", Priority: model.PriorityHigh}

	out := FormatTask(task, nil, now)
	assert.Contains(t, out, "<code>12345678</code>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "❗")
}

func TestDescribeRule(t *testing.T) {
	assert.Equal(t, "every day", DescribeRule(model.RecurringTask{Frequency: model.FrequencyDaily, Interval: 1}))
	assert.Equal(t, "every 3 months after completion",
		DescribeRule(model.RecurringTask{Frequency: model.FrequencyMonthly, Interval: 3, Mode: model.ModeAfterCompletion}))
}
