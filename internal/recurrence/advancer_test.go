package recurrence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-planner/internal/model"
)

type harness struct {
	tasks    *memoryTasks
	defs     *memoryDefinitions
	coll     *sliceCollection
	sink     *recordingSink
	advancer *Advancer
}

func newHarness(now time.Time, template model.Task, defs ...model.RecurringTask) *harness {
	h := &harness{
		tasks: &memoryTasks{tasks: []model.Task{template}},
		defs:  newMemoryDefinitions(defs...),
		coll:  &sliceCollection{tasks: []model.Task{template}},
		sink:  &recordingSink{},
	}
	m := NewMaterializer(h.tasks, h.sink, time.UTC, nil)
	h.advancer = NewAdvancer(h.defs, m, time.UTC, fixedClock(now), nil)
	return h
}

func (h *harness) instances(defID string) []model.Task {
	var out []model.Task
	for _, t := range h.tasks.tasks {
		if t.RecurringTaskID != nil && *t.RecurringTaskID == defID && t.ID != "template" {
			out = append(out, t)
		}
	}
	return out
}

func templateTask() model.Task {
	return model.Task{
		ID:              "template",
		UserID:          7,
		Title:           "Water plants",
		Description:     ptr("balcony"),
		Priority:        model.PriorityHigh,
		CategoryID:      ptr(uint(3)),
		Tags:            []string{"home"},
		RecurringTaskID: ptr("def-1"),
		DueDate:         ptr(day(2023, 12, 31)),
		Status:          model.StatusPending,
	}
}

func scheduledDef() model.RecurringTask {
	return model.RecurringTask{
		ID: "def-1", UserID: 7, TemplateID: "template",
		Mode: model.ModeScheduled, Frequency: model.FrequencyDaily, Interval: 1,
		NextRunAt:    ptr(day(2024, 1, 1)),
		ReminderTime: ptr("09:30"),
	}
}

func TestGenerateScheduledBacklogCreatesOneInstance(t *testing.T) {
	now := day(2024, 1, 10)
	h := newHarness(now, templateTask(), scheduledDef())

	report, err := h.advancer.GenerateScheduled(context.Background(), 7, h.coll)
	require.NoError(t, err)

	assert.Equal(t, ScanReport{Evaluated: 1, Created: 1}, report)
	created := h.instances("def-1")
	require.Len(t, created, 1)
	assert.Equal(t, day(2024, 1, 1), *created[0].DueDate)

	def := h.defs.defs["def-1"]
	assert.Equal(t, day(2024, 1, 11), *def.NextRunAt)
	assert.Equal(t, now, *def.LastGeneratedAt)
}

func TestGenerateScheduledCopiesTemplate(t *testing.T) {
	h := newHarness(day(2024, 1, 10), templateTask(), scheduledDef())

	_, err := h.advancer.GenerateScheduled(context.Background(), 7, h.coll)
	require.NoError(t, err)

	require.Len(t, h.sink.created, 1)
	inst := h.sink.created[0]
	assert.Equal(t, "Water plants", inst.Title)
	assert.Equal(t, "balcony", *inst.Description)
	assert.Equal(t, model.PriorityHigh, inst.Priority)
	assert.Equal(t, uint(3), *inst.CategoryID)
	assert.Equal(t, []string{"home"}, inst.Tags)
	assert.Equal(t, uint(7), inst.UserID)
	assert.Equal(t, model.StatusPending, inst.Status)
	assert.False(t, inst.IsCompleted)
	assert.Equal(t, "def-1", *inst.RecurringTaskID)
	require.NotNil(t, inst.ReminderTime)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC), *inst.ReminderTime)

	_, found := h.coll.Find(inst.ID)
	assert.True(t, found, "instance must be appended to the collection")
}

func TestGenerateScheduledIsIdempotentForSameNow(t *testing.T) {
	h := newHarness(day(2024, 1, 10), templateTask(), scheduledDef())
	ctx := context.Background()

	_, err := h.advancer.GenerateScheduled(ctx, 7, h.coll)
	require.NoError(t, err)
	report, err := h.advancer.GenerateScheduled(ctx, 7, h.coll)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Created)
	assert.Len(t, h.instances("def-1"), 1)
	assert.Len(t, h.defs.updateLog, 1, "future cursor needs no second write")
}

func TestGenerateScheduledSkipsExistingInstanceButAdvances(t *testing.T) {
	template := templateTask()
	existing := model.Task{ID: "old", UserID: 7, RecurringTaskID: ptr("def-1"), DueDate: ptr(day(2024, 1, 1))}
	h := newHarness(day(2024, 1, 10), template, scheduledDef())
	h.coll.tasks = append(h.coll.tasks, existing)

	report, err := h.advancer.GenerateScheduled(context.Background(), 7, h.coll)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Created)
	assert.Empty(t, h.instances("def-1"))
	assert.Equal(t, day(2024, 1, 11), *h.defs.defs["def-1"].NextRunAt)
}

func TestGenerateScheduledTreatsStoreDuplicateAsExisting(t *testing.T) {
	h := newHarness(day(2024, 1, 10), templateTask(), scheduledDef())
	h.tasks.insertErr = fmt.Errorf("create task: %w", ErrDuplicateInstance)

	report, err := h.advancer.GenerateScheduled(context.Background(), 7, h.coll)
	require.NoError(t, err)

	assert.Equal(t, ScanReport{Evaluated: 1}, report)
	assert.Equal(t, day(2024, 1, 11), *h.defs.defs["def-1"].NextRunAt)
}

func TestGenerateScheduledPersistsSeededCursor(t *testing.T) {
	def := scheduledDef()
	def.NextRunAt = nil
	def.StartDate = ptr(day(2024, 1, 9))
	h := newHarness(day(2024, 1, 9), templateTask(), def)

	report, err := h.advancer.GenerateScheduled(context.Background(), 7, h.coll)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Created)
	assert.Equal(t, day(2024, 1, 10), *h.defs.defs["def-1"].NextRunAt)
	assert.Nil(t, h.defs.defs["def-1"].LastGeneratedAt)
}

func TestGenerateScheduledIsolatesFailures(t *testing.T) {
	missing := scheduledDef()
	missing.ID = "def-missing"
	missing.TemplateID = "gone"

	broken := scheduledDef()
	broken.ID = "def-broken"

	ok := scheduledDef()
	ok.ID = "def-ok"

	after := scheduledDef()
	after.ID = "def-after"
	after.Mode = model.ModeAfterCompletion

	h := newHarness(day(2024, 1, 10), templateTask(), missing, broken, ok, after)
	h.defs.failOn["def-broken"] = true

	report, err := h.advancer.GenerateScheduled(context.Background(), 7, h.coll)
	require.NoError(t, err)

	assert.Equal(t, ScanReport{Evaluated: 3, Created: 1, Skipped: 1, Failed: 1}, report)
	assert.Len(t, h.instances("def-ok"), 1)
	assert.Equal(t, day(2024, 1, 11), *h.defs.defs["def-ok"].NextRunAt)
}

func TestGenerateScheduledListFailure(t *testing.T) {
	h := newHarness(day(2024, 1, 10), templateTask())
	h.defs.listErr = errors.New("connection refused")

	_, err := h.advancer.GenerateScheduled(context.Background(), 7, h.coll)
	assert.ErrorContains(t, err, "connection refused")
}

func afterCompletionDef() model.RecurringTask {
	return model.RecurringTask{
		ID: "def-1", UserID: 7, TemplateID: "template",
		Mode: model.ModeAfterCompletion, Frequency: model.FrequencyWeekly, Interval: 2,
	}
}

func TestHandleAfterCompletion(t *testing.T) {
	completedAt := day(2024, 1, 10)
	h := newHarness(completedAt, templateTask(), afterCompletionDef())

	done := templateTask()
	done.DueDate = ptr(day(2024, 1, 1))
	done.SetCompleted(true, completedAt)

	inst, err := h.advancer.HandleAfterCompletion(context.Background(), done, completedAt, h.coll)
	require.NoError(t, err)
	require.NotNil(t, inst)

	assert.Equal(t, day(2024, 1, 15), *inst.DueDate)
	assert.Equal(t, model.StatusPending, inst.Status)
	assert.Nil(t, inst.CompletedAt)
	assert.Equal(t, day(2024, 1, 15), *h.defs.defs["def-1"].NextRunAt)
}

func TestHandleAfterCompletionTwiceCreatesOnce(t *testing.T) {
	completedAt := day(2024, 1, 10)
	h := newHarness(completedAt, templateTask(), afterCompletionDef())
	done := templateTask()
	done.DueDate = ptr(day(2024, 1, 1))

	ctx := context.Background()
	_, err := h.advancer.HandleAfterCompletion(ctx, done, completedAt, h.coll)
	require.NoError(t, err)
	second, err := h.advancer.HandleAfterCompletion(ctx, done, completedAt, h.coll)
	require.NoError(t, err)

	assert.Nil(t, second)
	assert.Len(t, h.instances("def-1"), 1)
	assert.Len(t, h.defs.updateLog, 2, "cursor is stamped even when creation is skipped")
}

func TestHandleAfterCompletionIgnoresOtherTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("no recurrence", func(t *testing.T) {
		h := newHarness(day(2024, 1, 10), templateTask(), afterCompletionDef())
		plain := model.Task{ID: "plain", UserID: 7}
		inst, err := h.advancer.HandleAfterCompletion(ctx, plain, day(2024, 1, 10), h.coll)
		assert.NoError(t, err)
		assert.Nil(t, inst)
	})

	t.Run("scheduled definition", func(t *testing.T) {
		h := newHarness(day(2024, 1, 10), templateTask(), scheduledDef())
		inst, err := h.advancer.HandleAfterCompletion(ctx, templateTask(), day(2024, 1, 10), h.coll)
		assert.NoError(t, err)
		assert.Nil(t, inst)
		assert.Empty(t, h.defs.updateLog)
	})

	t.Run("definition gone", func(t *testing.T) {
		h := newHarness(day(2024, 1, 10), templateTask())
		_, err := h.advancer.HandleAfterCompletion(ctx, templateTask(), day(2024, 1, 10), h.coll)
		assert.ErrorIs(t, err, ErrDefinitionNotFound)
	})
}
