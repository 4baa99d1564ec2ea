package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todo-planner/internal/model"
)

type memoryTasks struct {
	tasks     []model.Task
	insertErr error
	seq       int
}

func (m *memoryTasks) ListTasksForOwner(_ context.Context, ownerID uint) ([]model.Task, error) {
	var out []model.Task
	for _, t := range m.tasks {
		if t.UserID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryTasks) InsertTask(_ context.Context, task *model.Task) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.seq++
	task.ID = fmt.Sprintf("instance-%d", m.seq)
	m.tasks = append(m.tasks, *task)
	return nil
}

func (m *memoryTasks) UpdateTask(context.Context, string, map[string]interface{}) error {
	return nil
}

func (m *memoryTasks) DeleteTask(context.Context, string) error {
	return nil
}

type memoryDefinitions struct {
	defs      map[string]*model.RecurringTask
	order     []string
	failOn    map[string]bool
	listErr   error
	updateLog []map[string]interface{}
}

func newMemoryDefinitions(defs ...model.RecurringTask) *memoryDefinitions {
	m := &memoryDefinitions{defs: make(map[string]*model.RecurringTask), failOn: make(map[string]bool)}
	for i := range defs {
		d := defs[i]
		m.defs[d.ID] = &d
		m.order = append(m.order, d.ID)
	}
	return m
}

func (m *memoryDefinitions) ListDefinitionsForOwner(_ context.Context, ownerID uint) ([]model.RecurringTask, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.RecurringTask
	for _, id := range m.order {
		if d := m.defs[id]; d.UserID == ownerID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memoryDefinitions) FindDefinition(_ context.Context, id string) (*model.RecurringTask, error) {
	d, ok := m.defs[id]
	if !ok {
		return nil, ErrDefinitionNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memoryDefinitions) InsertDefinition(_ context.Context, def *model.RecurringTask) error {
	m.defs[def.ID] = def
	m.order = append(m.order, def.ID)
	return nil
}

func (m *memoryDefinitions) UpdateDefinition(_ context.Context, id string, fields map[string]interface{}) error {
	if m.failOn[id] {
		return errors.New("store unavailable")
	}
	m.updateLog = append(m.updateLog, fields)
	d := m.defs[id]
	if v, ok := fields["next_run_at"].(time.Time); ok {
		d.NextRunAt = &v
	}
	if v, ok := fields["last_generated_at"].(time.Time); ok {
		d.LastGeneratedAt = &v
	}
	return nil
}

type sliceCollection struct {
	tasks []model.Task
}

func (c *sliceCollection) Find(id string) (model.Task, bool) {
	for _, t := range c.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

func (c *sliceCollection) HasInstance(definitionID string, due time.Time) bool {
	for _, t := range c.tasks {
		if t.RecurringTaskID != nil && *t.RecurringTaskID == definitionID &&
			t.DueDate != nil && SameInstant(*t.DueDate, due) {
			return true
		}
	}
	return false
}

func (c *sliceCollection) Add(task model.Task) {
	c.tasks = append([]model.Task{task}, c.tasks...)
}

type recordingSink struct {
	created []model.Task
}

func (s *recordingSink) InstanceCreated(_ context.Context, task model.Task) {
	s.created = append(s.created, task)
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}
