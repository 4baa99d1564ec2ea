package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrAmbiguousID    = errors.New("task id prefix is ambiguous")
	ErrNothingChanged = errors.New("nothing to change")
)

// TaskList is the in-memory task collection of one owner. It implements
// recurrence.Collection and performs optimistic mutations.
type TaskList struct {
	mu      sync.RWMutex
	ownerID uint
	tasks   []model.Task
}

var _ recurrence.Collection = (*TaskList)(nil)

func NewTaskList(ownerID uint) *TaskList {
	return &TaskList{ownerID: ownerID}
}

func (l *TaskList) OwnerID() uint { return l.ownerID }

// Replace swaps the whole collection, e.g. after a reload from the store.
func (l *TaskList) Replace(tasks []model.Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append([]model.Task(nil), tasks...)
}

func (l *TaskList) Snapshot() []model.Task {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Task(nil), l.tasks...)
}

func (l *TaskList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tasks)
}

func (l *TaskList) Find(id string) (model.Task, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexOf(id); i >= 0 {
		return l.tasks[i], true
	}
	return model.Task{}, false
}

// FindByPrefix resolves a full id or a unique id prefix.
func (l *TaskList) FindByPrefix(prefix string) (model.Task, error) {
	prefix = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(prefix, "#")))
	if prefix == "" {
		return model.Task{}, ErrTaskNotFound
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var found []model.Task
	for _, t := range l.tasks {
		if t.ID == prefix {
			return t, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return model.Task{}, ErrTaskNotFound
	case 1:
		return found[0], nil
	default:
		return model.Task{}, fmt.Errorf("%w: %q matches %d tasks", ErrAmbiguousID, prefix, len(found))
	}
}

func (l *TaskList) HasInstance(definitionID string, due time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tasks {
		if t.RecurringTaskID == nil || *t.RecurringTaskID != definitionID || t.DueDate == nil {
			continue
		}
		if recurrence.SameInstant(*t.DueDate, due) {
			return true
		}
	}
	return false
}

// Add puts a new task at the front, matching the newest-first order.
func (l *TaskList) Add(task model.Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append([]model.Task{task}, l.tasks...)
}

// MutationResult is the outcome of an optimistic change. On failure the
// local collection is back at Previous.
type MutationResult struct {
	Task       *model.Task
	Previous   model.Task
	RolledBack bool
	Err        error
}

func (r MutationResult) OK() bool { return r.Err == nil }

// Update applies mutate locally, then calls persist. When persist fails the
// previous record is restored.
func (l *TaskList) Update(ctx context.Context, id string, mutate func(*model.Task), persist func(context.Context) error) MutationResult {
	l.mu.Lock()
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return MutationResult{Err: ErrTaskNotFound}
	}
	previous := l.tasks[i]
	next := previous
	mutate(&next)
	l.tasks[i] = next
	l.mu.Unlock()

	if err := persist(ctx); err != nil {
		l.mu.Lock()
		if j := l.indexOf(id); j >= 0 {
			l.tasks[j] = previous
		}
		l.mu.Unlock()
		return MutationResult{Previous: previous, RolledBack: true, Err: err}
	}
	return MutationResult{Task: &next, Previous: previous}
}

// Remove drops the task locally, then calls persist. When persist fails the
// task is put back at its old position.
func (l *TaskList) Remove(ctx context.Context, id string, persist func(context.Context) error) MutationResult {
	l.mu.Lock()
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return MutationResult{Err: ErrTaskNotFound}
	}
	previous := l.tasks[i]
	l.tasks = append(l.tasks[:i:i], l.tasks[i+1:]...)
	l.mu.Unlock()

	if err := persist(ctx); err != nil {
		l.mu.Lock()
		if i > len(l.tasks) {
			i = len(l.tasks)
		}
		l.tasks = append(l.tasks[:i], append([]model.Task{previous}, l.tasks[i:]...)...)
		l.mu.Unlock()
		return MutationResult{Previous: previous, RolledBack: true, Err: err}
	}
	return MutationResult{Previous: previous}
}

func (l *TaskList) indexOf(id string) int {
	for i := range l.tasks {
		if l.tasks[i].ID == id {
			return i
		}
	}
	return -1
}
