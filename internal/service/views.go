package service

import (
	"sort"
	"time"

	"todo-planner/internal/model"
)

// View splits filtered tasks into open and completed ones.
type View struct {
	Active    []model.Task
	Completed []model.Task
}

// Stats mirrors the dashboard counters.
type Stats struct {
	Total      int
	Completed  int
	Pending    int
	ByPriority map[model.Priority]int
	Overdue    int
}

func Filter(tasks []model.Task, keep func(model.Task) bool) View {
	var v View
	for _, t := range tasks {
		if keep != nil && !keep(t) {
			continue
		}
		if t.IsCompleted {
			v.Completed = append(v.Completed, t)
		} else {
			v.Active = append(v.Active, t)
		}
	}
	SortByDue(v.Active)
	return v
}

// DueToday keeps tasks due on now's calendar day.
func DueToday(now time.Time) func(model.Task) bool {
	return func(t model.Task) bool {
		return t.DueDate != nil && sameDay(t.DueDate.In(now.Location()), now)
	}
}

// DueUpcoming keeps tasks due after today.
func DueUpcoming(now time.Time) func(model.Task) bool {
	y, m, d := now.Date()
	tomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return func(t model.Task) bool {
		return t.DueDate != nil && !t.DueDate.Before(tomorrow)
	}
}

func Important(t model.Task) bool {
	return t.Priority == model.PriorityHigh
}

func IsOverdue(t model.Task, now time.Time) bool {
	return !t.IsCompleted && t.DueDate != nil && t.DueDate.Before(now)
}

func ComputeStats(tasks []model.Task, now time.Time) Stats {
	s := Stats{ByPriority: map[model.Priority]int{
		model.PriorityHigh:   0,
		model.PriorityMedium: 0,
		model.PriorityLow:    0,
	}}
	for _, t := range tasks {
		s.Total++
		if t.IsCompleted {
			s.Completed++
		} else if IsOverdue(t, now) {
			s.Overdue++
		}
		s.ByPriority[t.Priority]++
	}
	s.Pending = s.Total - s.Completed
	return s
}

// SortByDue orders tasks by due date with undated tasks last, then by
// priority.
func SortByDue(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		}
		return priorityRank(a.Priority) > priorityRank(b.Priority)
	})
}

func priorityRank(p model.Priority) int {
	switch p {
	case model.PriorityHigh:
		return 3
	case model.PriorityMedium:
		return 2
	case model.PriorityLow:
		return 1
	}
	return 0
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
