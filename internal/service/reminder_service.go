package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"todo-planner/internal/model"
)

const defaultReminderWindow = time.Minute

type reminderSource interface {
	ListPendingReminders(ctx context.Context, from, to time.Time) ([]model.Task, error)
}

type categoryLister interface {
	ListByUser(ctx context.Context, userID uint) ([]model.Category, error)
}

type taskSource interface {
	Tasks(ctx context.Context, user *model.User) ([]model.Task, error)
	Definitions(ctx context.Context, user *model.User) ([]model.RecurringTask, error)
}

// ReminderService finds reminders that are due and builds the daily digest.
type ReminderService struct {
	reminders  reminderSource
	tasks      taskSource
	categories categoryLister
	window     time.Duration

	mu       sync.Mutex
	notified map[string]time.Time
}

func NewReminderService(reminders reminderSource, tasks taskSource, categories categoryLister, window time.Duration) *ReminderService {
	if window <= 0 {
		window = defaultReminderWindow
	}
	return &ReminderService{
		reminders:  reminders,
		tasks:      tasks,
		categories: categories,
		window:     window,
		notified:   make(map[string]time.Time),
	}
}

// DueReminders returns open tasks whose reminder is within the window around
// now. Each (task, reminder instant) pair is returned once per process.
func (s *ReminderService) DueReminders(ctx context.Context, now time.Time) ([]model.Task, error) {
	tasks, err := s.reminders.ListPendingReminders(ctx, now.Add(-s.window), now.Add(s.window))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, at := range s.notified {
		if now.Sub(at) > 24*time.Hour {
			delete(s.notified, id)
		}
	}

	var due []model.Task
	for _, t := range tasks {
		if t.ReminderTime == nil {
			continue
		}
		if at, ok := s.notified[t.ID]; ok && at.Equal(*t.ReminderTime) {
			continue
		}
		s.notified[t.ID] = *t.ReminderTime
		due = append(due, t)
	}
	return due, nil
}

func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.tasks.Tasks(ctx, &user)
	if err != nil {
		return "", err
	}
	defs, err := s.tasks.Definitions(ctx, &user)
	if err != nil {
		return "", err
	}
	catNames := make(map[uint]string)
	if s.categories != nil {
		categories, err := s.categories.ListByUser(ctx, user.ID)
		if err != nil {
			return "", err
		}
		for _, cat := range categories {
			catNames[cat.ID] = cat.Name
		}
	}
	return BuildSummary(tasks, defs, catNames, now), nil
}

// BuildSummary renders the digest as Telegram HTML.
func BuildSummary(tasks []model.Task, defs []model.RecurringTask, catNames map[uint]string, now time.Time) string {
	overdue := Filter(tasks, func(t model.Task) bool { return IsOverdue(t, now) && !DueToday(now)(t) }).Active
	today := Filter(tasks, DueToday(now)).Active
	upcoming := Filter(tasks, DueUpcoming(now)).Active
	if len(upcoming) > 5 {
		upcoming = upcoming[:5]
	}

	titles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t.Title
	}

	var b strings.Builder
	b.WriteString("📋 <b>Daily report</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))

	writeSection(&b, "⚠️ <b>Overdue</b>", overdue, catNames, now, "— nothing overdue\n")
	writeSection(&b, "🔥 <b>Today</b>", today, catNames, now, "— nothing due today\n")
	writeSection(&b, "⏳ <b>Upcoming</b>", upcoming, catNames, now, "— nothing planned\n")

	b.WriteString("♻️ <b>Recurring</b>\n")
	if len(defs) == 0 {
		b.WriteString("— no recurring tasks\n")
	}
	for _, def := range defs {
		b.WriteString(FormatDefinition(def, titles[def.TemplateID], now.Location()))
	}

	stats := ComputeStats(tasks, now)
	b.WriteString(fmt.Sprintf("\n📊 %d open · %d done · %d overdue", stats.Pending, stats.Completed, stats.Overdue))
	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, title string, tasks []model.Task, catNames map[uint]string, now time.Time, empty string) {
	b.WriteString(title + "\n")
	if len(tasks) == 0 {
		b.WriteString(empty)
	}
	for _, t := range tasks {
		b.WriteString(FormatTask(t, catNames, now))
	}
	b.WriteByte('\n')
}

// FormatTask renders one task line for chat output.
func FormatTask(task model.Task, catNames map[uint]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case task.IsCompleted:
		icon = "✅"
	case task.DueDate != nil && now.After(*task.DueDate):
		icon = "⚠️"
	case task.DueDate != nil && task.DueDate.Sub(now) <= 48*time.Hour:
		icon = "⏳"
	}
	if task.Priority == model.PriorityHigh && !task.IsCompleted {
		icon += "❗"
	}

	sb.WriteString(fmt.Sprintf("%s <code>%s</code> %s", icon, task.ShortID(), html.EscapeString(strings.TrimSpace(task.Title))))
	if task.RecurringTaskID != nil {
		sb.WriteString(" ♻️")
	}
	if task.Status == model.StatusInProgress {
		sb.WriteString(" <i>(in progress)</i>")
	}
	if task.CategoryID != nil {
		if name := strings.TrimSpace(catNames[*task.CategoryID]); name != "" {
			sb.WriteString(fmt.Sprintf(" <i>[%s]</i>", html.EscapeString(name)))
		}
	}
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", d.Format("2006-01-02")))
		if !task.IsCompleted && now.After(d) {
			sb.WriteString(" — <b>overdue</b>")
		}
	}
	if task.ReminderTime != nil && !task.IsCompleted {
		sb.WriteString(fmt.Sprintf("\n   🔔 %s", task.ReminderTime.In(now.Location()).Format("2006-01-02 15:04")))
	}
	if task.Description != nil && strings.TrimSpace(*task.Description) != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(*task.Description))))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// FormatDefinition describes a recurring definition and its cursor.
func FormatDefinition(def model.RecurringTask, title string, loc *time.Location) string {
	var sb strings.Builder
	if title == "" {
		title = "(template deleted)"
	}
	sb.WriteString(fmt.Sprintf("♻️ %s — %s", html.EscapeString(title), DescribeRule(def)))
	if def.Mode == model.ModeScheduled && def.NextRunAt != nil {
		sb.WriteString(fmt.Sprintf("\n   📆 next %s", def.NextRunAt.In(loc).Format("2006-01-02")))
	}
	if def.LastGeneratedAt != nil {
		sb.WriteString(fmt.Sprintf("\n   ✅ last generated %s", def.LastGeneratedAt.In(loc).Format("2006-01-02 15:04")))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// DescribeRule renders e.g. "every 2 weeks after completion, remind at 09:30".
func DescribeRule(def model.RecurringTask) string {
	unit := map[model.Frequency]string{
		model.FrequencyDaily:   "day",
		model.FrequencyWeekly:  "week",
		model.FrequencyMonthly: "month",
	}[def.Frequency]
	if unit == "" {
		unit = "day"
	}

	rule := "every " + unit
	if def.Interval > 1 {
		rule = fmt.Sprintf("every %d %ss", def.Interval, unit)
	}
	if def.Mode == model.ModeAfterCompletion {
		rule += " after completion"
	}
	if clock := def.ReminderClock(); clock != "" {
		rule += ", remind at " + clock
	}
	return rule
}
