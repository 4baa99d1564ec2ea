package bot

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todo-planner/internal/model"
	"todo-planner/internal/service"
)

type listKind int

const (
	listAll listKind = iota
	listToday
	listUpcoming
	listImportant
)

func (k listKind) title() string {
	switch k {
	case listToday:
		return "🔥 <b>Due today</b>"
	case listUpcoming:
		return "⏳ <b>Upcoming</b>"
	case listImportant:
		return "❗ <b>Important</b>"
	}
	return "📋 <b>Current tasks</b>"
}

func (k listKind) filter(now time.Time) func(model.Task) bool {
	switch k {
	case listToday:
		return service.DueToday(now)
	case listUpcoming:
		return service.DueUpcoming(now)
	case listImportant:
		return service.Important
	}
	return nil
}

// renderTaskList groups open tasks by category. Each task gets a row of
// inline buttons.
func renderTaskList(kind listKind, tasks []model.Task, catNames map[uint]string, now time.Time) (string, [][]tgbotapi.InlineKeyboardButton) {
	view := service.Filter(tasks, kind.filter(now))
	if len(view.Active) == 0 {
		if kind == listAll {
			return "You have no open tasks. Add one with /newtask.", nil
		}
		return kind.title() + "\nNothing here.", nil
	}

	type categoryGroup struct {
		Name  string
		Tasks []model.Task
	}
	groups := make(map[string]*categoryGroup)
	var order []string
	for _, task := range view.Active {
		key, display := normalizedCategory(task.CategoryID, catNames)
		group, ok := groups[key]
		if !ok {
			group = &categoryGroup{Name: display}
			groups[key] = group
			order = append(order, key)
		}
		group.Tasks = append(group.Tasks, task)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i] == noCategoryKey {
			return false
		}
		if order[j] == noCategoryKey {
			return true
		}
		return groups[order[i]].Name < groups[order[j]].Name
	})

	var builder strings.Builder
	builder.WriteString(kind.title() + "\n")
	builder.WriteString("Tap a button to complete or delete a task.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		section := groups[key]
		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", section.Name))
		for _, task := range section.Tasks {
			builder.WriteString(service.FormatTask(task, catNames, now))
			buttons = append(buttons, taskButtons(task))
		}
		builder.WriteByte('\n')
	}
	if n := len(view.Completed); n > 0 && kind == listAll {
		builder.WriteString(fmt.Sprintf("✅ %d completed", n))
	}
	return strings.TrimSpace(builder.String()), buttons
}

func formatCreated(task model.Task, rec *service.RecurrenceInput, loc *time.Location) string {
	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", task.ShortID()))
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != nil {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(*task.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", task.Priority))
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", formatDue(*task.DueDate, loc)))
	}
	if rec != nil {
		rule := service.DescribeRule(model.RecurringTask{
			Mode:         rec.Mode,
			Frequency:    rec.Frequency,
			Interval:     rec.Interval,
			ReminderTime: &rec.ReminderTime,
		})
		summary.WriteString(fmt.Sprintf("• <b>Repeats:</b> %s\n", rule))
	}
	return strings.TrimSpace(summary.String())
}

func formatStats(stats service.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Statistics</b>\n")
	b.WriteString(fmt.Sprintf("• Total: %d\n", stats.Total))
	b.WriteString(fmt.Sprintf("• Completed: %d\n", stats.Completed))
	b.WriteString(fmt.Sprintf("• Open: %d\n", stats.Pending))
	b.WriteString(fmt.Sprintf("• Overdue: %d\n", stats.Overdue))
	b.WriteString(fmt.Sprintf("• Priority high/medium/low: %d/%d/%d",
		stats.ByPriority[model.PriorityHigh],
		stats.ByPriority[model.PriorityMedium],
		stats.ByPriority[model.PriorityLow]))
	if stats.Total > 0 {
		b.WriteString(fmt.Sprintf("\n• Done: %d%%", stats.Completed*100/stats.Total))
	}
	return b.String()
}

// formatDue hides midnight, which stands for "some time that day".
func formatDue(due time.Time, loc *time.Location) string {
	d := due.In(loc)
	if d.Hour() == 0 && d.Minute() == 0 {
		return d.Format("2006-01-02")
	}
	return d.Format("2006-01-02 15:04")
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizedCategory(categoryID *uint, catNames map[uint]string) (string, string) {
	if categoryID == nil {
		return noCategoryKey, categoryLabel(noCategory)
	}
	if name, ok := catNames[*categoryID]; ok {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return noCategoryKey, categoryLabel(noCategory)
		}
		return strings.ToLower(trimmed), categoryLabel(trimmed)
	}
	return noCategoryKey, categoryLabel(noCategory)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func categoryLabel(name string) string {
	base := strings.TrimSpace(name)
	var icon string
	switch strings.ToLower(base) {
	case "study":
		icon = "🎓"
	case "work":
		icon = "💼"
	case "shopping":
		icon = "🛒"
	case "health":
		icon = "🩺"
	case "personal":
		icon = "🧩"
	case strings.ToLower(noCategory):
		icon = "📁"
	default:
		icon = "🏷️"
	}
	return fmt.Sprintf("%s %s", icon, escape(normalizeTitle(base)))
}
