package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
	"todo-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageCategory
	stagePriority
	stageDueDate
	stageMode
	stageFrequency
	stageInterval
	stageReminder
)

type conversationState struct {
	stage      conversationStage
	input      service.TaskInput
	recurrence service.RecurrenceInput
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.logger.Debug("new task conversation", zap.Int64("telegram_id", msg.From.ID))
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Creating a new task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The title cannot be empty.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or tap Skip).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Pick a category or type your own (Skip is fine).", categoryKeyboard())
	case stageCategory:
		if !isSkipInput(text) {
			state.input.Category = text
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "❗ Priority: low, medium or high?", priorityKeyboard())
	case stagePriority:
		if !isSkipInput(text) {
			priority, ok := model.ParsePriority(strings.ToLower(text))
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Choose low, medium or high.", priorityKeyboard())
			}
			state.input.Priority = priority
		}
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Due date as <code>2025-11-30</code> or <code>2025-11-30 18:00</code>, also <i>today</i> or <i>tomorrow</i> (or Skip).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			due, err := parseDueDate(text, b.taskSvc.Now())
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "I cannot read that date. Use <code>2025-11-30</code> or Skip.", skipKeyboard())
			}
			state.input.DueDate = &due
		}
		state.stage = stageMode
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Should the task repeat?", modeKeyboard())
	case stageMode:
		mode, recurring, ok := parseMode(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the options.", modeKeyboard())
		}
		if !recurring {
			return b.finishConversation(ctx, msg, state)
		}
		state.recurrence.Mode = mode
		state.stage = stageFrequency
		return b.sendWithReplyMarkup(msg.Chat.ID, "📆 How often: daily, weekly or monthly?", frequencyKeyboard())
	case stageFrequency:
		freq := model.Frequency(strings.ToLower(text))
		if !freq.Valid() {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Choose daily, weekly or monthly.", frequencyKeyboard())
		}
		state.recurrence.Frequency = freq
		state.stage = stageInterval
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("🔢 Every how many %s? (1–365, Skip means 1)", frequencyUnit(freq)), skipKeyboard())
	case stageInterval:
		interval := 1
		if !isSkipInput(text) {
			n, err := parseInterval(text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "The interval must be a number from 1 to 365.", skipKeyboard())
			}
			interval = n
		}
		state.recurrence.Interval = interval
		state.stage = stageReminder
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔔 Reminder time as <code>HH:MM</code> (or Skip).", skipKeyboard())
	case stageReminder:
		if !isSkipInput(text) {
			if _, _, err := recurrence.ParseTimeOfDay(text); err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Use <code>HH:MM</code>, for example <code>09:30</code>.", skipKeyboard())
			}
			state.recurrence.ReminderTime = text
		}
		rec := state.recurrence
		state.input.Recurrence = &rec
		return b.finishConversation(ctx, msg, state)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "The dialog was reset. Start again with /newtask.")
	}
}

func (b *Bot) finishConversation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	b.clearConversation(msg.From.ID)

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := b.taskSvc.CreateTask(ctx, user, state.input)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the task: %s", escape(err.Error())))
	}

	if err := b.sendText(msg.Chat.ID, formatCreated(*task, state.input.Recurrence, b.taskSvc.Location())); err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, user, listAll)
}

// parseDueDate accepts a date, a date with time, or today/tomorrow, all in
// now's location.
func parseDueDate(text string, now time.Time) (time.Time, error) {
	loc := now.Location()
	y, m, d := now.Date()
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "today":
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	case "tomorrow":
		return time.Date(y, m, d+1, 0, 0, 0, 0, loc), nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if parsed, err := time.ParseInLocation(layout, strings.TrimSpace(text), loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", text)
}

func parseMode(text string) (model.RecurrenceMode, bool, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case strings.ToLower(btnOnce), "no", "once":
		return "", false, true
	case strings.ToLower(btnScheduled), string(model.ModeScheduled):
		return model.ModeScheduled, true, true
	case strings.ToLower(btnAfterComplete), string(model.ModeAfterCompletion):
		return model.ModeAfterCompletion, true, true
	}
	return "", false, false
}

func parseInterval(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > 365 {
		return 0, fmt.Errorf("invalid interval %q", text)
	}
	return n, nil
}

func frequencyUnit(f model.Frequency) string {
	switch f {
	case model.FrequencyWeekly:
		return "weeks"
	case model.FrequencyMonthly:
		return "months"
	}
	return "days"
}
