package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
)

type userLookup interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// Notifier pushes task events to the owner's private chat. It is the
// instance sink of the recurrence engine and the reminder delivery channel.
type Notifier struct {
	client   sender
	users    userLookup
	location *time.Location
	logger   *zap.Logger
}

var _ recurrence.InstanceSink = (*Notifier)(nil)

func NewNotifier(client sender, users userLookup, loc *time.Location, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Notifier{client: client, users: users, location: loc, logger: logger}
}

// InstanceCreated announces a task generated by a recurring definition.
func (n *Notifier) InstanceCreated(ctx context.Context, task model.Task) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>New recurring task</b>\n%s", iconRecurring, escape(normalizeTitle(task.Title))))
	if task.DueDate != nil {
		b.WriteString(fmt.Sprintf("\n⏰ due %s", task.DueDate.In(n.location).Format("2006-01-02")))
	}
	if task.ReminderTime != nil {
		b.WriteString(fmt.Sprintf("\n🔔 reminder at %s", task.ReminderTime.In(n.location).Format("2006-01-02 15:04")))
	}
	if err := n.notify(ctx, task, b.String()); err != nil {
		n.logger.Warn("announce instance", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// Remind sends the reminder of one task with a button to complete it.
func (n *Notifier) Remind(ctx context.Context, task model.Task) error {
	text := fmt.Sprintf("🔔 <b>Reminder</b>\n%s", escape(normalizeTitle(task.Title)))
	if task.Description != nil && strings.TrimSpace(*task.Description) != "" {
		text += "\n📝 " + escape(strings.TrimSpace(*task.Description))
	}
	return n.notify(ctx, task, text, doneKeyboard(task.ID))
}

func (n *Notifier) notify(ctx context.Context, task model.Task, text string, markup ...interface{}) error {
	user, err := n.users.FindByID(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("find owner %d: %w", task.UserID, err)
	}
	msg := tgbotapi.NewMessage(user.ChatID(), text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(markup) > 0 {
		msg.ReplyMarkup = markup[0]
	}
	_, err = n.client.Send(msg)
	return err
}
