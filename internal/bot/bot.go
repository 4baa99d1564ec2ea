package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
)

// sender is the part of the Telegram client used for output.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type updatesSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionDelete
)

type confirmationRequest struct {
	taskID string
	action confirmationAction
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           sender
	notifier      *Notifier
	userRepo      *repository.UserRepository
	categoryRepo  *repository.CategoryRepository
	taskSvc       *service.TaskService
	reminderSvc   *service.ReminderService
	logger        *zap.Logger
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
}

// Connect authorizes against the Bot API and routes the library's own
// logging through zap.
func Connect(token string, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := tgbotapi.SetLogger(zap.NewStdLog(logger.Named("telegram"))); err != nil {
		return nil, fmt.Errorf("set bot api logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	logger.Info("bot authorized", zap.String("account", api.Self.UserName))
	return api, nil
}

func New(api sender, notifier *Notifier, userRepo *repository.UserRepository, categoryRepo *repository.CategoryRepository, taskSvc *service.TaskService, reminderSvc *service.ReminderService, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:           api,
		notifier:      notifier,
		userRepo:      userRepo,
		categoryRepo:  categoryRepo,
		taskSvc:       taskSvc,
		reminderSvc:   reminderSvc,
		logger:        logger,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context, source updatesSource) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := source.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		source.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.logger.Error("handle callback", zap.Error(err))
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.logger.Error("handle message", zap.Int64("chat_id", update.Message.Chat.ID), zap.Error(err))
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Task input cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.logger.Info("command",
			zap.Int64("telegram_id", msg.From.ID),
			zap.String("command", msg.Command()),
			zap.String("args", msg.CommandArguments()))
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Use /newtask to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleList(ctx, msg, listAll)
	case "today":
		return b.handleList(ctx, msg, listToday)
	case "upcoming":
		return b.handleList(ctx, msg, listUpcoming)
	case "important":
		return b.handleList(ctx, msg, listImportant)
	case "stats":
		return b.handleStats(ctx, msg)
	case "complete":
		return b.handleSetCompleted(ctx, msg, true)
	case "reopen":
		return b.handleSetCompleted(ctx, msg, false)
	case "progress":
		return b.handleProgress(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Task input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "• /newtask — add a task step by step\n" +
	"• /tasks — open tasks with complete and delete buttons\n" +
	"• /today, /upcoming, /important — filtered views\n" +
	"• /stats — counters\n" +
	"• /complete &lt;id&gt; — mark done (the first characters of the id are enough)\n" +
	"• /reopen &lt;id&gt; — mark open again\n" +
	"• /progress &lt;id&gt; — mark in progress\n" +
	"• /delete &lt;id&gt; — delete a task\n" +
	"• /report — daily report now\n" +
	"• /cancel — cancel the current input"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your to-do list and repeat recurring tasks for you.</b>\n\nCommands:\n%s",
		escape(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+helpText)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(msg.Text)) {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleList(ctx, msg, listAll)
	case strings.ToLower(menuLabelToday):
		return true, b.handleList(ctx, msg, listToday)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) handleList(ctx context.Context, msg *tgbotapi.Message, kind listKind) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, user, kind)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User, kind listKind) error {
	tasks, err := b.taskSvc.LoadTasks(ctx, user)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}

	text, buttons := renderTaskList(kind, tasks, b.categoryNames(ctx, user), b.taskSvc.Now())
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tasks, err := b.taskSvc.LoadTasks(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatStats(service.ComputeStats(tasks, b.taskSvc.Now())))
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reminderSvc.DailySummary(ctx, *user, b.taskSvc.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the report: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

// resolveArg turns the command argument into a task of the sender.
func (b *Bot) resolveArg(ctx context.Context, msg *tgbotapi.Message, usage string) (*model.User, *model.Task, error) {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return nil, nil, b.sendText(msg.Chat.ID, "Give the task id: "+usage)
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return nil, nil, err
	}
	task, err := b.taskSvc.ResolveTask(ctx, user, args)
	if err != nil {
		return nil, nil, b.sendText(msg.Chat.ID, describeError(err))
	}
	return user, &task, nil
}

func (b *Bot) handleSetCompleted(ctx context.Context, msg *tgbotapi.Message, done bool) error {
	usage := "/complete 1a2b3c4d"
	if !done {
		usage = "/reopen 1a2b3c4d"
	}
	user, task, err := b.resolveArg(ctx, msg, usage)
	if task == nil {
		return err
	}
	if task.IsCompleted == done {
		if done {
			return b.sendText(msg.Chat.ID, "The task is already done.")
		}
		return b.sendText(msg.Chat.ID, "The task is already open.")
	}
	return b.sendText(msg.Chat.ID, b.applyCompletion(ctx, user, *task, done))
}

func (b *Bot) handleProgress(ctx context.Context, msg *tgbotapi.Message) error {
	user, task, err := b.resolveArg(ctx, msg, "/progress 1a2b3c4d")
	if task == nil {
		return err
	}
	res := b.taskSvc.SetStatus(ctx, user, task.ID, model.StatusInProgress)
	if !res.OK() {
		return b.sendText(msg.Chat.ID, describeError(res.Err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🚧 «%s» is in progress.", escape(normalizeTitle(task.Title))))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	user, task, err := b.resolveArg(ctx, msg, "/delete 1a2b3c4d")
	if task == nil {
		return err
	}
	res := b.taskSvc.DeleteTask(ctx, user, task.ID)
	if !res.OK() {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not delete the task: %s", describeError(res.Err)))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Task «%s» deleted.", escape(normalizeTitle(task.Title))))
}

// applyCompletion runs the change and returns the chat reply.
func (b *Bot) applyCompletion(ctx context.Context, user *model.User, task model.Task, done bool) string {
	res := b.taskSvc.SetCompleted(ctx, user, task.ID, done)
	if !res.OK() {
		return fmt.Sprintf("Could not update the task: %s", describeError(res.Err))
	}
	title := escape(normalizeTitle(task.Title))
	if !done {
		return fmt.Sprintf("↩️ Task «%s» is open again.", title)
	}

	reply := fmt.Sprintf("✅ Task «%s» done.", title)
	switch {
	case res.Next != nil && res.Next.DueDate != nil:
		reply += fmt.Sprintf("\n%s Next one is due %s.", iconRecurring, formatDue(*res.Next.DueDate, b.taskSvc.Location()))
	case res.FollowUpErr != nil:
		reply += "\n⚠️ The next occurrence could not be scheduled."
	}
	return reply
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack", zap.Error(err))
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID
	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		return b.askConfirmation(ctx, chatID, cb.From, strings.TrimPrefix(data, cbCompletePrefix), actionComplete)
	case strings.HasPrefix(data, cbDeletePrefix):
		return b.askConfirmation(ctx, chatID, cb.From, strings.TrimPrefix(data, cbDeletePrefix), actionDelete)
	case strings.HasPrefix(data, cbConfirmPrefix):
		return b.runConfirmed(ctx, chatID, cb.From, confirmationRequest{
			taskID: strings.TrimPrefix(data, cbConfirmPrefix),
			action: actionComplete,
		})
	case strings.HasPrefix(data, cbCancelPrefix):
		b.clearConfirmation(cb.From.ID)
	}
	return nil
}

func (b *Bot) askConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string, action confirmationAction) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	task, err := b.taskSvc.ResolveTask(ctx, user, taskID)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}

	var text string
	if action == actionDelete {
		text = fmt.Sprintf("Delete task «%s» (%s)?", escape(normalizeTitle(task.Title)), task.ShortID())
	} else {
		if task.IsCompleted {
			return b.sendText(chatID, "The task is already done.")
		}
		text = fmt.Sprintf("Mark task «%s» (%s) as done?", escape(normalizeTitle(task.Title)), task.ShortID())
	}
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: action})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.runConfirmed(ctx, msg.Chat.ID, msg.From, req)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "🔹 Nothing changed.")
	default:
		prompt := "Confirm or cancel completing the task."
		if req.action == actionDelete {
			prompt = "Confirm or cancel deleting the task."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

func (b *Bot) runConfirmed(ctx context.Context, chatID int64, from *tgbotapi.User, req confirmationRequest) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	task, err := b.taskSvc.ResolveTask(ctx, user, req.taskID)
	if err != nil {
		return b.sendText(chatID, "The task was not found or is already deleted.")
	}

	var reply string
	if req.action == actionDelete {
		res := b.taskSvc.DeleteTask(ctx, user, task.ID)
		if res.OK() {
			reply = fmt.Sprintf("🗑 Task «%s» deleted.", escape(normalizeTitle(task.Title)))
		} else {
			reply = fmt.Sprintf("Could not delete the task: %s", describeError(res.Err))
		}
	} else {
		if task.IsCompleted {
			return b.sendText(chatID, "The task is already done.")
		}
		reply = b.applyCompletion(ctx, user, task, true)
	}

	if err := b.sendText(chatID, reply); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user, listAll)
}

// SendDailyReports sends a summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.taskSvc.Now()
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := b.reminderSvc.DailySummary(ctx, user, now)
		if err != nil {
			b.logger.Error("build summary", zap.Uint("user_id", user.ID), zap.Error(err))
			continue
		}
		if err := b.sendText(user.ChatID(), text); err != nil {
			b.logger.Warn("send summary", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// SendDueReminders delivers reminders that fall into the current window.
func (b *Bot) SendDueReminders(ctx context.Context) error {
	tasks, err := b.reminderSvc.DueReminders(ctx, b.taskSvc.Now())
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := b.notifier.Remind(ctx, task); err != nil {
			b.logger.Warn("send reminder", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		b.logger.Info("reminder sent", zap.String("task_id", task.ID), zap.Uint("user_id", task.UserID))
	}
	return nil
}

func (b *Bot) categoryNames(ctx context.Context, user *model.User) map[uint]string {
	names := make(map[uint]string)
	categories, err := b.categoryRepo.ListByUser(ctx, user.ID)
	if err != nil {
		b.logger.Warn("list categories", zap.Uint("user_id", user.ID), zap.Error(err))
		return names
	}
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}
	return names
}

func describeError(err error) string {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		return "Task not found."
	case errors.Is(err, service.ErrAmbiguousID):
		return "Several tasks match that id, type more characters."
	case errors.Is(err, service.ErrNothingChanged):
		return "Nothing to change."
	case errors.Is(err, service.ErrInvalidInput):
		return escape(err.Error())
	}
	return "Error: " + escape(err.Error())
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
