package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
	"todo-planner/internal/repository"
)

var ErrInvalidInput = errors.New("invalid input")

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	Category    string
	Priority    model.Priority
	Tags        []string
	DueDate     *time.Time
	Recurrence  *RecurrenceInput
}

// RecurrenceInput enables recurrence on a new task.
type RecurrenceInput struct {
	Mode         model.RecurrenceMode
	Frequency    model.Frequency
	Interval     int
	StartDate    *time.Time
	ReminderTime string
}

// TaskPatch lists editable fields; nil means unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *model.Priority
	Status      *model.TaskStatus
	Tags        []string
	DueDate     *time.Time
	ClearDue    bool
}

// CompletionResult extends MutationResult with the follow-up instance that
// an after-completion definition produced.
type CompletionResult struct {
	MutationResult
	Next        *model.Task
	FollowUpErr error
}

type categoryResolver interface {
	GetOrCreate(ctx context.Context, userID uint, name string) (*model.Category, error)
}

type definitionStore interface {
	recurrence.DefinitionStore
	CreateWithTemplate(ctx context.Context, task *model.Task, def *model.RecurringTask) error
}

type session struct {
	mu     sync.Mutex
	list   *TaskList
	loaded bool
}

// TaskService wraps task-related business logic. Work for one owner is
// serialized by a per-owner lock, so chat handlers and background scans do
// not interleave.
type TaskService struct {
	tasks       recurrence.TaskStore
	definitions definitionStore
	categories  categoryResolver
	advancer    *recurrence.Advancer
	policy      recurrence.Policy
	clock       recurrence.Clock
	location    *time.Location
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[uint]*session
}

func NewTaskService(tasks recurrence.TaskStore, definitions definitionStore, categories categoryResolver, sink recurrence.InstanceSink, loc *time.Location, clock recurrence.Clock, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = recurrence.SystemClock{}
	}
	materializer := recurrence.NewMaterializer(tasks, sink, loc, logger.Named("materializer"))
	return &TaskService{
		tasks:       tasks,
		definitions: definitions,
		categories:  categories,
		advancer:    recurrence.NewAdvancer(definitions, materializer, loc, clock, logger.Named("advancer")),
		policy:      recurrence.Policy{Location: loc},
		clock:       clock,
		location:    loc,
		logger:      logger,
		sessions:    make(map[uint]*session),
	}
}

func (s *TaskService) Location() *time.Location { return s.location }

func (s *TaskService) session(ownerID uint) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ownerID]
	if !ok {
		sess = &session{list: NewTaskList(ownerID)}
		s.sessions[ownerID] = sess
	}
	return sess
}

// LoadTasks reloads the owner's tasks and materializes scheduled instances
// that became due.
func (s *TaskService) LoadTasks(ctx context.Context, user *model.User) ([]model.Task, error) {
	sess := s.session(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.reload(ctx, sess); err != nil {
		return nil, err
	}
	return sess.list.Snapshot(), nil
}

func (s *TaskService) reload(ctx context.Context, sess *session) error {
	ownerID := sess.list.OwnerID()
	tasks, err := s.tasks.ListTasksForOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	sess.list.Replace(tasks)
	sess.loaded = true

	report, err := s.advancer.GenerateScheduled(ctx, ownerID, sess.list)
	if err != nil {
		s.logger.Error("generate scheduled tasks", zap.Uint("user_id", ownerID), zap.Error(err))
		return nil
	}
	if report.Created > 0 || report.Failed > 0 || report.Skipped > 0 {
		s.logger.Info("scheduled scan finished",
			zap.Uint("user_id", ownerID),
			zap.Int("evaluated", report.Evaluated),
			zap.Int("created", report.Created),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	}
	return nil
}

func (s *TaskService) ensureLoaded(ctx context.Context, sess *session) error {
	if sess.loaded {
		return nil
	}
	return s.reload(ctx, sess)
}

// RefreshAll runs the load-time scan for every owner. Failures are logged
// per owner.
func (s *TaskService) RefreshAll(ctx context.Context, users []model.User) {
	for i := range users {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.LoadTasks(ctx, &users[i]); err != nil {
			s.logger.Error("refresh tasks", zap.Uint("user_id", users[i].ID), zap.Error(err))
		}
	}
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	priority, ok := model.ParsePriority(string(input.Priority))
	if !ok {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, input.Priority)
	}

	task := model.Task{
		UserID:   user.ID,
		Title:    title,
		Status:   model.StatusPending,
		Priority: priority,
		Tags:     input.Tags,
		DueDate:  input.DueDate,
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		task.Description = &desc
	}

	if input.Category != "" {
		category, err := s.categories.GetOrCreate(ctx, user.ID, input.Category)
		if err != nil {
			return nil, err
		}
		if category != nil {
			task.CategoryID = &category.ID
		}
	}

	var def *model.RecurringTask
	if input.Recurrence != nil {
		var err error
		def, err = s.buildDefinition(&task, *input.Recurrence)
		if err != nil {
			return nil, err
		}
	}
	normalizeTimes(&task)

	sess := s.session(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if def != nil {
		if err := s.definitions.CreateWithTemplate(ctx, &task, def); err != nil {
			return nil, err
		}
	} else if err := s.tasks.InsertTask(ctx, &task); err != nil {
		return nil, err
	}

	if sess.loaded {
		sess.list.Add(task)
	}
	s.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.Uint("user_id", user.ID),
		zap.Bool("recurring", def != nil))
	return &task, nil
}

// buildDefinition validates the recurrence input and prepares both the
// template task and its definition.
func (s *TaskService) buildDefinition(task *model.Task, in RecurrenceInput) (*model.RecurringTask, error) {
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown recurrence mode %q", ErrInvalidInput, in.Mode)
	}
	if !in.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, in.Frequency)
	}
	var reminder *string
	if clock := strings.TrimSpace(in.ReminderTime); clock != "" {
		if _, _, err := recurrence.ParseTimeOfDay(clock); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		reminder = &clock
	}
	interval := in.Interval
	if interval < 1 {
		interval = 1
	}

	if in.Mode == model.ModeScheduled && task.DueDate == nil && in.StartDate != nil {
		due := *in.StartDate
		task.DueDate = &due
	}
	if reminder != nil && task.DueDate != nil {
		task.ReminderTime = recurrence.ApplyReminderTime(task.DueDate.In(s.location), *reminder)
	}

	def := &model.RecurringTask{
		UserID:       task.UserID,
		Mode:         in.Mode,
		Frequency:    in.Frequency,
		Interval:     interval,
		ReminderTime: reminder,
	}
	start := in.StartDate
	if start == nil {
		start = task.DueDate
	}
	if def.Mode == model.ModeScheduled {
		// The cursor keeps the time of day of the start; only the column is
		// cut down to a calendar day.
		seed := *def
		seed.StartDate = start
		cursor := s.policy.SeedCursor(seed, s.clock.Now()).UTC()
		def.NextRunAt = &cursor
	}
	if start != nil {
		y, m, d := start.In(s.location).Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, s.location).UTC()
		def.StartDate = &day
	}
	return def, nil
}

// SetCompleted marks a task done or open again. Completing a task that
// belongs to an after-completion definition generates the next instance.
func (s *TaskService) SetCompleted(ctx context.Context, user *model.User, id string, done bool) CompletionResult {
	sess := s.session(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return CompletionResult{MutationResult: MutationResult{Err: err}}
	}

	if current, ok := sess.list.Find(id); ok && current.IsCompleted == done {
		return CompletionResult{MutationResult: MutationResult{Err: ErrNothingChanged}}
	}

	at := s.clock.Now()
	res := sess.list.Update(ctx, id,
		func(t *model.Task) { t.SetCompleted(done, at.UTC()) },
		func(ctx context.Context) error {
			return s.tasks.UpdateTask(ctx, id, model.CompletionFields(done, at.UTC()))
		})
	out := CompletionResult{MutationResult: res}
	if !res.OK() {
		s.logger.Warn("completion rolled back", zap.String("task_id", id), zap.Error(res.Err))
		return out
	}

	if done {
		next, err := s.advancer.HandleAfterCompletion(ctx, *res.Task, at, sess.list)
		if err != nil {
			s.logger.Error("after-completion recurrence failed", zap.String("task_id", id), zap.Error(err))
			out.FollowUpErr = err
		}
		out.Next = next
	}
	return out
}

// SetStatus moves a task between pending, in_progress and completed.
func (s *TaskService) SetStatus(ctx context.Context, user *model.User, id string, status model.TaskStatus) CompletionResult {
	switch status {
	case model.StatusCompleted:
		return s.SetCompleted(ctx, user, id, true)
	case model.StatusPending, model.StatusInProgress:
	default:
		return CompletionResult{MutationResult: MutationResult{Err: fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)}}
	}
	res := s.UpdateTask(ctx, user, id, TaskPatch{Status: &status})
	return CompletionResult{MutationResult: res}
}

// UpdateTask edits a task optimistically.
func (s *TaskService) UpdateTask(ctx context.Context, user *model.User, id string, patch TaskPatch) MutationResult {
	fields, mutate, err := s.patchFields(patch)
	if err != nil {
		return MutationResult{Err: err}
	}

	sess := s.session(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return MutationResult{Err: err}
	}
	return sess.list.Update(ctx, id, mutate, func(ctx context.Context) error {
		return s.tasks.UpdateTask(ctx, id, fields)
	})
}

func (s *TaskService) patchFields(p TaskPatch) (map[string]interface{}, func(*model.Task), error) {
	fields := make(map[string]interface{})
	var steps []func(*model.Task)

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		fields["title"] = title
		steps = append(steps, func(t *model.Task) { t.Title = title })
	}
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		if desc == "" {
			fields["description"] = nil
			steps = append(steps, func(t *model.Task) { t.Description = nil })
		} else {
			fields["description"] = desc
			steps = append(steps, func(t *model.Task) { t.Description = &desc })
		}
	}
	if p.Priority != nil {
		priority, ok := model.ParsePriority(string(*p.Priority))
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *p.Priority)
		}
		fields["priority"] = priority
		steps = append(steps, func(t *model.Task) { t.Priority = priority })
	}
	if p.Status != nil {
		status := *p.Status
		if status == model.StatusCompleted {
			return nil, nil, fmt.Errorf("%w: use SetCompleted to complete a task", ErrInvalidInput)
		}
		for k, v := range model.CompletionFields(false, time.Time{}) {
			fields[k] = v
		}
		fields["status"] = status
		steps = append(steps, func(t *model.Task) {
			t.SetCompleted(false, time.Time{})
			t.Status = status
		})
	}
	if p.Tags != nil {
		tags := append([]string(nil), p.Tags...)
		fields["tags"] = tags
		steps = append(steps, func(t *model.Task) { t.Tags = tags })
	}
	if p.ClearDue {
		fields["due_date"] = nil
		fields["reminder_time"] = nil
		steps = append(steps, func(t *model.Task) { t.DueDate, t.ReminderTime = nil, nil })
	} else if p.DueDate != nil {
		due := p.DueDate.UTC()
		fields["due_date"] = due
		steps = append(steps, func(t *model.Task) { t.DueDate = &due })
	}

	if len(fields) == 0 {
		return nil, nil, ErrNothingChanged
	}
	return fields, func(t *model.Task) {
		for _, step := range steps {
			step(t)
		}
	}, nil
}

// DeleteTask removes a task optimistically. Definitions are left alone.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, id string) MutationResult {
	sess := s.session(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return MutationResult{Err: err}
	}
	res := sess.list.Remove(ctx, id, func(ctx context.Context) error {
		err := s.tasks.DeleteTask(ctx, id)
		if errors.Is(err, repository.ErrTaskNotFound) {
			return ErrTaskNotFound
		}
		return err
	})
	if res.OK() {
		s.logger.Info("task deleted", zap.String("task_id", id), zap.Uint("user_id", user.ID))
	}
	return res
}

// ResolveTask finds a task by full id or unique prefix.
func (s *TaskService) ResolveTask(ctx context.Context, user *model.User, ref string) (model.Task, error) {
	sess := s.session(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return model.Task{}, err
	}
	return sess.list.FindByPrefix(ref)
}

// Tasks returns the cached collection, loading it on first use.
func (s *TaskService) Tasks(ctx context.Context, user *model.User) ([]model.Task, error) {
	sess := s.session(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.ensureLoaded(ctx, sess); err != nil {
		return nil, err
	}
	return sess.list.Snapshot(), nil
}

func (s *TaskService) Definitions(ctx context.Context, user *model.User) ([]model.RecurringTask, error) {
	return s.definitions.ListDefinitionsForOwner(ctx, user.ID)
}

func (s *TaskService) Now() time.Time {
	return s.clock.Now().In(s.location)
}

func normalizeTimes(task *model.Task) {
	if task.DueDate != nil {
		due := task.DueDate.UTC()
		task.DueDate = &due
	}
	if task.ReminderTime != nil {
		r := task.ReminderTime.UTC()
		task.ReminderTime = &r
	}
}
