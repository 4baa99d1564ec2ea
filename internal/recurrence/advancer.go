package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/model"
)

// ScanReport summarises one scheduled scan.
type ScanReport struct {
	Evaluated int
	Created   int
	Skipped   int
	Failed    int
}

// Advancer drives both recurrence entry points: the scan run when a task
// list is loaded and the hook run when a task is completed.
type Advancer struct {
	definitions  DefinitionStore
	materializer *Materializer
	policy       Policy
	clock        Clock
	logger       *zap.Logger
}

func NewAdvancer(definitions DefinitionStore, materializer *Materializer, loc *time.Location, clock Clock, logger *zap.Logger) *Advancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Advancer{
		definitions:  definitions,
		materializer: materializer,
		policy:       Policy{Location: loc},
		clock:        clock,
		logger:       logger,
	}
}

// GenerateScheduled evaluates every scheduled definition of the owner once.
// A failure on one definition is logged and does not stop the others.
func (a *Advancer) GenerateScheduled(ctx context.Context, ownerID uint, coll Collection) (ScanReport, error) {
	var report ScanReport

	defs, err := a.definitions.ListDefinitionsForOwner(ctx, ownerID)
	if err != nil {
		return report, fmt.Errorf("list recurring tasks: %w", err)
	}

	now := a.clock.Now()
	for _, def := range defs {
		if def.Mode != model.ModeScheduled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Evaluated++

		created, err := a.scheduledStep(ctx, def, now, coll)
		switch {
		case errors.Is(err, ErrTemplateNotFound):
			report.Skipped++
			a.logger.Warn("template missing, skipping recurring task",
				zap.String("recurring_task_id", def.ID), zap.String("todo_id", def.TemplateID))
		case err != nil:
			report.Failed++
			a.logger.Error("recurring task step failed",
				zap.String("recurring_task_id", def.ID), zap.Error(err))
		case created:
			report.Created++
		}
	}
	return report, nil
}

func (a *Advancer) scheduledStep(ctx context.Context, def model.RecurringTask, now time.Time, coll Collection) (bool, error) {
	template, ok := coll.Find(def.TemplateID)
	if !ok {
		return false, ErrTemplateNotFound
	}

	plan := a.policy.PlanScheduled(def, now)
	if !plan.Persist {
		return false, nil
	}

	fields := map[string]interface{}{"next_run_at": plan.Cursor.UTC()}
	created := false
	if plan.Due != nil {
		var err error
		_, created, err = a.materializer.Materialize(ctx, template, def, *plan.Due, coll)
		if err != nil {
			return false, err
		}
		fields["last_generated_at"] = now.UTC()
	}

	if err := a.definitions.UpdateDefinition(ctx, def.ID, fields); err != nil {
		return created, fmt.Errorf("advance cursor: %w", err)
	}
	return created, nil
}

// HandleAfterCompletion generates the follow-up instance of a completed task
// whose definition runs in after-completion mode. Other tasks are ignored.
func (a *Advancer) HandleAfterCompletion(ctx context.Context, completed model.Task, completedAt time.Time, coll Collection) (*model.Task, error) {
	if completed.RecurringTaskID == nil || *completed.RecurringTaskID == "" {
		return nil, nil
	}

	def, err := a.definitions.FindDefinition(ctx, *completed.RecurringTaskID)
	if err != nil {
		return nil, fmt.Errorf("load recurring task: %w", err)
	}
	if def.Mode != model.ModeAfterCompletion {
		return nil, nil
	}

	due := a.policy.PlanAfterCompletion(*def, completed, completedAt)
	instance, _, err := a.materializer.Materialize(ctx, completed, *def, due, coll)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"next_run_at":       due.UTC(),
		"last_generated_at": a.clock.Now().UTC(),
	}
	if err := a.definitions.UpdateDefinition(ctx, def.ID, fields); err != nil {
		return instance, fmt.Errorf("advance cursor: %w", err)
	}
	return instance, nil
}
