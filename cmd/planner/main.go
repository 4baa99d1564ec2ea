package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/bot"
	"todo-planner/internal/config"
	"todo-planner/internal/logger"
	"todo-planner/internal/recurrence"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
)

const jobTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg := logger.New(logger.Config{Level: cfg.Logger.Level, Encoding: cfg.Logger.Encoding})
	defer func() { _ = logg.Sync() }()

	db, err := repository.NewDB(cfg.DatabaseURL, logg)
	if err != nil {
		logg.Fatal("open database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	recurringRepo := repository.NewRecurringRepository(db)

	api, err := bot.Connect(cfg.TelegramToken, logg)
	if err != nil {
		logg.Fatal("connect bot", zap.Error(err))
	}

	notifier := bot.NewNotifier(api, userRepo, cfg.Location, logg.Named("notifier"))
	taskSvc := service.NewTaskService(taskRepo, recurringRepo, categoryRepo, notifier, cfg.Location, recurrence.SystemClock{}, logg.Named("tasks"))
	reminderSvc := service.NewReminderService(taskRepo, taskSvc, categoryRepo, cfg.ReminderWindow)
	telegramBot := bot.New(api, notifier, userRepo, categoryRepo, taskSvc, reminderSvc, logg.Named("bot"))

	scheduler := service.NewSchedulerService(cfg.Location, logg.Named("scheduler"))
	job := func(name string, run func(context.Context) error) func() {
		return func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			if err := run(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error("job failed", zap.String("job", name), zap.Error(err))
			}
		}
	}

	scan := job("recurrence-scan", func(ctx context.Context) error {
		users, err := userRepo.ListAll(ctx)
		if err != nil {
			return err
		}
		taskSvc.RefreshAll(ctx, users)
		return nil
	})

	if _, err := scheduler.ScheduleInterval(cfg.ReminderCheckInterval, "reminders", job("reminders", telegramBot.SendDueReminders)); err != nil {
		logg.Fatal("schedule reminders", zap.Error(err))
	}
	if _, err := scheduler.ScheduleInterval(cfg.ScanInterval, "recurrence-scan", scan); err != nil {
		logg.Fatal("schedule recurrence scan", zap.Error(err))
	}
	report := job("daily-report", telegramBot.SendDailyReports)
	if cfg.ReportInterval > 0 {
		_, err = scheduler.ScheduleInterval(cfg.ReportInterval, "daily-report", report)
	} else {
		_, err = scheduler.ScheduleDaily(cfg.ReportTime, "daily-report", report)
	}
	if err != nil {
		logg.Fatal("schedule reports", zap.Error(err))
	}

	// Catch up on occurrences that came due while the process was down.
	scan()

	scheduler.Start()
	defer scheduler.Stop()

	logg.Info("todo planner bot started", zap.String("timezone", cfg.Location.String()))
	if err := telegramBot.Start(ctx, api); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("bot stopped with error", zap.Error(err))
	}
	logg.Info("shutdown complete")
}
