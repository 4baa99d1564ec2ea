package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"todo-planner/internal/recurrence"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken string
	DatabaseURL   string
	Location      *time.Location

	// ReportInterval, when set, replaces the daily report at ReportTime.
	ReportInterval        time.Duration
	ReportTime            string
	ScanInterval          time.Duration
	ReminderCheckInterval time.Duration
	ReminderWindow        time.Duration

	Logger LoggerConfig
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from environment variables (optionally .env)
// with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		TelegramToken:         strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:           getString("DATABASE_URL", "todo_planner.db"),
		ReportInterval:        parseInterval(strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS"))),
		ReportTime:            getString("REPORT_TIME", "09:00"),
		ScanInterval:          getDuration("SCAN_INTERVAL", 15*time.Minute),
		ReminderCheckInterval: getDuration("REMINDER_CHECK_INTERVAL", 30*time.Second),
		ReminderWindow:        getDuration("REMINDER_WINDOW", time.Minute),
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
	}

	loc, err := loadLocation(getString("TIMEZONE", ""))
	if err != nil {
		return cfg, err
	}
	cfg.Location = loc

	if cfg.ReportInterval == 0 {
		if _, _, err := recurrence.ParseTimeOfDay(cfg.ReportTime); err != nil {
			return cfg, fmt.Errorf("REPORT_TIME: %w", err)
		}
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
