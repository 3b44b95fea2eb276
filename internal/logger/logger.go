package logger

import (
	"log/slog"
	"os"

	"cre-chatbot-platform/internal/config"
)

var Logger *slog.Logger

// InitLogger sets up JSON structured logging. Debug mode lowers the level
// and annotates records with their source location.
func InitLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.GinMode == "debug" {
		level = slog.LevelDebug
	}

	Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug",
	}))
	Logger.Info("logging initialized", "level", level.String(), "environment", cfg.Environment)
}

// Package-level helpers are nil-safe so library code can log before
// InitLogger runs (tests, tooling).

func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}
