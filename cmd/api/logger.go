package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/BradenHooton/consensus/internal/config"
	"github.com/lmittmann/tint"
)

// newLogger builds the process logger: colour text through tint for local
// development, JSON everywhere else
func newLogger(cfg config.ServerConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}))
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
