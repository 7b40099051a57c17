package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/LeonardoBeccarini/sensorlink/internal/config"
)

// New builds the process logger: colored text for dev builds, JSON otherwise.
func New(cfg config.Config, version string, appName string) *slog.Logger {
	return newTo(os.Stdout, cfg, version, appName)
}

func newTo(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if version == "dev" || cfg.AppEnv == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  version == "dev",
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	)
}
