package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/oj-problem-hub/internal/config"
)

// SetupLogger builds the process logger: human-readable text at debug
// level in dev, JSON at info level everywhere else. Service and env
// fields ride on every record.
func SetupLogger(cfg config.Config) *slog.Logger {
	var h slog.Handler
	if cfg.IsDev() {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
