package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs the global slog logger: JSON in production, text elsewhere.
// LOG_LEVEL (debug, info, warn, error) overrides the environment default.
func Init() {
	production := strings.ToLower(os.Getenv("ENVIRONMENT")) == "production"

	level := slog.LevelDebug
	if production {
		level = slog.LevelInfo
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(raw)); err == nil {
			level = parsed
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if production {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// WithRequest returns a logger carrying the caller and project of one assistant request
func WithRequest(userID, projectID string) *slog.Logger {
	return slog.With(
		"user_id", userID,
		"project_id", projectID,
	)
}

// WithStage scopes a request logger to one pipeline stage
func WithStage(logger *slog.Logger, stage string) *slog.Logger {
	return logger.With("stage", stage)
}
