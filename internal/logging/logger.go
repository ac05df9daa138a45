package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithAgent returns a logger with the acting agent attached.
func WithAgent(agentID, handle string) *slog.Logger {
	return slog.With(
		"agent_id", agentID,
		"twitter_handle", handle,
	)
}

// WithRequest returns a logger with request fields attached.
func WithRequest(method, path string) *slog.Logger {
	return slog.With(
		"method", method,
		"path", path,
	)
}

// WithContribution scopes a logger to one contribution submission.
func WithContribution(logger *slog.Logger, branch, filePath string) *slog.Logger {
	return logger.With(
		"branch", branch,
		"file_path", filePath,
	)
}
