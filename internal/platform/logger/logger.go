package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger, tagged with the service
// identity so multi-service logs interleave cleanly.
func New(service string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("service_name", service)
}
