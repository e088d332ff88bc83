// Package logging provides the shared logger construction for all binaries.
package logging

import (
	"log/slog"
	"os"
)

// Logger is the structured logger handed to every component at startup.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing text records to stdout.
func NewLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stdout, nil))}
}
