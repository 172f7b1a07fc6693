package observability

import (
	"log/slog"
)

// SlogLogger adapts a slog.Logger to the hub Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps the provided slog logger; nil falls back to slog.Default.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Debug(msg string, fields ...Field) {
	l.logger.Debug(msg, attrs(fields)...)
}

func (l *SlogLogger) Info(msg string, fields ...Field) {
	l.logger.Info(msg, attrs(fields)...)
}

func (l *SlogLogger) Error(msg string, fields ...Field) {
	l.logger.Error(msg, attrs(fields)...)
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, field := range fields {
		out = append(out, slog.Any(field.Key, field.Value))
	}
	return out
}
