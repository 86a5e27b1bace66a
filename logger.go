package rwsplit

import (
	"context"
	"log"
	"log/slog"
)

// LevelTrace is below slog.LevelDebug and is used for events that only
// matter while chasing routing bugs.
const LevelTrace = slog.Level(-8)

// Logger receives every event produced by the router, the resolver and the
// health monitor.
type Logger interface {
	Report(event LogEvent)
}

type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func NewSlogLogger(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{
		logger: logger,
		ctx:    context.Background(),
	}
}

func (l *SlogLogger) WithContext(ctx context.Context) SlogLogger {
	return SlogLogger{
		logger: l.logger,
		ctx:    ctx,
	}
}

func (l SlogLogger) Report(event LogEvent) {
	if !l.logger.Enabled(l.ctx, event.LogLevel()) {
		return
	}
	l.logger.LogAttrs(l.ctx, event.LogLevel(), event.Message(), event.LogAttrs()...)
}

type SimpleLogger struct{}

func (l SimpleLogger) Report(event LogEvent) {
	if event.LogLevel() < slog.LevelInfo {
		return
	}
	log.Printf("[%s] %s [event=%s]", event.LogLevel(), event.Message(), event.EventName())

	for _, attr := range event.LogAttrs() {
		if attr.Key == "error" {
			log.Printf("  Error: %v", attr.Value.Any())
		}
	}
}

// NopLogger drops every event.
type NopLogger struct{}

func (NopLogger) Report(LogEvent) {}
