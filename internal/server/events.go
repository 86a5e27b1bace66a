package server

import (
	"fmt"
	"log/slog"
	"time"
)

// ConfigReloadedEvent is reported after a configuration change was applied.
type ConfigReloadedEvent struct {
	Path      string
	Applied   int
	EventTime time.Time
}

func NewConfigReloadedEvent(path string, applied int) ConfigReloadedEvent {
	return ConfigReloadedEvent{Path: path, Applied: applied, EventTime: time.Now()}
}

func (e ConfigReloadedEvent) EventName() string { return "config_reloaded" }
func (e ConfigReloadedEvent) Message() string {
	return fmt.Sprintf("Configuration reloaded, %d availability overrides applied", e.Applied)
}
func (e ConfigReloadedEvent) LogLevel() slog.Level { return slog.LevelInfo }
func (e ConfigReloadedEvent) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("event", e.EventName()),
		slog.String("path", e.Path),
		slog.Int("applied", e.Applied),
		slog.Time("event_time", e.EventTime),
	}
}

// ConfigIgnoredEvent is reported for a configuration change that needs a
// restart, or for a reload that failed.
type ConfigIgnoredEvent struct {
	Reason    string
	Error     error
	EventTime time.Time
}

func NewConfigIgnoredEvent(reason string, err error) ConfigIgnoredEvent {
	return ConfigIgnoredEvent{Reason: reason, Error: err, EventTime: time.Now()}
}

func (e ConfigIgnoredEvent) EventName() string { return "config_ignored" }
func (e ConfigIgnoredEvent) Message() string {
	return fmt.Sprintf("Configuration change ignored: %s", e.Reason)
}
func (e ConfigIgnoredEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e ConfigIgnoredEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("event", e.EventName()),
		slog.String("reason", e.Reason),
		slog.Time("event_time", e.EventTime),
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}
