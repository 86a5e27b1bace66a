package rwsplit

import (
	"fmt"
	"log/slog"
	"time"
)

type LogEvent interface {
	EventName() string
	Message() string
	LogLevel() slog.Level
	LogAttrs() []slog.Attr
}

type baseEvent struct {
	Group     string
	EventTime time.Time
}

func newBaseEvent(group string) baseEvent {
	return baseEvent{
		Group:     group,
		EventTime: time.Now(),
	}
}

func (e baseEvent) baseAttrs(name string) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("component", "rwsplit"),
		slog.String("event", name),
		slog.Time("event_time", e.EventTime),
	}
	if e.Group != "" {
		attrs = append(attrs, slog.String("group", e.Group))
	}
	return attrs
}

// ScopeUnderflowEvent is reported when Pop is called on an empty stack.
type ScopeUnderflowEvent struct {
	baseEvent
	ScopeID string
}

func NewScopeUnderflowEvent(scopeID string) ScopeUnderflowEvent {
	return ScopeUnderflowEvent{baseEvent: newBaseEvent(""), ScopeID: scopeID}
}

func (e ScopeUnderflowEvent) EventName() string    { return "scope_underflow" }
func (e ScopeUnderflowEvent) Message() string      { return "Pop on empty routing stack ignored" }
func (e ScopeUnderflowEvent) LogLevel() slog.Level { return LevelTrace }
func (e ScopeUnderflowEvent) LogAttrs() []slog.Attr {
	return append(e.baseAttrs(e.EventName()), slog.String("scope_id", e.ScopeID))
}

type FallbackEvent struct {
	baseEvent
	Primary string
}

func NewFallbackEvent(group, primary string) FallbackEvent {
	return FallbackEvent{baseEvent: newBaseEvent(group), Primary: primary}
}

func (e FallbackEvent) EventName() string { return "fallback" }
func (e FallbackEvent) Message() string {
	return fmt.Sprintf("No replica available, routing read to primary %s", e.Primary)
}
func (e FallbackEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e FallbackEvent) LogAttrs() []slog.Attr {
	return append(e.baseAttrs(e.EventName()), slog.String("primary", e.Primary))
}

type PinnedReplicaUnavailableEvent struct {
	baseEvent
	Replica string
}

func NewPinnedReplicaUnavailableEvent(group, replica string) PinnedReplicaUnavailableEvent {
	return PinnedReplicaUnavailableEvent{baseEvent: newBaseEvent(group), Replica: replica}
}

func (e PinnedReplicaUnavailableEvent) EventName() string { return "pinned_replica_unavailable" }
func (e PinnedReplicaUnavailableEvent) Message() string {
	return fmt.Sprintf("Pinned replica %s is not available, using load balancer", e.Replica)
}
func (e PinnedReplicaUnavailableEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e PinnedReplicaUnavailableEvent) LogAttrs() []slog.Attr {
	return append(e.baseAttrs(e.EventName()), slog.String("replica", e.Replica))
}

type ProbeFailedEvent struct {
	baseEvent
	Replica  string
	Failures int
	Limit    int
	Error    error
}

func NewProbeFailedEvent(group, replica string, failures, limit int, err error) ProbeFailedEvent {
	return ProbeFailedEvent{
		baseEvent: newBaseEvent(group),
		Replica:   replica,
		Failures:  failures,
		Limit:     limit,
		Error:     err,
	}
}

func (e ProbeFailedEvent) EventName() string { return "probe_failed" }
func (e ProbeFailedEvent) Message() string {
	return fmt.Sprintf("Health probe failed for replica %s (attempt %d/%d)", e.Replica, e.Failures, e.Limit)
}
func (e ProbeFailedEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e ProbeFailedEvent) LogAttrs() []slog.Attr {
	attrs := append(e.baseAttrs(e.EventName()),
		slog.String("replica", e.Replica),
		slog.Int("failures", e.Failures),
		slog.Int("failure_threshold", e.Limit),
	)
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}

type LagUnknownEvent struct {
	baseEvent
	Replica string
	Error   error
}

func NewLagUnknownEvent(group, replica string, err error) LagUnknownEvent {
	return LagUnknownEvent{baseEvent: newBaseEvent(group), Replica: replica, Error: err}
}

func (e LagUnknownEvent) EventName() string { return "lag_unknown" }
func (e LagUnknownEvent) Message() string {
	return fmt.Sprintf("Replication lag of replica %s is unknown", e.Replica)
}
func (e LagUnknownEvent) LogLevel() slog.Level { return slog.LevelDebug }
func (e LagUnknownEvent) LogAttrs() []slog.Attr {
	attrs := append(e.baseAttrs(e.EventName()), slog.String("replica", e.Replica))
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}

type LagExceededEvent struct {
	baseEvent
	Replica   string
	Lag       time.Duration
	Tolerance time.Duration
}

func NewLagExceededEvent(group, replica string, lag, tolerance time.Duration) LagExceededEvent {
	return LagExceededEvent{
		baseEvent: newBaseEvent(group),
		Replica:   replica,
		Lag:       lag,
		Tolerance: tolerance,
	}
}

func (e LagExceededEvent) EventName() string { return "lag_exceeded" }
func (e LagExceededEvent) Message() string {
	return fmt.Sprintf("Replica %s lags %s behind primary (tolerance %s)", e.Replica, e.Lag, e.Tolerance)
}
func (e LagExceededEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e LagExceededEvent) LogAttrs() []slog.Attr {
	return append(e.baseAttrs(e.EventName()),
		slog.String("replica", e.Replica),
		slog.Int64("lag_ms", e.Lag.Milliseconds()),
		slog.Int64("tolerance_ms", e.Tolerance.Milliseconds()),
	)
}

type ReplicaUnavailableEvent struct {
	baseEvent
	Replica  string
	Failures int
}

func NewReplicaUnavailableEvent(group, replica string, failures int) ReplicaUnavailableEvent {
	return ReplicaUnavailableEvent{baseEvent: newBaseEvent(group), Replica: replica, Failures: failures}
}

func (e ReplicaUnavailableEvent) EventName() string { return "replica_unavailable" }
func (e ReplicaUnavailableEvent) Message() string {
	if e.Failures == 0 {
		return fmt.Sprintf("Replica %s marked unavailable", e.Replica)
	}
	return fmt.Sprintf("Replica %s marked unavailable after %d failures", e.Replica, e.Failures)
}
func (e ReplicaUnavailableEvent) LogLevel() slog.Level { return slog.LevelError }
func (e ReplicaUnavailableEvent) LogAttrs() []slog.Attr {
	return append(e.baseAttrs(e.EventName()),
		slog.String("replica", e.Replica),
		slog.Int("failures", e.Failures),
	)
}

type ReplicaRecoveredEvent struct {
	baseEvent
	Replica string
}

func NewReplicaRecoveredEvent(group, replica string) ReplicaRecoveredEvent {
	return ReplicaRecoveredEvent{baseEvent: newBaseEvent(group), Replica: replica}
}

func (e ReplicaRecoveredEvent) EventName() string { return "replica_recovered" }
func (e ReplicaRecoveredEvent) Message() string {
	return fmt.Sprintf("Replica %s is available", e.Replica)
}
func (e ReplicaRecoveredEvent) LogLevel() slog.Level { return slog.LevelInfo }
func (e ReplicaRecoveredEvent) LogAttrs() []slog.Attr {
	return append(e.baseAttrs(e.EventName()), slog.String("replica", e.Replica))
}

// ReplayEvent is reported when a read that failed on a replica is retried
// on the primary.
type ReplayEvent struct {
	baseEvent
	Replica string
	Error   error
}

func NewReplayEvent(group, replica string, err error) ReplayEvent {
	return ReplayEvent{baseEvent: newBaseEvent(group), Replica: replica, Error: err}
}

func (e ReplayEvent) EventName() string { return "replay" }
func (e ReplayEvent) Message() string {
	return fmt.Sprintf("Read on replica %s failed, replaying on primary", e.Replica)
}
func (e ReplayEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e ReplayEvent) LogAttrs() []slog.Attr {
	attrs := append(e.baseAttrs(e.EventName()), slog.String("replica", e.Replica))
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}

type MonitorEvent struct {
	baseEvent
	Event    string
	Interval time.Duration
}

func NewMonitorEvent(event string, interval time.Duration) MonitorEvent {
	return MonitorEvent{baseEvent: newBaseEvent(""), Event: event, Interval: interval}
}

func (e MonitorEvent) EventName() string { return "monitor_" + e.Event }
func (e MonitorEvent) Message() string {
	switch e.Event {
	case "started":
		return fmt.Sprintf("Health monitor started with interval %s", e.Interval)
	case "stopped":
		return "Health monitor stopped"
	default:
		return "Health monitor event: " + e.Event
	}
}
func (e MonitorEvent) LogLevel() slog.Level { return slog.LevelInfo }
func (e MonitorEvent) LogAttrs() []slog.Attr {
	return append(e.baseAttrs(e.EventName()), slog.String("interval", e.Interval.String()))
}
