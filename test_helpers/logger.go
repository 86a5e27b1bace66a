package test_helpers

import (
	"sync"

	"github.com/ice-blockchain/go-rwsplit"
)

// RecordingLogger keeps every reported event.
type RecordingLogger struct {
	mu     sync.Mutex
	events []rwsplit.LogEvent
}

var _ rwsplit.Logger = (*RecordingLogger)(nil)

func (l *RecordingLogger) Report(event rwsplit.LogEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

// Events returns a copy of the recorded events.
func (l *RecordingLogger) Events() []rwsplit.LogEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	ret := make([]rwsplit.LogEvent, len(l.events))
	copy(ret, l.events)
	return ret
}

// Names returns the names of the recorded events in order.
func (l *RecordingLogger) Names() []string {
	events := l.Events()
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.EventName())
	}
	return names
}

// Count returns how many events with the name were recorded.
func (l *RecordingLogger) Count(name string) int {
	cnt := 0
	for _, n := range l.Names() {
		if n == name {
			cnt++
		}
	}
	return cnt
}

func (l *RecordingLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
