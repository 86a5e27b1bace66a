package rwsplit

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownGroup   = errors.New("unknown group")
	ErrUnknownReplica = errors.New("unknown replica")
	ErrNoScope        = errors.New("no routing scope in context")
)

// ConfigError is a fatal misconfiguration detected while wiring groups,
// targets or callers together. It is expected at startup only.
type ConfigError struct {
	Group string
	Err   error
}

// Error converts a ConfigError to a string.
func (e ConfigError) Error() string {
	if e.Group == "" {
		return fmt.Sprintf("rwsplit: configuration error: %s", e.Err)
	}
	return fmt.Sprintf("rwsplit: configuration error in group %q: %s", e.Group, e.Err)
}

// Unwrap returns the underlying error.
func (e ConfigError) Unwrap() error {
	return e.Err
}
