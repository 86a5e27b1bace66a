package rwsplit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scope is the routing state of one logical execution unit (a request, a
// job, a task). It holds a stack of explicit routing overrides, the time of
// the last write, a forced-primary flag and a replica pinned for the next
// read.
//
// A Scope is never inherited implicitly: work that hops to another goroutine
// sees the scope only if the context carrying it is passed along.
type Scope struct {
	id     string
	now    func() time.Time
	logger Logger

	mu           sync.Mutex
	stack        []RoutingType
	lastWrite    time.Time
	hasLastWrite bool
	forced       bool
	pinned       string
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) ScopeOption {
	return func(s *Scope) {
		s.now = now
	}
}

// WithLogger sets the logger used for trace events of the scope.
func WithLogger(logger Logger) ScopeOption {
	return func(s *Scope) {
		s.logger = logger
	}
}

// WithID overrides the random scope identifier.
func WithID(id string) ScopeOption {
	return func(s *Scope) {
		s.id = id
	}
}

// NewScope creates an empty scope: Current is Auto, no write recorded.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		now:    time.Now,
		logger: NopLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	return s
}

// ID identifies the execution unit in logs.
func (s *Scope) ID() string {
	return s.id
}

// Push adds an explicit override; the innermost override wins.
func (s *Scope) Push(t RoutingType) {
	s.mu.Lock()
	s.stack = append(s.stack, t)
	s.mu.Unlock()
}

// Pop removes the innermost override. Popping an empty stack is a no-op.
func (s *Scope) Pop() {
	s.mu.Lock()
	if len(s.stack) == 0 {
		s.mu.Unlock()
		s.logger.Report(NewScopeUnderflowEvent(s.id))
		return
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.mu.Unlock()
}

// Current returns the innermost override or Auto.
func (s *Scope) Current() RoutingType {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stack) == 0 {
		return Auto
	}
	return s.stack[len(s.stack)-1]
}

// Depth returns the number of pushed overrides.
func (s *Scope) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.stack)
}

// Do pushes t, runs fn and pops again on every exit path, panics included.
func (s *Scope) Do(t RoutingType, fn func() error) error {
	s.Push(t)
	defer s.Pop()
	return fn()
}

func (s *Scope) ForcePrimary() {
	s.mu.Lock()
	s.forced = true
	s.mu.Unlock()
}

func (s *Scope) ClearForcePrimary() {
	s.mu.Lock()
	s.forced = false
	s.mu.Unlock()
}

func (s *Scope) IsForcedPrimary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.forced
}

// MarkWrite records that a write has just been sent to the primary.
func (s *Scope) MarkWrite() {
	now := s.now()
	s.mu.Lock()
	s.lastWrite = now
	s.hasLastWrite = true
	s.mu.Unlock()
}

// LastWriteTime returns the time of the last write and false if there was
// none in this scope.
func (s *Scope) LastWriteTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastWrite, s.hasLastWrite
}

// PinReplica asks the next replica read to go to the named replica.
func (s *Scope) PinReplica(name string) {
	s.mu.Lock()
	s.pinned = name
	s.mu.Unlock()
}

// PinnedReplica returns the pinned replica name, or "" if none.
func (s *Scope) PinnedReplica() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pinned
}

// TakePinnedReplica returns the pinned replica name and clears the pin.
func (s *Scope) TakePinnedReplica() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.pinned
	s.pinned = ""
	return name
}

// Clear resets the whole scope. It must be called when the execution unit
// ends if the Scope object is going to be reused.
func (s *Scope) Clear() {
	s.mu.Lock()
	s.stack = s.stack[:0]
	s.lastWrite = time.Time{}
	s.hasLastWrite = false
	s.forced = false
	s.pinned = ""
	s.mu.Unlock()
}

// ShouldUseMaster reports whether the next statement has to go to the
// primary: forced primary, an explicit Master override or a write less than
// window ago.
func (s *Scope) ShouldUseMaster(window time.Duration) bool {
	s.mu.Lock()
	forced := s.forced
	current := Auto
	if len(s.stack) > 0 {
		current = s.stack[len(s.stack)-1]
	}
	lastWrite, hasLastWrite := s.lastWrite, s.hasLastWrite
	s.mu.Unlock()

	if forced {
		return true
	}
	if current == Master {
		return true
	}
	if hasLastWrite && s.now().Sub(lastWrite) < window {
		return true
	}
	return false
}

type scopeKey struct{}

// NewContext returns a copy of ctx carrying scope.
func NewContext(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext returns the scope carried by ctx or nil.
func FromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(scopeKey{}).(*Scope)
	return scope
}

// Enter starts an execution unit: it attaches a fresh scope to ctx and
// returns a release function that clears it. Callers defer the release.
//
//	ctx, release := rwsplit.Enter(ctx)
//	defer release()
func Enter(ctx context.Context, opts ...ScopeOption) (context.Context, func()) {
	scope := NewScope(opts...)
	return NewContext(ctx, scope), scope.Clear
}
