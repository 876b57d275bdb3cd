// Package testutil provides shared testing utilities, mocks, and fixtures
// for use across the mail-dispatch-kit test suite.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Outcome is one scripted result of a transport call.
type Outcome struct {
	OK    bool
	Err   error
	Panic interface{}
}

// Succeed returns an outcome reporting a delivered message.
func Succeed() Outcome { return Outcome{OK: true} }

// Fail returns an outcome reporting a falsy result with no error.
func Fail() Outcome { return Outcome{} }

// FailWith returns an outcome reporting the given error.
func FailWith(err error) Outcome { return Outcome{Err: err} }

// PanicWith returns an outcome that panics with v.
func PanicWith(v interface{}) Outcome { return Outcome{Panic: v} }

// ErrScripted is the error used by AlwaysError.
var ErrScripted = errors.New("scripted transport failure")

// ScriptedTransport is a types.NamedTransport that replays a fixed sequence of
// outcomes. Once the script is used up every further call gets the fallback
// outcome. It records each call for later assertions.
type ScriptedTransport struct {
	mu sync.Mutex

	name     string
	script   []Outcome
	fallback Outcome
	clock    *FakeClock

	// Call tracking
	calls     int
	messages  []types.Message
	callTimes []time.Time
}

// NewScriptedTransport creates a transport that plays outcomes in order and
// then keeps failing.
func NewScriptedTransport(name string, outcomes ...Outcome) *ScriptedTransport {
	return &ScriptedTransport{
		name:     name,
		script:   outcomes,
		fallback: Fail(),
	}
}

// AlwaysSucceed creates a transport that delivers every message.
func AlwaysSucceed(name string) *ScriptedTransport {
	return NewScriptedTransport(name).WithFallback(Succeed())
}

// AlwaysFail creates a transport that returns false on every call.
func AlwaysFail(name string) *ScriptedTransport {
	return NewScriptedTransport(name)
}

// AlwaysError creates a transport that returns ErrScripted on every call.
func AlwaysError(name string) *ScriptedTransport {
	return NewScriptedTransport(name).WithFallback(FailWith(ErrScripted))
}

// SucceedOnAttempt creates a transport that fails n-1 times and then succeeds.
func SucceedOnAttempt(name string, n int) *ScriptedTransport {
	outcomes := make([]Outcome, 0, n)
	for i := 1; i < n; i++ {
		outcomes = append(outcomes, Fail())
	}
	outcomes = append(outcomes, Succeed())
	return NewScriptedTransport(name, outcomes...)
}

// WithFallback sets the outcome used after the script runs out.
func (s *ScriptedTransport) WithFallback(o Outcome) *ScriptedTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = o
	return s
}

// WithClock records call times against the given fake clock.
func (s *ScriptedTransport) WithClock(c *FakeClock) *ScriptedTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
	return s
}

// Name implements types.NamedTransport.
func (s *ScriptedTransport) Name() string {
	return s.name
}

// Send implements types.Transport.
func (s *ScriptedTransport) Send(_ context.Context, msg types.Message) (bool, error) {
	s.mu.Lock()
	outcome := s.fallback
	if s.calls < len(s.script) {
		outcome = s.script[s.calls]
	}
	s.calls++
	s.messages = append(s.messages, msg)
	if s.clock != nil {
		s.callTimes = append(s.callTimes, s.clock.Now())
	}
	s.mu.Unlock()

	if outcome.Panic != nil {
		panic(outcome.Panic)
	}
	return outcome.OK, outcome.Err
}

// Calls returns the number of Send calls so far.
func (s *ScriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Messages returns a copy of every message passed to Send.
func (s *ScriptedTransport) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// CallTimes returns the fake-clock time of each call. Empty unless WithClock was used.
func (s *ScriptedTransport) CallTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.callTimes))
	copy(out, s.callTimes)
	return out
}
