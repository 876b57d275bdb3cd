package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Attempt describes one finished call to a transport
type Attempt struct {
	// Number is the zero-based attempt index within the transport's budget
	Number int

	// Err is nil for a successful attempt and an *types.AttemptError otherwise
	Err error

	// Latency is how long the transport call took
	Latency time.Duration

	// NextDelay is the backoff before the following attempt; zero when Final
	NextDelay time.Duration

	// Final is true when no further attempt follows on this transport
	Final bool
}

// Succeeded reports whether the attempt delivered the message
func (a Attempt) Succeeded() bool {
	return a.Err == nil
}

// AttemptFunc is called after every attempt, before any backoff sleep
type AttemptFunc func(transport string, attempt Attempt)

// Outcome summarizes one scheduler run against a single transport
type Outcome struct {
	Transport string        // Transport name
	Delivered bool          // True when an attempt succeeded
	Attempts  int           // Number of transport calls made
	Backoff   time.Duration // Total time spent sleeping between attempts
	LastErr   error         // Error of the last failed attempt, nil when delivered
	Cancelled bool          // True when ctx ended the run early
}

// Scheduler runs a transport repeatedly until it succeeds or the schedule's
// attempt budget is spent. A failed attempt is followed by a backoff sleep,
// except after the final attempt.
type Scheduler struct {
	schedule Schedule
	sleep    types.Sleeper
	clock    types.Clock
	logger   *zap.Logger
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithSleeper sets the function used for backoff waits
func WithSleeper(sleep types.Sleeper) SchedulerOption {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithClock sets the time source used to measure attempt latency
func WithClock(clock types.Clock) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger for attempt diagnostics
func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler creates a scheduler for the given schedule
func NewScheduler(schedule Schedule, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		schedule: schedule,
		sleep:    types.SystemSleep,
		clock:    types.SystemClock,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDefaultScheduler creates a scheduler using DefaultSchedule()
func NewDefaultScheduler(opts ...SchedulerOption) *Scheduler {
	return NewScheduler(DefaultSchedule(), opts...)
}

// Schedule returns the scheduler's schedule
func (s *Scheduler) Schedule() Schedule {
	return s.schedule
}

// Run tries transport until it delivers msg or the attempt budget is spent.
// Failures are absorbed; the only signal is the returned boolean.
func (s *Scheduler) Run(ctx context.Context, transport types.Transport, msg types.Message) bool {
	return s.Execute(ctx, transport, msg, nil).Delivered
}

// RunWithCallback is Run with a notification after each attempt
func (s *Scheduler) RunWithCallback(ctx context.Context, transport types.Transport, msg types.Message, onAttempt AttemptFunc) bool {
	return s.Execute(ctx, transport, msg, onAttempt).Delivered
}

// Execute runs the attempt loop and reports what happened
func (s *Scheduler) Execute(ctx context.Context, transport types.Transport, msg types.Message, onAttempt AttemptFunc) Outcome {
	name := types.TransportName(transport, 0)
	outcome := Outcome{Transport: name}

	maxAttempts := s.schedule.MaxAttempts
	if maxAttempts <= 0 {
		return outcome
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome.Cancelled = true
			if outcome.LastErr == nil {
				outcome.LastErr = err
			}
			return outcome
		}

		start := s.clock()
		ok, panicked, cause := s.call(ctx, transport, msg)
		latency := s.clock().Sub(start)
		outcome.Attempts++

		if ok && cause == nil {
			if attempt > 0 {
				s.logger.Debug("transport succeeded after retries",
					zap.String("transport", name),
					zap.String("message_id", msg.ID),
					zap.Int("attempts", attempt+1))
			}
			notify(onAttempt, name, Attempt{Number: attempt, Latency: latency, Final: true})
			outcome.Delivered = true
			outcome.LastErr = nil
			return outcome
		}

		attemptErr := &types.AttemptError{
			Transport: name,
			Attempt:   attempt,
			Cause:     cause,
			Panicked:  panicked,
		}
		outcome.LastErr = attemptErr

		final := attempt == maxAttempts-1
		var next time.Duration
		if !final {
			next = s.schedule.Delay(attempt)
		}
		notify(onAttempt, name, Attempt{
			Number:    attempt,
			Err:       attemptErr,
			Latency:   latency,
			NextDelay: next,
			Final:     final,
		})

		if final {
			break
		}

		s.logger.Debug("transport attempt failed, backing off",
			zap.String("transport", name),
			zap.String("message_id", msg.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("next_delay", next),
			zap.Error(attemptErr))

		if err := s.sleep(ctx, next); err != nil {
			outcome.Cancelled = true
			return outcome
		}
		outcome.Backoff += next
	}

	s.logger.Debug("transport exhausted",
		zap.String("transport", name),
		zap.String("message_id", msg.ID),
		zap.Int("attempts", outcome.Attempts),
		zap.Error(outcome.LastErr))

	return outcome
}

// call invokes the transport, converting a panic into a failed attempt
func (s *Scheduler) call(ctx context.Context, transport types.Transport, msg types.Message) (ok, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			panicked = true
			if e, isErr := r.(error); isErr {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()

	ok, err = transport.Send(ctx, msg)
	return ok, false, err
}

func notify(onAttempt AttemptFunc, transport string, attempt Attempt) {
	if onAttempt != nil {
		onAttempt(transport, attempt)
	}
}
