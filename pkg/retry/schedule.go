package retry

import (
	"fmt"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

const (
	// DefaultMaxAttempts is the number of calls made against one transport
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is the wait after the first failed attempt
	DefaultBaseDelay = 1 * time.Second
)

// Schedule defines how many times a transport is tried and how long to wait
// between tries. The wait after failed attempt n (zero-based) is
// BaseDelay * 2^n, optionally capped at MaxDelay.
type Schedule struct {
	// MaxAttempts is the total number of calls per transport (0 means never call)
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay is the delay before the second attempt
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay caps a single delay; zero leaves delays uncapped
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// DefaultSchedule returns five attempts starting at a one second delay, uncapped.
func DefaultSchedule() Schedule {
	return Schedule{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// NoRetrySchedule tries each transport exactly once.
func NoRetrySchedule() Schedule {
	return Schedule{MaxAttempts: 1}
}

// WithMaxAttempts returns a copy with the attempt budget replaced
func (s Schedule) WithMaxAttempts(n int) Schedule {
	s.MaxAttempts = n
	return s
}

// WithBaseDelay returns a copy with the base delay replaced
func (s Schedule) WithBaseDelay(d time.Duration) Schedule {
	s.BaseDelay = d
	return s
}

// WithMaxDelay returns a copy with the delay cap replaced
func (s Schedule) WithMaxDelay(d time.Duration) Schedule {
	s.MaxDelay = d
	return s
}

// Delay returns the wait that follows failed attempt n (zero-based).
func (s Schedule) Delay(attempt int) time.Duration {
	return exponentialDelay(s.BaseDelay, attempt, s.MaxDelay)
}

// Delays lists every wait a fully failing transport goes through. There is no
// wait after the last attempt, so the list has MaxAttempts-1 entries.
func (s Schedule) Delays() []time.Duration {
	if s.MaxAttempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, s.MaxAttempts-1)
	for attempt := 0; attempt < s.MaxAttempts-1; attempt++ {
		delays = append(delays, s.Delay(attempt))
	}
	return delays
}

// TotalBackoff sums Delays(), saturating instead of overflowing.
func (s Schedule) TotalBackoff() time.Duration {
	var total time.Duration
	for _, d := range s.Delays() {
		if total > maxDuration-d {
			return maxDuration
		}
		total += d
	}
	return total
}

// Validate checks that the schedule is usable
func (s Schedule) Validate() error {
	if s.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative, got %d", types.ErrInvalidConfig, s.MaxAttempts)
	}
	if s.BaseDelay < 0 {
		return fmt.Errorf("%w: base_delay must not be negative, got %v", types.ErrInvalidConfig, s.BaseDelay)
	}
	if s.MaxDelay < 0 {
		return fmt.Errorf("%w: max_delay must not be negative, got %v", types.ErrInvalidConfig, s.MaxDelay)
	}
	if s.MaxDelay > 0 && s.MaxDelay < s.BaseDelay {
		return fmt.Errorf("%w: max_delay (%v) is below base_delay (%v)", types.ErrInvalidConfig, s.MaxDelay, s.BaseDelay)
	}
	return nil
}
