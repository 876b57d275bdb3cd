// Package breaker wraps a Transport in a circuit breaker so that a transport
// which keeps failing is skipped quickly instead of being retried on its full
// backoff schedule for every message.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Config configures the breaker
type Config struct {
	// MaxRequests is the number of probes allowed while half-open
	MaxRequests uint32 `json:"max_requests,omitempty" yaml:"max_requests,omitempty" mapstructure:"max_requests"`

	// Interval clears the closed-state counts periodically; zero never clears
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty" mapstructure:"interval"`

	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`

	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32 `json:"consecutive_failures,omitempty" yaml:"consecutive_failures,omitempty" mapstructure:"consecutive_failures"`

	// MinRequests and FailureRatio trip the breaker on a sustained failure rate
	MinRequests  uint32  `json:"min_requests,omitempty" yaml:"min_requests,omitempty" mapstructure:"min_requests"`
	FailureRatio float64 `json:"failure_ratio,omitempty" yaml:"failure_ratio,omitempty" mapstructure:"failure_ratio"`
}

// DefaultConfig trips after five straight failures and probes after 30s
func DefaultConfig() Config {
	return Config{
		MaxRequests:         1,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Validate checks the ratio bounds
func (c Config) Validate() error {
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		return fmt.Errorf("%w: breaker failure_ratio %v must be within [0,1]", types.ErrInvalidConfig, c.FailureRatio)
	}
	if c.Timeout < 0 || c.Interval < 0 {
		return fmt.Errorf("%w: breaker durations must not be negative", types.ErrInvalidConfig)
	}
	return nil
}

// errNotDelivered lets a falsy transport result count as a breaker failure
var errNotDelivered = errors.New("transport reported no delivery")

// State mirrors gobreaker.State as a string for logs and metrics
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half-open"
	StateOpen     State = "open"
	StateUnknown  State = "unknown"
)

func convertState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateUnknown
	}
}

// Transport is a circuit-breaking decorator around another transport
type Transport struct {
	inner   types.NamedTransport
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics types.MetricsCollector
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger logs state changes
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetricsCollector records circuit_open and circuit_close events
func WithMetricsCollector(collector types.MetricsCollector) Option {
	return func(t *Transport) {
		t.metrics = collector
	}
}

// Wrap decorates inner with a circuit breaker named after it
func Wrap(inner types.Transport, cfg Config, opts ...Option) (*Transport, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: breaker needs a transport to wrap", types.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	named, ok := inner.(types.NamedTransport)
	if !ok || named.Name() == "" {
		named = types.Named(types.TransportName(inner, 0), inner)
	}

	t := &Transport{inner: named, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("transport", named.Name()))

	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        named.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: readyToTrip(cfg),
		OnStateChange: func(_ string, from, to gobreaker.State) {
			t.stateChanged(convertState(from), convertState(to))
		},
	})
	return t, nil
}

func readyToTrip(cfg Config) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
			return true
		}
		if cfg.MinRequests > 0 && cfg.FailureRatio > 0 && counts.Requests >= cfg.MinRequests {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		}
		return false
	}
}

// Name implements types.NamedTransport with the wrapped transport's name
func (t *Transport) Name() string { return t.inner.Name() }

// State returns the current breaker state
func (t *Transport) State() State { return convertState(t.breaker.State()) }

// Counts returns the breaker's counters for the current generation
func (t *Transport) Counts() gobreaker.Counts { return t.breaker.Counts() }

// Send implements types.Transport. While open, calls fail immediately with
// gobreaker.ErrOpenState without reaching the wrapped transport.
func (t *Transport) Send(ctx context.Context, msg types.Message) (bool, error) {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		ok, err := t.inner.Send(ctx, msg)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errNotDelivered
		}
		return nil, nil
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errNotDelivered):
		return false, nil
	case errors.Is(err, gobreaker.ErrOpenState):
		return false, fmt.Errorf("transport %s unavailable (circuit breaker open): %w", t.Name(), err)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return false, fmt.Errorf("transport %s recovering (too many requests): %w", t.Name(), err)
	default:
		return false, err
	}
}

func (t *Transport) stateChanged(from, to State) {
	t.logger.Info("circuit breaker state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	if t.metrics == nil {
		return
	}

	event := types.MetricEvent{
		Transport:    t.Name(),
		Timestamp:    time.Now(),
		CircuitState: string(to),
	}
	switch to {
	case StateOpen:
		event.Type = types.MetricEventCircuitOpen
	case StateClosed:
		event.Type = types.MetricEventCircuitClose
	default:
		return
	}
	_ = t.metrics.RecordEvent(context.Background(), event)
}
