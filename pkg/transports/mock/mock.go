// Package mock provides a Transport that succeeds at random with a fixed
// probability. It stands in for a real provider in demos and load tests.
package mock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Config configures a mock transport
type Config struct {
	// SuccessRate is the probability in [0,1] that a call delivers
	SuccessRate float64 `json:"success_rate" yaml:"success_rate" mapstructure:"success_rate"`

	// Latency is slept before each call returns
	Latency time.Duration `json:"latency,omitempty" yaml:"latency,omitempty" mapstructure:"latency"`

	// Seed makes the outcome sequence reproducible when non-zero
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty" mapstructure:"seed"`
}

// Validate checks that SuccessRate is a probability
func (c Config) Validate() error {
	if c.SuccessRate < 0 || c.SuccessRate > 1 {
		return fmt.Errorf("%w: mock success_rate %v must be within [0,1]", types.ErrInvalidConfig, c.SuccessRate)
	}
	if c.Latency < 0 {
		return fmt.Errorf("%w: mock latency must not be negative", types.ErrInvalidConfig)
	}
	return nil
}

// Transport delivers with probability SuccessRate
type Transport struct {
	name  string
	cfg   Config
	sleep types.Sleeper

	mu  sync.Mutex
	rng *rand.Rand // nil means the global source

	calls     int64
	successes int64
}

// Option configures a Transport
type Option func(*Transport)

// WithSleeper replaces the sleeper used for simulated latency
func WithSleeper(sleep types.Sleeper) Option {
	return func(t *Transport) {
		if sleep != nil {
			t.sleep = sleep
		}
	}
}

// WithRand sets the random source; it takes precedence over Config.Seed
func WithRand(rng *rand.Rand) Option {
	return func(t *Transport) {
		t.rng = rng
	}
}

// New creates a mock transport
func New(name string, cfg Config, opts ...Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Transport{name: name, cfg: cfg, sleep: types.SystemSleep}
	if cfg.Seed != 0 {
		t.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name implements types.NamedTransport
func (t *Transport) Name() string { return t.name }

// Calls returns how many times Send was called
func (t *Transport) Calls() int64 { return atomic.LoadInt64(&t.calls) }

// Successes returns how many calls delivered
func (t *Transport) Successes() int64 { return atomic.LoadInt64(&t.successes) }

// Send implements types.Transport. It never returns an error except when ctx
// ends during the simulated latency.
func (t *Transport) Send(ctx context.Context, _ types.Message) (bool, error) {
	atomic.AddInt64(&t.calls, 1)

	if t.cfg.Latency > 0 {
		if err := t.sleep(ctx, t.cfg.Latency); err != nil {
			return false, err
		}
	}

	if t.roll() < t.cfg.SuccessRate {
		atomic.AddInt64(&t.successes, 1)
		return true, nil
	}
	return false, nil
}

func (t *Transport) roll() float64 {
	if t.rng == nil {
		return rand.Float64()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rng.Float64()
}
