// Package ratelimit provides the rate gate that spaces outgoing sends.
// A Gate enforces a minimum interval between consecutive admissions; callers
// that arrive early are suspended until the interval has elapsed.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Gate admits at most one send per interval.
//
// The admission check and the update of the last admission time happen in a
// single limiter reservation, so concurrent callers are always admitted at
// least one interval apart. A nil *Gate admits immediately.
type Gate struct {
	// interval is the minimum spacing between admissions; zero disables the gate
	interval time.Duration

	// limiter holds the admission timeline (burst 1, one token per interval)
	limiter *rate.Limiter

	// clock and sleep are injectable for tests
	clock types.Clock
	sleep types.Sleeper

	// reserveMu makes reading the clock and reserving one step; lastReserve
	// keeps reservation times monotonic
	reserveMu   sync.Mutex
	lastReserve time.Time

	// mu protects the informational fields below
	mu         sync.Mutex
	lastAdmit  time.Time
	admissions int64
	totalWait  time.Duration
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock sets the time source used to compute waits.
func WithClock(clock types.Clock) GateOption {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithSleeper sets the function used to wait out the interval.
func WithSleeper(sleep types.Sleeper) GateOption {
	return func(g *Gate) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// NewGate creates a gate enforcing interval between admissions.
// An interval of zero or less disables throttling.
func NewGate(interval time.Duration, opts ...GateOption) *Gate {
	g := &Gate{
		interval: interval,
		clock:    types.SystemClock,
		sleep:    types.SystemSleep,
	}
	for _, opt := range opts {
		opt(g)
	}

	if interval > 0 {
		// A single token refilled once per interval. The bucket starts full,
		// so the first admission never waits.
		g.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	return g
}

// Interval returns the configured minimum spacing.
func (g *Gate) Interval() time.Duration {
	if g == nil {
		return 0
	}
	return g.interval
}

// Acquire suspends the caller until it may send and records the admission.
// It returns how long the caller waited.
//
// If ctx ends before the wait is over, the reserved slot is handed back so the
// next caller is not delayed on its account, and ctx.Err() is returned.
func (g *Gate) Acquire(ctx context.Context) (time.Duration, error) {
	if g == nil {
		return 0, nil
	}

	if g.limiter == nil {
		g.record(g.clock(), 0)
		return 0, nil
	}

	now, reservation := g.reserve()
	if !reservation.OK() {
		// Cannot happen with burst 1 and n 1; treat as an open gate.
		g.record(now, 0)
		return 0, nil
	}

	delay := reservation.DelayFrom(now)
	if delay > 0 {
		if err := g.sleep(ctx, delay); err != nil {
			reservation.CancelAt(g.clock())
			return 0, err
		}
	}

	g.record(now, delay)
	return delay, nil
}

// reserve takes the next admission slot. A clock reading older than the
// previous reservation is raised to it, so a caller that read the clock
// before being overtaken still lands a full interval after the admission
// ahead of it.
func (g *Gate) reserve() (time.Time, *rate.Reservation) {
	g.reserveMu.Lock()
	defer g.reserveMu.Unlock()

	now := g.clock()
	if now.Before(g.lastReserve) {
		now = g.lastReserve
	}
	g.lastReserve = now
	return now, g.limiter.ReserveN(now, 1)
}

func (g *Gate) record(now time.Time, delay time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	admitted := now.Add(delay)
	if admitted.After(g.lastAdmit) {
		g.lastAdmit = admitted
	}
	g.admissions++
	g.totalWait += delay
}

// Stats describes gate activity since creation.
type Stats struct {
	Interval      time.Duration `json:"interval"`
	Admissions    int64         `json:"admissions"`
	TotalWait     time.Duration `json:"total_wait"`
	LastAdmission time.Time     `json:"last_admission,omitempty"`
}

// Stats returns a snapshot of gate activity.
func (g *Gate) Stats() Stats {
	if g == nil {
		return Stats{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return Stats{
		Interval:      g.interval,
		Admissions:    g.admissions,
		TotalWait:     g.totalWait,
		LastAdmission: g.lastAdmit,
	}
}
