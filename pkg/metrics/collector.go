// Package metrics provides the default in-memory implementation of
// types.MetricsCollector for dispatchers.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// ErrCollectorClosed is returned by RecordEvent after Close
var ErrCollectorClosed = errors.New("metrics collector is closed")

// hookTimeout bounds how long a single hook may hold up RecordEvent
const hookTimeout = 100 * time.Millisecond

// DefaultMetricsCollector is the default implementation of types.MetricsCollector.
// It provides thread-safe metrics collection with support for subscriptions and hooks.
type DefaultMetricsCollector struct {
	// Mutex for protecting maps and timestamps
	mu sync.RWMutex

	// Dispatch outcomes
	totalDispatches atomic.Int64
	delivered       atomic.Int64
	exhausted       atomic.Int64

	// Attempt counters
	totalAttempts     atomic.Int64
	failedAttempts    atomic.Int64
	transportSwitches atomic.Int64

	// Per-transport metrics
	transports map[string]*transportMetrics

	// Latency tracking
	latency  *Histogram
	rateWait *Histogram

	// Subscriptions
	subscriptions map[string]*subscription
	nextSubID     atomic.Int64

	// Hooks
	hooks      map[types.HookID]*hookEntry
	nextHookID atomic.Int64

	// Lifecycle
	clock          types.Clock
	firstEventTime time.Time
	lastUpdated    time.Time
	closed         atomic.Bool
}

// transportMetrics holds per-transport aggregated metrics
type transportMetrics struct {
	mu sync.RWMutex

	name string

	attempts            atomic.Int64
	successes           atomic.Int64
	failures            atomic.Int64
	panics              atomic.Int64
	consecutiveFailures atomic.Int64
	circuitOpens        atomic.Int64

	latency *Histogram

	circuitState    string
	lastError       string
	lastErrorTime   time.Time
	lastAttemptTime time.Time
}

// hookEntry wraps a hook with its metadata
type hookEntry struct {
	hook   types.MetricsHook
	id     types.HookID
	filter *types.MetricFilter
}

// CollectorOption configures a DefaultMetricsCollector
type CollectorOption func(*DefaultMetricsCollector)

// WithClock sets the time source used for uptime and update timestamps
func WithClock(clock types.Clock) CollectorOption {
	return func(c *DefaultMetricsCollector) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewDefaultMetricsCollector creates a new DefaultMetricsCollector instance.
func NewDefaultMetricsCollector(opts ...CollectorOption) *DefaultMetricsCollector {
	c := &DefaultMetricsCollector{
		transports:    make(map[string]*transportMetrics),
		latency:       NewHistogram(defaultSampleSize),
		rateWait:      NewHistogram(defaultSampleSize),
		subscriptions: make(map[string]*subscription),
		hooks:         make(map[types.HookID]*hookEntry),
		clock:         types.SystemClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetSnapshot returns a complete snapshot of all metrics
func (c *DefaultMetricsCollector) GetSnapshot() types.MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.totalDispatches.Load()
	delivered := c.delivered.Load()

	snapshot := types.MetricsSnapshot{
		TotalDispatches:    total,
		Delivered:          delivered,
		Exhausted:          c.exhausted.Load(),
		DeliveryRate:       calculateRate(delivered, total),
		TotalAttempts:      c.totalAttempts.Load(),
		FailedAttempts:     c.failedAttempts.Load(),
		TransportSwitches:  c.transportSwitches.Load(),
		Latency:            c.latency.GetLatencyMetrics(),
		RateWait:           c.rateWait.GetLatencyMetrics(),
		TransportBreakdown: make(map[string]*types.TransportMetricsSnapshot, len(c.transports)),
		LastUpdated:        c.lastUpdated,
		FirstEventTime:     c.firstEventTime,
	}

	if !c.firstEventTime.IsZero() {
		snapshot.Uptime = int64(c.clock().Sub(c.firstEventTime).Seconds())
	}

	for name, tm := range c.transports {
		snapshot.TransportBreakdown[name] = tm.snapshot()
	}

	return snapshot
}

// GetTransportMetrics returns metrics for a specific transport
func (c *DefaultMetricsCollector) GetTransportMetrics(transportName string) *types.TransportMetricsSnapshot {
	c.mu.RLock()
	tm, exists := c.transports[transportName]
	c.mu.RUnlock()

	if !exists {
		return nil
	}
	return tm.snapshot()
}

// GetTransportNames returns a sorted list of all transport names
func (c *DefaultMetricsCollector) GetTransportNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.transports))
	for name := range c.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribe creates a new subscription with the given buffer size
func (c *DefaultMetricsCollector) Subscribe(bufferSize int) types.MetricsSubscription {
	return c.SubscribeFiltered(bufferSize, types.MetricFilter{})
}

// SubscribeFiltered creates a filtered subscription
func (c *DefaultMetricsCollector) SubscribeFiltered(bufferSize int, filter types.MetricFilter) types.MetricsSubscription {
	if bufferSize < 0 {
		bufferSize = 0
	}

	sub := &subscription{
		id:     fmt.Sprintf("sub-%d", c.nextSubID.Add(1)),
		events: make(chan types.MetricEvent, bufferSize),
		filter: filter,
	}

	if c.closed.Load() {
		sub.close()
		return sub
	}

	sub.collector = c
	c.mu.Lock()
	c.subscriptions[sub.id] = sub
	c.mu.Unlock()

	return sub
}

func (c *DefaultMetricsCollector) removeSubscription(id string) {
	c.mu.Lock()
	delete(c.subscriptions, id)
	c.mu.Unlock()
}

// RegisterHook registers a hook and returns its ID
func (c *DefaultMetricsCollector) RegisterHook(hook types.MetricsHook) types.HookID {
	id := types.HookID(fmt.Sprintf("hook-%d", c.nextHookID.Add(1)))

	c.mu.Lock()
	c.hooks[id] = &hookEntry{
		hook:   hook,
		id:     id,
		filter: hook.Filter(),
	}
	c.mu.Unlock()

	return id
}

// UnregisterHook removes a hook
func (c *DefaultMetricsCollector) UnregisterHook(id types.HookID) {
	c.mu.Lock()
	delete(c.hooks, id)
	c.mu.Unlock()
}

// RecordEvent records a single metrics event
func (c *DefaultMetricsCollector) RecordEvent(ctx context.Context, event types.MetricEvent) error {
	if c.closed.Load() {
		return ErrCollectorClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = c.clock()
	}

	c.updateAggregateMetrics(event)
	if event.Transport != "" {
		c.transportFor(event.Transport).record(event)
	}

	c.publishToSubscriptions(event)
	c.callHooks(ctx, event)

	return nil
}

// RecordEvents records multiple events in order
func (c *DefaultMetricsCollector) RecordEvents(ctx context.Context, events []types.MetricEvent) error {
	for _, event := range events {
		if err := c.RecordEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears all metrics data, keeping subscriptions and hooks
func (c *DefaultMetricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalDispatches.Store(0)
	c.delivered.Store(0)
	c.exhausted.Store(0)
	c.totalAttempts.Store(0)
	c.failedAttempts.Store(0)
	c.transportSwitches.Store(0)

	c.transports = make(map[string]*transportMetrics)
	c.latency.Reset()
	c.rateWait.Reset()

	c.firstEventTime = time.Time{}
	c.lastUpdated = time.Time{}
}

// Close shuts down the collector
func (c *DefaultMetricsCollector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	subs := c.subscriptions
	c.subscriptions = make(map[string]*subscription)
	c.hooks = make(map[types.HookID]*hookEntry)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	return nil
}

// updateAggregateMetrics updates the top-level aggregate metrics
// updateAggregateMetrics runs under c.mu so Reset and GetSnapshot never see
// counters and timestamps from different sides of a reset
func (c *DefaultMetricsCollector) updateAggregateMetrics(event types.MetricEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.firstEventTime.IsZero() {
		c.firstEventTime = event.Timestamp
	}
	c.lastUpdated = c.clock()

	switch event.Type {
	case types.MetricEventDispatch:
		c.totalDispatches.Add(1)
	case types.MetricEventRateWait:
		c.rateWait.Add(event.Delay)
	case types.MetricEventAttempt:
		c.totalAttempts.Add(1)
	case types.MetricEventAttemptFailed:
		c.totalAttempts.Add(1)
		c.failedAttempts.Add(1)
	case types.MetricEventTransportSwitch:
		c.transportSwitches.Add(1)
	case types.MetricEventDelivered:
		c.delivered.Add(1)
		c.latency.Add(event.Latency)
	case types.MetricEventExhausted:
		c.exhausted.Add(1)
	}
}

// transportFor returns the metrics for name, creating them on first use
func (c *DefaultMetricsCollector) transportFor(name string) *transportMetrics {
	c.mu.RLock()
	tm, exists := c.transports[name]
	c.mu.RUnlock()
	if exists {
		return tm
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tm, exists = c.transports[name]; !exists {
		tm = &transportMetrics{name: name, latency: NewHistogram(defaultSampleSize)}
		c.transports[name] = tm
	}
	return tm
}

// publishToSubscriptions publishes an event to all subscriptions
func (c *DefaultMetricsCollector) publishToSubscriptions(event types.MetricEvent) {
	c.mu.RLock()
	subs := make([]*subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.publish(event)
	}
}

// callHooks calls all registered hooks. A hook that panics is skipped; one
// that outlives hookTimeout is left running and no longer waited on.
func (c *DefaultMetricsCollector) callHooks(ctx context.Context, event types.MetricEvent) {
	c.mu.RLock()
	hooks := make([]*hookEntry, 0, len(c.hooks))
	for _, h := range c.hooks {
		hooks = append(hooks, h)
	}
	c.mu.RUnlock()

	for _, entry := range hooks {
		if entry.filter != nil && !entry.filter.Matches(event) {
			continue
		}

		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)
		done := make(chan struct{})
		go func(hook types.MetricsHook) {
			defer close(done)
			defer func() { _ = recover() }()
			hook.OnEvent(hookCtx, event)
		}(entry.hook)

		select {
		case <-done:
		case <-hookCtx.Done():
		}
		cancel()
	}
}

// calculateRate divides, returning zero for an empty denominator
func calculateRate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

func (tm *transportMetrics) record(event types.MetricEvent) {
	switch event.Type {
	case types.MetricEventAttempt:
		tm.attempts.Add(1)
		tm.successes.Add(1)
		tm.consecutiveFailures.Store(0)
		tm.latency.Add(event.Latency)
		tm.mu.Lock()
		tm.lastAttemptTime = event.Timestamp
		tm.mu.Unlock()

	case types.MetricEventAttemptFailed:
		tm.attempts.Add(1)
		tm.failures.Add(1)
		tm.consecutiveFailures.Add(1)
		if event.Panicked {
			tm.panics.Add(1)
		}
		tm.latency.Add(event.Latency)
		tm.mu.Lock()
		tm.lastAttemptTime = event.Timestamp
		tm.lastError = event.ErrorMessage
		tm.lastErrorTime = event.Timestamp
		tm.mu.Unlock()

	case types.MetricEventCircuitOpen:
		tm.circuitOpens.Add(1)
		tm.setCircuitState(event.CircuitState, "open")

	case types.MetricEventCircuitClose:
		tm.setCircuitState(event.CircuitState, "closed")
	}
}

func (tm *transportMetrics) setCircuitState(state, fallback string) {
	if state == "" {
		state = fallback
	}
	tm.mu.Lock()
	tm.circuitState = state
	tm.mu.Unlock()
}

func (tm *transportMetrics) snapshot() *types.TransportMetricsSnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	attempts := tm.attempts.Load()
	successes := tm.successes.Load()

	return &types.TransportMetricsSnapshot{
		Transport:           tm.name,
		Attempts:            attempts,
		Successes:           successes,
		Failures:            tm.failures.Load(),
		Panics:              tm.panics.Load(),
		SuccessRate:         calculateRate(successes, attempts),
		Latency:             tm.latency.GetLatencyMetrics(),
		ConsecutiveFailures: tm.consecutiveFailures.Load(),
		CircuitOpens:        tm.circuitOpens.Load(),
		CircuitState:        tm.circuitState,
		LastError:           tm.lastError,
		LastErrorTime:       tm.lastErrorTime,
		LastAttemptTime:     tm.lastAttemptTime,
	}
}
