package types

import (
	"context"
	"slices"
	"time"
)

// MetricsCollector is the central interface for collecting, aggregating, and distributing
// dispatch metrics. It supports three consumption patterns: polling (snapshots),
// streaming (events), and synchronous callbacks (hooks).
//
// Thread-safety: All methods are safe for concurrent use by multiple goroutines.
//
// Usage patterns:
//  1. Polling: Call GetSnapshot() or GetTransportMetrics() periodically
//  2. Streaming: Subscribe() to receive events via a channel
//  3. Callbacks: RegisterHook() to be notified for each event
type MetricsCollector interface {
	// GetSnapshot returns a point-in-time copy of all aggregate metrics.
	// The snapshot can be serialized to JSON directly.
	GetSnapshot() MetricsSnapshot

	// GetTransportMetrics returns metrics for one transport by name.
	// Returns nil if the transport has not been seen.
	GetTransportMetrics(transportName string) *TransportMetricsSnapshot

	// GetTransportNames returns a sorted list of all transport names currently tracked.
	GetTransportNames() []string

	// Subscribe creates a subscription receiving every event.
	//
	// The subscriber must keep reading from the channel. When the buffer is full,
	// new events are dropped and counted in OverflowCount().
	Subscribe(bufferSize int) MetricsSubscription

	// SubscribeFiltered creates a subscription that only receives events matching the filter.
	SubscribeFiltered(bufferSize int, filter MetricFilter) MetricsSubscription

	// RegisterHook registers a callback invoked for each matching event.
	// Hooks run with a short timeout; a slow or panicking hook never blocks recording.
	RegisterHook(hook MetricsHook) HookID

	// UnregisterHook removes a previously registered hook.
	// Safe to call with an unknown HookID.
	UnregisterHook(id HookID)

	// RecordEvent records a single metrics event: it is aggregated into the
	// snapshot, sent to matching subscriptions, and passed to matching hooks.
	RecordEvent(ctx context.Context, event MetricEvent) error

	// RecordEvents records multiple events in order, stopping at the first error.
	RecordEvents(ctx context.Context, events []MetricEvent) error

	// Reset clears accumulated metrics. Subscriptions and hooks are preserved.
	Reset()

	// Close closes all subscriptions and drops all hooks.
	// After Close, RecordEvent returns an error.
	Close() error
}

// MetricsSubscription represents an active subscription to metrics events.
type MetricsSubscription interface {
	// Events returns the channel for receiving events.
	// The channel is closed on Unsubscribe or when the collector is closed.
	Events() <-chan MetricEvent

	// Unsubscribe stops event delivery and closes the Events() channel.
	// Safe to call multiple times.
	Unsubscribe()

	// ID returns a unique identifier for this subscription.
	ID() string

	// OverflowCount returns the number of events dropped because the buffer was full.
	OverflowCount() int64
}

// MetricFilter selects events for subscriptions and hooks.
// Only events matching ALL specified criteria are delivered.
// Empty slices match everything for that dimension.
type MetricFilter struct {
	// Dispatchers filters events to specific dispatcher names.
	Dispatchers []string `json:"dispatchers,omitempty"`

	// Transports filters events to specific transport names.
	Transports []string `json:"transports,omitempty"`

	// EventTypes filters events to specific event types.
	EventTypes []MetricEventType `json:"event_types,omitempty"`

	// MinLatency filters events with latency >= this threshold.
	MinLatency time.Duration `json:"min_latency,omitempty"`
}

// Matches returns true if the given event matches this filter's criteria.
func (f MetricFilter) Matches(event MetricEvent) bool {
	if len(f.Dispatchers) > 0 && !slices.Contains(f.Dispatchers, event.Dispatcher) {
		return false
	}
	if len(f.Transports) > 0 && !slices.Contains(f.Transports, event.Transport) {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, event.Type) {
		return false
	}
	if f.MinLatency > 0 && event.Latency < f.MinLatency {
		return false
	}
	return true
}

// MetricsHook receives events synchronously from the collector.
type MetricsHook interface {
	// OnEvent is called for each matching event. It must return quickly.
	OnEvent(ctx context.Context, event MetricEvent)

	// Name identifies the hook in logs.
	Name() string

	// Filter restricts which events reach the hook. Nil means all events.
	Filter() *MetricFilter
}

// HookID identifies a registered hook.
type HookID string

// MetricEvent is a single observation emitted by a dispatcher.
type MetricEvent struct {
	Type MetricEventType `json:"type"`

	Dispatcher string `json:"dispatcher"`
	Transport  string `json:"transport,omitempty"`
	MessageID  string `json:"message_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	Latency time.Duration `json:"latency,omitempty"` // Attempt or dispatch duration
	Attempt int           `json:"attempt,omitempty"` // One-based attempt number within a transport
	Delay   time.Duration `json:"delay,omitempty"`   // Backoff or rate gate wait

	ErrorMessage string `json:"error_message,omitempty"`
	Panicked     bool   `json:"panicked,omitempty"`

	FromTransport string `json:"from_transport,omitempty"` // Transport exhausted before a switch
	ToTransport   string `json:"to_transport,omitempty"`   // Transport tried next
	SwitchReason  string `json:"switch_reason,omitempty"`

	CircuitState string `json:"circuit_state,omitempty"` // closed, open, half-open

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MetricEventType categorizes metric events.
type MetricEventType string

const (
	// MetricEventDispatch marks the start of one dispatch
	MetricEventDispatch MetricEventType = "dispatch"

	// MetricEventRateWait records time spent waiting on the rate gate
	MetricEventRateWait MetricEventType = "rate_wait"

	// MetricEventAttempt records one transport call, successful or not
	MetricEventAttempt MetricEventType = "attempt"

	// MetricEventAttemptFailed records one failed transport call
	MetricEventAttemptFailed MetricEventType = "attempt_failed"

	// MetricEventTransportSwitch records falling over to the next transport
	MetricEventTransportSwitch MetricEventType = "transport_switch"

	// MetricEventDelivered marks a dispatch that succeeded
	MetricEventDelivered MetricEventType = "delivered"

	// MetricEventExhausted marks a dispatch where every transport failed
	MetricEventExhausted MetricEventType = "exhausted"

	// MetricEventCircuitOpen records a breaker tripping
	MetricEventCircuitOpen MetricEventType = "circuit_open"

	// MetricEventCircuitClose records a breaker closing again
	MetricEventCircuitClose MetricEventType = "circuit_close"
)

func (t MetricEventType) String() string {
	return string(t)
}

// IsFailure reports whether the event type describes a failure.
func (t MetricEventType) IsFailure() bool {
	return t == MetricEventAttemptFailed || t == MetricEventExhausted
}
