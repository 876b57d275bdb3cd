package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// subscription implements types.MetricsSubscription
type subscription struct {
	id            string
	events        chan types.MetricEvent
	filter        types.MetricFilter
	overflowCount atomic.Int64
	collector     *DefaultMetricsCollector

	// mu serializes publish against close so nothing is sent on a closed channel
	mu     sync.Mutex
	closed bool
}

// Events returns the channel for receiving metrics events
func (s *subscription) Events() <-chan types.MetricEvent {
	return s.events
}

// Unsubscribe detaches from the collector and closes the channel
func (s *subscription) Unsubscribe() {
	if s.collector != nil {
		s.collector.removeSubscription(s.id)
	}
	s.close()
}

// ID returns the unique identifier for this subscription
func (s *subscription) ID() string {
	return s.id
}

// OverflowCount returns the number of events dropped due to buffer overflow
func (s *subscription) OverflowCount() int64 {
	return s.overflowCount.Load()
}

// publish delivers event without blocking; a full buffer drops it
func (s *subscription) publish(event types.MetricEvent) {
	if !s.filter.Matches(event) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.events <- event:
	default:
		s.overflowCount.Add(1)
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
