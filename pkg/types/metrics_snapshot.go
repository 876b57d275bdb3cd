package types

import "time"

// MetricsSnapshot is a point-in-time copy of all aggregate dispatch metrics.
// This is the top-level snapshot returned by GetSnapshot()
type MetricsSnapshot struct {
	// Dispatch outcomes
	TotalDispatches int64   `json:"total_dispatches"`
	Delivered       int64   `json:"delivered"`
	Exhausted       int64   `json:"exhausted"`
	DeliveryRate    float64 `json:"delivery_rate"` // Calculated: delivered/total

	// Attempt counters across all transports
	TotalAttempts     int64 `json:"total_attempts"`
	FailedAttempts    int64 `json:"failed_attempts"`
	TransportSwitches int64 `json:"transport_switches"`

	// End-to-end dispatch latency for delivered messages
	Latency LatencyMetrics `json:"latency"`

	// Time spent waiting on the rate gate
	RateWait LatencyMetrics `json:"rate_wait"`

	// Transport breakdown
	TransportBreakdown map[string]*TransportMetricsSnapshot `json:"transport_breakdown"`

	// Timestamps
	LastUpdated    time.Time `json:"last_updated"`
	FirstEventTime time.Time `json:"first_event_time"`
	Uptime         int64     `json:"uptime_seconds"` // Seconds since first event
}

// TransportMetricsSnapshot holds per-transport metrics.
// Returned by GetTransportMetrics(name)
type TransportMetricsSnapshot struct {
	Transport string `json:"transport"`

	Attempts    int64   `json:"attempts"`
	Successes   int64   `json:"successes"`
	Failures    int64   `json:"failures"`
	Panics      int64   `json:"panics"`
	SuccessRate float64 `json:"success_rate"` // Calculated: successes/attempts

	// Latency of individual attempts
	Latency LatencyMetrics `json:"latency"`

	ConsecutiveFailures int64     `json:"consecutive_failures"`
	CircuitOpens        int64     `json:"circuit_opens"`
	CircuitState        string    `json:"circuit_state,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorTime       time.Time `json:"last_error_time,omitempty"`
	LastAttemptTime     time.Time `json:"last_attempt_time"`
}

// LatencyMetrics summarizes a latency distribution
type LatencyMetrics struct {
	TotalRequests  int64         `json:"total_requests"`
	TotalLatency   time.Duration `json:"total_latency"`
	AverageLatency time.Duration `json:"average_latency"`
	MinLatency     time.Duration `json:"min_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
	P50Latency     time.Duration `json:"p50_latency"`
	P75Latency     time.Duration `json:"p75_latency"`
	P90Latency     time.Duration `json:"p90_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	LastUpdated    time.Time     `json:"last_updated"`
}
