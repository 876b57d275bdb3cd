package backendtypes

import "time"

// APIResponse is the standard response wrapper
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes used in APIError.Code
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeDeliveryFailed = "DELIVERY_FAILED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// SendResponse reports the outcome of POST /api/send
type SendResponse struct {
	MessageID string              `json:"message_id"`
	Delivered bool                `json:"delivered"`
	Transport string              `json:"transport,omitempty"`
	Attempts  int                 `json:"attempts"`
	RateWait  string              `json:"rate_wait"`
	Backoff   string              `json:"backoff"`
	Elapsed   string              `json:"elapsed"`
	Tried     []TransportAttempts `json:"tried"`
}

// TransportAttempts is the per-transport part of a SendResponse
type TransportAttempts struct {
	Name      string `json:"name"`
	Attempts  int    `json:"attempts"`
	Delivered bool   `json:"delivered"`
	LastError string `json:"last_error,omitempty"`
}

// TransportInfo for transport listing
type TransportInfo struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Position     int     `json:"position"`
	Breaker      bool    `json:"breaker"`
	CircuitState string  `json:"circuit_state,omitempty"`
	Attempts     int64   `json:"attempts"`
	SuccessRate  float64 `json:"success_rate"`
}

// HealthResponse for health endpoints
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Transports map[string]TransportHealth `json:"transports,omitempty"`
}

type TransportHealth struct {
	Status              string `json:"status"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
	Message             string `json:"message,omitempty"`
}
