package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// errorEnvelope mirrors backendtypes.APIResponse for failures raised before a
// handler runs.
type errorEnvelope struct {
	Success   bool        `json:"success"`
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error:     errorDetail{Code: code, Message: message},
		RequestID: GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}
