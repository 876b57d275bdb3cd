package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backend/middleware"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
)

// MaxBodyBytes caps request bodies read by ParseJSON
const MaxBodyBytes = 1 << 20

// SendSuccess sends a successful JSON response with data
func SendSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	sendJSON(w, http.StatusOK, backendtypes.APIResponse{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}

// SendError sends an error JSON response with APIError
func SendError(w http.ResponseWriter, r *http.Request, code string, message string, statusCode int) {
	SendErrorWithData(w, r, code, message, statusCode, nil)
}

// SendErrorWithData sends an error response that still carries a payload,
// such as the report of a failed delivery.
func SendErrorWithData(w http.ResponseWriter, r *http.Request, code, message string, statusCode int, data interface{}) {
	sendJSON(w, statusCode, backendtypes.APIResponse{
		Success: false,
		Data:    data,
		Error: &backendtypes.APIError{
			Code:    code,
			Message: message,
		},
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now(),
	})
}

// ParseJSON decodes the request body into target, rejecting unknown fields
// and bodies over MaxBodyBytes.
func ParseJSON(w http.ResponseWriter, r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func sendJSON(w http.ResponseWriter, status int, resp backendtypes.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
