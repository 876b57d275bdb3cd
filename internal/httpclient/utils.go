package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 512

// NewJSONRequest creates a request whose body is the JSON encoding of body
func NewJSONRequest(ctx context.Context, method, url string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Message    string
	RawBody    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error %d", e.StatusCode)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsSuccess reports whether status is 2xx
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// IsRetryableStatus reports whether a retry could plausibly succeed
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// NewAPIError builds an APIError from resp, reading at most a bounded prefix
// of the body. The caller still owns resp.Body.
func NewAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RawBody:    string(raw),
	}

	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		apiErr.Message = parsed.Message
		if apiErr.Message == "" && len(parsed.Error) > 0 {
			var s string
			var obj struct {
				Message string `json:"message"`
			}
			switch {
			case json.Unmarshal(parsed.Error, &s) == nil:
				apiErr.Message = s
			case json.Unmarshal(parsed.Error, &obj) == nil:
				apiErr.Message = obj.Message
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(apiErr.RawBody)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Drain discards the rest of body and closes it so the connection is reused
func Drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
