package backendtypes

// SendRequest is the body of POST /api/send
type SendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`

	// ID is an optional caller-supplied message ID
	ID string `json:"id,omitempty"`
}
