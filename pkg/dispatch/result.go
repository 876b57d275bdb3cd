package dispatch

import (
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/retry"
)

// Result reports how a single dispatch went
type Result struct {
	MessageID string `json:"message_id"`
	Delivered bool   `json:"delivered"`

	// Transport is the name of the transport that delivered the message
	Transport string `json:"transport,omitempty"`

	// Attempts is the total number of transport calls across all transports
	Attempts int `json:"attempts"`

	RateWait time.Duration `json:"rate_wait"`
	Backoff  time.Duration `json:"backoff"`
	Elapsed  time.Duration `json:"elapsed"`

	// Transports lists every transport that was tried, in order
	Transports []TransportReport `json:"transports"`

	// Err is set when the dispatch was cut short by ctx or had no transports
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// TransportReport summarizes the attempts made against one transport
type TransportReport struct {
	Name      string        `json:"name"`
	Attempts  int           `json:"attempts"`
	Delivered bool          `json:"delivered"`
	Backoff   time.Duration `json:"backoff"`
	LastError string        `json:"last_error,omitempty"`
}

func (r *Result) addOutcome(o retry.Outcome) {
	report := TransportReport{
		Name:      o.Transport,
		Attempts:  o.Attempts,
		Delivered: o.Delivered,
		Backoff:   o.Backoff,
	}
	if o.LastErr != nil {
		report.LastError = o.LastErr.Error()
	}

	r.Transports = append(r.Transports, report)
	r.Attempts += o.Attempts
	r.Backoff += o.Backoff
}

// AttemptsFor returns how many times the named transport was called
func (r *Result) AttemptsFor(name string) int {
	for _, t := range r.Transports {
		if t.Name == name {
			return t.Attempts
		}
	}
	return 0
}

func (r *Result) lastError() string {
	for i := len(r.Transports) - 1; i >= 0; i-- {
		if r.Transports[i].LastError != "" {
			return r.Transports[i].LastError
		}
	}
	return r.Error
}
