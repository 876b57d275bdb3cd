package types

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Message is a single outgoing email. It is created once per dispatch and
// handed unchanged to every transport attempt.
type Message struct {
	// ID correlates log lines and metric events for one dispatch
	ID string `json:"id" yaml:"id"`

	// To is the recipient address
	To string `json:"to" yaml:"to"`

	// Subject is the subject line
	Subject string `json:"subject" yaml:"subject"`

	// Body is the plain-text body
	Body string `json:"body" yaml:"body"`
}

// NewMessage builds a Message with a freshly generated ID.
func NewMessage(to, subject, body string) Message {
	return Message{
		ID:      uuid.NewString(),
		To:      to,
		Subject: subject,
		Body:    body,
	}
}

// WithID returns a copy of the message carrying a generated ID when it has none.
func (m Message) WithID() Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return m
}

// Validate reports whether the message has a usable recipient. Fields that end
// up in mail headers must not contain line breaks.
func (m Message) Validate() error {
	if strings.ContainsAny(m.ID, "\r\n") {
		return fmt.Errorf("%w: id must not contain line breaks", ErrInvalidMessage)
	}
	if strings.ContainsAny(m.To, "\r\n") {
		return fmt.Errorf("%w: recipient must not contain line breaks", ErrInvalidMessage)
	}

	to := strings.TrimSpace(m.To)
	if to == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if !strings.Contains(to, "@") {
		return fmt.Errorf("%w: recipient %q is not an email address", ErrInvalidMessage, m.To)
	}
	return nil
}

// Transport delivers a single message. A true result with a nil error is a
// successful delivery; a false result, a non-nil error, or a panic all count
// as one failed attempt.
type Transport interface {
	Send(ctx context.Context, msg Message) (bool, error)
}

// TransportFunc adapts an ordinary function to the Transport interface.
type TransportFunc func(ctx context.Context, msg Message) (bool, error)

// Send calls f(ctx, msg).
func (f TransportFunc) Send(ctx context.Context, msg Message) (bool, error) {
	return f(ctx, msg)
}

// NamedTransport is implemented by transports that carry a stable name for
// logs and metrics.
type NamedTransport interface {
	Transport
	Name() string
}

// TransportName returns the name of t, or "transport-<index>" when t does not
// implement NamedTransport or reports an empty name.
func TransportName(t Transport, index int) string {
	if named, ok := t.(NamedTransport); ok {
		if name := named.Name(); name != "" {
			return name
		}
	}
	return fmt.Sprintf("transport-%d", index)
}

// Named wraps a transport so that it reports the given name.
func Named(name string, t Transport) NamedTransport {
	return &namedTransport{name: name, Transport: t}
}

type namedTransport struct {
	Transport
	name string
}

func (n *namedTransport) Name() string { return n.name }
