// Package smtp provides a Transport that delivers messages to an SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Config configures the SMTP transport.
type Config struct {
	Host        string        `json:"host" yaml:"host" mapstructure:"host"`
	Port        int           `json:"port" yaml:"port" mapstructure:"port"`
	Username    string        `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password    string        `json:"-" yaml:"password,omitempty" mapstructure:"password"`
	From        string        `json:"from" yaml:"from" mapstructure:"from"`
	LocalName   string        `json:"local_name,omitempty" yaml:"local_name,omitempty" mapstructure:"local_name"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	StartTLS    bool          `json:"starttls" yaml:"starttls" mapstructure:"starttls"`
	ImplicitTLS bool          `json:"implicit_tls" yaml:"implicit_tls" mapstructure:"implicit_tls"`
	SkipVerify  bool          `json:"skip_verify,omitempty" yaml:"skip_verify,omitempty" mapstructure:"skip_verify"`
}

// DefaultTimeout bounds a whole SMTP conversation when ctx has no deadline
const DefaultTimeout = 30 * time.Second

// Validate checks the fields required to reach a relay
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: smtp host is required", types.ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: smtp port %d out of range", types.ErrInvalidConfig, c.Port)
	}
	if c.From == "" {
		return fmt.Errorf("%w: smtp from address is required", types.ErrInvalidConfig)
	}
	if c.StartTLS && c.ImplicitTLS {
		return fmt.Errorf("%w: starttls and implicit_tls are mutually exclusive", types.ErrInvalidConfig)
	}
	return nil
}

// Transport sends each message over a fresh SMTP connection.
type Transport struct {
	name  string
	cfg   Config
	clock types.Clock
}

// New creates an SMTP transport
func New(name string, cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LocalName == "" {
		cfg.LocalName, _ = os.Hostname()
	}
	return &Transport{name: name, cfg: cfg, clock: types.SystemClock}, nil
}

// Name implements types.NamedTransport
func (t *Transport) Name() string { return t.name }

// Send implements types.Transport. Any protocol error is returned; the
// result is true only after the relay accepted the message data.
func (t *Transport) Send(ctx context.Context, msg types.Message) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}
	data, err := t.build(msg)
	if err != nil {
		return false, err
	}

	c, err := t.dial(ctx)
	if err != nil {
		return false, err
	}
	defer c.Close()

	if t.cfg.Username != "" && t.cfg.Password != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return false, fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(t.cfg.From); err != nil {
		return false, fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return false, fmt.Errorf("smtp RCPT TO %s: %w", msg.To, err)
	}

	w, err := c.Data()
	if err != nil {
		return false, fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return false, fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return false, fmt.Errorf("smtp end data: %w", err)
	}

	_ = c.Quit()
	return true, nil
}

// dial connects, negotiates TLS as configured, and says hello
func (t *Transport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	tlsConfig := &tls.Config{
		ServerName:         t.cfg.Host,
		InsecureSkipVerify: t.cfg.SkipVerify, // #nosec G402 -- opt-in for test relays
	}

	var conn net.Conn
	var err error
	if t.cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = t.clock().Add(t.cfg.Timeout)
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp new client: %w", err)
	}

	if err := c.Hello(t.cfg.LocalName); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("smtp EHLO: %w", err)
	}

	if t.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	return c, nil
}

// build renders msg as a plain-text RFC 5322 message. A header value holding
// CR or LF is refused so no field can start a header of its own.
func (t *Transport) build(msg types.Message) ([]byte, error) {
	var (
		buf    bytes.Buffer
		badKey string
	)

	header := func(k, v string) {
		if strings.ContainsAny(v, "\r\n") && badKey == "" {
			badKey = k
		}
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}

	header("From", t.cfg.From)
	header("To", msg.To)
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", t.clock().Format(time.RFC1123Z))
	if msg.ID != "" {
		header("Message-ID", fmt.Sprintf("<%s@%s>", msg.ID, t.cfg.LocalName))
	}
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "8bit")
	if badKey != "" {
		return nil, fmt.Errorf("%w: %s header contains a line break", types.ErrInvalidMessage, badKey)
	}
	buf.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\r\n")
	}

	return buf.Bytes(), nil
}
