// Package logsink provides a Transport that writes each message to a zap
// logger instead of delivering it. It is the last-resort transport in local
// setups and always reports success.
package logsink

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Config configures the log sink
type Config struct {
	// Level is the zap level messages are logged at; default info
	Level string `json:"level,omitempty" yaml:"level,omitempty" mapstructure:"level"`

	// IncludeBody logs the message body as well as the envelope
	IncludeBody bool `json:"include_body,omitempty" yaml:"include_body,omitempty" mapstructure:"include_body"`
}

// Transport logs messages
type Transport struct {
	name        string
	logger      *zap.Logger
	level       zapcore.Level
	includeBody bool
}

// New creates a log sink. A nil logger yields a no-op sink that still
// reports delivery.
func New(name string, cfg Config, logger *zap.Logger) (*Transport, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		name:        name,
		logger:      logger.Named("logsink").With(zap.String("transport", name)),
		level:       level,
		includeBody: cfg.IncludeBody,
	}, nil
}

// Name implements types.NamedTransport
func (t *Transport) Name() string { return t.name }

// Send implements types.Transport
func (t *Transport) Send(_ context.Context, msg types.Message) (bool, error) {
	if err := msg.Validate(); err != nil {
		return false, err
	}

	fields := []zap.Field{
		zap.String("message_id", msg.ID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	}
	if t.includeBody {
		fields = append(fields, zap.String("body", msg.Body))
	}

	if ce := t.logger.Check(t.level, "email captured"); ce != nil {
		ce.Write(fields...)
	}
	return true, nil
}
