// Package config loads and validates the dispatcher configuration. Values are
// layered: built-in defaults, then an optional YAML file, then environment
// variables prefixed with MAILDISPATCH_.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/retry"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/breaker"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/logsink"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/mock"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/smtp"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/webhook"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Transport types understood by the default factory
const (
	TypeSMTP    = "smtp"
	TypeWebhook = "webhook"
	TypeMock    = "mock"
	TypeLogSink = "logsink"
)

// Config is the complete application configuration
type Config struct {
	Dispatch   DispatchConfig             `yaml:"dispatch" mapstructure:"dispatch"`
	Transports []TransportConfig          `yaml:"transports" mapstructure:"transports"`
	Server     backendtypes.ServerConfig  `yaml:"server" mapstructure:"server"`
	Auth       backendtypes.AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Logging    backendtypes.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	CORS       backendtypes.CORSConfig    `yaml:"cors" mapstructure:"cors"`
}

// DispatchConfig holds the rate gate and retry policy
type DispatchConfig struct {
	Name string `yaml:"name" mapstructure:"name"`

	// MaxAttempts per transport; zero means transports are never called
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`

	// MaxDelay caps a single backoff; zero leaves backoff uncapped
	MaxDelay time.Duration `yaml:"max_delay" mapstructure:"max_delay"`

	// RateLimitInterval is the minimum spacing between dispatches; zero disables the gate
	RateLimitInterval time.Duration `yaml:"rate_limit_interval" mapstructure:"rate_limit_interval"`
}

// Schedule converts the retry settings to a retry.Schedule
func (d DispatchConfig) Schedule() retry.Schedule {
	return retry.Schedule{
		MaxAttempts: d.MaxAttempts,
		BaseDelay:   d.BaseDelay,
		MaxDelay:    d.MaxDelay,
	}
}

// TransportConfig describes one transport in fallback order. Exactly the
// section matching Type is read.
type TransportConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Type     string `yaml:"type" mapstructure:"type"`
	Disabled bool   `yaml:"disabled,omitempty" mapstructure:"disabled"`

	SMTP    *smtp.Config    `yaml:"smtp,omitempty" mapstructure:"smtp"`
	Webhook *webhook.Config `yaml:"webhook,omitempty" mapstructure:"webhook"`
	Mock    *mock.Config    `yaml:"mock,omitempty" mapstructure:"mock"`
	LogSink *logsink.Config `yaml:"logsink,omitempty" mapstructure:"logsink"`

	// Breaker wraps the transport in a circuit breaker when set
	Breaker *breaker.Config `yaml:"breaker,omitempty" mapstructure:"breaker"`
}

// EnabledTransports returns the transports that are not disabled, in order
func (c *Config) EnabledTransports() []TransportConfig {
	out := make([]TransportConfig, 0, len(c.Transports))
	for _, t := range c.Transports {
		if !t.Disabled {
			out = append(out, t)
		}
	}
	return out
}

// Backend returns the server-facing part of the configuration
func (c *Config) Backend() backendtypes.BackendConfig {
	return backendtypes.BackendConfig{
		Server:  c.Server,
		Auth:    c.Auth,
		Logging: c.Logging,
		CORS:    c.CORS,
	}
}

// Validate reports every problem found, joined into one error
func (c *Config) Validate() error {
	var errs []error

	if err := c.Dispatch.Schedule().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dispatch: %w", err))
	}
	if c.Dispatch.RateLimitInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: dispatch: rate_limit_interval must not be negative", types.ErrInvalidConfig))
	}

	if len(c.EnabledTransports()) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one enabled transport is required", types.ErrInvalidConfig))
	}
	seen := make(map[string]bool, len(c.Transports))
	for i, t := range c.Transports {
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("transports[%d]: %w", i, err))
		}
		if t.Name != "" {
			if seen[t.Name] {
				errs = append(errs, fmt.Errorf("%w: transports[%d]: duplicate name %q", types.ErrInvalidConfig, i, t.Name))
			}
			seen[t.Name] = true
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: server: port %d out of range", types.ErrInvalidConfig, c.Server.Port))
	}

	if c.Logging.Level != "" {
		var level zapcore.Level
		if err := level.Set(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("%w: logging: %v", types.ErrInvalidConfig, err))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console", "text":
	default:
		errs = append(errs, fmt.Errorf("%w: logging: unknown format %q", types.ErrInvalidConfig, c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Validate checks the transport's name, type, and type-specific section.
// Unknown types are left for the factory to reject.
func (t TransportConfig) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: transport name is required", types.ErrInvalidConfig)
	}
	if t.Type == "" {
		return fmt.Errorf("%w: transport %q: type is required", types.ErrInvalidConfig, t.Name)
	}

	var err error
	switch t.Type {
	case TypeSMTP:
		if t.SMTP == nil {
			return fmt.Errorf("%w: transport %q: smtp section is required", types.ErrInvalidConfig, t.Name)
		}
		err = t.SMTP.Validate()
	case TypeWebhook:
		if t.Webhook == nil {
			return fmt.Errorf("%w: transport %q: webhook section is required", types.ErrInvalidConfig, t.Name)
		}
		err = t.Webhook.Validate()
	case TypeMock:
		if t.Mock != nil {
			err = t.Mock.Validate()
		}
	}
	if err == nil && t.Breaker != nil {
		err = t.Breaker.Validate()
	}
	if err != nil {
		return fmt.Errorf("transport %q: %w", t.Name, err)
	}
	return nil
}
