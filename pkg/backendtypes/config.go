package backendtypes

import (
	"time"
)

// BackendConfig defines the configuration for the backend server
type BackendConfig struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	CORS    CORSConfig    `yaml:"cors" mapstructure:"cors"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	Version         string        `yaml:"version,omitempty" mapstructure:"version"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// SendTimeout bounds one POST /api/send, rate gate and backoff included
	SendTimeout time.Duration `yaml:"send_timeout" mapstructure:"send_timeout"`
}

type AuthConfig struct {
	Enabled     bool     `yaml:"enabled" mapstructure:"enabled"`
	APIPassword string   `yaml:"api_password,omitempty" mapstructure:"api_password"`
	APIKeyEnv   string   `yaml:"api_key_env,omitempty" mapstructure:"api_key_env"`
	PublicPaths []string `yaml:"public_paths,omitempty" mapstructure:"public_paths"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "json" or "console"
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods,omitempty" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty" mapstructure:"allowed_headers"`
}
