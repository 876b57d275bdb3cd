package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MAILDISPATCH_SERVER_PORT
const EnvPrefix = "MAILDISPATCH"

// NewViper returns a viper instance with defaults and environment binding set
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Dispatch defaults
	v.SetDefault("dispatch.name", "default")
	v.SetDefault("dispatch.max_attempts", 5)
	v.SetDefault("dispatch.base_delay", "1s")
	v.SetDefault("dispatch.max_delay", "0s")
	v.SetDefault("dispatch.rate_limit_interval", "5s")

	// Two mock providers, the second less reliable than the first
	v.SetDefault("transports", []map[string]any{
		{"name": "primary", "type": TypeMock, "mock": map[string]any{"success_rate": 0.9}},
		{"name": "secondary", "type": TypeMock, "mock": map[string]any{"success_rate": 0.8}},
	})

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "3m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.send_timeout", "2m")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_password", "")
	v.SetDefault("auth.api_key_env", "")
	v.SetDefault("auth.public_paths", []string{"/health"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// CORS defaults
	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.allowed_origins", []string{})
}

// Read loads path into v. An empty path searches ./maildispatch.yaml and
// ./config/maildispatch.yaml; finding neither is not an error.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("maildispatch")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Decode unmarshals the settings held by v into a Config
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Load reads defaults, the optional file at path, and the environment, then
// validates the result
func Load(path string) (*Config, error) {
	v := NewViper()
	if err := Read(v, path); err != nil {
		return nil, err
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration, ignoring files and environment
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Decode(v)
	if err != nil {
		panic(fmt.Sprintf("config: built-in defaults do not decode: %v", err))
	}
	return cfg
}

const redacted = "********"

// YAML renders the configuration with secrets redacted
func (c *Config) YAML() ([]byte, error) {
	out := *c
	out.Transports = make([]TransportConfig, len(c.Transports))
	for i, t := range c.Transports {
		if t.SMTP != nil {
			s := *t.SMTP
			s.Password = redact(s.Password)
			t.SMTP = &s
		}
		if t.Webhook != nil {
			w := *t.Webhook
			w.Token = redact(w.Token)
			if w.OAuth2 != nil {
				o := *w.OAuth2
				o.ClientSecret = redact(o.ClientSecret)
				w.OAuth2 = &o
			}
			t.Webhook = &w
		}
		out.Transports[i] = t
	}
	out.Auth.APIPassword = redact(out.Auth.APIPassword)

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return data, nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}
