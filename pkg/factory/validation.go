package factory

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/config"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// ValidateTransportConfig checks cfg before a constructor sees it
func ValidateTransportConfig(cfg config.TransportConfig) error {
	return cfg.Validate()
}

// CreateTransportFromConfig builds a transport from a loosely typed map, as
// found in JSON request bodies or ad hoc YAML. Durations may be strings.
func CreateTransportFromConfig(factory *DefaultTransportFactory, configMap map[string]interface{}) (types.NamedTransport, error) {
	if _, ok := configMap["type"].(string); !ok {
		return nil, fmt.Errorf("%w: transport type is required", types.ErrInvalidConfig)
	}
	if _, ok := configMap["name"].(string); !ok {
		return nil, fmt.Errorf("%w: transport name is required", types.ErrInvalidConfig)
	}

	var cfg config.TransportConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(configMap); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}

	return factory.CreateTransport(cfg)
}
