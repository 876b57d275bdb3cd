package factory

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/config"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/breaker"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// Dependencies are the shared services handed to every constructor
type Dependencies struct {
	Logger  *zap.Logger
	Metrics types.MetricsCollector
}

// Constructor builds a transport from its configuration
type Constructor func(cfg config.TransportConfig, deps Dependencies) (types.Transport, error)

// DefaultTransportFactory is the default factory implementation
type DefaultTransportFactory struct {
	constructors     map[string]Constructor
	mutex            sync.RWMutex
	metricsCollector types.MetricsCollector
	logger           *zap.Logger
}

// NewTransportFactory creates an empty factory; see RegisterDefaultTransports
func NewTransportFactory() *DefaultTransportFactory {
	return &DefaultTransportFactory{
		constructors: make(map[string]Constructor),
		logger:       zap.NewNop(),
	}
}

// SetMetricsCollector sets the collector passed to constructors and breakers
func (f *DefaultTransportFactory) SetMetricsCollector(collector types.MetricsCollector) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.metricsCollector = collector
}

// SetLogger sets the logger passed to constructors and breakers
func (f *DefaultTransportFactory) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.logger = logger
}

// RegisterTransport registers a constructor for a transport type, replacing
// any earlier registration
func (f *DefaultTransportFactory) RegisterTransport(transportType string, constructor Constructor) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.constructors[transportType] = constructor
}

// CreateTransport builds the transport described by cfg. The result reports
// cfg.Name as its name and is wrapped in a circuit breaker when cfg.Breaker
// is set.
func (f *DefaultTransportFactory) CreateTransport(cfg config.TransportConfig) (types.NamedTransport, error) {
	f.mutex.RLock()
	constructor, exists := f.constructors[cfg.Type]
	deps := Dependencies{Logger: f.logger, Metrics: f.metricsCollector}
	f.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q (transport %q)", types.ErrUnknownTransportType, cfg.Type, cfg.Name)
	}
	if err := ValidateTransportConfig(cfg); err != nil {
		return nil, err
	}

	transport, err := constructor(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("create transport %q: %w", cfg.Name, err)
	}

	named, ok := transport.(types.NamedTransport)
	if !ok || named.Name() != cfg.Name {
		named = types.Named(cfg.Name, transport)
	}

	if cfg.Breaker == nil {
		return named, nil
	}
	wrapped, err := breaker.Wrap(named, *cfg.Breaker,
		breaker.WithLogger(deps.Logger.Named("breaker")),
		breaker.WithMetricsCollector(deps.Metrics))
	if err != nil {
		return nil, fmt.Errorf("create transport %q: %w", cfg.Name, err)
	}
	return wrapped, nil
}

// CreateTransports builds every enabled transport in order
func (f *DefaultTransportFactory) CreateTransports(cfgs []config.TransportConfig) ([]types.Transport, error) {
	out := make([]types.Transport, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Disabled {
			continue
		}
		t, err := f.CreateTransport(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// GetSupportedTransports returns all registered transport types, sorted
func (f *DefaultTransportFactory) GetSupportedTransports() []string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	transportTypes := make([]string, 0, len(f.constructors))
	for transportType := range f.constructors {
		transportTypes = append(transportTypes, transportType)
	}
	sort.Strings(transportTypes)

	return transportTypes
}
