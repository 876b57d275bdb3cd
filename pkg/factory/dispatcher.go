package factory

import (
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/config"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
)

// BuildDispatcher creates the transports in cfg and a dispatcher over them,
// using the factory's logger and metrics collector. Extra options are applied
// last and may override anything derived from cfg.
func (f *DefaultTransportFactory) BuildDispatcher(cfg *config.Config, opts ...dispatch.Option) (*dispatch.Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transports, err := f.CreateTransports(cfg.Transports)
	if err != nil {
		return nil, err
	}

	f.mutex.RLock()
	logger, collector := f.logger, f.metricsCollector
	f.mutex.RUnlock()

	base := []dispatch.Option{
		dispatch.WithName(cfg.Dispatch.Name),
		dispatch.WithSchedule(cfg.Dispatch.Schedule()),
		dispatch.WithRateInterval(cfg.Dispatch.RateLimitInterval),
		dispatch.WithLogger(logger),
		dispatch.WithMetricsCollector(collector),
	}
	if cfg.Dispatch.RateLimitInterval <= 0 {
		base = append(base, dispatch.WithGate(nil))
	}
	return dispatch.New(transports, append(base, opts...)...), nil
}
