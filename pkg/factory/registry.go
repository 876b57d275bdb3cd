package factory

import (
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/config"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/logsink"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/mock"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/smtp"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/webhook"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// RegisterDefaultTransports registers the built-in transport types
func RegisterDefaultTransports(factory *DefaultTransportFactory) {
	factory.RegisterTransport(config.TypeSMTP, func(cfg config.TransportConfig, _ Dependencies) (types.Transport, error) {
		return smtp.New(cfg.Name, *cfg.SMTP)
	})

	factory.RegisterTransport(config.TypeWebhook, func(cfg config.TransportConfig, _ Dependencies) (types.Transport, error) {
		return webhook.New(cfg.Name, *cfg.Webhook)
	})

	// A mock without a section always succeeds
	factory.RegisterTransport(config.TypeMock, func(cfg config.TransportConfig, _ Dependencies) (types.Transport, error) {
		mockCfg := mock.Config{SuccessRate: 1}
		if cfg.Mock != nil {
			mockCfg = *cfg.Mock
		}
		return mock.New(cfg.Name, mockCfg)
	})

	factory.RegisterTransport(config.TypeLogSink, func(cfg config.TransportConfig, deps Dependencies) (types.Transport, error) {
		var sinkCfg logsink.Config
		if cfg.LogSink != nil {
			sinkCfg = *cfg.LogSink
		}
		return logsink.New(cfg.Name, sinkCfg, deps.Logger)
	})
}

// NewDefaultFactory returns a factory with the built-in transports registered
func NewDefaultFactory() *DefaultTransportFactory {
	f := NewTransportFactory()
	RegisterDefaultTransports(f)
	return f
}
