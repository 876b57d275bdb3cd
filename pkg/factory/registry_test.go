package factory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/testutil"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/config"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/metrics"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/retry"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/logsink"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/mock"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/smtp"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/webhook"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// TestRegisterDefaultTransports tests the default transport registration functionality
func TestRegisterDefaultTransports(t *testing.T) {
	factory := NewTransportFactory()
	assert.Empty(t, factory.GetSupportedTransports())

	RegisterDefaultTransports(factory)

	assert.Equal(t,
		[]string{config.TypeLogSink, config.TypeMock, config.TypeSMTP, config.TypeWebhook},
		factory.GetSupportedTransports())
}

// TestRegisterDefaultTransports_Creation tests that each default transport can be created
func TestRegisterDefaultTransports_Creation(t *testing.T) {
	factory := NewDefaultFactory()

	testCases := []struct {
		name   string
		config config.TransportConfig
		check  func(t *testing.T, transport types.NamedTransport)
	}{
		{
			name: "smtp",
			config: config.TransportConfig{Name: "relay", Type: config.TypeSMTP,
				SMTP: &smtp.Config{Host: "localhost", Port: 2525, From: "a@b.c"}},
			check: func(t *testing.T, transport types.NamedTransport) {
				assert.IsType(t, &smtp.Transport{}, transport)
			},
		},
		{
			name: "webhook",
			config: config.TransportConfig{Name: "api", Type: config.TypeWebhook,
				Webhook: &webhook.Config{URL: "http://localhost/send"}},
			check: func(t *testing.T, transport types.NamedTransport) {
				assert.IsType(t, &webhook.Transport{}, transport)
			},
		},
		{
			name:   "mock",
			config: config.TransportConfig{Name: "primary", Type: config.TypeMock, Mock: &mock.Config{SuccessRate: 0.9}},
			check: func(t *testing.T, transport types.NamedTransport) {
				assert.IsType(t, &mock.Transport{}, transport)
			},
		},
		{
			name:   "mock without section always succeeds",
			config: config.TransportConfig{Name: "primary", Type: config.TypeMock},
			check: func(t *testing.T, transport types.NamedTransport) {
				for i := 0; i < 20; i++ {
					ok, err := transport.Send(context.Background(), types.NewMessage("a@b.c", "s", "b"))
					require.NoError(t, err)
					require.True(t, ok)
				}
			},
		},
		{
			name:   "logsink",
			config: config.TransportConfig{Name: "sink", Type: config.TypeLogSink, LogSink: &logsink.Config{Level: "debug"}},
			check: func(t *testing.T, transport types.NamedTransport) {
				assert.IsType(t, &logsink.Transport{}, transport)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transport, err := factory.CreateTransport(tc.config)
			require.NoError(t, err)
			assert.Equal(t, tc.config.Name, transport.Name())
			tc.check(t, transport)
		})
	}
}

// TestRegisterDefaultTransports_LogSinkUsesFactoryLogger tests dependency injection
func TestRegisterDefaultTransports_LogSinkUsesFactoryLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	factory := NewDefaultFactory()
	factory.SetLogger(zap.New(core))

	transport, err := factory.CreateTransport(config.TransportConfig{Name: "sink", Type: config.TypeLogSink})
	require.NoError(t, err)

	ok, err := transport.Send(context.Background(), types.NewMessage("a@b.c", "s", "b"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("email captured").Len())
}

// TestBuildDispatcher tests assembling a dispatcher from configuration
func TestBuildDispatcher(t *testing.T) {
	collector := metrics.NewDefaultMetricsCollector()
	defer collector.Close()

	factory := NewDefaultFactory()
	factory.SetMetricsCollector(collector)
	factory.RegisterTransport("scripted", func(cfg config.TransportConfig, _ Dependencies) (types.Transport, error) {
		return testutil.AlwaysFail(cfg.Name), nil
	})

	cfg := config.Default()
	cfg.Dispatch.Name = "billing"
	cfg.Dispatch.MaxAttempts = 2
	cfg.Dispatch.BaseDelay = time.Second
	cfg.Transports = []config.TransportConfig{
		{Name: "broken", Type: "scripted"},
		{Name: "off", Type: config.TypeMock, Disabled: true},
		{Name: "sink", Type: config.TypeLogSink},
	}

	clock := testutil.NewFakeClock(time.Time{})
	d, err := factory.BuildDispatcher(cfg, dispatch.WithClock(clock.Now), dispatch.WithSleeper(clock.Sleep))
	require.NoError(t, err)

	assert.Equal(t, "billing", d.Name())
	assert.Equal(t, []string{"broken", "sink"}, d.Transports())
	assert.Equal(t, retry.Schedule{MaxAttempts: 2, BaseDelay: time.Second}, d.Schedule())
	require.NotNil(t, d.Gate())
	assert.Equal(t, 5*time.Second, d.Gate().Interval())

	result := d.Dispatch(context.Background(), types.NewMessage("a@b.c", "s", "b"))
	assert.True(t, result.Delivered)
	assert.Equal(t, "sink", result.Transport)
	assert.Equal(t, 2, result.AttemptsFor("broken"))
	assert.Equal(t, []time.Duration{time.Second}, clock.Sleeps(), "one backoff between the two attempts")

	snapshot := collector.GetSnapshot()
	assert.Equal(t, int64(1), snapshot.Delivered)
	assert.Equal(t, int64(1), snapshot.TransportSwitches)
}

// TestBuildDispatcher_NoGate tests that a zero interval disables rate limiting
func TestBuildDispatcher_NoGate(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.RateLimitInterval = 0

	d, err := NewDefaultFactory().BuildDispatcher(cfg)
	require.NoError(t, err)
	assert.Nil(t, d.Gate())
}

// TestBuildDispatcher_InvalidConfig tests that validation runs first
func TestBuildDispatcher_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Transports = nil

	_, err := NewDefaultFactory().BuildDispatcher(cfg)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
