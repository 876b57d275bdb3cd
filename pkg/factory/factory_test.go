package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/testutil"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/config"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/metrics"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/transports/breaker"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

func scriptedConstructor(outcomes ...testutil.Outcome) Constructor {
	return func(cfg config.TransportConfig, _ Dependencies) (types.Transport, error) {
		return testutil.NewScriptedTransport(cfg.Name, outcomes...), nil
	}
}

// TestNewTransportFactory tests factory creation and initialization
func TestNewTransportFactory(t *testing.T) {
	factory := NewTransportFactory()

	assert.NotNil(t, factory)
	assert.NotNil(t, factory.constructors)
	assert.Empty(t, factory.GetSupportedTransports())
}

// TestDefaultTransportFactory_RegisterTransport_ConcurrentAccess tests thread safety of registration
func TestDefaultTransportFactory_RegisterTransport_ConcurrentAccess(t *testing.T) {
	factory := NewTransportFactory()
	var wg sync.WaitGroup
	numGoroutines := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			factory.RegisterTransport(fmt.Sprintf("type-%d", i), scriptedConstructor())
		}(i)
	}

	wg.Wait()
	assert.Len(t, factory.GetSupportedTransports(), numGoroutines)
}

// TestDefaultTransportFactory_CreateTransport tests creation of a registered type
func TestDefaultTransportFactory_CreateTransport(t *testing.T) {
	factory := NewTransportFactory()
	factory.RegisterTransport("scripted", scriptedConstructor(testutil.Succeed()))

	transport, err := factory.CreateTransport(config.TransportConfig{Name: "primary", Type: "scripted"})
	require.NoError(t, err)
	assert.Equal(t, "primary", transport.Name())

	ok, err := transport.Send(context.Background(), types.NewMessage("a@b.c", "s", "b"))
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestDefaultTransportFactory_CreateTransport_Unregistered tests the unknown type error
func TestDefaultTransportFactory_CreateTransport_Unregistered(t *testing.T) {
	factory := NewTransportFactory()

	_, err := factory.CreateTransport(config.TransportConfig{Name: "x", Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownTransportType)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

// TestDefaultTransportFactory_CreateTransport_ConstructorError tests error wrapping
func TestDefaultTransportFactory_CreateTransport_ConstructorError(t *testing.T) {
	factory := NewTransportFactory()
	boom := errors.New("boom")
	factory.RegisterTransport("broken", func(config.TransportConfig, Dependencies) (types.Transport, error) {
		return nil, boom
	})

	_, err := factory.CreateTransport(config.TransportConfig{Name: "x", Type: "broken"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `create transport "x"`)
}

// TestDefaultTransportFactory_CreateTransport_RenamesTransport tests that the configured name wins
func TestDefaultTransportFactory_CreateTransport_RenamesTransport(t *testing.T) {
	factory := NewTransportFactory()
	factory.RegisterTransport("fixed", func(config.TransportConfig, Dependencies) (types.Transport, error) {
		return testutil.AlwaysSucceed("built-in-name"), nil
	})

	transport, err := factory.CreateTransport(config.TransportConfig{Name: "configured", Type: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "configured", transport.Name())
}

// TestDefaultTransportFactory_CreateTransport_Breaker tests breaker wrapping and metrics wiring
func TestDefaultTransportFactory_CreateTransport_Breaker(t *testing.T) {
	collector := metrics.NewDefaultMetricsCollector()
	defer collector.Close()

	factory := NewTransportFactory()
	factory.SetMetricsCollector(collector)
	factory.RegisterTransport("scripted", scriptedConstructor())

	transport, err := factory.CreateTransport(config.TransportConfig{
		Name:    "flaky",
		Type:    "scripted",
		Breaker: &breaker.Config{ConsecutiveFailures: 2, MaxRequests: 1},
	})
	require.NoError(t, err)

	wrapped, ok := transport.(*breaker.Transport)
	require.True(t, ok, "expected a breaker-wrapped transport")
	assert.Equal(t, "flaky", wrapped.Name())

	for i := 0; i < 2; i++ {
		_, _ = transport.Send(context.Background(), types.NewMessage("a@b.c", "s", "b"))
	}
	assert.Equal(t, breaker.StateOpen, wrapped.State())

	tm := collector.GetTransportMetrics("flaky")
	require.NotNil(t, tm)
	assert.Equal(t, int64(1), tm.CircuitOpens)
}

// TestDefaultTransportFactory_CreateTransports tests ordering and skipping disabled entries
func TestDefaultTransportFactory_CreateTransports(t *testing.T) {
	factory := NewTransportFactory()
	factory.RegisterTransport("scripted", scriptedConstructor())

	transports, err := factory.CreateTransports([]config.TransportConfig{
		{Name: "a", Type: "scripted"},
		{Name: "b", Type: "scripted", Disabled: true},
		{Name: "c", Type: "scripted"},
	})
	require.NoError(t, err)
	require.Len(t, transports, 2)
	assert.Equal(t, "a", types.TransportName(transports[0], 0))
	assert.Equal(t, "c", types.TransportName(transports[1], 1))
}

// TestDefaultTransportFactory_CreateTransports_StopsOnError tests that one bad entry fails the set
func TestDefaultTransportFactory_CreateTransports_StopsOnError(t *testing.T) {
	factory := NewTransportFactory()
	factory.RegisterTransport("scripted", scriptedConstructor())

	_, err := factory.CreateTransports([]config.TransportConfig{
		{Name: "a", Type: "scripted"},
		{Name: "b", Type: "unknown"},
	})
	assert.ErrorIs(t, err, types.ErrUnknownTransportType)
}

// TestDefaultTransportFactory_SetLogger_Nil tests that a nil logger is replaced
func TestDefaultTransportFactory_SetLogger_Nil(t *testing.T) {
	factory := NewTransportFactory()
	factory.SetLogger(nil)
	assert.NotNil(t, factory.logger)
}
