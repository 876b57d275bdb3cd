package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/testutil"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/metrics"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

func msg() types.Message {
	return types.NewMessage("user@example.com", "s", "b")
}

func TestWrap_Validation(t *testing.T) {
	_, err := Wrap(nil, DefaultConfig())
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = Wrap(testutil.AlwaysSucceed("a"), Config{FailureRatio: 2})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestWrap_NamesUnnamedTransport(t *testing.T) {
	inner := types.TransportFunc(func(context.Context, types.Message) (bool, error) { return true, nil })
	tr, err := Wrap(inner, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "transport-0", tr.Name())
}

func TestSend_PassesThrough(t *testing.T) {
	inner := testutil.NewScriptedTransport("primary",
		testutil.Succeed(), testutil.Fail(), testutil.FailWith(testutil.ErrScripted))
	tr, err := Wrap(inner, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "primary", tr.Name())

	ok, err := tr.Send(context.Background(), msg())
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = tr.Send(context.Background(), msg())
	assert.False(t, ok)
	assert.NoError(t, err, "a falsy result is not surfaced as an error")

	ok, err = tr.Send(context.Background(), msg())
	assert.False(t, ok)
	assert.ErrorIs(t, err, testutil.ErrScripted)

	assert.Equal(t, 3, inner.Calls())
	assert.Equal(t, uint32(2), tr.Counts().ConsecutiveFailures)
}

func TestSend_TripsAndShortCircuits(t *testing.T) {
	collector := metrics.NewDefaultMetricsCollector()
	defer collector.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	inner := testutil.AlwaysFail("primary")
	tr, err := Wrap(inner, Config{MaxRequests: 1, Timeout: time.Hour, ConsecutiveFailures: 3},
		WithLogger(zap.New(core)), WithMetricsCollector(collector))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, _ := tr.Send(context.Background(), msg())
		assert.False(t, ok)
	}
	assert.Equal(t, StateOpen, tr.State())

	ok, err := tr.Send(context.Background(), msg())
	assert.False(t, ok)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, 3, inner.Calls(), "open breaker must not reach the transport")

	require.Equal(t, 1, logs.FilterMessage("circuit breaker state changed").Len())

	tm := collector.GetTransportMetrics("primary")
	require.NotNil(t, tm)
	assert.Equal(t, int64(1), tm.CircuitOpens)
	assert.Equal(t, "open", tm.CircuitState)
}

func TestSend_RecoversAfterTimeout(t *testing.T) {
	collector := metrics.NewDefaultMetricsCollector()
	defer collector.Close()

	inner := testutil.NewScriptedTransport("primary", testutil.Fail(), testutil.Fail()).
		WithFallback(testutil.Succeed())
	tr, err := Wrap(inner, Config{MaxRequests: 1, Timeout: 20 * time.Millisecond, ConsecutiveFailures: 2},
		WithMetricsCollector(collector))
	require.NoError(t, err)

	_, _ = tr.Send(context.Background(), msg())
	_, _ = tr.Send(context.Background(), msg())
	require.Equal(t, StateOpen, tr.State())

	require.Eventually(t, func() bool {
		return tr.State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	ok, err := tr.Send(context.Background(), msg())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateClosed, tr.State())

	tm := collector.GetTransportMetrics("primary")
	require.NotNil(t, tm)
	assert.Equal(t, "closed", tm.CircuitState)
}

func TestReadyToTrip_FailureRatio(t *testing.T) {
	trip := readyToTrip(Config{MinRequests: 4, FailureRatio: 0.5})

	assert.False(t, trip(gobreaker.Counts{Requests: 3, TotalFailures: 3}))
	assert.False(t, trip(gobreaker.Counts{Requests: 4, TotalFailures: 1}))
	assert.True(t, trip(gobreaker.Counts{Requests: 4, TotalFailures: 2}))
}

func TestSend_PanicStillCountsAsFailure(t *testing.T) {
	inner := testutil.NewScriptedTransport("primary", testutil.PanicWith("boom"))
	tr, err := Wrap(inner, DefaultConfig())
	require.NoError(t, err)

	assert.Panics(t, func() { _, _ = tr.Send(context.Background(), msg()) })
	assert.Equal(t, uint32(1), tr.Counts().ConsecutiveFailures)
}
