package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/testutil"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backend/middleware"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/metrics"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/retry"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

const testKey = "s3cret"

func testConfig() backendtypes.BackendConfig {
	return backendtypes.BackendConfig{
		Server: backendtypes.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			Version:         "test",
			ShutdownTimeout: time.Second,
			SendTimeout:     time.Second,
		},
		Auth: backendtypes.AuthConfig{
			Enabled:     true,
			APIPassword: testKey,
			PublicPaths: []string{"/health", "/status", "/version"},
		},
		CORS: backendtypes.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"https://app.example.com"},
		},
	}
}

func testDispatcher(collector types.MetricsCollector, transports ...types.Transport) *dispatch.Dispatcher {
	clock := testutil.NewFakeClock(time.Time{})
	return dispatch.New(transports,
		dispatch.WithGate(nil),
		dispatch.WithSchedule(retry.Schedule{MaxAttempts: 2, BaseDelay: time.Millisecond}),
		dispatch.WithClock(clock.Now),
		dispatch.WithSleeper(clock.Sleep),
		dispatch.WithMetricsCollector(collector))
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, backendtypes.APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp backendtypes.APIResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testKey}
}

func TestNewServer_UsesDispatcherCollector(t *testing.T) {
	collector := metrics.NewDefaultMetricsCollector()
	defer collector.Close()

	d := testDispatcher(collector, testutil.AlwaysSucceed("a"))
	s := NewServer(testConfig(), d)

	assert.Equal(t, types.MetricsCollector(collector), s.collector)
	assert.Same(t, d, s.GetDispatcher())
	assert.Equal(t, "test", s.GetConfig().Server.Version)
	assert.Empty(t, s.Addr())
}

func TestServer_SendFlow(t *testing.T) {
	collector := metrics.NewDefaultMetricsCollector()
	defer collector.Close()

	primary := testutil.AlwaysFail("primary")
	secondary := testutil.AlwaysSucceed("secondary")
	s := NewServer(testConfig(), testDispatcher(collector, primary, secondary),
		WithTransportTypes(map[string]string{"primary": "smtp", "secondary": "webhook"}))
	h := s.Handler()

	w, resp := do(t, h, http.MethodPost, "/api/send",
		`{"to":"user@example.com","subject":"Hi","body":"Hello"}`, authHeader())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, w.Header().Get(middleware.RequestIDHeader))

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["delivered"])
	assert.Equal(t, "secondary", data["transport"])
	assert.Equal(t, float64(3), data["attempts"])

	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())

	w, resp = do(t, h, http.MethodGet, "/api/transports", "", authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	list := resp.Data.([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, "smtp", list[0].(map[string]interface{})["type"])

	w, resp = do(t, h, http.MethodGet, "/api/metrics", "", authHeader())
	require.Equal(t, http.StatusOK, w.Code)
	dispatchMetrics := resp.Data.(map[string]interface{})["dispatch"].(map[string]interface{})
	assert.Equal(t, float64(1), dispatchMetrics["delivered"])
	assert.Equal(t, float64(1), dispatchMetrics["transport_switches"])

	w, _ = do(t, h, http.MethodGet, "/api/metrics/transports/primary", "", authHeader())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Auth(t *testing.T) {
	s := NewServer(testConfig(), testDispatcher(nil, testutil.AlwaysSucceed("a")))
	h := s.Handler()

	w, resp := do(t, h, http.MethodPost, "/api/send", `{"to":"a@b.c"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, backendtypes.ErrCodeUnauthorized, resp.Error.Code)

	w, _ = do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, h, http.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_AuthDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = false
	s := NewServer(cfg, testDispatcher(nil, testutil.AlwaysSucceed("a")))

	w, _ := do(t, s.Handler(), http.MethodGet, "/api/transports", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_NotFoundAndMethodNotAllowed(t *testing.T) {
	s := NewServer(testConfig(), testDispatcher(nil, testutil.AlwaysSucceed("a")))
	h := s.Handler()

	w, resp := do(t, h, http.MethodGet, "/api/nope", "", authHeader())
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, backendtypes.ErrCodeNotFound, resp.Error.Code)

	w, resp = do(t, h, http.MethodGet, "/api/send", "", authHeader())
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "METHOD_NOT_ALLOWED", resp.Error.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := NewServer(testConfig(), testDispatcher(nil, testutil.AlwaysSucceed("a")))

	req := httptest.NewRequest(http.MethodOptions, "/api/send", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_PanickingTransportIsContained(t *testing.T) {
	boom := testutil.NewScriptedTransport("boom").WithFallback(testutil.PanicWith("kaboom"))
	s := NewServer(testConfig(), testDispatcher(nil, boom, testutil.AlwaysSucceed("backup")))

	w, resp := do(t, s.Handler(), http.MethodPost, "/api/send", `{"to":"a@b.c","subject":"s","body":"b"}`, authHeader())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestServer_RequestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewServer(testConfig(), testDispatcher(nil, testutil.AlwaysSucceed("a")), WithLogger(zap.New(core)))

	do(t, s.Handler(), http.MethodGet, "/status", "", nil)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/status", entries[0].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := NewServer(testConfig(), testDispatcher(nil, testutil.AlwaysSucceed("a")))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- s.Serve(l) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-served:
		assert.True(t, errors.Is(err, http.ErrServerClosed))
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	s := NewServer(testConfig(), testDispatcher(nil, testutil.AlwaysSucceed("a")))
	require.NoError(t, s.Shutdown(context.Background()))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Serve(l), http.ErrServerClosed)
}

func TestServer_ListenAndServeWithGracefulShutdown(t *testing.T) {
	s := NewServer(testConfig(), testDispatcher(nil, testutil.AlwaysSucceed("a")))

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServeWithGracefulShutdown(stop) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, 5*time.Millisecond)
	close(stop)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_StartListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testConfig()
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port
	s := NewServer(cfg, testDispatcher(nil, testutil.AlwaysSucceed("a")))

	err = s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}
