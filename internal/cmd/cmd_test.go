package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/factory"
)

const deliverConfig = `
dispatch:
  name: cli
  max_attempts: 2
  base_delay: 1ms
  rate_limit_interval: 0s
transports:
  - name: broken
    type: mock
    mock:
      success_rate: 0
  - name: sink
    type: logsink
logging:
  format: json
server:
  host: 127.0.0.1
  port: 0
  shutdown_timeout: 1s
`

const failConfig = `
dispatch:
  max_attempts: 1
  rate_limit_interval: 0s
transports:
  - name: broken
    type: mock
    mock:
      success_rate: 0
`

const invalidConfig = `
dispatch:
  max_attempts: -1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "maildispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, a *app, stdin string, args ...string) (string, error) {
	t.Helper()
	return runContext(context.Background(), t, a, stdin, args...)
}

func runContext(ctx context.Context, t *testing.T, a *app, stdin string, args ...string) (string, error) {
	t.Helper()
	if a == nil {
		a = &app{newFactory: factory.NewDefaultFactory}
	}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// TestSend_DeliveredJSON tests that send falls back and reports JSON
func TestSend_DeliveredJSON(t *testing.T) {
	cfg := writeConfig(t, deliverConfig)

	out, err := run(t, nil, "", "send", "--config", cfg,
		"--to", "user@example.com", "--subject", "Hi", "--body", "Hello", "-o", "json")
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, true, result["delivered"])
	assert.Equal(t, "sink", result["transport"])
	assert.Equal(t, float64(3), result["attempts"])
}

// TestSend_Table tests the default table output
func TestSend_Table(t *testing.T) {
	cfg := writeConfig(t, deliverConfig)

	out, err := run(t, nil, "", "send", "--config", cfg, "--to", "user@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "delivered via sink")
	assert.Contains(t, out, "broken")
}

// TestSend_BodyFromStdin tests reading the body from stdin
func TestSend_BodyFromStdin(t *testing.T) {
	cfg := writeConfig(t, deliverConfig)

	_, err := run(t, nil, "Hello from stdin", "send", "--config", cfg,
		"--to", "user@example.com", "--body-file", "-")
	require.NoError(t, err)
}

// TestSend_NotDelivered tests the exit code when every transport fails
func TestSend_NotDelivered(t *testing.T) {
	cfg := writeConfig(t, failConfig)

	out, err := run(t, nil, "", "send", "--config", cfg, "--to", "user@example.com", "-o", "json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDelivered)
	assert.Equal(t, ExitNotDelivered, ExitCode(err))
	assert.Contains(t, out, `"delivered": false`)
}

// TestSend_FlagOverridesConfig tests that --max-attempts replaces the file value
func TestSend_FlagOverridesConfig(t *testing.T) {
	cfg := writeConfig(t, failConfig)

	_, err := run(t, nil, "", "send", "--config", cfg, "--to", "user@example.com", "--max-attempts", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not delivered")
}

// TestSend_InvalidInput tests argument and config errors
func TestSend_InvalidInput(t *testing.T) {
	t.Run("missing recipient flag", func(t *testing.T) {
		_, err := run(t, nil, "", "send")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, ExitCode(err))
	})

	t.Run("blank recipient", func(t *testing.T) {
		_, err := run(t, nil, "", "send", "--to", "  ")
		require.Error(t, err)
	})

	t.Run("bad output format", func(t *testing.T) {
		_, err := run(t, nil, "", "send", "--to", "a@b.c", "-o", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported output format")
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := writeConfig(t, invalidConfig)
		_, err := run(t, nil, "", "send", "--config", cfg, "--to", "a@b.c")
		require.Error(t, err)
		assert.Equal(t, ExitConfigInvalid, ExitCode(err))
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := run(t, nil, "", "send", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "--to", "a@b.c")
		require.Error(t, err)
		assert.Equal(t, ExitConfigInvalid, ExitCode(err))
	})
}

// TestSend_Timeout tests that --timeout cuts a long backoff short
func TestSend_Timeout(t *testing.T) {
	cfg := writeConfig(t, strings.Replace(failConfig, "max_attempts: 1", "max_attempts: 2\n  base_delay: 1h", 1))

	start := time.Now()
	_, err := run(t, nil, "", "send", "--config", cfg, "--to", "a@b.c", "--timeout", "50ms")
	require.Error(t, err)
	assert.Equal(t, ExitNotDelivered, ExitCode(err))
	assert.ErrorIs(t, err, ErrNotDelivered)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestConfigShow tests that config show prints YAML with secrets redacted
func TestConfigShow(t *testing.T) {
	cfg := writeConfig(t, deliverConfig+`
auth:
  enabled: true
  api_password: hunter2
`)

	out, err := run(t, nil, "", "config", "show", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "name: sink")
	assert.NotContains(t, out, "hunter2")
}

// TestConfigValidate tests the validate summary and its failure code
func TestConfigValidate(t *testing.T) {
	out, err := run(t, nil, "", "config", "validate", "--config", writeConfig(t, deliverConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
	assert.Contains(t, out, "logsink")

	_, err = run(t, nil, "", "config", "validate", "--config", writeConfig(t, invalidConfig))
	assert.Equal(t, ExitConfigInvalid, ExitCode(err))
}

// TestConfigValidate_UnregisteredType tests a type the factory cannot build
func TestConfigValidate_UnregisteredType(t *testing.T) {
	a := &app{newFactory: factory.NewTransportFactory}

	_, err := run(t, a, "", "config", "validate", "--config", writeConfig(t, deliverConfig))
	require.Error(t, err)
	assert.Equal(t, ExitConfigInvalid, ExitCode(err))
	assert.Contains(t, err.Error(), "unknown type")
}

// TestVersion tests plain and extended version output
func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-10-18")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	out, err := run(t, nil, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "maildispatch 1.2.3\n", out)

	out, err = run(t, nil, "", "version", "--extended")
	require.NoError(t, err)
	assert.Contains(t, out, "Commit: abc123")
	assert.Contains(t, out, "Go: go")
}

// TestServe_ShutsDownOnCancel tests that serve stops cleanly when its context ends
func TestServe_ShutsDownOnCancel(t *testing.T) {
	logs := &syncBuffer{}
	a := &app{newFactory: factory.NewDefaultFactory, logSink: zapcore.AddSync(logs)}
	cfg := writeConfig(t, deliverConfig)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := runContext(ctx, t, a, "", "serve", "--config", cfg)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "starting server")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.Contains(t, logs.String(), "server shutdown complete")
}

// TestServe_InvalidLogFormat tests that a bad logging section fails before listening
func TestServe_InvalidLogFormat(t *testing.T) {
	cfg := writeConfig(t, strings.Replace(deliverConfig, "format: json", "format: xml", 1))

	_, err := run(t, nil, "", "serve", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitConfigInvalid, ExitCode(err))
}

// TestExitCode tests exit code mapping
func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("plain")))
	assert.Equal(t, ExitNotDelivered, ExitCode(Exit(ExitNotDelivered, ErrNotDelivered)))
	assert.NoError(t, Exit(ExitFailure, nil))

	wrapped := Exit(ExitConfigInvalid, errors.New("bad"))
	assert.Equal(t, "bad", wrapped.Error())
	assert.Equal(t, ExitConfigInvalid, ExitCode(errors.Join(errors.New("ctx"), wrapped)))
}

// TestNewRootCmd tests the registered subcommands
func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"send", "serve", "config", "version"} {
		assert.Contains(t, names, want)
	}

	send, _, err := root.Find([]string{"send"})
	require.NoError(t, err)
	assert.NotNil(t, send.Flags().Lookup("to"))
}
