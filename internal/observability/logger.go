package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/backendtypes"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// NewLogger builds the server logger described by cfg, writing to stderr.
func NewLogger(cfg backendtypes.LoggingConfig) (*zap.Logger, error) {
	return NewLoggerTo(cfg, zapcore.Lock(os.Stderr))
}

// NewLoggerTo is NewLogger with an explicit sink.
func NewLoggerTo(cfg backendtypes.LoggingConfig, sink zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console", "text":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("%w: logging: unknown format %q", types.ErrInvalidConfig, cfg.Format)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// NewCLILogger builds a compact console logger for commands. Verbose lowers
// the level to debug.
func NewCLILogger(verbose bool) *zap.Logger {
	return newCLILogger(verbose, zapcore.Lock(os.Stderr))
}

func newCLILogger(verbose bool, sink zapcore.WriteSyncer) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level))
}

// ParseLevel converts a level name to a zap level. Empty means info and
// "warning" is accepted as an alias of "warn".
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		name = "warn"
	}

	var level zapcore.Level
	if err := level.Set(name); err != nil {
		return level, fmt.Errorf("%w: logging: %v", types.ErrInvalidConfig, err)
	}
	return level, nil
}
