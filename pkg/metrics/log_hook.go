package metrics

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

// LogHook writes metric events to a zap logger. Failure events are logged at
// warn level and everything else at debug.
type LogHook struct {
	logger *zap.Logger
	filter *types.MetricFilter
}

// NewLogHook creates a hook logging events that match filter (nil for all).
// The logger is used as given; callers name it.
func NewLogHook(logger *zap.Logger, filter *types.MetricFilter) *LogHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHook{logger: logger, filter: filter}
}

// Name implements types.MetricsHook
func (h *LogHook) Name() string { return "zap-log" }

// Filter implements types.MetricsHook
func (h *LogHook) Filter() *types.MetricFilter { return h.filter }

// OnEvent implements types.MetricsHook
func (h *LogHook) OnEvent(_ context.Context, event types.MetricEvent) {
	level := zapcore.DebugLevel
	if event.Type.IsFailure() {
		level = zapcore.WarnLevel
	}

	ce := h.logger.Check(level, "dispatch event")
	if ce == nil {
		return
	}

	fields := []zap.Field{
		zap.Stringer("event", event.Type),
		zap.String("dispatcher", event.Dispatcher),
	}
	if event.Transport != "" {
		fields = append(fields, zap.String("transport", event.Transport))
	}
	if event.MessageID != "" {
		fields = append(fields, zap.String("message_id", event.MessageID))
	}
	if event.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", event.Attempt))
	}
	if event.Latency > 0 {
		fields = append(fields, zap.Duration("latency", event.Latency))
	}
	if event.Delay > 0 {
		fields = append(fields, zap.Duration("delay", event.Delay))
	}
	if event.ErrorMessage != "" {
		fields = append(fields, zap.String("error", event.ErrorMessage))
	}
	if event.ToTransport != "" {
		fields = append(fields, zap.String("from", event.FromTransport), zap.String("to", event.ToTransport))
	}
	ce.Write(fields...)
}
