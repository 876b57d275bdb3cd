package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/ratelimit"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/retry"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

const (
	// DefaultName is used in logs and metrics when no name is configured
	DefaultName = "default"

	// DefaultRateInterval is the minimum spacing between two dispatches
	DefaultRateInterval = 5 * time.Second
)

// Dispatcher sends email through an ordered list of transports. Each dispatch
// passes the rate gate once, then retries the first transport on its schedule
// and falls back to the next transport when the schedule is spent.
type Dispatcher struct {
	name       string
	transports []types.NamedTransport
	gate       *ratelimit.Gate
	scheduler  *retry.Scheduler
	logger     *zap.Logger
	clock      types.Clock

	mu               sync.RWMutex
	metricsCollector types.MetricsCollector
}

// Option configures a Dispatcher
type Option func(*options)

type options struct {
	name      string
	gate      *ratelimit.Gate
	gateSet   bool
	interval  time.Duration
	scheduler *retry.Scheduler
	schedule  retry.Schedule
	logger    *zap.Logger
	metrics   types.MetricsCollector
	clock     types.Clock
	sleep     types.Sleeper
}

// WithName sets the name used in logs and metric events
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithGate sets the rate gate. A nil gate disables throttling.
func WithGate(gate *ratelimit.Gate) Option {
	return func(o *options) {
		o.gate = gate
		o.gateSet = true
	}
}

// WithRateInterval sets the spacing of the default gate. It has no effect
// when WithGate is also given.
func WithRateInterval(interval time.Duration) Option {
	return func(o *options) {
		o.interval = interval
	}
}

// WithScheduler sets the retry scheduler, overriding WithSchedule
func WithScheduler(scheduler *retry.Scheduler) Option {
	return func(o *options) {
		o.scheduler = scheduler
	}
}

// WithSchedule sets the retry schedule used to build the default scheduler
func WithSchedule(schedule retry.Schedule) Option {
	return func(o *options) {
		o.schedule = schedule
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsCollector sets the collector receiving dispatch events
func WithMetricsCollector(collector types.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = collector
	}
}

// WithClock sets the time source for the default gate, scheduler, and timings
func WithClock(clock types.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSleeper sets the sleeper for the default gate and scheduler
func WithSleeper(sleep types.Sleeper) Option {
	return func(o *options) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// New creates a dispatcher over transports, tried in the given order.
// Without WithGate a gate spaced by WithRateInterval (DefaultRateInterval
// if unset) is created; without
// WithScheduler or WithSchedule the retry.DefaultSchedule() applies.
func New(transports []types.Transport, opts ...Option) *Dispatcher {
	o := &options{
		name:     DefaultName,
		interval: DefaultRateInterval,
		schedule: retry.DefaultSchedule(),
		logger:   zap.NewNop(),
		clock:    types.SystemClock,
		sleep:    types.SystemSleep,
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger.With(zap.String("dispatcher", o.name))

	gate := o.gate
	if !o.gateSet {
		gate = ratelimit.NewGate(o.interval,
			ratelimit.WithClock(o.clock),
			ratelimit.WithSleeper(o.sleep))
	}

	scheduler := o.scheduler
	if scheduler == nil {
		scheduler = retry.NewScheduler(o.schedule,
			retry.WithClock(o.clock),
			retry.WithSleeper(o.sleep),
			retry.WithLogger(logger))
	}

	named := make([]types.NamedTransport, 0, len(transports))
	for i, t := range transports {
		if t == nil {
			logger.Warn("skipping nil transport", zap.Int("index", i))
			continue
		}
		if n, ok := t.(types.NamedTransport); ok && n.Name() != "" {
			named = append(named, n)
			continue
		}
		named = append(named, types.Named(types.TransportName(t, i), t))
	}

	return &Dispatcher{
		name:             o.name,
		transports:       named,
		gate:             gate,
		scheduler:        scheduler,
		logger:           logger,
		clock:            o.clock,
		metricsCollector: o.metrics,
	}
}

// Name returns the dispatcher name
func (d *Dispatcher) Name() string { return d.name }

// Transports returns the transport names in fallback order
func (d *Dispatcher) Transports() []string {
	names := make([]string, len(d.transports))
	for i, t := range d.transports {
		names[i] = t.Name()
	}
	return names
}

// Transport returns the transport with the given name, or nil
func (d *Dispatcher) Transport(name string) types.NamedTransport {
	for _, t := range d.transports {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Schedule returns the per-transport retry schedule
func (d *Dispatcher) Schedule() retry.Schedule { return d.scheduler.Schedule() }

// Gate returns the rate gate, which may be nil
func (d *Dispatcher) Gate() *ratelimit.Gate { return d.gate }

// SetMetricsCollector replaces the metrics collector
func (d *Dispatcher) SetMetricsCollector(collector types.MetricsCollector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metricsCollector = collector
}

// GetMetricsCollector returns the current metrics collector, possibly nil
func (d *Dispatcher) GetMetricsCollector() types.MetricsCollector {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.metricsCollector
}

// Send delivers one email and reports whether any transport accepted it.
// It never returns an error: every failure ends up as false.
func (d *Dispatcher) Send(ctx context.Context, to, subject, body string) bool {
	return d.Dispatch(ctx, types.NewMessage(to, subject, body)).Delivered
}

// Dispatch delivers msg and reports what happened. A missing msg.ID is
// generated.
func (d *Dispatcher) Dispatch(ctx context.Context, msg types.Message) *Result {
	msg = msg.WithID()
	start := d.clock()
	result := &Result{MessageID: msg.ID}

	d.record(ctx, types.MetricEvent{Type: types.MetricEventDispatch, MessageID: msg.ID})

	waited, err := d.gate.Acquire(ctx)
	result.RateWait = waited
	if err != nil {
		d.logger.Warn("rate gate wait abandoned",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return d.finish(ctx, result, start, err)
	}
	if waited > 0 {
		d.logger.Debug("rate gate delayed dispatch",
			zap.String("message_id", msg.ID),
			zap.Duration("waited", waited))
		d.record(ctx, types.MetricEvent{Type: types.MetricEventRateWait, MessageID: msg.ID, Delay: waited})
	}

	onAttempt := d.attemptRecorder(ctx, msg.ID)
	var previous string
	for i, transport := range d.transports {
		name := transport.Name()
		if i > 0 {
			d.logger.Info("falling back to next transport",
				zap.String("message_id", msg.ID),
				zap.String("from", previous),
				zap.String("to", name))
			d.record(ctx, types.MetricEvent{
				Type:          types.MetricEventTransportSwitch,
				MessageID:     msg.ID,
				FromTransport: previous,
				ToTransport:   name,
				SwitchReason:  "attempts_exhausted",
				Attempt:       i + 1,
			})
		}

		outcome := d.scheduler.Execute(ctx, transport, msg, onAttempt)
		result.addOutcome(outcome)

		if outcome.Delivered {
			result.Delivered = true
			result.Transport = name
			return d.finish(ctx, result, start, nil)
		}
		if outcome.Cancelled {
			return d.finish(ctx, result, start, ctx.Err())
		}
		previous = name
	}

	if len(d.transports) == 0 {
		return d.finish(ctx, result, start, types.ErrNoTransports)
	}
	return d.finish(ctx, result, start, nil)
}

// finish stamps timing, emits the final event, and logs the outcome
func (d *Dispatcher) finish(ctx context.Context, result *Result, start time.Time, err error) *Result {
	result.Elapsed = d.clock().Sub(start)
	if err != nil {
		result.Err = err
		result.Error = err.Error()
	}

	fields := []zap.Field{
		zap.String("message_id", result.MessageID),
		zap.Int("attempts", result.Attempts),
		zap.Duration("elapsed", result.Elapsed),
	}

	if result.Delivered {
		d.logger.Info("email delivered", append(fields, zap.String("transport", result.Transport))...)
		d.record(ctx, types.MetricEvent{
			Type:      types.MetricEventDelivered,
			MessageID: result.MessageID,
			Transport: result.Transport,
			Latency:   result.Elapsed,
		})
		return result
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	d.logger.Warn("email not delivered", fields...)
	d.record(ctx, types.MetricEvent{
		Type:         types.MetricEventExhausted,
		MessageID:    result.MessageID,
		Latency:      result.Elapsed,
		ErrorMessage: result.lastError(),
	})
	return result
}

// attemptRecorder turns scheduler callbacks into metric events
func (d *Dispatcher) attemptRecorder(ctx context.Context, messageID string) retry.AttemptFunc {
	return func(transport string, a retry.Attempt) {
		event := types.MetricEvent{
			Type:      types.MetricEventAttempt,
			MessageID: messageID,
			Transport: transport,
			Attempt:   a.Number + 1,
			Latency:   a.Latency,
			Delay:     a.NextDelay,
		}
		if !a.Succeeded() {
			event.Type = types.MetricEventAttemptFailed
			event.ErrorMessage = a.Err.Error()
			var attemptErr *types.AttemptError
			if errors.As(a.Err, &attemptErr) {
				event.Panicked = attemptErr.Panicked
			}
		}
		d.record(ctx, event)
	}
}

// record sends event to the collector, if any. Events are recorded even when
// ctx has been cancelled so that abandoned dispatches still show up.
func (d *Dispatcher) record(ctx context.Context, event types.MetricEvent) {
	collector := d.GetMetricsCollector()
	if collector == nil {
		return
	}

	event.Dispatcher = d.name
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock()
	}
	_ = collector.RecordEvent(context.WithoutCancel(ctx), event)
}
