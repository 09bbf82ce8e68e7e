package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/domain"
)

var consumerTracer = otel.Tracer("messaging/consumer")

const sideEffectTimeout = 5 * time.Second

// MessageReader is the part of *kafka.Reader the runner depends on.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type EventHandler interface {
	Handle(ctx context.Context, event domain.OrderPlacedEvent) error
}

type EventHandlerFunc func(ctx context.Context, event domain.OrderPlacedEvent) error

func (f EventHandlerFunc) Handle(ctx context.Context, event domain.OrderPlacedEvent) error {
	return f(ctx, event)
}

type DeadLetterSink interface {
	Record(ctx context.Context, dl domain.DeadLetter) error
}

// Deduplicator remembers which idempotency keys a consumer group has handled.
// Keys are marked only after the handler succeeds.
type Deduplicator interface {
	Processed(ctx context.Context, group, key string) (bool, error)
	MarkProcessed(ctx context.Context, group, key string) error
}

type State int32

const (
	StateStopped State = iota
	StateStarting
	StatePolling
	StateProcessing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StatePolling:
		return "polling"
	case StateProcessing:
		return "processing"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type Outcome string

const (
	OutcomeDecoded       Outcome = "decoded"
	OutcomeDecodeFailed  Outcome = "decode_failed"
	OutcomeHandlerFailed Outcome = "handler_failed"
	OutcomeDuplicate     Outcome = "duplicate"
)

// Result is what processing one record produced. It is logged, counted and
// dropped; it never changes the loop's control flow.
type Result struct {
	Outcome Outcome
	Event   domain.OrderPlacedEvent
	Err     error
}

func (r Result) failed() bool {
	return r.Outcome == OutcomeDecodeFailed || r.Outcome == OutcomeHandlerFailed
}

type RunnerConfig struct {
	Group             string
	Topic             string
	FetchRetryBackoff time.Duration
}

type RunnerOption func(*Runner)

func WithDeadLetterSink(sink DeadLetterSink) RunnerOption {
	return func(r *Runner) {
		r.deadLetters = sink
	}
}

func WithDeduplicator(d Deduplicator) RunnerOption {
	return func(r *Runner) {
		r.dedup = d
	}
}

// WithResultObserver registers a callback invoked after every processed record.
func WithResultObserver(fn func(kafka.Message, Result)) RunnerOption {
	return func(r *Runner) {
		r.observe = fn
	}
}

// Runner drives one consumer group: it fetches records, decodes them, hands
// them to the handler and commits their offsets whether or not handling
// succeeded. Per-record failures are contained; only cancellation ends Run.
type Runner struct {
	reader       MessageReader
	handler      EventHandler
	group        string
	topic        string
	fetchBackoff time.Duration
	deadLetters  DeadLetterSink
	dedup        Deduplicator
	observe      func(kafka.Message, Result)
	logger       *slog.Logger
	metrics      instruments

	state   atomic.Int32
	started atomic.Bool
}

func NewRunner(reader MessageReader, cfg RunnerConfig, handler EventHandler, logger *slog.Logger, opts ...RunnerOption) *Runner {
	backoff := cfg.FetchRetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	r := &Runner{
		reader:       reader,
		handler:      handler,
		group:        cfg.Group,
		topic:        cfg.Topic,
		fetchBackoff: backoff,
		logger:       logger.With("group", cfg.Group, "topic", cfg.Topic),
		metrics:      newInstruments(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

// Run blocks until ctx is cancelled, then closes the reader. It returns nil on
// a clean shutdown and an error only if the reader fails to close. A Runner
// can be run once.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunnerStarted
	}

	r.setState(StateStarting)
	r.logger.Info("consumer started")

	defer r.setState(StateStopped)

	for {
		r.setState(StatePolling)

		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.stop()
			}
			r.logger.Error("kafka consume error", "error", err)
			r.metrics.consumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("group", r.group)))
			if !sleep(ctx, r.fetchBackoff) {
				return r.stop()
			}
			continue
		}

		r.setState(StateProcessing)
		result := r.processMessage(ctx, msg)
		r.report(ctx, msg, result)

		if ctx.Err() != nil && result.Outcome == OutcomeHandlerFailed {
			r.logger.Warn("abandoning in-flight record on shutdown",
				"partition", msg.Partition, "offset", msg.Offset, "order_id", result.Event.OrderID)
			return r.stop()
		}

		if result.failed() {
			r.deadLetter(ctx, msg, result)
		}

		r.commit(ctx, msg)

		if ctx.Err() != nil {
			return r.stop()
		}
	}
}

func (r *Runner) stop() error {
	r.setState(StateStopping)
	r.logger.Info("closing kafka consumer")
	if err := r.reader.Close(); err != nil {
		return fmt.Errorf("close reader: %w", err)
	}
	return nil
}

func (r *Runner) processMessage(ctx context.Context, msg kafka.Message) Result {
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{msg: &msg})

	spanCtx, span := consumerTracer.Start(parentCtx, "process "+r.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(r.topic),
			semconv.MessagingKafkaConsumerGroup(r.group),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
		),
	)
	defer span.End()

	result := r.handleRecord(spanCtx, msg)
	span.SetAttributes(attribute.String("messaging.record.outcome", string(result.Outcome)))
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}
	return result
}

func (r *Runner) handleRecord(ctx context.Context, msg kafka.Message) Result {
	event, err := domain.DecodeOrderPlacedEvent(msg.Value)
	if err != nil {
		return Result{Outcome: OutcomeDecodeFailed, Err: err}
	}

	// Records published without an idempotency key are never deduplicated.
	key := headerValue(msg, HeaderIdempotencyKey)
	dedup := r.dedup != nil && key != ""

	if dedup {
		seen, err := r.dedup.Processed(ctx, r.group, key)
		if err != nil {
			r.logger.Warn("deduplication unavailable, handling record", "error", err, "order_id", event.OrderID)
		} else if seen {
			return Result{Outcome: OutcomeDuplicate, Event: event}
		}
	}

	start := time.Now()
	err = r.invoke(ctx, event)
	r.metrics.handlerDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("group", r.group)))

	if err != nil {
		return Result{Outcome: OutcomeHandlerFailed, Event: event, Err: err}
	}

	if dedup {
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		if merr := r.dedup.MarkProcessed(markCtx, r.group, key); merr != nil {
			r.logger.Warn("failed to record idempotency key", "error", merr, "order_id", event.OrderID)
		}
		cancel()
	}

	return Result{Outcome: OutcomeDecoded, Event: event}
}

func (r *Runner) invoke(ctx context.Context, event domain.OrderPlacedEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return r.handler.Handle(ctx, event)
}

func (r *Runner) report(ctx context.Context, msg kafka.Message, result Result) {
	attrs := []any{"partition", msg.Partition, "offset", msg.Offset}

	switch result.Outcome {
	case OutcomeDecoded:
		r.logger.Info("record handled", append(attrs, "order_id", result.Event.OrderID)...)
	case OutcomeDuplicate:
		r.logger.Debug("duplicate record skipped", append(attrs, "order_id", result.Event.OrderID)...)
	case OutcomeDecodeFailed:
		r.logger.Error("failed to decode record, skipping", append(attrs, "error", result.Err)...)
	case OutcomeHandlerFailed:
		r.logger.Error("handler failed", append(attrs, "error", result.Err, "order_id", result.Event.OrderID)...)
	}

	r.metrics.records.Add(ctx, 1, metric.WithAttributes(
		attribute.String("group", r.group),
		attribute.String("outcome", string(result.Outcome)),
	))

	if r.observe != nil {
		r.observe(msg, result)
	}
}

func (r *Runner) deadLetter(ctx context.Context, msg kafka.Message, result Result) {
	if r.deadLetters == nil {
		return
	}

	dl := domain.DeadLetter{
		ConsumerGroup: r.group,
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Key:           string(msg.Key),
		Payload:       msg.Value,
		Outcome:       string(result.Outcome),
		Reason:        result.Err.Error(),
		FailedAt:      time.Now().UTC(),
	}

	dlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := r.deadLetters.Record(dlCtx, dl); err != nil {
		r.logger.Error("failed to record dead letter", "error", err, "partition", msg.Partition, "offset", msg.Offset)
	}
}

// commit runs detached from ctx so a record that finished processing during
// shutdown still has its offset committed.
func (r *Runner) commit(ctx context.Context, msg kafka.Message) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := r.reader.CommitMessages(commitCtx, msg); err != nil {
		r.logger.Error("failed to commit offset", "error", err, "partition", msg.Partition, "offset", msg.Offset)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
