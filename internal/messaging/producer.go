package messaging

import (
	"context"
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

var producerTracer = otel.Tracer("messaging/producer")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	RequiredAcks kafka.RequiredAcks
	// Idempotent stamps every record with an idempotency-key header so
	// consumers can drop copies produced by retried writes.
	Idempotent   bool
	Retries      int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

type Producer struct {
	writer     messageWriter
	topic      string
	idempotent bool
	metrics    instruments
}

func NewProducer(cfg ProducerConfig) *Producer {
	return newProducer(newWriter(cfg), cfg.Topic, cfg.Idempotent)
}

func newProducer(w messageWriter, topic string, idempotent bool) *Producer {
	return &Producer{
		writer:     w,
		topic:      topic,
		idempotent: idempotent,
		metrics:    newInstruments(),
	}
}

// newWriter maps the delivery policy onto a synchronous kafka-go writer:
// WriteMessages returns only once the configured acks arrived or the bounded
// retries with fixed backoff were exhausted.
func newWriter(cfg ProducerConfig) *kafka.Writer {
	retries := max(cfg.Retries, 0)

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           cfg.RequiredAcks,
		MaxAttempts:            retries + 1,
		WriteBackoffMin:        cfg.RetryBackoff,
		WriteBackoffMax:        cfg.RetryBackoff,
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// Publish encodes the event and appends it to the topic keyed by order id, so
// every record of one order lands on the same partition.
func (p *Producer) Publish(ctx context.Context, event domain.OrderPlacedEvent) error {
	data, err := domain.EncodeOrderPlacedEvent(event)
	if err != nil {
		p.record(ctx, SerializationError)
		return &PublishError{Kind: SerializationError, Err: err}
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
	}
	setHeader(&msg, HeaderEventType, EventTypeOrderPlaced)
	if p.idempotent {
		setHeader(&msg, HeaderIdempotencyKey, event.OrderID)
	}

	ctx, span := producerTracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(event.OrderID),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		perr := classifyWriteError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, perr.Error())
		p.record(ctx, perr.Kind)
		return perr
	}

	p.record(ctx, 0)
	return nil
}

func (p *Producer) record(ctx context.Context, kind PublishErrorKind) {
	result := "ok"
	if kind != 0 {
		result = kind.String()
	}
	p.metrics.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", p.topic),
		attribute.String("result", result),
	))
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
