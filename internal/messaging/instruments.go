package messaging

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/joao-fontenele/orderplaced-pipeline/internal/messaging"

type instruments struct {
	published       metric.Int64Counter
	records         metric.Int64Counter
	consumeErrors   metric.Int64Counter
	handlerDuration metric.Float64Histogram
}

func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	published, err := meter.Int64Counter("orders.producer.published",
		metric.WithDescription("Order placed events handed to the broker, by result."),
	)
	if err != nil {
		otel.Handle(err)
		published, _ = fallback.Int64Counter("orders.producer.published")
	}

	records, err := meter.Int64Counter("orders.consumer.records",
		metric.WithDescription("Consumed records, by consumer group and outcome."),
	)
	if err != nil {
		otel.Handle(err)
		records, _ = fallback.Int64Counter("orders.consumer.records")
	}

	consumeErrors, err := meter.Int64Counter("orders.consumer.fetch_errors",
		metric.WithDescription("Failed fetches from the broker, by consumer group."),
	)
	if err != nil {
		otel.Handle(err)
		consumeErrors, _ = fallback.Int64Counter("orders.consumer.fetch_errors")
	}

	handlerDuration, err := meter.Float64Histogram("orders.consumer.handler.duration",
		metric.WithDescription("Time spent in the domain handler."),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
		handlerDuration, _ = fallback.Float64Histogram("orders.consumer.handler.duration")
	}

	return instruments{
		published:       published,
		records:         records,
		consumeErrors:   consumeErrors,
		handlerDuration: handlerDuration,
	}
}
