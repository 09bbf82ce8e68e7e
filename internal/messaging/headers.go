package messaging

import "github.com/segmentio/kafka-go"

const (
	HeaderIdempotencyKey = "idempotency-key"
	HeaderEventType      = "event-type"

	EventTypeOrderPlaced = "order.placed"
)

// headerCarrier exposes kafka record headers as an otel TextMapCarrier so trace
// context travels with the record from the API to every consumer group.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	return headerValue(*c.msg, key)
}

func (c headerCarrier) Set(key, value string) {
	setHeader(c.msg, key, value)
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func setHeader(msg *kafka.Message, key, value string) {
	for i := range msg.Headers {
		if msg.Headers[i].Key == key {
			msg.Headers[i].Value = []byte(value)
			return
		}
	}
	msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}
