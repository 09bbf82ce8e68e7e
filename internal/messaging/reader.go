package messaging

import (
	"time"

	"github.com/segmentio/kafka-go"
)

type ReaderOption func(*kafka.ReaderConfig)

func WithStartOffset(offset int64) ReaderOption {
	return func(cfg *kafka.ReaderConfig) {
		cfg.StartOffset = offset
	}
}

// WithCommitInterval sets how often offsets are flushed to the broker. Zero
// makes every CommitMessages call synchronous.
func WithCommitInterval(d time.Duration) ReaderOption {
	return func(cfg *kafka.ReaderConfig) {
		cfg.CommitInterval = d
	}
}

// NewGroupReader joins groupID on topic. Without a committed offset the group
// starts from the earliest retained record.
func NewGroupReader(brokers []string, topic, groupID string, opts ...ReaderOption) *kafka.Reader {
	cfg := kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return kafka.NewReader(cfg)
}
