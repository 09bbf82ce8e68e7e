package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/segmentio/kafka-go"
)

var (
	ErrChannelUnavailable = errors.New("channel unavailable")
	ErrChannelTimeout     = errors.New("channel timeout")
	ErrSerialization      = errors.New("serialization error")

	ErrRunnerStarted = errors.New("runner already started")
	ErrHandlerPanic  = errors.New("handler panicked")
)

type PublishErrorKind int

const (
	ChannelUnavailable PublishErrorKind = iota + 1
	ChannelTimeout
	SerializationError
)

func (k PublishErrorKind) String() string {
	switch k {
	case ChannelUnavailable:
		return "channel_unavailable"
	case ChannelTimeout:
		return "channel_timeout"
	case SerializationError:
		return "serialization_error"
	default:
		return "unknown"
	}
}

func (k PublishErrorKind) sentinel() error {
	switch k {
	case ChannelTimeout:
		return ErrChannelTimeout
	case SerializationError:
		return ErrSerialization
	default:
		return ErrChannelUnavailable
	}
}

// PublishError is returned by Producer.Publish. It matches one of
// ErrChannelUnavailable, ErrChannelTimeout or ErrSerialization with errors.Is,
// and also unwraps to the underlying cause.
type PublishError struct {
	Kind PublishErrorKind
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed (%s): %v", e.Kind, e.Err)
}

func (e *PublishError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

func classifyWriteError(err error) *PublishError {
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		for _, e := range werrs {
			if e != nil {
				err = e
				break
			}
		}
	}

	kind := ChannelUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ChannelTimeout
	}

	return &PublishError{Kind: kind, Err: err}
}
