package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderPlacedEvent) error
}

// Service accepts validated orders and publishes exactly one OrderPlacedEvent
// per accepted order.
type Service struct {
	publisher       EventPublisher
	processingDelay time.Duration
	publishTimeout  time.Duration
	newID           func() string
	now             func() time.Time
	logger          *slog.Logger
}

type ServiceOption func(*Service)

// WithPublishTimeout caps the time a single PlaceOrder spends publishing,
// retries included.
func WithPublishTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.publishTimeout = d
	}
}

func NewService(publisher EventPublisher, processingDelay time.Duration, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		publisher:       publisher,
		processingDelay: processingDelay,
		newID:           func() string { return uuid.New().String() },
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderPlacedEvent, error) {
	if err := req.Validate(); err != nil {
		return domain.OrderPlacedEvent{}, err
	}

	// Stands in for charging the payment.
	if err := wait(ctx, s.processingDelay); err != nil {
		return domain.OrderPlacedEvent{}, err
	}
	s.logger.Info("order processed", "user_id", req.UserID, "items", len(req.Items))

	event := domain.NewOrderPlacedEvent(s.newID(), s.newID(), req, s.now())

	publishCtx := ctx
	if s.publishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()
	}

	if err := s.publisher.Publish(publishCtx, event); err != nil {
		return domain.OrderPlacedEvent{}, err
	}

	s.logger.Info("order placed event published", "order_id", event.OrderID, "payment_id", event.PaymentID)
	return event, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
