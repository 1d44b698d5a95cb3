package events

import (
	"context"
	"errors"
	"strings"

	"github.com/wanderlog/service-payment/internal/common/domain"
	"github.com/wanderlog/service-payment/internal/common/events"
	"github.com/wanderlog/service-payment/internal/common/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// BookingEventHandler reacts to booking events. PaymentService implements it.
type BookingEventHandler interface {
	HandleBookingChanged(ctx context.Context, event events.BookingEvent) error
	HandlePaymentRequested(ctx context.Context, event events.BookingPaymentRequestedEvent) error
}

// BookingEventConsumer listens to booking events, keeps the booking read
// model current and starts payments the booking service asks for.
type BookingEventConsumer struct {
	consumer *kafka.Consumer
	handler  BookingEventHandler
	logger   *zap.Logger
}

// NewBookingEventConsumer creates a new consumer for booking events.
func NewBookingEventConsumer(
	brokers []string,
	groupID string,
	handler BookingEventHandler,
	logger *zap.Logger,
) *BookingEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, events.TopicBookingEvents, logger)
	return &BookingEventConsumer{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins consuming booking events. It blocks until the context is cancelled.
func (c *BookingEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// handleMessage routes incoming Kafka messages to the appropriate handler.
func (c *BookingEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from booking topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return kafka.Permanent(err)
	}

	c.logger.Info("received booking event",
		zap.String("type", cloudEvent.Type),
		zap.String("id", cloudEvent.ID),
	)

	switch {
	case strings.EqualFold(cloudEvent.Type, events.BookingCreated),
		strings.EqualFold(cloudEvent.Type, events.BookingUpdated):
		var event events.BookingEvent
		if err := cloudEvent.ParseData(&event); err != nil {
			c.logger.Error("failed to parse BookingEvent data", zap.Error(err))
			return kafka.Permanent(err)
		}
		return classify(c.handler.HandleBookingChanged(ctx, event))

	case strings.EqualFold(cloudEvent.Type, events.BookingPaymentRequested):
		var event events.BookingPaymentRequestedEvent
		if err := cloudEvent.ParseData(&event); err != nil {
			c.logger.Error("failed to parse BookingPaymentRequestedEvent data", zap.Error(err))
			return kafka.Permanent(err)
		}
		return classify(c.handler.HandlePaymentRequested(ctx, event))

	default:
		c.logger.Debug("ignoring unhandled booking event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

// classify marks errors that redelivery cannot fix as permanent. Store and
// gateway failures stay retryable.
func classify(err error) error {
	for _, permanent := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrForbidden,
		domain.ErrInvalidState,
		domain.ErrConflict,
		domain.ErrPrecondition,
	} {
		if errors.Is(err, permanent) {
			return kafka.Permanent(err)
		}
	}
	return err
}

// Close closes the underlying Kafka consumer.
func (c *BookingEventConsumer) Close() error {
	return c.consumer.Close()
}
