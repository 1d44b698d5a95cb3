package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes one message. Returning an error wrapped with
// Permanent commits the message without retrying it; any other error is
// retried with backoff and the offset stays uncommitted until it succeeds.
type MessageHandler func(ctx context.Context, msg kafkago.Message) error

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads a single topic as part of a consumer group.
type Consumer struct {
	reader     messageReader
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// NewConsumer creates a group consumer for topic.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafkago.FirstOffset,
		CommitInterval: 0,
	})
	return newConsumer(reader, defaultRetryBackOff, logger.With(zap.String("topic", topic), zap.String("group", groupID)))
}

func newConsumer(reader messageReader, newBackOff func() backoff.BackOff, logger *zap.Logger) *Consumer {
	return &Consumer{reader: reader, newBackOff: newBackOff, logger: logger}
}

// defaultRetryBackOff never gives up; a transient failure holds the
// partition until the dependency is back or the consumer is stopped.
func defaultRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Consume blocks, handing every message to handler until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return err
		}

		attempt := 0
		err = backoff.RetryNotify(
			func() error {
				attempt++
				return handler(ctx, msg)
			},
			backoff.WithContext(c.newBackOff(), ctx),
			func(err error, wait time.Duration) {
				c.logger.Warn("message handler failed, retrying",
					zap.Error(err),
					zap.Int("attempt", attempt),
					zap.Duration("wait", wait),
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
				)
			},
		)
		if ctx.Err() != nil {
			// Not committed: the group redelivers it after a restart.
			return ctx.Err()
		}
		if err != nil {
			c.logger.Error("message dropped after permanent failure",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("failed to commit offset", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
