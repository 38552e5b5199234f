package kafka

import (
	"context"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// Consumer reads bucket notifications from a topic as part of a consumer group.
type Consumer struct {
	reader *kafkago.Reader
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewConsumer constructs a Consumer from the given configuration.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}
}

// Handler processes one message value. Returned errors are reported but the
// message is still committed; redelivery is left to the producer side.
type Handler func(ctx context.Context, key, value []byte) error

// Run fetches, handles and commits messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler, onError func(error)) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		if err := handle(ctx, msg.Key, msg.Value); err != nil && onError != nil {
			onError(fmt.Errorf("handle offset %d: %w", msg.Offset, err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

// Close leaves the group and closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
