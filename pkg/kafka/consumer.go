// Package kafka publishes and consumes JSON records with segmentio/kafka-go.
// Both sides are tuned through config.KafkaConfig for streams of small,
// per-key ordered records.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/config"
)

// MessageHandler processes one record. A returned error makes the consumer
// retry the same record after a backoff, so records are never applied out of
// order. Handlers should return nil for records that can never succeed.
type MessageHandler func(ctx context.Context, key, value []byte) error

// fetcher is the part of *kafka.Reader the consume loop uses.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds the records of one topic, in order, to a MessageHandler.
type Consumer struct {
	reader  fetcher
	handler MessageHandler
	backoff time.Duration
	logger  *slog.Logger
}

// NewConsumer creates a Consumer for topic in groupID. A group that has never
// committed starts from the oldest retained record.
func NewConsumer(cfg config.KafkaConfig, topic, groupID string, handler MessageHandler) *Consumer {
	cc := cfg.Consumer
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       cc.MaxBytes,
		MaxWait:        cc.MaxWait,
		CommitInterval: cc.CommitInterval,
		StartOffset:    kafka.FirstOffset,
	})
	return newConsumer(r, handler, cc.RetryBackoff, slog.Default().With("component", "kafka-consumer", "topic", topic, "group", groupID))
}

func newConsumer(r fetcher, handler MessageHandler, backoff time.Duration, logger *slog.Logger) *Consumer {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{reader: r, handler: handler, backoff: backoff, logger: logger}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch record", "error", err, "backoff", c.backoff)
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}
		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit record",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process runs the handler on msg until it succeeds. It reports false if ctx
// ended first.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}
		c.logger.Error("failed to process record, retrying",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"error", err,
		)
		if !c.sleep(ctx) {
			return false
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// DecodeJSON unmarshals a record value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka record: %w", err)
	}
	return result, nil
}
