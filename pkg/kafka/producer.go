package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
)

// Message is one record to publish. Records sharing a Key land in the same
// partition and keep their relative order. Value is JSON-encoded.
type Message struct {
	Key   string
	Value any
}

// Producer publishes JSON records to a single topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for topic, tuned by cfg.Producer.
func NewProducer(cfg config.KafkaConfig, topic string) (*Producer, error) {
	w, err := newWriter(cfg, topic)
	if err != nil {
		return nil, err
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}, nil
}

func newWriter(cfg config.KafkaConfig, topic string) (*kafka.Writer, error) {
	pc := cfg.Producer
	codec, err := compressionCodec(pc.Compression)
	if err != nil {
		return nil, err
	}
	acks, err := requiredAcks(pc.RequiredAcks)
	if err != nil {
		return nil, err
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    pc.BatchSize,
		BatchBytes:   pc.BatchBytes,
		BatchTimeout: pc.BatchTimeout,
		MaxAttempts:  pc.MaxAttempts,
		Compression:  codec,
		RequiredAcks: acks,
	}, nil
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("%w: unknown kafka compression %q", apperrors.ErrInvalidConfig, name)
}

func requiredAcks(name string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return kafka.RequireAll, nil
	case "one":
		return kafka.RequireOne, nil
	case "none":
		return kafka.RequireNone, nil
	}
	return 0, fmt.Errorf("%w: unknown kafka requiredAcks %q", apperrors.ErrInvalidConfig, name)
}

// Publish encodes msgs and writes them in one call. Nothing is written if any
// value fails to encode. When the broker rejects part of the batch the error
// reports how many records were lost.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	records, err := encode(msgs)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, records...)
	var partial kafka.WriteErrors
	switch {
	case err == nil:
		p.logger.Debug("records published", "count", len(records))
		return nil
	case errors.As(err, &partial):
		p.logger.Error("batch partially published", "failed", partial.Count(), "count", len(records), "error", err)
		return fmt.Errorf("publishing to kafka: %d of %d records failed: %w", partial.Count(), len(records), err)
	default:
		p.logger.Error("failed to publish batch", "count", len(records), "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
}

func encode(msgs []Message) ([]kafka.Message, error) {
	records := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		value, err := json.Marshal(m.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding record %q: %w", m.Key, err)
		}
		records = append(records, kafka.Message{Key: []byte(m.Key), Value: value})
	}
	return records, nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
