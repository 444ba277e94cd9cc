// Package consumer applies vocabulary events from Kafka to the lookup
// service's engine.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/vocab"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/metrics"
)

// Applier is the part of vocab.Engine the handler needs.
type Applier interface {
	Apply(ev vocab.VocabularyEvent) (bool, error)
}

// VocabularyConsumer wraps a Kafka consumer feeding the engine.
type VocabularyConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *VocabularyConsumer {
	return &VocabularyConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "vocab-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (vc *VocabularyConsumer) Start(ctx context.Context) error {
	vc.logger.Info("vocabulary consumer starting")
	return vc.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler applying each event to engine.
// Events that cannot be decoded or carry an unknown op are logged and
// committed, since redelivering them would never succeed. m may be nil.
func HandleMessage(engine Applier, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "vocab-consumer")
	count := func(result string) {
		if m != nil {
			m.EventsConsumedTotal.WithLabelValues(result).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[vocab.VocabularyEvent](value)
		if err != nil {
			logger.Error("failed to decode vocabulary event",
				"error", err,
				"key", string(key),
			)
			count("malformed")
			return nil
		}
		changed, err := engine.Apply(event)
		if err != nil {
			logger.Error("rejected vocabulary event",
				"error", err,
				"key", string(key),
				"request_id", event.RequestID,
			)
			count("malformed")
			return nil
		}
		result := "noop"
		if changed {
			result = "applied"
		}
		count(result)
		logger.Debug("vocabulary event applied",
			"op", event.Op,
			"term", event.Term,
			"changed", changed,
			"request_id", event.RequestID,
		)
		return nil
	}
}
