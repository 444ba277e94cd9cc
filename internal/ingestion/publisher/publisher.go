// Package publisher persists vocabulary mutations to PostgreSQL and fans
// them out to Kafka so every lookup instance applies them.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/vocab"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/metrics"
)

// TermStore is the durable side of a mutation. *vocab.Store implements it.
type TermStore interface {
	UpsertTerms(ctx context.Context, terms []string) (int64, error)
	DeleteTerms(ctx context.Context, terms []string) (int64, error)
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher coordinates term persistence and Kafka event production.
type Publisher struct {
	store    TermStore
	producer EventPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Publisher. m may be nil.
func New(store TermStore, producer EventPublisher, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		metrics:  m,
		logger:   slog.Default().With("component", "publisher"),
		now:      time.Now,
	}
}

// Submit writes req to the store in one transaction, then publishes one event
// per term keyed by the term. The request must already be validated.
func (p *Publisher) Submit(ctx context.Context, req *ingestion.TermsRequest, requestID string) (*ingestion.TermsResponse, error) {
	op, err := vocab.ParseOp(req.Op)
	if err != nil {
		return nil, err
	}

	var affected int64
	switch op {
	case vocab.OpAdd:
		affected, err = p.store.UpsertTerms(ctx, req.Terms)
	case vocab.OpRemove:
		affected, err = p.store.DeleteTerms(ctx, req.Terms)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: persisting terms: %v", apperrors.ErrUnavailable, err)
	}

	at := p.now().UTC()
	events := make([]kafka.Message, 0, len(req.Terms))
	for _, term := range req.Terms {
		events = append(events, kafka.Message{
			Key: term,
			Value: vocab.VocabularyEvent{
				Op:         op,
				Term:       term,
				RequestID:  requestID,
				OccurredAt: at,
			},
		})
	}

	resp := &ingestion.TermsResponse{
		Op:        string(op),
		Accepted:  len(req.Terms),
		Affected:  affected,
		Status:    ingestion.StatusPublished,
		RequestID: requestID,
	}
	if err := p.producer.Publish(ctx, events...); err != nil {
		p.logger.Error("failed to publish vocabulary events, terms only persisted",
			"op", op,
			"count", len(events),
			"request_id", requestID,
			"error", err,
		)
		p.countPublished("error", len(events))
		resp.Status = ingestion.StatusPersisted
		return resp, nil
	}
	p.countPublished("ok", len(events))
	return resp, nil
}

func (p *Publisher) countPublished(status string, n int) {
	if p.metrics != nil {
		p.metrics.EventsPublishedTotal.WithLabelValues(status).Add(float64(n))
	}
}
