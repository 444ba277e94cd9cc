package vocab

import (
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
)

// Op is a vocabulary mutation.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// ParseOp accepts the wire form of an Op.
func ParseOp(s string) (Op, error) {
	switch Op(s) {
	case OpAdd, OpRemove:
		return Op(s), nil
	default:
		return "", fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidInput, s)
	}
}

// VocabularyEvent is the Kafka payload describing one mutation of one term.
// Events for the same term share a partition key, so they are applied in the
// order they were published.
type VocabularyEvent struct {
	Op         Op        `json:"op"`
	Term       string    `json:"term"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Stats summarises the state of an Engine.
type Stats struct {
	Terms           int    `json:"terms"`
	Buckets         int    `json:"buckets"`
	Generation      uint64 `json:"generation"`
	MaxEditDistance int    `json:"max_edit_distance"`
	Comparison      string `json:"comparison"`
	Verification    bool   `json:"verification"`
}
