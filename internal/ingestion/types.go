// Package ingestion defines the request/response types of the vocabulary
// ingestion API.
package ingestion

// TermsRequest is the JSON body accepted by POST /api/v1/terms.
type TermsRequest struct {
	Op    string   `json:"op"`
	Terms []string `json:"terms"`
}

// TermsResponse is returned once the terms are persisted. Status is
// "published" when the events reached Kafka and "persisted" when only the
// database write succeeded; persisted terms reach running lookup instances on
// their next restart.
type TermsResponse struct {
	Op        string `json:"op"`
	Accepted  int    `json:"accepted"`
	Affected  int64  `json:"affected"`
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	StatusPublished = "published"
	StatusPersisted = "persisted"
)
