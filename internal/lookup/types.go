// Package lookup defines the response types of the fuzzy lookup API.
package lookup

// Result is the response of GET /api/v1/lookup. Candidates holds at most the
// requested number of terms, in sorted order; Total counts all of them.
type Result struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Total      int      `json:"total"`
	Limit      int      `json:"limit"`
	Generation uint64   `json:"generation"`
	CacheHit   bool     `json:"cache_hit"`
}

// ExplainVariant is one deletion variant of an explained query. The hash is
// rendered in hex since JSON numbers cannot carry 64 bits.
type ExplainVariant struct {
	Text    string `json:"text"`
	Hash    string `json:"hash"`
	Deleted []int  `json:"deleted,omitempty"`
}
