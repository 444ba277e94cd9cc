// Package validator checks vocabulary mutation requests and returns
// per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/vocab"
)

const (
	MaxTermsPerRequest = 1000
	MaxTermBytes       = 256
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateTermsRequest checks the op and every term of req.
func ValidateTermsRequest(req *ingestion.TermsRequest) error {
	errs := make(map[string]string)

	if _, err := vocab.ParseOp(req.Op); err != nil {
		errs["op"] = "op must be add or remove"
	}
	switch {
	case len(req.Terms) == 0:
		errs["terms"] = "at least one term is required"
	case len(req.Terms) > MaxTermsPerRequest:
		errs["terms"] = fmt.Sprintf("at most %d terms per request", MaxTermsPerRequest)
	default:
		for i, term := range req.Terms {
			if msg := checkTerm(term); msg != "" {
				errs[fmt.Sprintf("terms[%d]", i)] = msg
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkTerm(term string) string {
	switch {
	case strings.TrimSpace(term) == "":
		return "term must not be blank"
	case len(term) > MaxTermBytes:
		return fmt.Sprintf("term must be at most %d bytes", MaxTermBytes)
	case !utf8.ValidString(term):
		return "term must be valid UTF-8"
	}
	return ""
}
