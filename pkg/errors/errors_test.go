package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("parsing limit: %w", ErrInvalidInput), http.StatusBadRequest},
		{"not found", ErrTermNotFound, http.StatusNotFound},
		{"unavailable", fmt.Errorf("redis: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"config is internal", ErrInvalidConfig, http.StatusInternalServerError},
		{"app error wins", New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad op"), http.StatusUnprocessableEntity},
		{"wrapped app error", fmt.Errorf("publishing: %w", Newf(ErrUnavailable, http.StatusBadGateway, "broker %s", "down")), http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatusCode(tc.err); got != tc.want {
				t.Errorf("HTTPStatusCode(%v) = %d; want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "term %q is blank", " ")
	if got, want := err.Error(), `invalid input: term " " is blank`; got != want {
		t.Errorf("Error() = %q; want %q", got, want)
	}
	if err.Unwrap() != ErrInvalidInput {
		t.Errorf("Unwrap() = %v; want ErrInvalidInput", err.Unwrap())
	}
}
