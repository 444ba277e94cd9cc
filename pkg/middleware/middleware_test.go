package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/metrics"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lookup?q=x", nil))
	if len(seen) != 32 || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("generated id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lookup?q=x", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "caller-id" || rec.Header().Get(RequestIDHeader) != "caller-id" {
		t.Errorf("caller id not propagated: ctx %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestTimeout(t *testing.T) {
	slow := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	slow.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lookup", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d; want 504", rec.Code)
	}

	fast := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"ok":true}`))
	}))
	rec = httptest.NewRecorder()
	fast.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lookup", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d; want 418", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" || rec.Body.String() != `{"ok":true}` {
		t.Errorf("response = %v %q; handler headers or body lost", rec.Header(), rec.Body.String())
	}
}

func TestTimeout_LateHandlerWritesAreDiscarded(t *testing.T) {
	finished := make(chan error, 1)
	h := Timeout(5 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(50 * time.Millisecond)
		for i := 0; i < 100; i++ {
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("X-Attempt", fmt.Sprint(i))
		}
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("too late"))
		finished <- err
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lookup", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d; want 504", rec.Code)
	}
	if err := <-finished; !errors.Is(err, http.ErrHandlerTimeout) {
		t.Errorf("late Write error = %v; want ErrHandlerTimeout", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q; late handler header leaked into the response", got)
	}
	if rec.Header().Get("X-Attempt") != "" || strings.Contains(rec.Body.String(), "too late") {
		t.Errorf("late handler output reached the client: %v %q", rec.Header(), rec.Body.String())
	}
}

func TestTimeout_PropagatesPanics(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("recover() = %v; want boom", r)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/lookup", nil))
}

func TestMetrics_RecordsStatus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/terms/black", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/lookup":      "/api/v1/lookup",
		"/api/v1/terms/":      "/api/v1/terms",
		"/api/v1/terms/black": "other",
		"/health/ready":       "/health/ready",
		"/wp-admin/login.php": "other",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q; want %q", in, got, want)
		}
	}
}
