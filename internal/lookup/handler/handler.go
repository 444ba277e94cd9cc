// Package handler serves fuzzy lookups over HTTP.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/vocab"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/metrics"
)

// Engine is the read side of *vocab.Engine.
type Engine interface {
	Lookup(term string, limit int) ([]string, int)
	Explain(term string, maxVariants int) ([]fuzzy.Variant, error)
	Collisions() []fuzzy.Collision
	Stats() vocab.Stats
	Generation() uint64
}

type Handler struct {
	engine  Engine
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	limits  config.LookupConfig
	logger  *slog.Logger
}

// New creates a Handler bounded by limits. queryCache and m may be nil.
func New(engine Engine, queryCache *cache.QueryCache, m *metrics.Metrics, limits config.LookupConfig) *Handler {
	return &Handler{
		engine:  engine,
		cache:   queryCache,
		metrics: m,
		limits:  limits,
		logger:  slog.Default().With("component", "lookup-handler"),
	}
}

// Lookup handles GET /api/v1/lookup?q=&limit=.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, ok := h.queryParam(w, r)
	if !ok {
		return
	}
	limit := h.limits.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.limits.MaxLimit)
	}

	generation := h.engine.Generation()
	compute := func() (*lookup.Result, error) {
		candidates, total := h.engine.Lookup(query, limit)
		return &lookup.Result{
			Query:      query,
			Candidates: candidates,
			Total:      total,
			Limit:      limit,
			Generation: generation,
		}, nil
	}

	var result *lookup.Result
	var err error
	cacheStatus := "disabled"
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, generation, query, limit, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
		if result != nil {
			result.CacheHit = hit
		}
	} else {
		result, err = compute()
	}
	if err != nil {
		h.observe("error", cacheStatus, 0, start)
		log.Error("lookup failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	outcome := "match"
	if result.Total == 0 {
		outcome = "no_match"
	}
	h.observe(outcome, cacheStatus, len(result.Candidates), start)
	log.Debug("lookup completed",
		"query", query,
		"total", result.Total,
		"returned", len(result.Candidates),
		"cache", cacheStatus,
		"latency", time.Since(start),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Explain handles GET /api/v1/explain?q= and lists the deletion variants the
// query is matched through.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	query, ok := h.queryParam(w, r)
	if !ok {
		return
	}
	variants, err := h.engine.Explain(query, h.limits.MaxExplainVariants)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	out := make([]lookup.ExplainVariant, 0, len(variants))
	for _, v := range variants {
		out = append(out, lookup.ExplainVariant{
			Text:    v.Text,
			Hash:    formatHash(v.Hash),
			Deleted: v.Deleted,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":    query,
		"variants": out,
		"count":    len(out),
	})
}

// Collisions handles GET /api/v1/collisions.
func (h *Handler) Collisions(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	if !stats.Verification {
		h.writeError(w, http.StatusNotFound, "collision tracking requires fuzzy.verify")
		return
	}
	type collision struct {
		Hash     string   `json:"hash"`
		Variants []string `json:"variants"`
	}
	collisions := h.engine.Collisions()
	out := make([]collision, 0, len(collisions))
	for _, c := range collisions {
		out = append(out, collision{Hash: formatHash(c.Hash), Variants: c.Variants})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"collisions": out,
		"count":      len(out),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"vocabulary": h.engine.Stats()}
	if h.cache == nil {
		resp["cache"] = map[string]string{"status": "disabled"}
		h.writeJSON(w, http.StatusOK, resp)
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	resp["cache"] = map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// queryParam requires q to be present and at most MaxQueryBytes long. An
// explicitly empty q is allowed and looks up the empty string.
func (h *Handler) queryParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	values, ok := r.URL.Query()["q"]
	if !ok {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return "", false
	}
	if limit := h.limits.MaxQueryBytes; limit > 0 && len(values[0]) > limit {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("query parameter 'q' exceeds %d bytes", limit))
		return "", false
	}
	return values[0], true
}

func (h *Handler) observe(outcome, cacheStatus string, candidates int, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.LookupsTotal.WithLabelValues(outcome).Inc()
	h.metrics.LookupLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	h.metrics.LookupCandidates.Observe(float64(candidates))
}

func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
