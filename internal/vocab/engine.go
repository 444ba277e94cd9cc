// Package vocab keeps the served vocabulary in a fuzzy index and applies
// mutations to it from the bulk store and the event stream.
package vocab

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/internal/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/metrics"
)

// loadBatchSize is how many terms Load inserts per write-lock acquisition.
const loadBatchSize = 512

// TermSource streams a stored vocabulary.
type TermSource interface {
	ForEachTerm(ctx context.Context, fn func(term string) error) error
}

// Engine serialises writers against concurrent readers of a fuzzy.Index.
type Engine struct {
	mu         sync.RWMutex
	index      *fuzzy.Index
	verify     bool
	generation atomic.Uint64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewEngine builds an empty engine from the fuzzy config. m may be nil.
func NewEngine(cfg config.FuzzyConfig, m *metrics.Metrics) (*Engine, error) {
	cmp, err := fuzzy.ParseComparison(cfg.Comparison)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidConfig, err)
	}
	opts := []fuzzy.Option{fuzzy.WithComparison(cmp)}
	if cfg.Locale != "" {
		tag, err := language.Parse(cfg.Locale)
		if err != nil {
			return nil, fmt.Errorf("%w: locale %q: %v", apperrors.ErrInvalidConfig, cfg.Locale, err)
		}
		opts = append(opts, fuzzy.WithLocale(tag))
	}
	if cfg.Verify {
		opts = append(opts, fuzzy.WithVerification())
	}
	idx, err := fuzzy.New(cfg.MaxEditDistance, opts...)
	if err != nil {
		return nil, fmt.Errorf("building fuzzy index: %w", err)
	}
	e := &Engine{
		index:   idx,
		verify:  cfg.Verify,
		metrics: m,
		logger:  slog.Default().With("component", "vocab-engine"),
	}
	e.logger.Info("vocabulary engine created",
		"max_edit_distance", cfg.MaxEditDistance,
		"comparison", cmp.String(),
		"locale", cfg.Locale,
		"verify", cfg.Verify,
	)
	return e, nil
}

// AddTerm stores term and reports whether it was not already present.
func (e *Engine) AddTerm(term string) bool {
	e.mu.Lock()
	before := e.index.Len()
	e.index.Add(term)
	changed := e.index.Len() != before
	e.afterMutation(OpAdd, changed)
	e.mu.Unlock()
	return changed
}

// RemoveTerm deletes term and reports whether it was present.
func (e *Engine) RemoveTerm(term string) bool {
	e.mu.Lock()
	before := e.index.Len()
	e.index.Remove(term)
	changed := e.index.Len() != before
	e.afterMutation(OpRemove, changed)
	e.mu.Unlock()
	return changed
}

// Apply dispatches ev to AddTerm or RemoveTerm.
func (e *Engine) Apply(ev VocabularyEvent) (bool, error) {
	switch ev.Op {
	case OpAdd:
		return e.AddTerm(ev.Term), nil
	case OpRemove:
		return e.RemoveTerm(ev.Term), nil
	default:
		return false, fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidInput, ev.Op)
	}
}

// afterMutation must be called with the write lock held.
func (e *Engine) afterMutation(op Op, changed bool) {
	effect := "noop"
	if changed {
		effect = "applied"
		e.generation.Add(1)
	}
	if e.metrics == nil {
		return
	}
	e.metrics.VocabularyMutations.WithLabelValues(string(op), effect).Inc()
	e.metrics.VocabularySize.Set(float64(e.index.Len()))
	e.metrics.IndexBuckets.Set(float64(e.index.Buckets()))
}

// Lookup returns at most limit candidates for term, sorted, together with the
// total number of candidates. A limit <= 0 returns all of them.
func (e *Engine) Lookup(term string, limit int) ([]string, int) {
	e.mu.RLock()
	candidates := e.index.Lookup(term)
	e.mu.RUnlock()
	total := len(candidates)
	if limit > 0 && total > limit {
		candidates = candidates[:limit]
	}
	return candidates, total
}

// Explain returns the deletion family term is matched through. Families
// larger than maxVariants are refused with ErrInvalidInput before any variant
// is built; maxVariants <= 0 disables the check. Variants depend only on the
// index configuration, so no lock is taken.
func (e *Engine) Explain(term string, maxVariants int) ([]fuzzy.Variant, error) {
	if maxVariants > 0 {
		if n := e.index.FamilySize(term); n > maxVariants {
			return nil, fmt.Errorf("%w: query expands to %d deletion variants, limit is %d",
				apperrors.ErrInvalidInput, n, maxVariants)
		}
	}
	return e.index.Variants(term), nil
}

// Collisions returns the hash collisions seen so far. It is empty unless the
// engine was built with verification.
func (e *Engine) Collisions() []fuzzy.Collision {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.Collisions()
}

// Generation changes every time a mutation changes the vocabulary.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Terms:           e.index.Len(),
		Buckets:         e.index.Buckets(),
		Generation:      e.generation.Load(),
		MaxEditDistance: e.index.MaxEditDistance(),
		Comparison:      e.index.Comparison().String(),
		Verification:    e.verify,
	}
}

// Load adds every term of src, returning how many were new. The write lock is
// released between batches so lookups keep being served during a warm-up.
func (e *Engine) Load(ctx context.Context, src TermSource) (int, error) {
	batch := make([]string, 0, loadBatchSize)
	added := 0
	flush := func() {
		e.mu.Lock()
		before := e.index.Len()
		for _, term := range batch {
			e.index.Add(term)
		}
		n := e.index.Len() - before
		if n > 0 {
			e.generation.Add(1)
		}
		if e.metrics != nil {
			e.metrics.VocabularyMutations.WithLabelValues(string(OpAdd), "applied").Add(float64(n))
			e.metrics.VocabularyMutations.WithLabelValues(string(OpAdd), "noop").Add(float64(len(batch) - n))
			e.metrics.VocabularySize.Set(float64(e.index.Len()))
			e.metrics.IndexBuckets.Set(float64(e.index.Buckets()))
		}
		e.mu.Unlock()
		added += n
		batch = batch[:0]
	}

	err := src.ForEachTerm(ctx, func(term string) error {
		batch = append(batch, term)
		if len(batch) == loadBatchSize {
			flush()
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if len(batch) > 0 {
		flush()
	}
	if err != nil {
		return added, fmt.Errorf("loading vocabulary: %w", err)
	}
	e.logger.Info("vocabulary loaded", "added", added, "terms", e.Stats().Terms)
	return added, nil
}
