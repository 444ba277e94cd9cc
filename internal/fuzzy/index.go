// Package fuzzy implements an in-memory approximate string index based on
// symmetric deletion hashing. Every stored string is filed under the hash of
// each variant obtained by deleting up to k grapheme units, and a query is
// answered by generating the same family of hashes for the query string. Two
// strings within k deletions of a common string therefore share a bucket.
//
// Variant hashes are derived arithmetically from per-unit hashes, so no
// substring is ever built. Lookups return candidates only: hash collisions and
// pairs that are not within the edit budget are not filtered out.
//
// An Index is not safe for concurrent mutation. Concurrent Lookups are safe
// when no Add or Remove runs at the same time.
package fuzzy

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/rivo/uniseg"
	"golang.org/x/text/language"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
)

// MaxSupportedEditDistance is the largest edit distance New accepts.
const MaxSupportedEditDistance = math.MaxInt32

// Option configures an Index.
type Option func(*Index)

// WithComparison sets how units are compared. The default is IgnoreCase.
func WithComparison(c Comparison) Option {
	return func(x *Index) { x.comparison = c }
}

// WithLocale applies locale-specific lower casing when comparing with
// IgnoreCase. Without a locale, Unicode case folding is used.
func WithLocale(tag language.Tag) Option {
	return func(x *Index) { x.locale = tag }
}

// WithSegmenter replaces the grapheme segmenter.
func WithSegmenter(s Segmenter) Option {
	return func(x *Index) { x.segmenter = s }
}

// WithVerification enables the diagnostic layer: every enumeration checks
// that restoring all deletions reproduces the original hash, and the index
// keeps the materialized variant text behind every hash so collisions can be
// reported. It roughly doubles memory use and is meant for tests and
// debugging.
func WithVerification() Option {
	return func(x *Index) { x.diag = newDiagnostics() }
}

type entry struct {
	text string
	hash uint64
}

type bucket map[entry]struct{}

// Index maps deletion hashes to the set of stored strings that produce them.
type Index struct {
	buckets         map[uint64]bucket
	maxEditDistance int
	comparison      Comparison
	locale          language.Tag
	segmenter       Segmenter
	folders         *sync.Pool
	diag            *diagnostics
	count           int
}

// New creates an empty Index matching strings within maxEditDistance
// deletions. The distance is fixed for the lifetime of the index.
func New(maxEditDistance int, opts ...Option) (*Index, error) {
	if maxEditDistance < 0 || maxEditDistance > MaxSupportedEditDistance {
		return nil, fmt.Errorf("%w: max edit distance %d outside [0, %d]",
			apperrors.ErrInvalidConfig, maxEditDistance, MaxSupportedEditDistance)
	}
	x := &Index{
		buckets:         make(map[uint64]bucket),
		maxEditDistance: maxEditDistance,
		comparison:      IgnoreCase,
		segmenter:       GraphemeSegmenter{},
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.comparison != Exact && x.comparison != IgnoreCase {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, x.comparison)
	}
	if x.segmenter == nil {
		return nil, fmt.Errorf("%w: nil segmenter", apperrors.ErrInvalidConfig)
	}
	x.folders = folderPool(x.comparison, x.locale)
	return x, nil
}

// Add stores text under every hash of its deletion family. Adding a string
// that is already stored has no effect.
func (x *Index) Add(text string) {
	e := entry{text: strings.Clone(text)}
	first := true
	x.forEachDeletion(text, 1, func(hash uint64) bool {
		if first {
			e.hash = hash
		}
		b := x.buckets[hash]
		if b == nil {
			b = make(bucket, 1)
			x.buckets[hash] = b
		}
		_, exists := b[e]
		if !exists {
			b[e] = struct{}{}
			if first {
				x.count++
			}
		}
		first = false
		return !exists
	})
}

// Remove deletes text from every bucket of its deletion family. Buckets left
// empty are dropped. Removing a string that is not stored has no effect.
func (x *Index) Remove(text string) {
	e := entry{text: text}
	first := true
	x.forEachDeletion(text, -1, func(hash uint64) bool {
		if first {
			e.hash = hash
		}
		b, ok := x.buckets[hash]
		if ok {
			_, ok = b[e]
		}
		if ok {
			delete(b, e)
			if len(b) == 0 {
				delete(x.buckets, hash)
			}
			if first {
				x.count--
			}
		}
		first = false
		return ok
	})
}

// Lookup returns the stored strings sharing at least one deletion hash with
// text, sorted. The result is never nil.
func (x *Index) Lookup(text string) []string {
	seen := make(map[string]struct{})
	x.forEachDeletion(text, 0, func(hash uint64) bool {
		for e := range x.buckets[hash] {
			seen[e.text] = struct{}{}
		}
		return false
	})
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of distinct stored strings.
func (x *Index) Len() int { return x.count }

// Buckets returns the number of distinct hashes with at least one string.
func (x *Index) Buckets() int { return len(x.buckets) }

// MaxEditDistance returns the configured edit distance.
func (x *Index) MaxEditDistance() int { return x.maxEditDistance }

// Comparison returns the configured unit comparison.
func (x *Index) Comparison() Comparison { return x.comparison }

// FamilySize returns how many deletion variants text is looked up or stored
// through, saturating at math.MaxInt. It segments text but hashes nothing.
func (x *Index) FamilySize(text string) int {
	n := 0
	if _, ok := x.segmenter.(GraphemeSegmenter); ok {
		n = uniseg.GraphemeClusterCount(text)
	} else {
		for range x.segmenter.Units(text) {
			n++
		}
	}
	return familySize(n, deletionBudget(n, x.maxEditDistance))
}

// forEachDeletion calls apply for every hash in the deletion family of text,
// full hash first. apply reports whether it changed the index; delta tells the
// diagnostic layer whether the change was an insert (+1) or a removal (-1).
func (x *Index) forEachDeletion(text string, delta int, apply func(hash uint64) bool) {
	if x.diag == nil || delta == 0 {
		x.walk(text, func(hash uint64) { apply(hash) })
		return
	}
	x.walkVariants(text, func(hash uint64, deleted []int, graphemes []string) {
		if apply(hash) {
			x.diag.record(hash, materialize(graphemes, deleted), delta)
		}
	})
}

// walk hashes text and calls visit for each hash of its deletion family. For
// strings of up to inlineUnits bytes every scratch buffer is an array in this
// frame; visit only ever sees hashes so none of them escape.
func (x *Index) walk(text string, visit func(hash uint64)) {
	var (
		unitScratch     [inlineUnits]uint64
		seenScratch     [inlineUnits]uint64
		positionScratch [inlineUnits]int
	)
	units := unitScratch[:0]
	positions := positionScratch[:]
	r := ranker{seen: seenScratch[:]}
	if len(text) > inlineUnits {
		pooledUnits, releaseUnits := unitBuffers.rent(len(text))
		defer releaseUnits()
		pooledPositions, releasePositions := positionBuffers.rent(len(text))
		defer releasePositions()
		units, positions = pooledUnits[:0], pooledPositions
		r = ranker{ranks: make(map[uint64]int)}
	}

	h := newUnitHasher(x.folders)
	defer h.release()
	if _, ok := x.segmenter.(GraphemeSegmenter); ok {
		var unit string
		rest, state := text, -1
		for len(rest) > 0 {
			unit, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
			units = append(units, r.rotate(h.sum(unit)))
		}
	} else {
		segmented := slices.Collect(x.segmenter.Units(text))
		if r.ranks == nil && len(segmented) > len(r.seen) {
			r = ranker{ranks: make(map[uint64]int, len(segmented))}
		}
		for _, unit := range segmented {
			units = append(units, r.rotate(h.sum(unit)))
		}
	}

	full := combine(units)
	k := deletionBudget(len(units), x.maxEditDistance)
	if k > len(positions) {
		positions = make([]int, k)
	}
	w := newDeletionWalk(units, full, k, positions)
	for w.next() {
		visit(w.hash)
	}
	if x.diag != nil {
		checkRoundtrip(text, full, w.hash)
	}
}

// walkVariants is walk for callers that need the deleted positions and the
// unit strings to materialize variants. Its buffers live on the heap.
func (x *Index) walkVariants(text string, visit func(hash uint64, deleted []int, graphemes []string)) {
	graphemes := slices.Collect(x.segmenter.Units(text))
	units := make([]uint64, 0, len(graphemes))
	r := ranker{ranks: make(map[uint64]int, len(graphemes))}
	h := newUnitHasher(x.folders)
	defer h.release()
	for _, g := range graphemes {
		units = append(units, r.rotate(h.sum(g)))
	}

	full := combine(units)
	k := deletionBudget(len(units), x.maxEditDistance)
	end := enumerateDeletions(units, full, k, make([]int, k), func(hash uint64, deleted []int) {
		visit(hash, deleted, graphemes)
	})
	if x.diag != nil {
		checkRoundtrip(text, full, end)
	}
}
