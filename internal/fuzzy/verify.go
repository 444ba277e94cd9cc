package fuzzy

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrHashRoundtrip is the panic value raised when restoring every deleted unit
// does not reproduce the original hash. It means the index is corrupt.
var ErrHashRoundtrip = errors.New("fuzzy: deletion hash roundtrip mismatch")

// Variant is one member of a string's deletion family.
type Variant struct {
	Text    string `json:"text"`
	Hash    uint64 `json:"hash"`
	Deleted []int  `json:"deleted,omitempty"`
}

// Collision is a hash shared by differing variant texts. Lookups through such
// a hash return false positives.
type Collision struct {
	Hash     uint64   `json:"hash"`
	Variants []string `json:"variants"`
}

// diagnostics mirrors the index with the materialized text of every variant,
// reference counted by the stored strings that produced it.
type diagnostics struct {
	variants map[uint64]map[string]int
}

func newDiagnostics() *diagnostics {
	return &diagnostics{variants: make(map[uint64]map[string]int)}
}

func (d *diagnostics) record(hash uint64, variant string, delta int) {
	texts := d.variants[hash]
	if texts == nil {
		texts = make(map[string]int, 1)
		d.variants[hash] = texts
	}
	texts[variant] += delta
	if texts[variant] <= 0 {
		delete(texts, variant)
	}
	if len(texts) == 0 {
		delete(d.variants, hash)
	}
}

func (d *diagnostics) collisions() []Collision {
	var out []Collision
	for hash, texts := range d.variants {
		if len(texts) < 2 {
			continue
		}
		c := Collision{Hash: hash, Variants: make([]string, 0, len(texts))}
		for t := range texts {
			c.Variants = append(c.Variants, t)
		}
		slices.Sort(c.Variants)
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Collision) int { return cmp.Compare(a.Hash, b.Hash) })
	return out
}

func checkRoundtrip(text string, want, got uint64) {
	if want != got {
		panic(fmt.Errorf("%w: %q ended at %#016x, started at %#016x", ErrHashRoundtrip, text, got, want))
	}
}

// materialize rebuilds the variant text with the given unit positions removed.
// deleted must be ascending.
func materialize(graphemes []string, deleted []int) string {
	var sb strings.Builder
	next := 0
	for i, g := range graphemes {
		if next < len(deleted) && deleted[next] == i {
			next++
			continue
		}
		sb.WriteString(g)
	}
	return sb.String()
}

// Variants returns the deletion family of text in enumeration order: the text
// itself first, then every variant with up to MaxEditDistance units removed.
// It does not consult or modify the stored strings.
func (x *Index) Variants(text string) []Variant {
	var out []Variant
	x.walkVariants(text, func(hash uint64, deleted []int, graphemes []string) {
		out = append(out, Variant{
			Text:    materialize(graphemes, deleted),
			Hash:    hash,
			Deleted: slices.Clone(deleted),
		})
	})
	return out
}

// Collisions reports hashes that distinct variant texts of the stored strings
// map to. It returns nil unless the index was built WithVerification. Variants
// that differ only by case are reported when comparing with IgnoreCase, and
// variants that are unit-level anagrams always collide.
func (x *Index) Collisions() []Collision {
	if x.diag == nil {
		return nil
	}
	return x.diag.collisions()
}
