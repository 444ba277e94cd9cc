package fuzzy

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Comparison selects how two units are compared when hashed.
type Comparison int

const (
	// Exact compares units byte for byte.
	Exact Comparison = iota
	// IgnoreCase folds case before hashing a unit.
	IgnoreCase
)

func (c Comparison) String() string {
	switch c {
	case Exact:
		return "exact"
	case IgnoreCase:
		return "ignore-case"
	default:
		return fmt.Sprintf("comparison(%d)", int(c))
	}
}

// ParseComparison maps a configuration value to a Comparison.
func ParseComparison(s string) (Comparison, error) {
	switch s {
	case "", "exact":
		return Exact, nil
	case "ignore-case", "ignorecase", "case-insensitive":
		return IgnoreCase, nil
	default:
		return Exact, fmt.Errorf("unknown comparison %q", s)
	}
}

// foldBytes bounds the units a folder case maps in its own buffers.
const foldBytes = 64

// folder case maps single units. A cases.Caser keeps state between calls, so
// every concurrent walk needs its own.
type folder struct {
	caser cases.Caser
	src   [foldBytes]byte
	dst   [foldBytes]byte
}

func (f *folder) sum(unit string) uint64 {
	if len(unit) <= foldBytes {
		n := copy(f.src[:], unit)
		f.caser.Reset()
		nDst, _, err := f.caser.Transform(f.dst[:], f.src[:n], true)
		if err == nil {
			return xxhash.Sum64(f.dst[:nDst])
		}
	}
	return xxhash.Sum64String(f.caser.String(unit))
}

// folderPool returns nil for Exact, which hashes units unchanged.
func folderPool(cmp Comparison, locale language.Tag) *sync.Pool {
	if cmp != IgnoreCase {
		return nil
	}
	return &sync.Pool{
		New: func() any {
			f := &folder{caser: cases.Fold()}
			if locale != language.Und {
				f.caser = cases.Lower(locale)
			}
			return f
		},
	}
}

// unitHasher computes the raw hash of a single unit.
type unitHasher struct {
	pool   *sync.Pool
	folder *folder
}

func newUnitHasher(pool *sync.Pool) unitHasher {
	if pool == nil {
		return unitHasher{}
	}
	return unitHasher{pool: pool, folder: pool.Get().(*folder)}
}

func (h unitHasher) sum(unit string) uint64 {
	if h.folder != nil {
		return h.folder.sum(unit)
	}
	return xxhash.Sum64String(unit)
}

func (h unitHasher) release() {
	if h.pool != nil {
		h.pool.Put(h.folder)
	}
}

// ranker turns raw unit hashes into contributions. Each raw hash is rotated
// left by the number of earlier units with the same raw hash. The rotation
// depends on occurrence rank rather than position, so deleting an unrelated
// unit never changes another unit's contribution.
//
// Ranks are counted through ranks when it is set. Otherwise earlier raw
// hashes are kept in seen, which needs room for every unit, and scanned.
type ranker struct {
	seen  []uint64
	n     int
	ranks map[uint64]int
}

func (r *ranker) rotate(raw uint64) uint64 {
	rank := 0
	if r.ranks != nil {
		rank = r.ranks[raw]
		r.ranks[raw] = rank + 1
	} else {
		for _, s := range r.seen[:r.n] {
			if s == raw {
				rank++
			}
		}
		r.seen[r.n] = raw
		r.n++
	}
	return bits.RotateLeft64(raw, rank)
}

// combine sums unit contributions with wrapping addition into a string hash.
func combine(units []uint64) uint64 {
	var sum uint64
	for _, u := range units {
		sum += u
	}
	return sum
}

// decombine removes unit contributions from a string hash. The result equals
// the hash of the string with those units deleted.
func decombine(hash uint64, removed ...uint64) uint64 {
	for _, u := range removed {
		hash -= u
	}
	return hash
}
