package fuzzy

import "math"

// positionStack is a fixed-capacity stack of deleted unit positions. Its
// capacity is the deletion budget, so it never grows.
type positionStack struct {
	buf []int
	n   int
}

func (s *positionStack) push(pos int) {
	s.buf[s.n] = pos
	s.n++
}

func (s *positionStack) pop() int {
	s.n--
	return s.buf[s.n]
}

func (s *positionStack) peek() int {
	return s.buf[s.n-1]
}

// positions returns the stack contents, bottom first. The slice is only valid
// until the next push or pop.
func (s *positionStack) positions() []int {
	return s.buf[:s.n]
}

// deletionWalk steps depth first through every combination of up to k
// deleted positions of units. Deleting a position subtracts its unit hash and
// restoring it adds the hash back, so hash is always the hash of the current
// variant and returns to the full hash once the walk ends.
type deletionWalk struct {
	units   []uint64
	k       int
	stack   positionStack
	hash    uint64
	started bool
	done    bool
}

// newDeletionWalk prepares a walk over units whose combined hash is full.
// positions is the stack storage and needs room for k entries.
func newDeletionWalk(units []uint64, full uint64, k int, positions []int) deletionWalk {
	return deletionWalk{
		units: units,
		k:     k,
		stack: positionStack{buf: positions[:k]},
		hash:  full,
	}
}

// next advances to the following variant and reports whether there is one.
// The first variant is the string itself with nothing deleted.
func (w *deletionWalk) next() bool {
	if w.done {
		return false
	}
	if !w.started {
		w.started = true
		return true
	}
	if w.stack.n < w.k {
		pos := 0
		if w.stack.n > 0 {
			pos = w.stack.peek() + 1
		}
		if pos < len(w.units) {
			w.delete(pos)
			return true
		}
	}
	for w.stack.n > 0 {
		pos := w.restore()
		if pos+1 < len(w.units) {
			w.delete(pos + 1)
			return true
		}
	}
	w.done = true
	return false
}

func (w *deletionWalk) delete(pos int) {
	w.stack.push(pos)
	w.hash = decombine(w.hash, w.units[pos])
}

func (w *deletionWalk) restore() int {
	pos := w.stack.pop()
	w.hash += w.units[pos]
	return pos
}

// deleted returns the positions removed in the current variant in ascending
// order, nil for the string itself. It is only valid until the next call to
// next.
func (w *deletionWalk) deleted() []int {
	if w.stack.n == 0 {
		return nil
	}
	return w.stack.positions()
}

// deletionBudget caps the edit distance so at least one unit always remains.
func deletionBudget(n, maxEditDistance int) int {
	return max(min(n-1, maxEditDistance), 0)
}

// familySize is the number of variants enumerated for n units with deletion
// budget k, saturating at math.MaxInt.
func familySize(n, k int) int {
	total, term := 1, 1
	for j := 1; j <= k; j++ {
		// C(n, j) = C(n, j-1) * (n-j+1) / j, and the division is exact.
		f := n - j + 1
		if f <= 0 {
			break
		}
		if term > math.MaxInt/f {
			return math.MaxInt
		}
		term = term * f / j
		if total > math.MaxInt-term {
			return math.MaxInt
		}
		total += term
	}
	return total
}

// enumerateDeletions reports the hash of units (full) and then the hash of
// every variant with 1..k units deleted, each exactly once. deleted is only
// valid during the call. It returns the running hash after the walk, which
// equals full unless the traversal is broken.
func enumerateDeletions(units []uint64, full uint64, k int, positions []int, visit func(hash uint64, deleted []int)) uint64 {
	w := newDeletionWalk(units, full, k, positions)
	for w.next() {
		visit(w.hash, w.deleted())
	}
	return w.hash
}
