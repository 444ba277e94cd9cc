package fuzzy

import (
	"errors"
	"iter"
	"slices"
	"testing"

	"golang.org/x/text/language"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/errors"
)

func newIndex(t *testing.T, k int, opts ...Option) *Index {
	t.Helper()
	x, err := New(k, opts...)
	if err != nil {
		t.Fatalf("New(%d) error: %v", k, err)
	}
	return x
}

func newVerifiedIndex(t *testing.T, k int, opts ...Option) *Index {
	t.Helper()
	return newIndex(t, k, append([]Option{WithVerification()}, opts...)...)
}

// forEachMode runs fn once against plain indexes and once with the
// diagnostic layer, which enumerates through a separate path.
func forEachMode(t *testing.T, fn func(t *testing.T, newIndex func(k int, opts ...Option) *Index)) {
	modes := []struct {
		name string
		new  func(t *testing.T, k int, opts ...Option) *Index
	}{
		{"plain", newIndex},
		{"verified", newVerifiedIndex},
	}
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			fn(t, func(k int, opts ...Option) *Index { return m.new(t, k, opts...) })
		})
	}
}

func graphemes(s string) []string {
	var out []string
	for u := range (GraphemeSegmenter{}).Units(s) {
		out = append(out, u)
	}
	return out
}

func TestLookup_ReturnsMatchWithinMaxEditDistance(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(1)
		x.Add("test")

		got := x.Lookup("tes")
		if !slices.Equal(got, []string{"test"}) {
			t.Errorf("Lookup(%q) = %v; want [test]", "tes", got)
		}
	})
}

func TestLookup_SelfMatch(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		words := []string{"a", "ab", "test", "straße", "cafe\u0301", "👨‍👩‍👧 family", "aaaa", "日本語"}
		for _, k := range []int{0, 1, 2, 3} {
			x := newIndex(k)
			for _, w := range words {
				x.Add(w)
			}
			for _, w := range words {
				if got := x.Lookup(w); !slices.Contains(got, w) {
					t.Errorf("k=%d: Lookup(%q) = %v; missing itself", k, w, got)
				}
			}
		}
	})
}

func TestLookup_DeletionClosure(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		words := []string{"black", "banana", "naïve", "cafés", "x", "xy", "🇳🇱flag"}
		const k = 2
		x := newIndex(k)
		for _, w := range words {
			x.Add(w)
		}
		for _, w := range words {
			units := graphemes(w)
			budget := deletionBudget(len(units), k)
			// Every subset of positions of size <= budget, as a bitmask.
			for mask := 0; mask < 1<<len(units); mask++ {
				deleted := make([]int, 0, budget)
				for i := range units {
					if mask&(1<<i) != 0 {
						deleted = append(deleted, i)
					}
				}
				if len(deleted) > budget {
					continue
				}
				query := materialize(units, deleted)
				if got := x.Lookup(query); !slices.Contains(got, w) {
					t.Errorf("Lookup(%q) = %v; want it to contain %q", query, got, w)
				}
			}
		}
	})
}

func TestLookup_NoMatch(t *testing.T) {
	x := newIndex(t, 1)
	x.Add("test")

	for _, q := range []string{"xyz", "tesxy", "completely different"} {
		got := x.Lookup(q)
		if got == nil {
			t.Fatalf("Lookup(%q) returned nil; want empty slice", q)
		}
		if len(got) != 0 {
			t.Errorf("Lookup(%q) = %v; want none", q, got)
		}
	}
}

func TestLookup_EmptyIndex(t *testing.T) {
	x := newIndex(t, 2)
	if got := x.Lookup("anything"); got == nil || len(got) != 0 {
		t.Errorf("Lookup on empty index = %#v; want empty slice", got)
	}
}

func TestLookup_DoesNotMutate(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(2)
		for _, w := range []string{"black", "block", "back", "slack"} {
			x.Add(w)
		}
		buckets, n := x.Buckets(), x.Len()
		first := x.Lookup("lack")
		for i := 0; i < 5; i++ {
			if got := x.Lookup("lack"); !slices.Equal(got, first) {
				t.Fatalf("Lookup #%d = %v; want %v", i, got, first)
			}
			x.Lookup("unrelated query")
		}
		if x.Buckets() != buckets || x.Len() != n {
			t.Errorf("Lookup changed index: buckets %d->%d, len %d->%d", buckets, x.Buckets(), n, x.Len())
		}
	})
}

func TestRemove(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(1)
		x.Add("black")
		x.Add("slack")

		x.Remove("slack")

		if got := x.Lookup("slack"); slices.Contains(got, "slack") {
			t.Errorf("Lookup(slack) after Remove = %v", got)
		}
		if got := x.Lookup("lack"); !slices.Equal(got, []string{"black"}) {
			t.Errorf("Lookup(lack) = %v; want [black]", got)
		}
		if x.Len() != 1 {
			t.Errorf("Len() = %d; want 1", x.Len())
		}
	})
}

func TestRemove_DropsEmptyBuckets(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(2)
		x.Add("banana")
		if x.Buckets() == 0 {
			t.Fatal("Add created no buckets")
		}
		x.Remove("banana")
		if x.Buckets() != 0 || x.Len() != 0 {
			t.Errorf("after Remove: Buckets() = %d, Len() = %d; want 0, 0", x.Buckets(), x.Len())
		}
		if got := x.Collisions(); len(got) != 0 {
			t.Errorf("diagnostics not cleared: %v", got)
		}
	})
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(1)
		x.Add("test")
		buckets := x.Buckets()

		x.Remove("tent")
		x.Remove("")

		if x.Buckets() != buckets || x.Len() != 1 {
			t.Errorf("Remove of absent string changed the index")
		}
		if got := x.Lookup("tes"); !slices.Equal(got, []string{"test"}) {
			t.Errorf("Lookup(tes) = %v; want [test]", got)
		}
	})
}

func TestAdd_Idempotent(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(1)
		x.Add("test")
		buckets := x.Buckets()
		x.Add("test")

		if x.Len() != 1 || x.Buckets() != buckets {
			t.Errorf("second Add: Len() = %d, Buckets() = %d; want 1, %d", x.Len(), x.Buckets(), buckets)
		}
		if got := x.Lookup("tes"); !slices.Equal(got, []string{"test"}) {
			t.Errorf("Lookup(tes) = %v; want [test]", got)
		}

		// Set semantics: one Remove undoes any number of Adds.
		x.Remove("test")
		if got := x.Lookup("test"); len(got) != 0 {
			t.Errorf("Lookup(test) after Add, Add, Remove = %v; want none", got)
		}
	})
}

func TestComparison(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		add   string
		query string
		want  bool
	}{
		{"ignore case", []Option{WithComparison(IgnoreCase)}, "Test", "test", true},
		{"ignore case upper query", []Option{WithComparison(IgnoreCase)}, "straße", "STRASSE", false},
		{"ignore case sharp s", []Option{WithComparison(IgnoreCase)}, "Straße", "straße", true},
		{"exact", []Option{WithComparison(Exact)}, "Test", "test", false},
		{"exact same", []Option{WithComparison(Exact)}, "Test", "Test", true},
		{"turkish locale", []Option{WithComparison(IgnoreCase), WithLocale(language.Turkish)}, "İstanbul", "istanbul", true},
		{"default fold keeps dotted capital i distinct", []Option{WithComparison(IgnoreCase)}, "İstanbul", "istanbul", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x := newIndex(t, 0, tc.opts...)
			x.Add(tc.add)
			got := slices.Contains(x.Lookup(tc.query), tc.add)
			if got != tc.want {
				t.Errorf("Add(%q); Lookup(%q) contains = %v; want %v", tc.add, tc.query, got, tc.want)
			}
		})
	}
}

func TestIgnoreCase_IsDefault(t *testing.T) {
	x, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	if x.Comparison() != IgnoreCase {
		t.Errorf("Comparison() = %v; want ignore-case", x.Comparison())
	}
	x.Add("Test")
	if got := x.Lookup("test"); !slices.Equal(got, []string{"Test"}) {
		t.Errorf("Lookup(test) = %v; want [Test]", got)
	}
}

func TestAnagramsStoredDistinct(t *testing.T) {
	x := newVerifiedIndex(t, 0, WithComparison(Exact))
	x.Add("abc")
	x.Add("cba")

	if x.Len() != 2 {
		t.Fatalf("Len() = %d; want 2 distinct entries", x.Len())
	}
	// Rank rotation does not separate pure permutations, so both come back
	// as candidates, but as separate strings.
	if got := x.Lookup("abc"); !slices.Equal(got, []string{"abc", "cba"}) {
		t.Errorf("Lookup(abc) = %v; want [abc cba]", got)
	}
	collisions := x.Collisions()
	if len(collisions) != 1 || !slices.Equal(collisions[0].Variants, []string{"abc", "cba"}) {
		t.Errorf("Collisions() = %v; want one collision between abc and cba", collisions)
	}

	x.Remove("cba")
	if got := x.Lookup("abc"); !slices.Equal(got, []string{"abc"}) {
		t.Errorf("Lookup(abc) after removing cba = %v; want [abc]", got)
	}
}

func TestRepeatedUnitsAreRanked(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(0, WithComparison(Exact))
		x.Add("aab")
		for _, q := range []string{"ab", "abb", "aaab"} {
			if got := x.Lookup(q); len(got) != 0 {
				t.Errorf("Lookup(%q) = %v; want none", q, got)
			}
		}
	})
}

func TestGraphemeUnits(t *testing.T) {
	x := newIndex(t, 1, WithComparison(Exact))
	word := "cafe\u0301" // e + combining acute is one unit
	x.Add(word)

	var texts []string
	for _, v := range x.Variants(word) {
		texts = append(texts, v.Text)
	}
	want := []string{word, "afe\u0301", "cfe\u0301", "cae\u0301", "caf"}
	if !slices.Equal(texts, want) {
		t.Errorf("Variants(%q) = %q; want %q", word, texts, want)
	}

	x.Add("a👨‍👩‍👧")
	if got := x.Lookup("a"); !slices.Contains(got, "a👨‍👩‍👧") {
		t.Errorf("Lookup(a) = %v; want the emoji sequence deleted as one unit", got)
	}
}

func TestVariants(t *testing.T) {
	x := newIndex(t, 2)
	variants := x.Variants("abcde")
	// C(5,0) + C(5,1) + C(5,2)
	if len(variants) != 1+5+10 {
		t.Fatalf("len(Variants) = %d; want 16", len(variants))
	}
	if variants[0].Text != "abcde" || variants[0].Deleted != nil {
		t.Errorf("first variant = %+v; want the full string", variants[0])
	}
	for _, v := range variants[1:] {
		y := newIndex(t, 0)
		if got := y.Variants(v.Text)[0].Hash; got != v.Hash {
			t.Errorf("variant %q (deleted %v) hash %#x; rehashing gives %#x", v.Text, v.Deleted, v.Hash, got)
		}
	}
	if x.Len() != 0 || x.Buckets() != 0 {
		t.Error("Variants modified the index")
	}
}

func TestDeletionBudgetKeepsOneUnit(t *testing.T) {
	x := newIndex(t, 5)
	if got := len(x.Variants("ab")); got != 3 {
		t.Errorf("len(Variants(ab)) with k=5 = %d; want 3", got)
	}
	x.Add("ab")
	if got := x.Lookup(""); len(got) != 0 {
		t.Errorf("Lookup(\"\") = %v; want none, ab must never be fully deleted", got)
	}
}

func TestEmptyString(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(2)
		x.Add("")
		if x.Len() != 1 {
			t.Fatalf("Len() = %d; want 1", x.Len())
		}
		if got := x.Lookup(""); !slices.Equal(got, []string{""}) {
			t.Errorf("Lookup(\"\") = %q; want [\"\"]", got)
		}
		x.Remove("")
		if x.Len() != 0 || x.Buckets() != 0 {
			t.Errorf("Remove(\"\") left Len() = %d, Buckets() = %d", x.Len(), x.Buckets())
		}
	})
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		k    int
		opts []Option
	}{
		{"negative distance", -1, nil},
		{"unknown comparison", 1, []Option{WithComparison(Comparison(7))}},
		{"nil segmenter", 1, []Option{WithSegmenter(nil)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, err := New(tc.k, tc.opts...)
			if !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Errorf("New error = %v; want ErrInvalidConfig", err)
			}
			if x != nil {
				t.Error("New returned an index alongside an error")
			}
		})
	}
}

func TestCollisions_RequiresVerification(t *testing.T) {
	x, err := New(0, WithComparison(Exact))
	if err != nil {
		t.Fatal(err)
	}
	x.Add("ab")
	x.Add("ba")
	if got := x.Collisions(); got != nil {
		t.Errorf("Collisions() without verification = %v; want nil", got)
	}
}

type runeSegmenter struct{}

func (runeSegmenter) Units(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, r := range text {
			if !yield(string(r)) {
				return
			}
		}
	}
}

func TestWithSegmenter(t *testing.T) {
	x := newIndex(t, 1, WithSegmenter(runeSegmenter{}), WithComparison(Exact))
	word := "cafe\u0301"
	x.Add(word)
	// Per rune the combining accent is its own unit and can be deleted.
	if got := x.Lookup("cafe"); !slices.Equal(got, []string{word}) {
		t.Errorf("Lookup(cafe) = %v; want [%s]", got, word)
	}
}

func TestLongStringUsesPooledScratch(t *testing.T) {
	forEachMode(t, func(t *testing.T, newIndex func(k int, opts ...Option) *Index) {
		x := newIndex(1)
		long := make([]byte, 3*inlineUnits)
		for i := range long {
			long[i] = byte('a' + i%26)
		}
		word := string(long)
		x.Add(word)
		if got := x.Lookup(word[1:]); !slices.Equal(got, []string{word}) {
			t.Errorf("Lookup of long string minus first unit did not match")
		}
	})
}

func TestFamilySize_MatchesVariants(t *testing.T) {
	tests := []struct {
		k    int
		text string
		opts []Option
	}{
		{2, "", nil},
		{2, "abcde", nil},
		{1, "café", nil},
		{5, "ab", nil},
		{2, "café", []Option{WithSegmenter(runeSegmenter{})}},
	}
	for _, tc := range tests {
		x := newIndex(t, tc.k, tc.opts...)
		if got, want := x.FamilySize(tc.text), len(x.Variants(tc.text)); got != want {
			t.Errorf("k=%d: FamilySize(%q) = %d; Variants returned %d", tc.k, tc.text, got, want)
		}
	}
}
