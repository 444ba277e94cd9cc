package fuzzy

import (
	"iter"

	"github.com/rivo/uniseg"
)

// Segmenter splits a string into its units of deletion. Units must be yielded
// left to right, cover the whole string, and be identical every time the same
// string is segmented.
type Segmenter interface {
	Units(text string) iter.Seq[string]
}

// GraphemeSegmenter yields extended grapheme clusters, so an accented letter
// or an emoji sequence is a single unit.
type GraphemeSegmenter struct{}

// Units implements Segmenter.
func (GraphemeSegmenter) Units(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		var cluster string
		rest, state := text, -1
		for len(rest) > 0 {
			cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
			if !yield(cluster) {
				return
			}
		}
	}
}
