package fuzzy

import (
	"fmt"
	"testing"
)

var benchWords = []string{
	"distributed", "search", "engine", "process", "queries", "across",
	"multiple", "shards", "achieve", "horizontal", "scalability", "inverted",
	"index", "responds", "independently", "results", "merged", "ranking",
}

func BenchmarkAdd(b *testing.B) {
	for _, k := range []int{1, 2, 3} {
		b.Run(fmt.Sprintf("k=%d", k), func(b *testing.B) {
			x, err := New(k)
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				x.Add(benchWords[i%len(benchWords)])
			}
		})
	}
}

func BenchmarkLookup(b *testing.B) {
	for _, k := range []int{1, 2, 3} {
		b.Run(fmt.Sprintf("k=%d", k), func(b *testing.B) {
			x, err := New(k)
			if err != nil {
				b.Fatal(err)
			}
			for i := 0; i < 10000; i++ {
				x.Add(fmt.Sprintf("%s-%d", benchWords[i%len(benchWords)], i))
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = x.Lookup("scalabilty")
			}
		})
	}
}

func BenchmarkLookupParallel(b *testing.B) {
	x, err := New(2)
	if err != nil {
		b.Fatal(err)
	}
	for _, w := range benchWords {
		x.Add(w)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = x.Lookup("indepndently")
		}
	})
}
