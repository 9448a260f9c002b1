package cms_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"BehaviorSpectra/pkg/cms"
)

var (
	depths = []uint64{3, 7}
	widths = []uint64{1024, 27183}
	items  = generateItems(100_000)
)

func generateItems(n int) []string {
	items := make([]string, n)
	for i := 0; i < n; i++ {
		items[i] = fmt.Sprintf("/usr/bin/proc%d --flag %d", i, i%7)
	}
	return items
}

// BenchmarkSketchUpdate benchmarks the Update method of Sketch.
func BenchmarkSketchUpdate(b *testing.B) {
	for _, depth := range depths {
		for _, width := range widths {
			b.Run(fmt.Sprintf("Depth=%d_Width=%d", depth, width), func(b *testing.B) {
				sketch, _ := cms.New(depth, width)

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					sketch.Update(items[rand.IntN(len(items))], 1)
				}
			})
		}
	}
}

// BenchmarkSketchEstimate benchmarks the Estimate method of Sketch.
func BenchmarkSketchEstimate(b *testing.B) {
	for _, depth := range depths {
		for _, width := range widths {
			b.Run(fmt.Sprintf("Depth=%d_Width=%d", depth, width), func(b *testing.B) {
				sketch, _ := cms.New(depth, width)
				for _, item := range items {
					sketch.Update(item, uint64(rand.IntN(10)))
				}

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					sketch.Estimate(items[rand.IntN(len(items))])
				}
			})
		}
	}
}
