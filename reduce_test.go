package guda

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTreeReduce(t *testing.T) {
	cases := []struct {
		name  string
		lanes []Pair
		want  Pair
	}{
		{"single", []Pair{{1, 2}}, Pair{1, 2}},
		{"pair", []Pair{{1, 2}, {3, 4}}, Pair{4, 6}},
		{"odd", []Pair{{1, 1}, {2, 4}, {3, 9}}, Pair{6, 14}},
		{"full warp", pairsOf(WarpSize), pairTotal(WarpSize)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lanes := append([]Pair(nil), tc.lanes...)
			assert.Equal(t, tc.want, treeReduce(lanes))
		})
	}
}

func TestReducePairsCountsEveryPartialOnce(t *testing.T) {
	// Integer-valued partials make every tree order exact, so any missed or
	// double-counted lane shows up as a mismatch.
	for _, n := range []int{1, 2, 31, 32, 33, 63, 64, 96, 100, 128, 255, 256, 384, 512, 1000, 1024} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			blk := newBlock(Dim3{X: 1}, Dim3{X: n})
			partials := blk.SharedPairs()
			copy(partials, pairsOf(n))

			assert.Equal(t, pairTotal(n), blk.ReducePairs(partials))
		})
	}
}

func TestReducePairsEmpty(t *testing.T) {
	blk := newBlock(Dim3{X: 1}, Dim3{X: 1})
	assert.Equal(t, Pair{}, blk.ReducePairs(nil))
}

func TestStatsFromPair(t *testing.T) {
	t.Run("unit variance", func(t *testing.T) {
		// mean 2, E[v²] 5 → variance 1
		s := statsFromPair(Pair{Sum: 2, SumSq: 5})
		assert.Equal(t, float32(2), s.Mean)
		assert.InDelta(t, 1/math.Sqrt(1+LayerNormEpsilon), s.RSigma, 1e-7)
	})

	t.Run("negative variance clamps", func(t *testing.T) {
		// Rounding can leave E[v²] slightly below mean².
		s := statsFromPair(Pair{Sum: 3, SumSq: 8.9999})
		assert.False(t, math.IsNaN(float64(s.RSigma)))
		assert.InDelta(t, 1/math.Sqrt(LayerNormEpsilon), s.RSigma, 1e-2)
	})

	t.Run("zero", func(t *testing.T) {
		s := statsFromPair(Pair{})
		assert.Equal(t, float32(0), s.Mean)
		assert.InDelta(t, 1/math.Sqrt(LayerNormEpsilon), s.RSigma, 1e-2)
	})
}

// pairsOf returns n pairs (i, 1) for i = 1..n. SumSq counts lanes.
func pairsOf(n int) []Pair {
	p := make([]Pair, n)
	for i := range p {
		p[i] = Pair{Sum: float32(i + 1), SumSq: 1}
	}
	return p
}

// pairTotal is the exact reduction of pairsOf(n).
func pairTotal(n int) Pair {
	m := float32(n)
	return Pair{Sum: m * (m + 1) / 2, SumSq: m}
}

func BenchmarkReducePairs(b *testing.B) {
	for _, n := range []int{32, 128, 256, 384} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			blk := newBlock(Dim3{X: 1}, Dim3{X: n})
			src := pairsOf(n)
			for i := 0; i < b.N; i++ {
				partials := blk.SharedPairs()
				copy(partials, src)
				blk.ReducePairs(partials)
			}
		})
	}
}
