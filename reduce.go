package guda

import (
	"math"
)

// Two-moment reductions used by the normalization kernels.

// Pair is a two-moment accumulator. For a row of width ld every element v
// contributes (v/ld, v*v/ld), so a fully reduced pair holds the mean and the
// mean of squares.
type Pair struct {
	Sum   float32
	SumSq float32
}

// Add combines two pairs component-wise. It is associative and commutative
// in exact arithmetic, so any reduction tree gives the same result up to
// rounding.
func (p Pair) Add(q Pair) Pair {
	return Pair{Sum: p.Sum + q.Sum, SumSq: p.SumSq + q.SumSq}
}

// ReducePairs reduces one partial per thread of the block and returns the
// block total. Lanes are first reduced in warps of WarpSize with a halving
// tree, then the warp totals are reduced the same way. Every partial is
// counted exactly once; partials is clobbered.
//
// It must be called between Threads phases, never from inside one.
func (b *Block) ReducePairs(partials []Pair) Pair {
	n := len(partials)
	if n == 0 {
		return Pair{}
	}

	warps := 0
	for w := 0; w < n; w += WarpSize {
		end := min(w+WarpSize, n)
		partials[warps] = treeReduce(partials[w:end])
		warps++
	}
	for warps > 1 {
		next := 0
		for w := 0; w < warps; w += WarpSize {
			end := min(w+WarpSize, warps)
			partials[next] = treeReduce(partials[w:end])
			next++
		}
		warps = next
	}
	return partials[0]
}

// treeReduce folds lanes into lanes[0] by halving offsets, the order a
// shuffle-down warp reduction uses.
func treeReduce(lanes []Pair) Pair {
	n := len(lanes)
	offset := 1
	for offset < n {
		offset <<= 1
	}
	for offset >>= 1; offset > 0; offset >>= 1 {
		for lane := 0; lane < offset && lane+offset < n; lane++ {
			lanes[lane] = lanes[lane].Add(lanes[lane+offset])
		}
	}
	return lanes[0]
}

// rowStats holds the per-row values broadcast to every thread of a block
// before the write-back pass.
type rowStats struct {
	Mean   float32
	RSigma float32 // 1 / sqrt(variance + LayerNormEpsilon)
}

// statsFromPair derives mean and inverse standard deviation from a reduced
// pair. Variance is E[v²] - mean², clamped at zero so that rounding can never
// hand a negative argument to the square root.
func statsFromPair(p Pair) rowStats {
	mean := p.Sum
	variance := p.SumSq - mean*mean
	if variance < 0 {
		variance = 0
	}
	return rowStats{
		Mean:   mean,
		RSigma: float32(1 / math.Sqrt(float64(variance)+LayerNormEpsilon)),
	}
}
