package guda

// Fused skip + layer normalization kernels.
//
// One block normalizes one row of ld elements:
//
//	v      = input[i] + skip[i]
//	out[i] = gamma[i] * (v - mean) / sqrt(var + eps) + beta[i]
//
// Mean and variance come from a single traversal accumulating
// (v/ld, v*v/ld) pairs in float32, reduced across the block.

// skipLayerNormArgs are the row-major views a kernel works on. gamma and beta
// hold ld values and are shared by every row.
type skipLayerNormArgs[B elementBuffer] struct {
	ld          int
	input, skip B
	gamma, beta []float32
	output      B
}

// skipLayerNormSmall is the single-pass shape: the block has at least ld
// threads and thread t owns element t of the row. Threads past ld add a zero
// pair and write nothing.
func skipLayerNormSmall[B elementBuffer](a skipLayerNormArgs[B]) BlockKernelFunc {
	ld := a.ld
	rld := 1 / float32(ld)
	return func(blk *Block) {
		offset := blk.Linear() * ld
		partials := blk.SharedPairs()
		// Per-thread registers carried across the barrier.
		vals := blk.SharedFloat32(blk.Size())

		blk.Threads(func(t int) {
			if t >= ld {
				partials[t] = Pair{}
				return
			}
			idx := offset + t
			v := a.output.Quantize(a.input.Load(idx) + a.skip.Load(idx))
			rldval := rld * v
			vals[t] = v
			partials[t] = Pair{Sum: rldval, SumSq: rldval * v}
		})

		stats := statsFromPair(blk.ReducePairs(partials))

		blk.Threads(func(t int) {
			if t >= ld {
				return
			}
			a.output.Store(offset+t, a.gamma[t]*(vals[t]-stats.Mean)*stats.RSigma+a.beta[t])
		})
	}
}

// skipLayerNormStrided is the generic shape for any ld: thread t visits
// t, t+B, t+2B, ... of the row. The summed value is written to output as
// soon as it is computed and read back for the normalization pass, so input
// and skip are each read exactly once.
func skipLayerNormStrided[B elementBuffer](a skipLayerNormArgs[B]) BlockKernelFunc {
	ld := a.ld
	rld := 1 / float32(ld)
	return func(blk *Block) {
		offset := blk.Linear() * ld
		stride := blk.Size()
		partials := blk.SharedPairs()

		blk.Threads(func(t int) {
			var p Pair
			for i := t; i < ld; i += stride {
				idx := offset + i
				v := a.output.Quantize(a.input.Load(idx) + a.skip.Load(idx))
				rldval := rld * v
				p.Sum += rldval
				p.SumSq += rldval * v
				a.output.Store(idx, v)
			}
			partials[t] = p
		})

		stats := statsFromPair(blk.ReducePairs(partials))

		blk.Threads(func(t int) {
			for i := t; i < ld; i += stride {
				idx := offset + i
				v := a.output.Load(idx)
				a.output.Store(idx, a.gamma[i]*(v-stats.Mean)*stats.RSigma+a.beta[i])
			}
		})
	}
}

// newSkipLayerNormKernel builds the kernel for the chosen shape.
func newSkipLayerNormKernel[B elementBuffer](shape Shape, a skipLayerNormArgs[B]) BlockKernelFunc {
	if shape == ShapeSinglePass {
		return skipLayerNormSmall(a)
	}
	return skipLayerNormStrided(a)
}
