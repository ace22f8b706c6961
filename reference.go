package guda

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Reference contains simple, correct implementations of the kernels.
// They are used for testing and verification of the optimized paths.
type Reference struct{}

// RowStats returns the population mean and variance of row, computed in
// float64 with two passes over the data.
func (r Reference) RowStats(row []float64) (mean, variance float64) {
	return stat.PopMeanVariance(row, nil)
}

// SkipLayerNorm computes LayerNorm(input + skip) * gamma + beta row by row:
// a first pass for mean and variance, a second pass to normalize. All
// arithmetic is float64; gamma and beta have ld entries.
func (r Reference) SkipLayerNorm(ld int, input, skip, gamma, beta []float32) []float32 {
	out := make([]float32, len(input))
	row := make([]float64, ld)
	for offset := 0; offset+ld <= len(input); offset += ld {
		for i := range row {
			row[i] = float64(input[offset+i]) + float64(skip[offset+i])
		}
		mean, variance := r.RowStats(row)
		inv := 1 / math.Sqrt(variance+LayerNormEpsilon)
		for i, v := range row {
			out[offset+i] = float32(float64(gamma[i])*(v-mean)*inv + float64(beta[i]))
		}
	}
	return out
}
