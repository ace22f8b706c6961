package guda

// GenerateFloat32 generates deterministic float32 test data using a linear
// congruential generator (LCG). This ensures reproducible tests across runs.
//
// Parameters:
//   - size: Number of elements to generate
//   - seed: Random seed for reproducibility
//
// Example:
//
//	data := GenerateFloat32(1024, 12345)
func GenerateFloat32(size int, seed uint64) []float32 {
	data := make([]float32, size)
	rng := seed
	for i := range data {
		rng = rng*6364136223846793005 + 1442695040888963407 // Knuth MMIX
		data[i] = float32(rng>>40) / float32(1<<24)         // [0, 1)
	}
	return data
}

// GenerateFloat32Range generates deterministic float32 data in [min, max).
//
// Example:
//
//	data := GenerateFloat32Range(1024, 42, -1.0, 1.0)
func GenerateFloat32Range(size int, seed uint64, min, max float32) []float32 {
	data := GenerateFloat32(size, seed)
	scale := max - min
	for i := range data {
		data[i] = data[i]*scale + min
	}
	return data
}

// GenerateSequence generates a simple arithmetic sequence for debugging.
//
// Example:
//
//	data := GenerateSequence(4, 1, 1) // [1, 2, 3, 4]
func GenerateSequence(size int, start, step float32) []float32 {
	data := make([]float32, size)
	for i := range data {
		data[i] = start + float32(i)*step
	}
	return data
}

// Fill returns a slice of size copies of v.
func Fill(size int, v float32) []float32 {
	data := make([]float32, size)
	for i := range data {
		data[i] = v
	}
	return data
}

// SkipLayerNormCase bundles the host tensors of one skip layer norm call.
type SkipLayerNormCase struct {
	LD    int
	Input []float32
	Skip  []float32
	Gamma []float32
	Beta  []float32
}

// Rows returns the number of rows in the case.
func (c SkipLayerNormCase) Rows() int {
	return len(c.Input) / c.LD
}

// GenerateSkipLayerNormCase builds rows x ld random activations and skips in
// [-1, 1), gamma in [0.5, 1.5) and beta in [-0.5, 0.5), all derived from seed.
func GenerateSkipLayerNormCase(ld, rows int, seed uint64) SkipLayerNormCase {
	n := ld * rows
	return SkipLayerNormCase{
		LD:    ld,
		Input: GenerateFloat32Range(n, seed, -1, 1),
		Skip:  GenerateFloat32Range(n, seed+1, -1, 1),
		Gamma: GenerateFloat32Range(ld, seed+2, 0.5, 1.5),
		Beta:  GenerateFloat32Range(ld, seed+3, -0.5, 0.5),
	}
}
