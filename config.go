package guda

// Thread and block dimensions
const (
	// WarpSize is the number of lanes reduced together in the first stage
	// of a block reduction.
	WarpSize = 32

	// Default block size for kernels
	DefaultBlockSize = 256

	// Maximum threads per block (CUDA compatibility)
	MaxThreadsPerBlock = 1024
)

// Memory pool parameters
const (
	// Memory alignment for allocations
	MemoryAlignment = 64
)

// Skip layer norm block widths, selected from the row width.
const (
	// SkipLayerNormSmallBlock serves rows of up to 32 elements.
	SkipLayerNormSmallBlock = 32

	// SkipLayerNormMediumBlock serves rows of 33 to 128 elements.
	SkipLayerNormMediumBlock = 128

	// SkipLayerNormHiddenBlock serves rows of exactly 384 elements, the
	// hidden size of BERT-base style models.
	SkipLayerNormHiddenBlock = 384

	// SkipLayerNormGenericBlock is the strided fallback for every other width.
	SkipLayerNormGenericBlock = 256
)

// Numerical constants
const (
	// LayerNormEpsilon is added to the variance before the square root.
	LayerNormEpsilon = 1e-5

	// Machine epsilon for float32
	Float32Epsilon = 1.192092896e-07
)
