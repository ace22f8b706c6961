package guda

import (
	"fmt"

	"github.com/x448/float16"
)

// DataType tags the element type of activation tensors. Values match the
// serialized type tag.
type DataType int32

const (
	Float32 DataType = 0 // 32-bit IEEE float
	Float16 DataType = 1 // 16-bit IEEE half
)

// Size returns the element size in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		return 0
	}
}

// Valid reports whether dt is a supported element type.
func (dt DataType) Valid() bool {
	return dt == Float32 || dt == Float16
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return fmt.Sprintf("DataType(%d)", int32(dt))
	}
}

// ParseDataType accepts "float32"/"fp32"/"float" and "float16"/"fp16"/"half".
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32", "fp32", "float":
		return Float32, nil
	case "float16", "fp16", "half":
		return Float16, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// Element buffers. Loads widen to float32 so that all reduction arithmetic
// happens in at least single precision.

type float32Buffer []float32

func (b float32Buffer) Load(i int) float32         { return b[i] }
func (b float32Buffer) Store(i int, v float32)     { b[i] = v }
func (b float32Buffer) Quantize(v float32) float32 { return v }

type float16Buffer []float16.Float16

func (b float16Buffer) Load(i int) float32     { return b[i].Float32() }
func (b float16Buffer) Store(i int, v float32) { b[i] = float16.Fromfloat32(v) }

// Quantize rounds v to the nearest half value, widened back to float32.
func (b float16Buffer) Quantize(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}

// elementBuffer is the set of element views the kernels are generic over.
type elementBuffer interface {
	float32Buffer | float16Buffer
	Load(i int) float32
	Store(i int, v float32)
	Quantize(v float32) float32
}

// Helper functions for bulk conversion

// Float16FromFloat32 converts src to half precision.
func Float16FromFloat32(src []float32) []float16.Float16 {
	dst := make([]float16.Float16, len(src))
	for i, v := range src {
		dst[i] = float16.Fromfloat32(v)
	}
	return dst
}

// Float32FromFloat16 widens src to float32.
func Float32FromFloat16(src []float16.Float16) []float32 {
	dst := make([]float32, len(src))
	for i, v := range src {
		dst[i] = v.Float32()
	}
	return dst
}

// RoundToFloat16 returns a copy of src with every value rounded to half
// precision and widened back.
func RoundToFloat16(src []float32) []float32 {
	return Float32FromFloat16(Float16FromFloat32(src))
}
