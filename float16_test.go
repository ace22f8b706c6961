package guda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestDataType(t *testing.T) {
	tests := []struct {
		in    string
		want  DataType
		size  int
		valid bool
	}{
		{"float32", Float32, 4, true},
		{"fp32", Float32, 4, true},
		{"float16", Float16, 2, true},
		{"half", Float16, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dt, err := ParseDataType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dt)
			assert.Equal(t, tt.size, dt.Size())
			assert.True(t, dt.Valid())
		})
	}

	_, err := ParseDataType("int8")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	bad := DataType(5)
	assert.False(t, bad.Valid())
	assert.Zero(t, bad.Size())
	assert.Equal(t, "DataType(5)", bad.String())
}

func TestFloat16Buffer(t *testing.T) {
	buf := float16Buffer(make([]float16.Float16, 4))
	buf.Store(0, 1.5)
	buf.Store(1, 0.1)
	buf.Store(2, 65504)

	assert.Equal(t, float32(1.5), buf.Load(0))
	assert.InDelta(t, 0.1, buf.Load(1), 1e-4)
	assert.NotEqual(t, float32(0.1), buf.Load(1), "0.1 is not representable in half")
	assert.Equal(t, float32(65504), buf.Load(2))

	// Quantize matches a store followed by a load.
	for _, v := range []float32{0.1, 3.14159, -7.77, 1e-3} {
		buf.Store(3, v)
		assert.Equal(t, buf.Load(3), buf.Quantize(v), "quantize(%v)", v)
	}

	f32 := float32Buffer([]float32{0})
	assert.Equal(t, float32(0.1), f32.Quantize(0.1))
}

func TestFloat16Conversions(t *testing.T) {
	src := []float32{0, 1, -2, 0.5, 1024}
	assert.Equal(t, src, Float32FromFloat16(Float16FromFloat32(src)), "exact halves survive a round trip")

	rounded := RoundToFloat16([]float32{1.0001})
	assert.Equal(t, float32(1), rounded[0])
}
