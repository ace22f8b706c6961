package guda

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

// MallocOrFail allocates device memory and fails the test if unsuccessful
func MallocOrFail(t testing.TB, size int) DevicePtr {
	t.Helper()
	ptr, err := Malloc(size)
	if err != nil {
		t.Fatalf("Failed to allocate %d bytes: %v", size, err)
	}
	t.Cleanup(func() { Free(ptr) })
	return ptr
}

// deviceFloat32 copies host values into fresh device memory.
func deviceFloat32(t testing.TB, host []float32) DevicePtr {
	t.Helper()
	d := MallocOrFail(t, len(host)*4)
	require.NoError(t, Memcpy(d, host, len(host)*4, MemcpyHostToDevice))
	return d
}

// deviceFloat16 rounds host values to half and copies them to the device.
func deviceFloat16(t testing.TB, host []float32) DevicePtr {
	t.Helper()
	h := Float16FromFloat32(host)
	d := MallocOrFail(t, len(h)*2)
	require.NoError(t, Memcpy(d, h, len(h)*2, MemcpyHostToDevice))
	return d
}

// runSkipLayerNorm runs the kernel on the default context for a host case
// and returns the output widened to float32.
func runSkipLayerNorm(t testing.TB, dt DataType, c SkipLayerNormCase) []float32 {
	t.Helper()
	n := len(c.Input)

	var input, skip DevicePtr
	switch dt {
	case Float16:
		input, skip = deviceFloat16(t, c.Input), deviceFloat16(t, c.Skip)
	default:
		input, skip = deviceFloat32(t, c.Input), deviceFloat32(t, c.Skip)
	}
	gamma, beta := deviceFloat32(t, c.Gamma), deviceFloat32(t, c.Beta)
	output := MallocOrFail(t, n*dt.Size())

	stream := DefaultStream()
	require.NoError(t, SkipLayerNorm(stream, dt, c.LD, n, input, skip, gamma, beta, output))
	require.NoError(t, stream.Synchronize())

	if dt == Float16 {
		return Float32FromFloat16(append([]float16.Float16(nil), output.Float16()[:n]...))
	}
	return append([]float32(nil), output.Float32()[:n]...)
}

// referenceFor returns the float64 reference for c as seen by type dt: half
// inputs are rounded first, so the comparison isolates the kernel's error.
func referenceFor(dt DataType, c SkipLayerNormCase) []float32 {
	input, skip := c.Input, c.Skip
	if dt == Float16 {
		input, skip = RoundToFloat16(input), RoundToFloat16(skip)
	}
	return Reference{}.SkipLayerNorm(c.LD, input, skip, c.Gamma, c.Beta)
}
