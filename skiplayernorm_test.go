package guda

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dataTypes = []DataType{Float32, Float16}

func TestSkipLayerNormExample(t *testing.T) {
	c := SkipLayerNormCase{
		LD:    4,
		Input: []float32{1, 2, 3, 4},
		Skip:  []float32{0, 0, 0, 0},
		Gamma: Fill(4, 1),
		Beta:  Fill(4, 0),
	}
	want := []float32{-1.342, -0.447, 0.447, 1.342}

	for _, dt := range dataTypes {
		t.Run(dt.String(), func(t *testing.T) {
			got := runSkipLayerNorm(t, dt, c)
			assert.InDeltaSlice(t, want, got, 2e-3)
		})
	}
}

func TestSkipLayerNormMatchesReference(t *testing.T) {
	lds := []int{1, 7, 16, 32, 33, 100, 128, 129, 256, 384, 385, 512, 768, 1024, 1500}
	const rows = 3

	for _, dt := range dataTypes {
		for i, ld := range lds {
			t.Run(fmt.Sprintf("%v/ld=%d", dt, ld), func(t *testing.T) {
				c := GenerateSkipLayerNormCase(ld, rows, uint64(1000+i))
				got := runSkipLayerNorm(t, dt, c)
				want := referenceFor(dt, c)

				result := VerifyFloat32Array(want, got, ToleranceFor(dt))
				assert.True(t, result.IsAcceptable(), "ld=%d shape=%v\n%s", ld, SelectLaunch(ld).Shape, result)
			})
		}
	}
}

func TestSkipLayerNormRowIndependence(t *testing.T) {
	perm := []int{4, 0, 5, 2, 1, 3}

	for _, ld := range []int{24, 64, 300} {
		t.Run(fmt.Sprintf("ld=%d", ld), func(t *testing.T) {
			c := GenerateSkipLayerNormCase(ld, len(perm), uint64(ld))
			out := runSkipLayerNorm(t, Float32, c)

			permuted := c
			permuted.Input = make([]float32, len(c.Input))
			permuted.Skip = make([]float32, len(c.Skip))
			for dst, src := range perm {
				copy(permuted.Input[dst*ld:(dst+1)*ld], c.Input[src*ld:(src+1)*ld])
				copy(permuted.Skip[dst*ld:(dst+1)*ld], c.Skip[src*ld:(src+1)*ld])
			}
			permutedOut := runSkipLayerNorm(t, Float32, permuted)

			for dst, src := range perm {
				want := out[src*ld : (src+1)*ld]
				got := permutedOut[dst*ld : (dst+1)*ld]
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("row %d (from %d) differs (-want +got):\n%s", dst, src, diff)
				}
			}
		})
	}
}

func TestSkipLayerNormEpsilonGuard(t *testing.T) {
	for _, dt := range dataTypes {
		for _, ld := range []int{8, 128, 384, 1000} {
			t.Run(fmt.Sprintf("%v/ld=%d", dt, ld), func(t *testing.T) {
				c := SkipLayerNormCase{
					LD:    ld,
					Input: Fill(2*ld, 3.7),
					Skip:  Fill(2*ld, 0.25),
					Gamma: GenerateFloat32Range(ld, 7, 0.5, 1.5),
					Beta:  GenerateFloat32Range(ld, 8, -0.5, 0.5),
				}
				got := runSkipLayerNorm(t, dt, c)
				for i, v := range got {
					require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "output[%d] = %v", i, v)
					// Zero variance leaves only beta.
					assert.InDelta(t, c.Beta[i%ld], v, 1e-2, "output[%d]", i)
				}
			})
		}
	}
}

// launchShape runs the float32 kernel with an explicit shape and block width
// on host buffers.
func launchShape(t *testing.T, shape Shape, blockSize int, c SkipLayerNormCase) []float32 {
	t.Helper()
	ctx := NewContext()
	t.Cleanup(func() { ctx.Destroy() })

	out := make([]float32, len(c.Input))
	kernel := newSkipLayerNormKernel(shape, skipLayerNormArgs[float32Buffer]{
		ld:     c.LD,
		input:  c.Input,
		skip:   c.Skip,
		gamma:  c.Gamma,
		beta:   c.Beta,
		output: out,
	})
	stream := ctx.CreateStream()
	require.NoError(t, ctx.LaunchBlocksStream(kernel, Dim3{X: c.Rows()}, Dim3{X: blockSize}, stream))
	require.NoError(t, stream.Synchronize())
	return out
}

func TestSkipLayerNormShapesAgree(t *testing.T) {
	c := GenerateSkipLayerNormCase(128, 4, 99)
	single := launchShape(t, ShapeSinglePass, 128, c)

	for _, block := range []int{32, 96, 256} {
		t.Run(fmt.Sprintf("strided/block=%d", block), func(t *testing.T) {
			strided := launchShape(t, ShapeStrided, block, c)
			if diff := cmp.Diff(single, strided, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
				t.Errorf("strided shape differs from single pass (-single +strided):\n%s", diff)
			}
		})
	}
}

func TestSkipLayerNormNormalizedMoments(t *testing.T) {
	// With unit gain and zero bias every output row has mean 0 and
	// variance var/(var+eps), whichever shape produced it.
	for _, ld := range []int{128, 512} {
		t.Run(fmt.Sprintf("ld=%d/%v", ld, SelectLaunch(ld).Shape), func(t *testing.T) {
			c := GenerateSkipLayerNormCase(ld, 2, 5)
			c.Gamma, c.Beta = Fill(ld, 1), Fill(ld, 0)
			got := runSkipLayerNorm(t, Float32, c)

			row := make([]float64, ld)
			for r := 0; r < c.Rows(); r++ {
				for i := range row {
					row[i] = float64(got[r*ld+i])
				}
				mean, variance := Reference{}.RowStats(row)
				assert.InDelta(t, 0, mean, 1e-5, "row %d mean", r)
				assert.InDelta(t, 1, variance, 1e-3, "row %d variance", r)
			}
		})
	}
}

func TestSkipLayerNormPreconditions(t *testing.T) {
	ld, n := 4, 12
	in := MallocOrFail(t, n*4)
	skip := MallocOrFail(t, n*4)
	out := MallocOrFail(t, n*4)
	gamma := MallocOrFail(t, ld*4)
	beta := MallocOrFail(t, ld*4)
	short := MallocOrFail(t, (ld-1)*4)

	tests := []struct {
		name     string
		dt       DataType
		ld, n    int
		gamma    DevicePtr
		output   DevicePtr
		sentinel error
	}{
		{"volume not multiple of ld", Float32, ld, 10, gamma, out, ErrVolumeMismatch},
		{"zero ld", Float32, 0, n, gamma, out, ErrInvalidLD},
		{"negative ld", Float32, -4, n, gamma, out, ErrInvalidLD},
		{"zero volume", Float32, ld, 0, gamma, out, ErrInvalidVolume},
		{"unsupported type", DataType(7), ld, n, gamma, out, ErrUnsupportedType},
		{"short gamma", Float32, ld, n, short, out, ErrBufferTooSmall},
		{"nil output", Float32, ld, n, gamma, DevicePtr{}, ErrBufferTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SkipLayerNorm(nil, tt.dt, tt.ld, tt.n, in, skip, tt.gamma, beta, tt.output)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.True(t, IsInvalidArgError(err), "want invalid argument, got %v", err)
		})
	}
}

func TestSkipLayerNormVolumeRejectedBeforeEnqueue(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	const ld, n = 4, 10
	alloc := func(bytes int) DevicePtr {
		p, err := ctx.Malloc(bytes)
		require.NoError(t, err)
		return p
	}
	in, skip, out := alloc(n*4), alloc(n*4), alloc(n*4)
	gamma, beta := alloc(ld*4), alloc(ld*4)
	for i := range out.Float32() {
		out.Float32()[i] = 42
	}

	stream := ctx.CreateStream()
	err := ctx.SkipLayerNorm(stream, Float32, ld, n, in, skip, gamma, beta, out)
	require.ErrorIs(t, err, ErrVolumeMismatch)

	require.NoError(t, stream.Synchronize())
	assert.Equal(t, Fill(n, 42), out.Float32()[:n], "output must be untouched")
}

func TestSkipLayerNormDestroyedStream(t *testing.T) {
	ctx := NewContext()
	c := GenerateSkipLayerNormCase(16, 2, 3)
	n := len(c.Input)

	alloc := func(host []float32) DevicePtr {
		p, err := ctx.Malloc(len(host) * 4)
		require.NoError(t, err)
		copy(p.Float32(), host)
		return p
	}
	in, skip := alloc(c.Input), alloc(c.Skip)
	gamma, beta := alloc(c.Gamma), alloc(c.Beta)
	out := alloc(make([]float32, n))

	stream := ctx.CreateStream()
	require.NoError(t, ctx.Destroy())

	err := ctx.SkipLayerNorm(stream, Float32, c.LD, n, in, skip, gamma, beta, out)
	assert.True(t, IsLaunchError(err), "want launch error, got %v", err)
}

func BenchmarkSkipLayerNorm(b *testing.B) {
	for _, dt := range dataTypes {
		for _, ld := range []int{128, 384, 768} {
			b.Run(fmt.Sprintf("%v/ld=%d", dt, ld), func(b *testing.B) {
				const rows = 256
				c := GenerateSkipLayerNormCase(ld, rows, 1)
				n := ld * rows

				var in, skip DevicePtr
				if dt == Float16 {
					in, skip = deviceFloat16(b, c.Input), deviceFloat16(b, c.Skip)
				} else {
					in, skip = deviceFloat32(b, c.Input), deviceFloat32(b, c.Skip)
				}
				gamma, beta := deviceFloat32(b, c.Gamma), deviceFloat32(b, c.Beta)
				out := MallocOrFail(b, n*dt.Size())
				stream := DefaultStream()

				b.SetBytes(int64(3 * n * dt.Size()))
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if err := SkipLayerNorm(stream, dt, ld, n, in, skip, gamma, beta, out); err != nil {
						b.Fatal(err)
					}
					if err := stream.Synchronize(); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
