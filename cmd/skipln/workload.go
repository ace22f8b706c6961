package main

import (
	"fmt"
	"math"

	guda "github.com/LynnColeArt/guda-skipln"
)

// workload is one generated skip layer norm problem resident in device
// memory of the default context.
type workload struct {
	dt   guda.DataType
	c    guda.SkipLayerNormCase
	bufs []guda.DevicePtr

	input, skip, gamma, beta, output guda.DevicePtr
}

func newWorkload(dt guda.DataType, ld, rows int, seed uint64) (*workload, error) {
	if ld <= 0 || rows <= 0 {
		return nil, fmt.Errorf("ld and rows must be positive, got ld=%d rows=%d", ld, rows)
	}
	w := &workload{dt: dt, c: guda.GenerateSkipLayerNormCase(ld, rows, seed)}

	var err error
	if w.input, err = w.upload(w.c.Input, dt); err != nil {
		return nil, err
	}
	if w.skip, err = w.upload(w.c.Skip, dt); err != nil {
		return nil, err
	}
	if w.gamma, err = w.upload(w.c.Gamma, guda.Float32); err != nil {
		return nil, err
	}
	if w.beta, err = w.upload(w.c.Beta, guda.Float32); err != nil {
		return nil, err
	}
	if w.output, err = w.alloc(w.n() * dt.Size()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *workload) alloc(bytes int) (guda.DevicePtr, error) {
	p, err := guda.Malloc(bytes)
	if err != nil {
		w.free()
		return guda.DevicePtr{}, err
	}
	w.bufs = append(w.bufs, p)
	return p, nil
}

func (w *workload) upload(host []float32, dt guda.DataType) (guda.DevicePtr, error) {
	bytes := len(host) * dt.Size()
	p, err := w.alloc(bytes)
	if err != nil {
		return p, err
	}
	if dt == guda.Float16 {
		err = guda.Memcpy(p, guda.Float16FromFloat32(host), bytes, guda.MemcpyHostToDevice)
	} else {
		err = guda.Memcpy(p, host, bytes, guda.MemcpyHostToDevice)
	}
	if err != nil {
		w.free()
	}
	return p, err
}

func (w *workload) n() int {
	return len(w.c.Input)
}

// bytesMoved is the memory traffic of one launch: input, skip and output
// rows plus the shared parameters.
func (w *workload) bytesMoved() int64 {
	return int64(3*w.n()*w.dt.Size() + 2*w.c.LD*4)
}

func (w *workload) launch(stream *guda.Stream) error {
	return guda.SkipLayerNorm(stream, w.dt, w.c.LD, w.n(),
		w.input, w.skip, w.gamma, w.beta, w.output)
}

// result returns a host copy of the output widened to float32.
func (w *workload) result() []float32 {
	if w.dt == guda.Float16 {
		return guda.Float32FromFloat16(w.output.Float16()[:w.n()])
	}
	return append([]float32(nil), w.output.Float32()[:w.n()]...)
}

// verify compares the output with the float64 reference under tol.
func (w *workload) verify(tol guda.ToleranceConfig) (guda.VerificationResult, error) {
	got := w.result()
	for i, v := range got {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return guda.VerificationResult{}, guda.NewNumericalError("verify",
				fmt.Sprintf("non-finite output %v at index %d", v, i), i)
		}
	}

	input, skip := w.c.Input, w.c.Skip
	if w.dt == guda.Float16 {
		input, skip = guda.RoundToFloat16(input), guda.RoundToFloat16(skip)
	}
	want := guda.Reference{}.SkipLayerNorm(w.c.LD, input, skip, w.c.Gamma, w.c.Beta)
	return guda.VerifyFloat32Array(want, got, tol), nil
}

func (w *workload) free() {
	for _, p := range w.bufs {
		_ = guda.Free(p)
	}
	w.bufs = nil
}
