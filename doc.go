// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package guda provides a CUDA-compatible API for CPU execution together with
// a fused skip + layer normalization kernel.
//
// The runtime keeps CUDA's execution model: device memory is allocated from a
// pool, kernels are launched as grids of thread blocks, and launches are
// enqueued on ordered streams that complete asynchronously. Cooperative block
// kernels run their threads in phases, with an implicit barrier between
// phases, and own block-local shared memory.
//
// SkipLayerNorm normalizes each row of input+skip over its trailing
// dimension in a single traversal, accumulating (sum, sum of squares) in
// float32 for both float32 and half-precision tensors. The block width and
// thread mapping are chosen from the row width alone; see SelectLaunch.
//
// Example usage:
//
//	ctx := guda.NewContext()
//	defer ctx.Destroy()
//
//	d_in, _ := ctx.Malloc(n * 4) // n float32s
//	d_skip, _ := ctx.Malloc(n * 4)
//	d_out, _ := ctx.Malloc(n * 4)
//	d_gamma, _ := ctx.Malloc(ld * 4)
//	d_beta, _ := ctx.Malloc(ld * 4)
//
//	stream := ctx.CreateStream()
//	err := ctx.SkipLayerNorm(stream, guda.Float32, ld, n, d_in, d_skip, d_gamma, d_beta, d_out)
//	if err == nil {
//		err = stream.Synchronize()
//	}
package guda
