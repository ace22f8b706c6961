package guda

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BlockKernelFunc is a cooperative kernel executed once per thread block.
// The block's threads are driven through Block.Threads phases, and the block
// owns shared memory for its lifetime.
type BlockKernelFunc func(blk *Block)

// Block is the CPU rendition of a CUDA thread block. Every call to Threads
// runs one phase: all threads of the block execute the phase body to
// completion before Threads returns, which gives __syncthreads semantics
// between consecutive phases.
type Block struct {
	Idx     Dim3 // Block index within the grid
	Dim     Dim3 // Threads per block
	GridDim Dim3 // Blocks in the grid

	sharedPairs []Pair
	sharedF32   []float32
}

func newBlock(grid, block Dim3) *Block {
	return &Block{
		Dim:     block,
		GridDim: grid,
	}
}

// Size returns the number of threads in the block.
func (b *Block) Size() int {
	return b.Dim.Size()
}

// Linear returns the linear index of the block within its grid.
func (b *Block) Linear() int {
	g := b.GridDim.normalized()
	return (b.Idx.Z*g.Y+b.Idx.Y)*g.X + b.Idx.X
}

// Threads runs fn for every thread index of the block.
func (b *Block) Threads(fn func(t int)) {
	n := b.Size()
	for t := 0; t < n; t++ {
		fn(t)
	}
}

// SharedPairs returns block shared memory holding one Pair per thread.
// The contents are undefined on entry to a block.
func (b *Block) SharedPairs() []Pair {
	n := b.Size()
	if cap(b.sharedPairs) < n {
		b.sharedPairs = make([]Pair, n)
	}
	return b.sharedPairs[:n]
}

// SharedFloat32 returns n float32 values of block shared memory.
// The contents are undefined on entry to a block.
func (b *Block) SharedFloat32(n int) []float32 {
	if cap(b.sharedF32) < n {
		b.sharedF32 = make([]float32, n)
	}
	return b.sharedF32[:n]
}

// validateLaunch rejects grid and block shapes the runtime cannot execute.
func validateLaunch(op string, grid, block Dim3) error {
	grid, block = grid.normalized(), block.normalized()
	if grid.X < 0 || grid.Y < 0 || grid.Z < 0 {
		return NewLaunchError(op, fmt.Sprintf("invalid grid %+v", grid), nil)
	}
	if block.X <= 0 || block.Y <= 0 || block.Z <= 0 {
		return NewLaunchError(op, fmt.Sprintf("invalid block %+v", block), nil)
	}
	if block.Size() > MaxThreadsPerBlock {
		return NewLaunchError(op, fmt.Sprintf("block of %d threads exceeds limit %d", block.Size(), MaxThreadsPerBlock), nil)
	}
	return nil
}

// launchInternal implements the per-thread kernel execution path. A nil
// stream means the default stream.
func (ctx *Context) launchInternal(
	kernelFunc func(ThreadID, ...interface{}),
	grid, block Dim3,
	stream *Stream,
	args ...interface{},
) error {
	if stream == nil {
		stream = ctx.defaultStream
	}
	if err := validateLaunch("Launch", grid, block); err != nil {
		stream.fail(err)
		return err
	}
	grid, block = grid.normalized(), block.normalized()
	blockSize := block.Size()

	return stream.Submit(func() error {
		return runGrid(grid, func() func(blockID int) {
			return func(blockID int) {
				blockIdx := linearTo3D(blockID, grid)
				// Threads of a block run sequentially on one goroutine
				// to maximize cache reuse.
				for threadID := 0; threadID < blockSize; threadID++ {
					kernelFunc(ThreadID{
						BlockIdx:  blockIdx,
						ThreadIdx: linearTo3D(threadID, block),
						BlockDim:  block,
						GridDim:   grid,
					}, args...)
				}
			}
		})
	})
}

// LaunchBlocksStream enqueues a cooperative block kernel on stream, or on
// the default stream when stream is nil. A launch fault is returned and
// recorded on the stream; execution faults surface through the stream's
// error state.
func (ctx *Context) LaunchBlocksStream(fn BlockKernelFunc, grid, block Dim3, stream *Stream) error {
	if stream == nil {
		stream = ctx.defaultStream
	}
	if err := validateLaunch("LaunchBlocks", grid, block); err != nil {
		stream.fail(err)
		return err
	}
	grid, block = grid.normalized(), block.normalized()

	return stream.Submit(func() error {
		return runGrid(grid, func() func(blockID int) {
			// One Block per worker goroutine; shared memory is reused
			// across the blocks that worker executes.
			blk := newBlock(grid, block)
			return func(blockID int) {
				blk.Idx = linearTo3D(blockID, grid)
				fn(blk)
			}
		})
	})
}

// runGrid distributes the blocks of grid over up to NumCPU goroutines.
// newWorker is called once per goroutine and returns the per-block body.
// A panic inside a block is converted into an execution fault.
func runGrid(grid Dim3, newWorker func() func(blockID int)) error {
	gridSize := grid.Size()
	if gridSize == 0 {
		return nil
	}

	numWorkers := runtime.NumCPU()
	if gridSize < numWorkers {
		numWorkers = gridSize
	}
	// Contiguous block ranges keep neighbouring rows on the same core.
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	var g errgroup.Group
	for start := 0; start < gridSize; start += blocksPerWorker {
		end := min(start+blocksPerWorker, gridSize)
		g.Go(func() (err error) {
			blockID := start
			defer func() {
				if r := recover(); r != nil {
					err = NewExecutionError("Kernel",
						fmt.Sprintf("block %d faulted", blockID),
						fmt.Errorf("%v", r))
				}
			}()
			run := newWorker()
			for ; blockID < end; blockID++ {
				run(blockID)
			}
			return nil
		})
	}
	return g.Wait()
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int, dim Dim3) Dim3 {
	dim = dim.normalized()
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return Dim3{X: x, Y: y, Z: z}
}
