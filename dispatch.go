package guda

import (
	"fmt"
	"log/slog"
)

// Shape identifies how a block maps its threads onto a row.
type Shape int

const (
	// ShapeSinglePass gives every element of the row its own thread.
	ShapeSinglePass Shape = iota
	// ShapeStrided loops each thread over the row at a stride of the block size.
	ShapeStrided
)

func (s Shape) String() string {
	switch s {
	case ShapeSinglePass:
		return "single-pass"
	case ShapeStrided:
		return "strided"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// LaunchConfig is the execution shape chosen for a row width.
type LaunchConfig struct {
	BlockSize int
	Shape     Shape
}

// SelectLaunch picks the block width and shape for rows of ld elements:
//
//	ld <= 32          32 threads, single pass
//	32 < ld <= 128   128 threads, single pass
//	ld == 384        384 threads, single pass
//	otherwise        256 threads, strided
func SelectLaunch(ld int) LaunchConfig {
	switch {
	case ld <= SkipLayerNormSmallBlock:
		return LaunchConfig{BlockSize: SkipLayerNormSmallBlock, Shape: ShapeSinglePass}
	case ld <= SkipLayerNormMediumBlock:
		return LaunchConfig{BlockSize: SkipLayerNormMediumBlock, Shape: ShapeSinglePass}
	case ld == SkipLayerNormHiddenBlock:
		return LaunchConfig{BlockSize: SkipLayerNormHiddenBlock, Shape: ShapeSinglePass}
	default:
		return LaunchConfig{BlockSize: SkipLayerNormGenericBlock, Shape: ShapeStrided}
	}
}

// CheckSkipLayerNorm validates the scalar preconditions of a skip layer norm
// call: a supported type, positive ld and n, and n an exact multiple of ld.
func CheckSkipLayerNorm(dt DataType, ld, n int) error {
	const op = "SkipLayerNorm"
	switch {
	case !dt.Valid():
		return NewPreconditionError(op, ErrUnsupportedType, fmt.Sprintf("data type %v", dt))
	case ld <= 0:
		return NewPreconditionError(op, ErrInvalidLD, fmt.Sprintf("ld=%d", ld))
	case n <= 0:
		return NewPreconditionError(op, ErrInvalidVolume, fmt.Sprintf("n=%d", n))
	case n%ld != 0:
		return NewPreconditionError(op, ErrVolumeMismatch, fmt.Sprintf("n=%d ld=%d", n, ld))
	}
	return nil
}

func checkBuffer(name string, p DevicePtr, need int) error {
	if p.IsNil() {
		return NewPreconditionError("SkipLayerNorm", ErrBufferTooSmall, name+" is nil")
	}
	if p.Size() < need {
		return NewPreconditionError("SkipLayerNorm", ErrBufferTooSmall,
			fmt.Sprintf("%s holds %d bytes, need %d", name, p.Size(), need))
	}
	return nil
}

// SkipLayerNorm enqueues output = LayerNorm(input + skip) * gamma + beta on
// stream, normalizing each of the n/ld rows independently. input, skip and
// output hold n elements of dt; gamma and beta hold ld float32 values.
//
// Precondition violations are rejected before anything is enqueued. A launch
// fault is returned immediately. Execution faults surface on the stream, so
// output must not be read before stream.Synchronize returns nil.
func (ctx *Context) SkipLayerNorm(stream *Stream, dt DataType, ld, n int,
	input, skip, gamma, beta, output DevicePtr) error {
	if err := CheckSkipLayerNorm(dt, ld, n); err != nil {
		return err
	}
	elems := n * dt.Size()
	for _, b := range []struct {
		name string
		ptr  DevicePtr
		need int
	}{
		{"input", input, elems},
		{"skip", skip, elems},
		{"output", output, elems},
		{"gamma", gamma, ld * 4},
		{"beta", beta, ld * 4},
	} {
		if err := checkBuffer(b.name, b.ptr, b.need); err != nil {
			return err
		}
	}
	if stream == nil {
		stream = ctx.defaultStream
	}

	cfg := SelectLaunch(ld)
	gammaF, betaF := gamma.Float32()[:ld], beta.Float32()[:ld]

	var kernel BlockKernelFunc
	switch dt {
	case Float32:
		kernel = newSkipLayerNormKernel(cfg.Shape, skipLayerNormArgs[float32Buffer]{
			ld:     ld,
			input:  input.Float32()[:n],
			skip:   skip.Float32()[:n],
			gamma:  gammaF,
			beta:   betaF,
			output: output.Float32()[:n],
		})
	case Float16:
		kernel = newSkipLayerNormKernel(cfg.Shape, skipLayerNormArgs[float16Buffer]{
			ld:     ld,
			input:  input.Float16()[:n],
			skip:   skip.Float16()[:n],
			gamma:  gammaF,
			beta:   betaF,
			output: output.Float16()[:n],
		})
	}

	slog.Debug("skip layer norm launch", "type", dt, "ld", ld, "rows", n/ld,
		"block", cfg.BlockSize, "shape", cfg.Shape, "stream", stream.ID())

	grid := Dim3{X: n / ld, Y: 1, Z: 1}
	block := Dim3{X: cfg.BlockSize, Y: 1, Z: 1}
	if err := ctx.LaunchBlocksStream(kernel, grid, block, stream); err != nil {
		return err
	}
	// Poll the queue's error state right after enqueueing.
	return stream.Err()
}

// SkipLayerNorm runs the kernel on the default context. A nil stream selects
// the default stream.
func SkipLayerNorm(stream *Stream, dt DataType, ld, n int,
	input, skip, gamma, beta, output DevicePtr) error {
	return defaultContext.SkipLayerNorm(stream, dt, ld, n, input, skip, gamma, beta, output)
}
