// Package plugin adapts the skip layer norm kernel to a host inference
// engine: it owns the learned gamma/beta parameters, negotiates tensor
// shapes, types and formats, serializes itself, and enqueues the kernel.
package plugin

import (
	"fmt"
	"log/slog"
	"slices"

	guda "github.com/LynnColeArt/guda-skipln"
)

const (
	// Name and Version identify the operator to a host registry.
	Name    = "CustomSkipLayerNormPluginDynamic"
	Version = "1"

	// HiddenAxis is the normalized axis of the [S, B, E, 1, 1] activation
	// layout.
	HiddenAxis = 2

	// NumInputs is the number of input tensors: the activation and the skip.
	NumInputs = 2
)

// TensorFormat is the memory layout of a tensor.
type TensorFormat int

const (
	// FormatLinear is a dense row-major layout, the only one supported.
	FormatLinear TensorFormat = iota
	// FormatCHW32 is a vectorized channel layout.
	FormatCHW32
)

func (f TensorFormat) String() string {
	switch f {
	case FormatLinear:
		return "linear"
	case FormatCHW32:
		return "chw32"
	default:
		return fmt.Sprintf("TensorFormat(%d)", int(f))
	}
}

// Dims is a tensor shape.
type Dims []int

// Volume returns the number of elements of the shape.
func (d Dims) Volume() int {
	if len(d) == 0 {
		return 0
	}
	v := 1
	for _, x := range d {
		v *= x
	}
	return v
}

// TensorDesc describes one input or output tensor.
type TensorDesc struct {
	Dims   Dims
	Type   guda.DataType
	Format TensorFormat
}

// SkipLayerNorm is the plugin value. Gamma and Beta are host copies of the
// learned parameters; Initialize mirrors them into device memory.
type SkipLayerNorm struct {
	Type  guda.DataType
	LD    int
	Gamma []float32
	Beta  []float32

	inputVolume int

	ctx      *guda.Context
	gammaDev guda.DevicePtr
	betaDev  guda.DevicePtr
}

// New validates the parameters and returns an uninitialized plugin.
func New(dt guda.DataType, ld int, gamma, beta []float32) (*SkipLayerNorm, error) {
	p := &SkipLayerNorm{
		Type:  dt,
		LD:    ld,
		Gamma: slices.Clone(gamma),
		Beta:  slices.Clone(beta),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SkipLayerNorm) validate() error {
	const op = "plugin.New"
	switch {
	case !p.Type.Valid():
		return guda.NewPreconditionError(op, guda.ErrUnsupportedType, fmt.Sprintf("data type %v", p.Type))
	case p.LD <= 0:
		return guda.NewPreconditionError(op, guda.ErrInvalidLD, fmt.Sprintf("ld=%d", p.LD))
	case len(p.Gamma) != p.LD:
		return guda.NewPreconditionError(op, guda.ErrShapeMismatch, fmt.Sprintf("gamma has %d values, ld=%d", len(p.Gamma), p.LD))
	case len(p.Beta) != p.LD:
		return guda.NewPreconditionError(op, guda.ErrShapeMismatch, fmt.Sprintf("beta has %d values, ld=%d", len(p.Beta), p.LD))
	}
	return nil
}

// InputVolume returns the element count recorded by Configure or
// deserialization.
func (p *SkipLayerNorm) InputVolume() int {
	return p.inputVolume
}

// Clone returns an uninitialized copy sharing no memory with p.
func (p *SkipLayerNorm) Clone() *SkipLayerNorm {
	return &SkipLayerNorm{
		Type:        p.Type,
		LD:          p.LD,
		Gamma:       slices.Clone(p.Gamma),
		Beta:        slices.Clone(p.Beta),
		inputVolume: p.inputVolume,
	}
}

// NumOutputs returns the number of output tensors.
func (p *SkipLayerNorm) NumOutputs() int {
	return 1
}

// OutputDimensions returns the output shape for the given inputs: exactly
// two inputs of identical shape, normalized along HiddenAxis.
func (p *SkipLayerNorm) OutputDimensions(outputIndex int, inputs []Dims) (Dims, error) {
	const op = "OutputDimensions"
	if outputIndex != 0 {
		return nil, guda.NewInvalidArgError(op, fmt.Sprintf("output index %d out of range", outputIndex))
	}
	if len(inputs) != NumInputs {
		return nil, guda.NewPreconditionError(op, guda.ErrShapeMismatch, fmt.Sprintf("got %d inputs, want %d", len(inputs), NumInputs))
	}
	if len(inputs[0]) <= HiddenAxis {
		return nil, guda.NewPreconditionError(op, guda.ErrShapeMismatch, fmt.Sprintf("input rank %d has no axis %d", len(inputs[0]), HiddenAxis))
	}
	if !slices.Equal(inputs[0], inputs[1]) {
		return nil, guda.NewPreconditionError(op, guda.ErrShapeMismatch, fmt.Sprintf("input %v vs skip %v", inputs[0], inputs[1]))
	}
	return slices.Clone(inputs[0]), nil
}

// OutputDataType returns the output element type, which follows input 0.
func (p *SkipLayerNorm) OutputDataType(index int, inputTypes []guda.DataType) (guda.DataType, error) {
	if index != 0 || len(inputTypes) == 0 {
		return 0, guda.NewInvalidArgError("OutputDataType", fmt.Sprintf("index %d with %d inputs", index, len(inputTypes)))
	}
	if !inputTypes[0].Valid() {
		return 0, guda.NewPreconditionError("OutputDataType", guda.ErrUnsupportedType, inputTypes[0].String())
	}
	return inputTypes[0], nil
}

// SupportsFormat reports whether the tensor at pos of inOut (inputs
// followed by the output) can be accepted. The first input must have the
// plugin's type in linear layout; every later tensor must match the one
// before it.
func (p *SkipLayerNorm) SupportsFormat(pos int, inOut []TensorDesc) bool {
	if pos < 0 || pos >= len(inOut) || len(inOut) != NumInputs+1 {
		return false
	}
	in := inOut[pos]
	if pos == 0 {
		return in.Type == p.Type && in.Format == FormatLinear
	}
	prev := inOut[pos-1]
	return in.Type == prev.Type && in.Format == prev.Format
}

// Configure checks the negotiated inputs against the plugin parameters and
// records the input volume.
func (p *SkipLayerNorm) Configure(in []TensorDesc, out []TensorDesc) error {
	const op = "Configure"
	if len(in) != NumInputs || len(out) != 1 {
		return guda.NewPreconditionError(op, guda.ErrShapeMismatch,
			fmt.Sprintf("got %d inputs and %d outputs", len(in), len(out)))
	}
	if _, err := p.OutputDimensions(0, []Dims{in[0].Dims, in[1].Dims}); err != nil {
		return err
	}
	for i, d := range append(slices.Clone(in), out...) {
		if d.Type != p.Type {
			return guda.NewPreconditionError(op, guda.ErrUnsupportedType,
				fmt.Sprintf("tensor %d is %v, plugin is %v", i, d.Type, p.Type))
		}
		if d.Format != FormatLinear {
			return guda.NewInvalidArgError(op, fmt.Sprintf("tensor %d has unsupported format %v", i, d.Format))
		}
	}
	if err := p.checkHidden(op, in[0].Dims); err != nil {
		return err
	}
	p.inputVolume = in[0].Dims.Volume()
	slog.Debug("skip layer norm configured", "type", p.Type, "ld", p.LD, "volume", p.inputVolume)
	return nil
}

// checkHidden requires d to have a hidden axis of length LD.
func (p *SkipLayerNorm) checkHidden(op string, d Dims) error {
	if len(d) <= HiddenAxis {
		return guda.NewPreconditionError(op, guda.ErrShapeMismatch,
			fmt.Sprintf("input rank %d has no axis %d", len(d), HiddenAxis))
	}
	if d[HiddenAxis] != p.LD {
		return guda.NewPreconditionError(op, guda.ErrShapeMismatch,
			fmt.Sprintf("hidden axis is %d, plugin ld is %d", d[HiddenAxis], p.LD))
	}
	return nil
}

// Initialize copies gamma and beta into device memory of ctx. It is a no-op
// if the plugin is already initialized on ctx.
func (p *SkipLayerNorm) Initialize(ctx *guda.Context) error {
	if p.ctx == ctx && !p.gammaDev.IsNil() {
		return nil
	}
	if p.ctx != nil {
		if err := p.Terminate(); err != nil {
			return err
		}
	}

	bytes := p.LD * 4
	gammaDev, err := ctx.Malloc(bytes)
	if err != nil {
		return err
	}
	betaDev, err := ctx.Malloc(bytes)
	if err != nil {
		ctx.Free(gammaDev)
		return err
	}
	if err := ctx.Memcpy(gammaDev, p.Gamma, bytes, guda.MemcpyHostToDevice); err != nil {
		ctx.Free(gammaDev)
		ctx.Free(betaDev)
		return err
	}
	if err := ctx.Memcpy(betaDev, p.Beta, bytes, guda.MemcpyHostToDevice); err != nil {
		ctx.Free(gammaDev)
		ctx.Free(betaDev)
		return err
	}

	p.ctx, p.gammaDev, p.betaDev = ctx, gammaDev, betaDev
	return nil
}

// Enqueue runs the kernel on stream for the described inputs. The element
// count is taken from the input descriptor; both inputs must share it and
// its hidden axis must equal LD.
func (p *SkipLayerNorm) Enqueue(stream *guda.Stream, in []TensorDesc, inputs, outputs []guda.DevicePtr) error {
	const op = "Enqueue"
	if p.ctx == nil {
		return guda.NewInvalidArgError(op, "plugin not initialized")
	}
	if len(in) != NumInputs || len(inputs) != NumInputs || len(outputs) != 1 {
		return guda.NewPreconditionError(op, guda.ErrShapeMismatch,
			fmt.Sprintf("got %d descriptors, %d inputs, %d outputs", len(in), len(inputs), len(outputs)))
	}
	if !slices.Equal(in[0].Dims, in[1].Dims) {
		return guda.NewPreconditionError(op, guda.ErrShapeMismatch,
			fmt.Sprintf("input %v vs skip %v", in[0].Dims, in[1].Dims))
	}
	if err := p.checkHidden(op, in[0].Dims); err != nil {
		return err
	}
	n := in[0].Dims.Volume()
	return p.ctx.SkipLayerNorm(stream, p.Type, p.LD, n,
		inputs[0], inputs[1], p.gammaDev, p.betaDev, outputs[0])
}

// Terminate releases the device copies of gamma and beta.
func (p *SkipLayerNorm) Terminate() error {
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Free(p.gammaDev)
	if e := p.ctx.Free(p.betaDev); err == nil {
		err = e
	}
	p.ctx, p.gammaDev, p.betaDev = nil, guda.DevicePtr{}, guda.DevicePtr{}
	return err
}
