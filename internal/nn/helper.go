package nn

import (
	"github.com/born-ml/sepconv/internal/activation"
	"github.com/born-ml/sepconv/internal/backend/cpu"
	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/tensor"
)

// ConvHelper is an alternative implementation of the layer's forward kernels.
//
// Either method may decline by returning ok == false, in which case the layer
// falls back to the next helper and finally to the generic primitive. A
// helper that accepts must produce a result numerically equivalent to the
// primitive's.
type ConvHelper interface {
	// Name identifies the helper in logs.
	Name() string
	// PreOutput returns the pre-activation output [N, COut, OH, OW] for an
	// already validated input. pointW is nil for depthwise-only layers; bias
	// is always populated.
	PreOutput(input, depthW, pointW, bias *tensor.RawTensor, g conv.Geometry) (*tensor.RawTensor, bool)
	// Activate returns fn applied to z without modifying z.
	Activate(z *tensor.RawTensor, fn activation.Func) (*tensor.RawTensor, bool)
}

// allocFunc allocates the output tensor of the generic primitive.
type allocFunc func(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error)

// primitiveHelper runs the CPU separable convolution primitive. It never
// declines valid operands, so it terminates every helper chain.
type primitiveHelper struct {
	backend *cpu.CPUBackend
}

func (p primitiveHelper) Name() string {
	return "primitive"
}

func (p primitiveHelper) PreOutput(input, depthW, pointW, bias *tensor.RawTensor, g conv.Geometry) (*tensor.RawTensor, bool) {
	out, err := p.compute(input, depthW, pointW, bias, g, tensor.NewRaw)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (p primitiveHelper) Activate(z *tensor.RawTensor, fn activation.Func) (*tensor.RawTensor, bool) {
	return fn.Forward(z), true
}

// compute writes the primitive's result into a tensor obtained from alloc.
func (p primitiveHelper) compute(input, depthW, pointW, bias *tensor.RawTensor, g conv.Geometry, alloc allocFunc) (*tensor.RawTensor, error) {
	nOut := depthW.Size(0) * depthW.Size(1)
	if pointW != nil {
		nOut = pointW.Size(0)
	}
	out, err := alloc(tensor.Shape{input.Size(0), nOut, g.OutH, g.OutW}, input.DType())
	if err != nil {
		return nil, err
	}
	if err := p.backend.SConv2D(input, depthW, pointW, bias, out, g.Args()); err != nil {
		return nil, err
	}
	return out, nil
}
