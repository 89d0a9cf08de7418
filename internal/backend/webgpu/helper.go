// Package webgpu runs the separable convolution forward pass on a WebGPU
// device.
//
// Helper implements the layer's accelerated-helper contract: it accepts
// float32 row-major operands and declines everything else, so the caller
// falls back to the CPU primitive. On Windows the device is driven through
// go-webgpu; elsewhere through the openfluke wgpu bindings.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/born-ml/sepconv/internal/activation"
	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/tensor"
)

// Helper computes pre-activations and ReLU/identity activations on the GPU.
// It is safe for concurrent use; device work is serialized.
type Helper struct {
	mu      sync.Mutex
	dev     *device
	lastErr error
}

// New opens the default adapter and device.
// Returns an error if WebGPU is not available or initialization fails.
func New() (helper *Helper, err error) {
	// Recover from panic if the native library is not found.
	defer func() {
		if r := recover(); r != nil {
			helper = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	dev, err := openDevice()
	if err != nil {
		return nil, err
	}
	return &Helper{dev: dev}, nil
}

// IsAvailable reports whether a WebGPU device can be opened on this system.
func IsAvailable() bool {
	h, err := New()
	if err != nil {
		return false
	}
	h.Release()
	return true
}

// Name implements the helper contract.
func (h *Helper) Name() string {
	return "webgpu"
}

// AdapterName returns the name the driver reports for the adapter.
func (h *Helper) AdapterName() string {
	return h.dev.adapterName
}

// LastError returns the error of the most recent failed dispatch, or nil.
func (h *Helper) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Release frees the device. The helper declines every call afterwards.
func (h *Helper) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev != nil {
		h.dev.release()
		h.dev = nil
	}
}

// PreOutput returns depthwise, pointwise and bias stages computed on the
// device. It declines non-float32 operands, non-contiguous tensors and
// tensors too large for a single dispatch.
func (h *Helper) PreOutput(input, depthW, pointW, bias *tensor.RawTensor, g conv.Geometry) (*tensor.RawTensor, bool) {
	if input.DType() != tensor.Float32 || depthW.DType() != tensor.Float32 {
		return nil, false
	}
	operands := []*tensor.RawTensor{input, depthW, bias}
	if pointW != nil {
		operands = append(operands, pointW)
	}
	for _, t := range operands {
		if t.DType() != tensor.Float32 || t.Order() != tensor.C || !t.IsContiguous() {
			return nil, false
		}
	}

	n, c, hgt, wid := input.Size(0), input.Size(1), input.Size(2), input.Size(3)
	m := depthW.Size(0)
	cout := c * m
	var wp []float32
	if pointW != nil {
		cout = pointW.Size(0)
		wp = pointW.AsFloat32()
	}
	if bias.NumElements() != cout {
		return nil, false
	}
	plane := g.OutH * g.OutW
	if input.NumElements() > maxElements || n*c*m*plane > maxElements || n*cout*plane > maxElements {
		return nil, false
	}

	job := newSconvJob(input.AsFloat32(), depthW.AsFloat32(), wp, bias.AsFloat32(), n, c, hgt, wid, m, cout, g)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return nil, false
	}
	data, err := h.dev.sconv(job)
	if err != nil {
		h.lastErr = err
		return nil, false
	}
	out, err := tensor.FromFloat32(data, tensor.Shape{n, cout, g.OutH, g.OutW})
	if err != nil {
		h.lastErr = err
		return nil, false
	}
	return out, true
}

// Activate runs ReLU on the device and returns a copy for identity. Every
// other activation is declined.
func (h *Helper) Activate(z *tensor.RawTensor, fn activation.Func) (*tensor.RawTensor, bool) {
	if z.DType() != tensor.Float32 || z.Order() != tensor.C || !z.IsContiguous() {
		return nil, false
	}
	switch fn.String() {
	case "identity":
		return z.Dup(), true
	case "relu":
	default:
		return nil, false
	}
	if z.NumElements() > maxElements {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return nil, false
	}
	data, err := h.dev.relu(z.AsFloat32())
	if err != nil {
		h.lastErr = err
		return nil, false
	}
	out, err := tensor.FromFloat32(data, z.Shape())
	if err != nil {
		h.lastErr = err
		return nil, false
	}
	return out, true
}
