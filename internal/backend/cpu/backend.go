// Package cpu implements the separable convolution kernels on the CPU.
//
// Two strategies are provided: the direct primitive (SConv2D and
// SConv2DBackward), which always produces a result, and Im2colHelper, an
// accelerated forward path that lowers the depthwise stage to GEMM and may
// decline a call.
package cpu

import (
	"github.com/born-ml/sepconv/internal/parallel"
	"github.com/born-ml/sepconv/internal/tensor"
)

// CPUBackend runs convolution kernels on the CPU.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a CPU backend with the default parallel configuration.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with the given parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Parallel returns the parallel configuration used by the kernels.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.par
}
