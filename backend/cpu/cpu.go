// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/sepconv/internal/backend/cpu"
	"github.com/born-ml/sepconv/internal/parallel"
)

// Backend runs the separable convolution primitive on the CPU.
type Backend = internalcpu.CPUBackend

// ParallelConfig controls how kernels split work across goroutines.
type ParallelConfig = parallel.Config

// Im2colHelper is the GEMM-lowered forward strategy. It declines inputs whose
// column buffer would exceed its memory budget.
type Im2colHelper = internalcpu.Im2colHelper

// Im2colConfig configures an Im2colHelper.
type Im2colConfig = internalcpu.Im2colConfig

// New creates a CPU backend using all available cores.
//
// Example:
//
//	import (
//	    "github.com/born-ml/sepconv/backend/cpu"
//	    "github.com/born-ml/sepconv/nn"
//	)
//
//	func main() {
//	    cfg := nn.DefaultSeparableConv2DConfig(3, 16)
//	    cfg.Backend = cpu.New()
//	    layer := nn.NewSeparableConv2D(cfg)
//	}
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg ParallelConfig) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultParallelConfig returns the configuration New uses.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// NewIm2colHelper creates an im2col helper running on backend.
func NewIm2colHelper(backend *Backend, cfg Im2colConfig) *Im2colHelper {
	return internalcpu.NewIm2colHelper(backend, cfg)
}

// DefaultIm2colConfig returns a 64 MiB column budget.
func DefaultIm2colConfig() Im2colConfig {
	return internalcpu.DefaultIm2colConfig()
}
