// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU implementation of the separable
// convolution layer's kernels.
//
// # Overview
//
// This package exposes:
//   - Backend, the direct depthwise + pointwise primitive (forward and backward)
//   - Im2colHelper, a GEMM-lowered forward strategy with a memory budget
//   - Float32 and Float64 support, parallel over batch and channels
//
// Matrix products go through gonum's BLAS implementation.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/sepconv/backend/cpu"
//	    "github.com/born-ml/sepconv/nn"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    cfg := nn.DefaultSeparableConv2DConfig(3, 16)
//	    cfg.Backend = backend
//	    cfg.Helpers = []nn.ConvHelper{cpu.NewIm2colHelper(backend, cpu.DefaultIm2colConfig())}
//	    layer := nn.NewSeparableConv2D(cfg)
//	}
package cpu
