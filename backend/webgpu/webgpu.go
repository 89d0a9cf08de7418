// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides a GPU helper for the separable convolution layer.
//
// The helper computes the forward pre-activation and ReLU activations of
// float32 layers on a WebGPU device. It declines float64 data, other
// activations and oversized tensors, and the layer then falls back to the
// CPU primitive.
//
// Example:
//
//	import (
//	    "github.com/born-ml/sepconv/backend/webgpu"
//	    "github.com/born-ml/sepconv/nn"
//	)
//
//	func main() {
//	    cfg := nn.DefaultSeparableConv2DConfig(3, 16)
//	    if webgpu.IsAvailable() {
//	        gpu, err := webgpu.New()
//	        if err != nil {
//	            log.Fatal(err)
//	        }
//	        defer gpu.Release()
//	        cfg.Helpers = append(cfg.Helpers, gpu)
//	    }
//	    layer := nn.NewSeparableConv2D(cfg)
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/sepconv/internal/backend/webgpu"
)

// Helper runs the layer's forward kernels on a WebGPU device.
type Helper = internalwebgpu.Helper

// New opens the default GPU adapter.
//
// Call Release() when done to free GPU resources. Returns an error if WebGPU
// initialization fails (e.g., no compatible GPU).
func New() (*Helper, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// It is useful for graceful fallback to the CPU-only configuration when no
// GPU is present.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
