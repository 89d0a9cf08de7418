// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the depthwise-separable 2D convolution layer.
//
// # Overview
//
// This package contains:
//   - Layer: SeparableConv2D (depthwise stage, optional pointwise stage, bias)
//   - Activations: Identity, ReLU, LeakyReLU, ELU, Sigmoid, Tanh and others
//   - Weight noise: DropConnect, GaussianNoise
//   - Helpers: pluggable accelerated strategies with CPU fallback
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/sepconv/nn"
//	    "github.com/born-ml/sepconv/tensor"
//	)
//
//	func main() {
//	    cfg := nn.DefaultSeparableConv2DConfig(3, 16)
//	    cfg.Conv.Mode = nn.PaddingSame
//	    cfg.Activation = nn.ReLU()
//	    layer := nn.NewSeparableConv2D(cfg)
//
//	    layer.SetInput(x) // [N, 3, H, W]
//	    out, err := layer.Activate(true)
//	}
//
// # Shapes
//
//	Input:            [N, NIn, H, W]
//	Depthwise "W":    [DepthMultiplier, NIn, KH, KW]
//	Pointwise "pW":   [NOut, NIn*DepthMultiplier, 1, 1]
//	Bias "b":         [1, NOut]
//	Output:           [N, NOut, OH, OW]
//
// # Backward Pass
//
// BackpropGradient takes dL/d(output) and returns the weight gradients,
// written into the layer's gradient views, and dL/d(input):
//
//	grad, epsIn, err := layer.BackpropGradient(epsOut)
//	gradW := grad.Get(nn.DepthwiseWeightKey)
//
// The bias gradient is not computed.
//
// # Helpers
//
// Helpers are tried in order before the CPU primitive. A helper that
// declines a call (for example the WebGPU helper on float64 data) is skipped:
//
//	cfg.Helpers = []nn.ConvHelper{cpu.NewIm2colHelper(backend, cpu.DefaultIm2colConfig())}
package nn
