// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/sepconv/internal/activation"
	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/memory"
	"github.com/born-ml/sepconv/internal/nn"
	"github.com/born-ml/sepconv/internal/params"
)

// Layers

// SeparableConv2D is a depthwise-separable 2D convolution layer.
type SeparableConv2D = nn.SeparableConv2D

// SeparableConv2DConfig configures a SeparableConv2D.
type SeparableConv2DConfig = nn.SeparableConv2DConfig

// DefaultSeparableConv2DConfig returns a 3x3 float32 layer with depth
// multiplier 1, a pointwise stage, bias and identity activation.
//
// Example:
//
//	cfg := nn.DefaultSeparableConv2DConfig(3, 16)
//	cfg.Conv.Mode = nn.PaddingSame
//	cfg.Activation = nn.ReLU()
//	layer := nn.NewSeparableConv2D(cfg)
func DefaultSeparableConv2DConfig(nIn, nOut int) SeparableConv2DConfig {
	return nn.DefaultSeparableConv2DConfig(nIn, nOut)
}

// NewSeparableConv2D creates a layer with Xavier-initialized weights.
// Panics on an invalid configuration.
//
// Example:
//
//	layer := nn.NewSeparableConv2D(nn.DefaultSeparableConv2DConfig(3, 16))
//	layer.SetInput(x) // [N, 3, H, W]
//	out, err := layer.Activate(true)
//	grad, epsIn, err := layer.BackpropGradient(epsOut)
func NewSeparableConv2D(cfg SeparableConv2DConfig) *SeparableConv2D {
	return nn.NewSeparableConv2D(cfg)
}

// ConvHelper is an accelerated implementation tried before the CPU primitive.
type ConvHelper = nn.ConvHelper

// Gradient maps parameter keys to gradient tensors.
type Gradient = nn.Gradient

// GradientEntry is one entry of a Gradient.
type GradientEntry = nn.GradientEntry

// Parameter keys.
const (
	DepthwiseWeightKey = nn.DepthwiseWeightKey
	PointwiseWeightKey = nn.PointwiseWeightKey
	BiasKey            = nn.BiasKey
)

// Convolution geometry

// ConvConfig is the kernel, stride, padding, dilation and mode of a layer.
type ConvConfig = conv.Config

// PaddingMode selects explicit or "same" padding.
type PaddingMode = conv.Mode

// Padding modes.
const (
	PaddingExplicit = conv.Explicit
	PaddingSame     = conv.Same
)

// ErrInvalidGeometry is returned when an input is too small for the kernel.
var ErrInvalidGeometry = conv.ErrInvalidGeometry

// Caching

// CacheMode selects where training forward passes keep the pre-activation.
type CacheMode = nn.CacheMode

// Cache modes.
const (
	CacheNone   = nn.CacheNone
	CacheHost   = nn.CacheHost
	CacheDevice = nn.CacheDevice
)

// ParseCacheMode parses "none", "host" or "device".
func ParseCacheMode(s string) (CacheMode, error) {
	return nn.ParseCacheMode(s)
}

// MemoryManager provides the layer's working and cache workspaces.
type MemoryManager = memory.Manager

// NewMemoryManager creates a manager with the named workspaces.
func NewMemoryManager(names ...string) *MemoryManager {
	return memory.NewManager(names...)
}

// Workspace names used by SeparableConv2D.
const (
	CacheWorkspace   = memory.CacheWorkspace
	WorkingWorkspace = memory.WorkingWorkspace
)

// Errors

// Common errors.
var (
	ErrInvalidInputShape = nn.ErrInvalidInputShape
	ErrChannelMismatch   = nn.ErrChannelMismatch
	ErrMissingInput      = nn.ErrMissingInput
)

// InvalidInputShapeError reports an input or epsilon of the wrong shape.
type InvalidInputShapeError = nn.InvalidInputShapeError

// ChannelMismatchError reports an input with the wrong channel count.
type ChannelMismatchError = nn.ChannelMismatchError

// MissingInputError reports a call before SetInput.
type MissingInputError = nn.MissingInputError

// Activations

// Activation is an activation function with its backward pass.
type Activation = activation.Func

// Identity returns f(x) = x.
func Identity() Activation { return activation.Identity() }

// ReLU returns max(x, 0).
func ReLU() Activation { return activation.ReLU() }

// LeakyReLU returns x for x > 0 and alpha*x otherwise.
func LeakyReLU(alpha float64) Activation { return activation.LeakyReLU(alpha) }

// ELU returns x for x > 0 and alpha*(exp(x)-1) otherwise.
func ELU(alpha float64) Activation { return activation.ELU(alpha) }

// Sigmoid returns 1/(1+exp(-x)).
func Sigmoid() Activation { return activation.Sigmoid() }

// Tanh returns tanh(x).
func Tanh() Activation { return activation.Tanh() }

// Softplus returns log(1+exp(x)).
func Softplus() Activation { return activation.Softplus() }

// Softsign returns x/(1+|x|).
func Softsign() Activation { return activation.Softsign() }

// Swish returns x*sigmoid(x).
func Swish() Activation { return activation.Swish() }

// GELU returns the exact Gaussian error linear unit x*Phi(x).
func GELU() Activation { return activation.GELU() }

// ActivationFromName resolves a case-insensitive activation name.
func ActivationFromName(name string) (Activation, error) {
	return activation.FromName(name)
}

// Weight noise

// WeightNoise perturbs parameters during training forward passes.
type WeightNoise = params.Noise

// DropConnect zeroes each weight with probability 1-RetainProb.
type DropConnect = params.DropConnect

// GaussianNoise adds or multiplies Gaussian noise into weights.
type GaussianNoise = params.GaussianNoise

// NewDropConnect returns DropConnect keeping weights with probability retain.
func NewDropConnect(retain float64) *DropConnect {
	return params.NewDropConnect(retain)
}
