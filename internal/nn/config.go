package nn

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/sepconv/internal/activation"
	"github.com/born-ml/sepconv/internal/backend/cpu"
	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/memory"
	"github.com/born-ml/sepconv/internal/params"
	"github.com/born-ml/sepconv/internal/tensor"
)

// Parameter keys of SeparableConv2D.
const (
	DepthwiseWeightKey = "W"
	PointwiseWeightKey = "pW"
	BiasKey            = params.BiasKey
)

// CacheMode selects whether training forward passes keep the pre-activation
// output for the following backward pass.
type CacheMode int

// Cache modes.
const (
	CacheNone CacheMode = iota
	CacheHost
	CacheDevice
)

// String returns the mode name.
func (m CacheMode) String() string {
	switch m {
	case CacheNone:
		return "none"
	case CacheHost:
		return "host"
	case CacheDevice:
		return "device"
	default:
		return fmt.Sprintf("CacheMode(%d)", int(m))
	}
}

// ParseCacheMode parses "none", "host" or "device".
func ParseCacheMode(s string) (CacheMode, error) {
	switch s {
	case "none", "":
		return CacheNone, nil
	case "host":
		return CacheHost, nil
	case "device":
		return CacheDevice, nil
	default:
		return CacheNone, fmt.Errorf("unknown cache mode %q", s)
	}
}

// SeparableConv2DConfig configures a SeparableConv2D layer.
type SeparableConv2DConfig struct {
	Name  string
	Index int

	NIn             int // input channels
	NOut            int // output channels; 0 means NIn*DepthMultiplier
	DepthMultiplier int // depthwise filters per input channel
	UsePointwise    bool
	Conv            conv.Config
	HasBias         bool
	DType           tensor.DataType

	Activation  activation.Func // nil means identity
	CacheMode   CacheMode
	WeightNoise params.Noise // applied in training only; nil disables

	// Helpers are tried in order before the CPU primitive.
	Helpers []ConvHelper
	// Backend runs the primitive; nil means cpu.New().
	Backend *cpu.CPUBackend
	// Memory provides the working and cache workspaces; nil means a private
	// manager with a working workspace, plus a cache workspace when
	// CacheMode is not CacheNone.
	Memory *memory.Manager
	// Logger receives debug events; nil discards them.
	Logger *slog.Logger
}

// DefaultSeparableConv2DConfig returns a 3x3 depthwise-separable layer with
// depth multiplier 1, a pointwise stage, bias and identity activation.
func DefaultSeparableConv2DConfig(nIn, nOut int) SeparableConv2DConfig {
	return SeparableConv2DConfig{
		Name:            "sepconv2d",
		NIn:             nIn,
		NOut:            nOut,
		DepthMultiplier: 1,
		UsePointwise:    true,
		Conv:            conv.DefaultConfig(),
		HasBias:         true,
		DType:           tensor.Float32,
		Activation:      activation.Identity(),
	}
}

// validate panics on a configuration no input could satisfy and fills in
// defaults.
func (c *SeparableConv2DConfig) validate() {
	if c.NIn <= 0 {
		panic(fmt.Sprintf("sepconv2d: invalid input channels %d", c.NIn))
	}
	if c.DepthMultiplier <= 0 {
		panic(fmt.Sprintf("sepconv2d: invalid depth multiplier %d", c.DepthMultiplier))
	}
	depth := c.NIn * c.DepthMultiplier
	if c.NOut == 0 {
		c.NOut = depth
	}
	if c.NOut < 0 {
		panic(fmt.Sprintf("sepconv2d: invalid output channels %d", c.NOut))
	}
	if !c.UsePointwise && c.NOut != depth {
		panic(fmt.Sprintf("sepconv2d: without a pointwise stage output channels must be %d, got %d", depth, c.NOut))
	}
	k, s, p, d := c.Conv.Kernel, c.Conv.Stride, c.Conv.Padding, c.Conv.Dilation
	if k[0] <= 0 || k[1] <= 0 {
		panic(fmt.Sprintf("sepconv2d: invalid kernel size %dx%d", k[0], k[1]))
	}
	if s[0] <= 0 || s[1] <= 0 {
		panic(fmt.Sprintf("sepconv2d: invalid stride %dx%d", s[0], s[1]))
	}
	if d[0] <= 0 || d[1] <= 0 {
		panic(fmt.Sprintf("sepconv2d: invalid dilation %dx%d", d[0], d[1]))
	}
	if p[0] < 0 || p[1] < 0 {
		panic(fmt.Sprintf("sepconv2d: invalid padding %dx%d", p[0], p[1]))
	}
	if c.DType != tensor.Float32 && c.DType != tensor.Float64 {
		panic(fmt.Sprintf("sepconv2d: unsupported dtype %s", c.DType))
	}
	if c.Activation == nil {
		c.Activation = activation.Identity()
	}
}
