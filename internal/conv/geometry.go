// Package conv resolves 2D convolution geometry: output size and top-left
// padding for explicit and "same" padding modes.
package conv

import "fmt"

// Mode selects how padding is determined.
type Mode int

// Padding modes.
const (
	// Explicit uses the configured padding and truncates partial windows.
	Explicit Mode = iota
	// Same sizes the output to ceil(in/stride) and derives the padding.
	Same
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Explicit:
		return "explicit"
	case Same:
		return "same"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "explicit" or "same".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "explicit", "truncate":
		return Explicit, nil
	case "same":
		return Same, nil
	default:
		return Explicit, fmt.Errorf("unknown convolution mode %q", s)
	}
}

// NumArgs is the length of the integer argument list passed to convolution kernels.
const NumArgs = 9

// Config is the static convolution configuration of a layer. Pairs are
// (height, width).
type Config struct {
	Kernel   [2]int
	Stride   [2]int
	Padding  [2]int // ignored in Same mode
	Dilation [2]int
	Mode     Mode
}

// DefaultConfig returns a 3x3, stride 1, unpadded, undilated configuration.
func DefaultConfig() Config {
	return Config{
		Kernel:   [2]int{3, 3},
		Stride:   [2]int{1, 1},
		Dilation: [2]int{1, 1},
		Mode:     Explicit,
	}
}

// Geometry is the resolved geometry of one convolution call.
type Geometry struct {
	KernelH, KernelW     int
	StrideH, StrideW     int
	PadH, PadW           int // top and left padding
	DilationH, DilationW int
	Same                 bool
	OutH, OutW           int
}

// Args returns the kernel argument list
// [kH, kW, sH, sW, pH, pW, dH, dW, same].
func (g Geometry) Args() []int {
	same := 0
	if g.Same {
		same = 1
	}
	return []int{
		g.KernelH, g.KernelW, g.StrideH, g.StrideW,
		g.PadH, g.PadW, g.DilationH, g.DilationW, same,
	}
}

// Mode returns Same or Explicit according to the geometry's flag.
func (g Geometry) Mode() Mode {
	if g.Same {
		return Same
	}
	return Explicit
}

// String formats the geometry for error messages.
func (g Geometry) String() string {
	return fmt.Sprintf("kernel=%dx%d stride=%dx%d pad=%dx%d dilation=%dx%d mode=%s out=%dx%d",
		g.KernelH, g.KernelW, g.StrideH, g.StrideW, g.PadH, g.PadW,
		g.DilationH, g.DilationW, g.Mode(), g.OutH, g.OutW)
}

// ParseArgs decodes a kernel argument list and resolves the output size for
// the given input spatial size. In Same mode the padding carried in args is
// taken as-is.
func ParseArgs(args []int, inH, inW int) (Geometry, error) {
	if len(args) != NumArgs {
		return Geometry{}, &InvalidGeometryError{
			Reason: fmt.Sprintf("expected %d integer arguments, got %d", NumArgs, len(args)),
		}
	}
	g := Geometry{
		KernelH: args[0], KernelW: args[1],
		StrideH: args[2], StrideW: args[3],
		PadH: args[4], PadW: args[5],
		DilationH: args[6], DilationW: args[7],
		Same: args[8] != 0,
	}
	outH, err := OutputSize(inH, g.KernelH, g.StrideH, g.PadH, g.DilationH, g.Mode())
	if err != nil {
		return Geometry{}, withAxis(err, "height")
	}
	outW, err := OutputSize(inW, g.KernelW, g.StrideW, g.PadW, g.DilationW, g.Mode())
	if err != nil {
		return Geometry{}, withAxis(err, "width")
	}
	g.OutH, g.OutW = outH, outW
	return g, nil
}

// Resolve computes the geometry for an input of spatial size inH x inW.
func Resolve(inH, inW int, cfg Config) (Geometry, error) {
	g := Geometry{
		KernelH: cfg.Kernel[0], KernelW: cfg.Kernel[1],
		StrideH: cfg.Stride[0], StrideW: cfg.Stride[1],
		DilationH: cfg.Dilation[0], DilationW: cfg.Dilation[1],
		Same: cfg.Mode == Same,
	}
	if cfg.Mode != Same {
		g.PadH, g.PadW = cfg.Padding[0], cfg.Padding[1]
	}

	outH, err := OutputSize(inH, g.KernelH, g.StrideH, g.PadH, g.DilationH, cfg.Mode)
	if err != nil {
		return Geometry{}, withAxis(err, "height")
	}
	outW, err := OutputSize(inW, g.KernelW, g.StrideW, g.PadW, g.DilationW, cfg.Mode)
	if err != nil {
		return Geometry{}, withAxis(err, "width")
	}
	g.OutH, g.OutW = outH, outW

	if cfg.Mode == Same {
		g.PadH = SameModeTopLeftPadding(outH, inH, g.KernelH, g.StrideH, g.DilationH)
		g.PadW = SameModeTopLeftPadding(outW, inW, g.KernelW, g.StrideW, g.DilationW)
	}
	return g, nil
}

// EffectiveKernel returns the receptive field of a dilated kernel.
func EffectiveKernel(kernel, dilation int) int {
	return kernel + (kernel-1)*(dilation-1)
}

// OutputSize computes the output length along one spatial axis.
//
//	Explicit: floor((in + 2*pad - dilation*(kernel-1) - 1) / stride) + 1
//	Same:     ceil(in / stride)
func OutputSize(in, kernel, stride, pad, dilation int, mode Mode) (int, error) {
	switch {
	case in <= 0:
		return 0, &InvalidGeometryError{Reason: fmt.Sprintf("input size %d must be positive", in)}
	case kernel <= 0:
		return 0, &InvalidGeometryError{Reason: fmt.Sprintf("kernel size %d must be positive", kernel)}
	case stride <= 0:
		return 0, &InvalidGeometryError{Reason: fmt.Sprintf("stride %d must be positive", stride)}
	case dilation <= 0:
		return 0, &InvalidGeometryError{Reason: fmt.Sprintf("dilation %d must be positive", dilation)}
	case pad < 0:
		return 0, &InvalidGeometryError{Reason: fmt.Sprintf("padding %d must not be negative", pad)}
	}

	if mode == Same {
		return (in + stride - 1) / stride, nil
	}

	span := in + 2*pad - dilation*(kernel-1) - 1
	if span < 0 {
		return 0, &InvalidGeometryError{Reason: fmt.Sprintf(
			"effective kernel %d exceeds padded input %d (input=%d, padding=%d)",
			EffectiveKernel(kernel, dilation), in+2*pad, in, pad)}
	}
	return span/stride + 1, nil
}

// SameModeTopLeftPadding returns the top (or left) padding for Same mode.
// When the total padding is odd the top/left side receives the extra row.
func SameModeTopLeftPadding(out, in, kernel, stride, dilation int) int {
	total := (out-1)*stride + EffectiveKernel(kernel, dilation) - in
	if total <= 0 {
		return 0
	}
	return (total + 1) / 2
}
