package cpu

import (
	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/sepconv/internal/activation"
	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/parallel"
	"github.com/born-ml/sepconv/internal/tensor"
)

// Im2colConfig bounds the scratch memory of the im2col helper.
type Im2colConfig struct {
	// MaxColumnBytes is the largest column buffer a single worker may
	// allocate. Calls that need more are declined.
	MaxColumnBytes int
}

// DefaultIm2colConfig allows 64 MiB column buffers.
func DefaultIm2colConfig() Im2colConfig {
	return Im2colConfig{MaxColumnBytes: 64 << 20}
}

// Im2colHelper is an accelerated forward strategy. Each input channel's
// receptive fields are unrolled into a [KH*KW, OH*OW] column matrix so the
// depthwise stage for all M multipliers becomes one GEMM.
//
// The helper declines (ok == false) when the input is not a dense 'c' order
// tensor, when the column buffer would exceed the configured budget, or when
// the operands are malformed; the caller then falls back to SConv2D.
type Im2colHelper struct {
	cpu *CPUBackend
	cfg Im2colConfig
}

// NewIm2colHelper returns an im2col helper running on cpu.
func NewIm2colHelper(cpu *CPUBackend, cfg Im2colConfig) *Im2colHelper {
	return &Im2colHelper{cpu: cpu, cfg: cfg}
}

// Name returns "cpu-im2col".
func (h *Im2colHelper) Name() string {
	return "cpu-im2col"
}

// PreOutput computes the pre-activation output for a resolved geometry.
func (h *Im2colHelper) PreOutput(input, depthW, pointW, bias *tensor.RawTensor, g conv.Geometry) (*tensor.RawTensor, bool) {
	if input.Order() != tensor.C || !input.IsContiguous() {
		return nil, false
	}
	d, err := sconvDimsFor("im2col", input, depthW, pointW, g.Args())
	if err != nil {
		return nil, false
	}
	if bias == nil || bias.NumElements() != d.cout || bias.DType() != input.DType() {
		return nil, false
	}
	if d.kernel()*d.oplane()*input.DType().Size() > h.cfg.MaxColumnBytes {
		return nil, false
	}

	out, err := tensor.NewRaw(tensor.Shape{d.n, d.cout, d.g.OutH, d.g.OutW}, input.DType())
	if err != nil {
		return nil, false
	}
	switch input.DType() {
	case tensor.Float32:
		sconv2dIm2col[float32](d, input, depthW, pointW, bias, out, h.cpu.par)
	case tensor.Float64:
		sconv2dIm2col[float64](d, input, depthW, pointW, bias, out, h.cpu.par)
	default:
		return nil, false
	}
	return out, true
}

// Activate applies an elementwise activation in parallel. Functions without a
// scalar form, and inputs that are not dense, are declined.
func (h *Im2colHelper) Activate(z *tensor.RawTensor, fn activation.Func) (*tensor.RawTensor, bool) {
	ew, ok := fn.(activation.Elementwise)
	if !ok || !z.IsContiguous() {
		return nil, false
	}
	out := z.Dup()
	switch out.DType() {
	case tensor.Float32:
		data := out.AsFloat32()
		parallel.ForRange(len(data), func(start, end int) {
			for i := start; i < end; i++ {
				data[i] = float32(ew.Apply(float64(data[i])))
			}
		}, h.cpu.par)
	case tensor.Float64:
		data := out.AsFloat64()
		parallel.ForRange(len(data), func(start, end int) {
			for i := start; i < end; i++ {
				data[i] = ew.Apply(data[i])
			}
		}, h.cpu.par)
	default:
		return nil, false
	}
	return out, true
}

func sconv2dIm2col[T tensor.Float](d sconvDims, input, depthW, pointW, bias, out *tensor.RawTensor, par parallel.Config) {
	x := tensor.Elements[T](input)
	wd := tensor.Elements[T](depthW.Contiguous())
	o := tensor.Elements[T](out)

	dst := o
	if pointW != nil {
		dst = make([]T, d.n*d.cd*d.oplane())
	}

	k, oplane := d.kernel(), d.oplane()
	parallel.ForRange(d.n*d.c, func(start, end int) {
		col := make([]T, k*oplane)
		for i := start; i < end; i++ {
			n, c := i/d.c, i%d.c
			im2colChannel(d, x[(n*d.c+c)*d.plane():][:d.plane()], col)

			// Rows m of wd[:, c] are C*K apart.
			a := matrix[T]{rows: d.m, cols: k, stride: d.c * k, data: wd[c*k:]}
			b := dense(k, oplane, col)
			cm := dense(d.m, oplane, dst[(n*d.cd+c*d.m)*oplane:][:d.m*oplane])
			gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, cm)
		}
	}, par)

	if pointW != nil {
		pointwise(d, tensor.Elements[T](pointW.Contiguous()), dst, o, par)
	}
	addBias(d, tensor.Elements[T](bias.Contiguous()), o, par)
}

// im2colChannel unrolls one [H, W] plane into col[KH*KW, OH*OW]; padded
// positions are zero.
func im2colChannel[T tensor.Float](d sconvDims, src, col []T) {
	g := d.g
	oplane := d.oplane()
	for kh := 0; kh < g.KernelH; kh++ {
		for kw := 0; kw < g.KernelW; kw++ {
			row := col[(kh*g.KernelW+kw)*oplane:][:oplane]
			for oh := 0; oh < g.OutH; oh++ {
				ih := oh*g.StrideH - g.PadH + kh*g.DilationH
				dstRow := row[oh*g.OutW:][:g.OutW]
				if ih < 0 || ih >= d.h {
					clear(dstRow)
					continue
				}
				srcRow := src[ih*d.w:][:d.w]
				for ow := range dstRow {
					iw := ow*g.StrideW - g.PadW + kw*g.DilationW
					if iw < 0 || iw >= d.w {
						dstRow[ow] = 0
					} else {
						dstRow[ow] = srcRow[iw]
					}
				}
			}
		}
	}
}
