package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/parallel"
	"github.com/born-ml/sepconv/internal/tensor"
)

// sconvDims holds the sizes of one separable convolution call.
type sconvDims struct {
	n, c, h, w int
	m          int // depth multiplier
	cd         int // depthwise output channels, c*m
	cout       int
	g          conv.Geometry
}

func (d sconvDims) plane() int  { return d.h * d.w }
func (d sconvDims) oplane() int { return d.g.OutH * d.g.OutW }
func (d sconvDims) kernel() int { return d.g.KernelH * d.g.KernelW }

// sconvDimsFor validates the operands shared by the forward and backward
// kernels and resolves the geometry from args.
//
//	input:  [N, C, H, W]
//	depthW: [M, C, KH, KW]
//	pointW: [COut, C*M, 1, 1], or nil when there is no pointwise stage
func sconvDimsFor(op string, input, depthW, pointW *tensor.RawTensor, args []int) (sconvDims, error) {
	if input.Rank() != 4 {
		return sconvDims{}, fmt.Errorf("%s: input must be 4D [N,C,H,W], got shape %v", op, input.Shape())
	}
	if depthW.Rank() != 4 {
		return sconvDims{}, fmt.Errorf("%s: depthwise weights must be 4D [M,C,KH,KW], got shape %v", op, depthW.Shape())
	}
	if depthW.DType() != input.DType() {
		return sconvDims{}, fmt.Errorf("%s: depthwise weights dtype %s != input dtype %s", op, depthW.DType(), input.DType())
	}

	is, ws := input.Shape(), depthW.Shape()
	d := sconvDims{n: is[0], c: is[1], h: is[2], w: is[3], m: ws[0]}
	if ws[1] != d.c {
		return sconvDims{}, fmt.Errorf("%s: input channels %d != depthwise weight channels %d", op, d.c, ws[1])
	}
	d.cd = d.c * d.m
	d.cout = d.cd

	if pointW != nil {
		ps := pointW.Shape()
		if pointW.Rank() != 4 || ps[1] != d.cd || ps[2] != 1 || ps[3] != 1 {
			return sconvDims{}, fmt.Errorf("%s: pointwise weights must be [COut,%d,1,1], got shape %v", op, d.cd, ps)
		}
		if pointW.DType() != input.DType() {
			return sconvDims{}, fmt.Errorf("%s: pointwise weights dtype %s != input dtype %s", op, pointW.DType(), input.DType())
		}
		d.cout = ps[0]
	}

	g, err := conv.ParseArgs(args, d.h, d.w)
	if err != nil {
		return sconvDims{}, fmt.Errorf("%s: %w", op, err)
	}
	if g.KernelH != ws[2] || g.KernelW != ws[3] {
		return sconvDims{}, fmt.Errorf("%s: kernel args %dx%d do not match weight kernel %dx%d",
			op, g.KernelH, g.KernelW, ws[2], ws[3])
	}
	d.g = g
	return d, nil
}

// checkDestination verifies that a caller-supplied output is a dense
// row-major tensor of the expected shape and dtype.
func checkDestination(op, what string, dst *tensor.RawTensor, shape tensor.Shape, dtype tensor.DataType) error {
	if dst == nil {
		return fmt.Errorf("%s: %s tensor is nil", op, what)
	}
	if !dst.Shape().Equal(shape) {
		return fmt.Errorf("%s: %s shape %v, expected %v", op, what, dst.Shape(), shape)
	}
	if dst.DType() != dtype {
		return fmt.Errorf("%s: %s dtype %s, expected %s", op, what, dst.DType(), dtype)
	}
	if dst.Order() != tensor.C || !dst.IsContiguous() {
		return fmt.Errorf("%s: %s must be a contiguous 'c' order tensor", op, what)
	}
	return nil
}

// SConv2D computes a depthwise-separable convolution into out.
//
// Shapes:
//   - input:  [N, C, H, W]
//   - depthW: [M, C, KH, KW], M is the depth multiplier
//   - pointW: [COut, C*M, 1, 1], or nil for a depthwise-only layer (COut = C*M)
//   - bias:   COut elements, any shape
//   - out:    [N, COut, OH, OW], contiguous 'c' order
//
// args is [kH, kW, sH, sW, pH, pW, dH, dW, same] with top/left padding.
//
// Depthwise channel c*M+m is input channel c convolved with depthW[m, c]. The
// pointwise stage mixes those C*M channels into COut outputs with a 1x1
// convolution, computed as one GEMM per sample.
func (cpu *CPUBackend) SConv2D(input, depthW, pointW, bias, out *tensor.RawTensor, args []int) error {
	d, err := sconvDimsFor("sconv2d", input, depthW, pointW, args)
	if err != nil {
		return err
	}
	if bias == nil || bias.NumElements() != d.cout || bias.DType() != input.DType() {
		return fmt.Errorf("sconv2d: bias must hold %d %s elements", d.cout, input.DType())
	}
	if err := checkDestination("sconv2d", "output", out,
		tensor.Shape{d.n, d.cout, d.g.OutH, d.g.OutW}, input.DType()); err != nil {
		return err
	}

	switch input.DType() {
	case tensor.Float32:
		sconv2d[float32](d, input, depthW, pointW, bias, out, cpu.par)
	case tensor.Float64:
		sconv2d[float64](d, input, depthW, pointW, bias, out, cpu.par)
	default:
		return fmt.Errorf("sconv2d: unsupported dtype %s", input.DType())
	}
	return nil
}

func sconv2d[T tensor.Float](d sconvDims, input, depthW, pointW, bias, out *tensor.RawTensor, par parallel.Config) {
	x := tensor.Elements[T](input.Contiguous())
	wd := tensor.Elements[T](depthW.Contiguous())
	o := tensor.Elements[T](out)

	if pointW == nil {
		depthwise(d, x, wd, o, par)
	} else {
		dc := make([]T, d.n*d.cd*d.oplane())
		depthwise(d, x, wd, dc, par)
		pointwise(d, tensor.Elements[T](pointW.Contiguous()), dc, o, par)
	}
	addBias(d, tensor.Elements[T](bias.Contiguous()), o, par)
}

// depthwise writes dst[n, c*M+m] = x[n, c] (*) wd[m, c] for every sample.
func depthwise[T tensor.Float](d sconvDims, x, wd, dst []T, par parallel.Config) {
	g := d.g
	plane, oplane, k := d.plane(), d.oplane(), d.kernel()

	parallel.ForBatch(d.n, d.c, func(n, c int) {
		src := x[(n*d.c+c)*plane:][:plane]
		for m := 0; m < d.m; m++ {
			kern := wd[(m*d.c+c)*k:][:k]
			o := dst[(n*d.cd+c*d.m+m)*oplane:][:oplane]
			for oh := 0; oh < g.OutH; oh++ {
				hStart := oh*g.StrideH - g.PadH
				for ow := 0; ow < g.OutW; ow++ {
					wStart := ow*g.StrideW - g.PadW
					var sum T
					for kh := 0; kh < g.KernelH; kh++ {
						ih := hStart + kh*g.DilationH
						if ih < 0 || ih >= d.h {
							continue
						}
						row := src[ih*d.w:][:d.w]
						for kw := 0; kw < g.KernelW; kw++ {
							iw := wStart + kw*g.DilationW
							if iw < 0 || iw >= d.w {
								continue
							}
							sum += row[iw] * kern[kh*g.KernelW+kw]
						}
					}
					o[oh*g.OutW+ow] = sum
				}
			}
		}
	}, par)
}

// pointwise computes out[n] = wp[COut, C*M] @ dc[n][C*M, OH*OW] per sample.
func pointwise[T tensor.Float](d sconvDims, wp, dc, out []T, par parallel.Config) {
	oplane := d.oplane()
	a := dense(d.cout, d.cd, wp)
	parallel.For(d.n, func(n int) {
		b := dense(d.cd, oplane, dc[n*d.cd*oplane:][:d.cd*oplane])
		c := dense(d.cout, oplane, out[n*d.cout*oplane:][:d.cout*oplane])
		gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, c)
	}, par)
}

func addBias[T tensor.Float](d sconvDims, b, out []T, par parallel.Config) {
	oplane := d.oplane()
	parallel.ForBatch(d.n, d.cout, func(n, c int) {
		v := b[c]
		if v == 0 {
			return
		}
		o := out[(n*d.cout+c)*oplane:][:oplane]
		for i := range o {
			o[i] += v
		}
	}, par)
}
