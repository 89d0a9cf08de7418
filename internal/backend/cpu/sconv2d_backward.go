package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"

	"github.com/born-ml/sepconv/internal/parallel"
	"github.com/born-ml/sepconv/internal/tensor"
)

// SConv2DBackward computes the gradients of a depthwise-separable convolution.
//
// delta is dL/d(output) with shape [N, COut, OH, OW], already passed through
// the activation derivative. Results are written into caller-supplied tensors,
// which are overwritten rather than accumulated:
//   - epsOut: dL/d(input), shape [N, C, H, W]
//   - gradW:  dL/d(depthW), shape [M, C, KH, KW]
//   - gradPW: dL/d(pointW), shape [COut, C*M, 1, 1]; must be nil iff pointW is nil
//
// All three must be contiguous 'c' order tensors. The bias gradient is not
// computed.
//
// With dc the depthwise output and ddc its gradient:
//
//	gradPW = sum_n delta[n] @ dc[n]^T
//	ddc[n] = pointW^T @ delta[n]
//	gradW[m,c,kh,kw]  = sum ddc[n,c*M+m,oh,ow] * x[n,c,ih,iw]
//	epsOut[n,c,ih,iw] = sum ddc[n,c*M+m,oh,ow] * depthW[m,c,kh,kw]
func (cpu *CPUBackend) SConv2DBackward(input, depthW, pointW, delta *tensor.RawTensor, args []int,
	epsOut, gradW, gradPW *tensor.RawTensor,
) error {
	const op = "sconv2d_bp"
	d, err := sconvDimsFor(op, input, depthW, pointW, args)
	if err != nil {
		return err
	}
	dt := input.DType()
	if !delta.Shape().Equal(tensor.Shape{d.n, d.cout, d.g.OutH, d.g.OutW}) || delta.DType() != dt {
		return fmt.Errorf("%s: delta shape %v (%s), expected %v (%s)",
			op, delta.Shape(), delta.DType(), tensor.Shape{d.n, d.cout, d.g.OutH, d.g.OutW}, dt)
	}
	if err := checkDestination(op, "input gradient", epsOut, input.Shape(), dt); err != nil {
		return err
	}
	if err := checkDestination(op, "depthwise weight gradient", gradW, depthW.Shape(), dt); err != nil {
		return err
	}
	if (pointW == nil) != (gradPW == nil) {
		return fmt.Errorf("%s: pointwise weights and their gradient must both be set or both be nil", op)
	}
	if pointW != nil {
		if err := checkDestination(op, "pointwise weight gradient", gradPW, pointW.Shape(), dt); err != nil {
			return err
		}
	}

	switch dt {
	case tensor.Float32:
		sconv2dBackward[float32](d, input, depthW, pointW, delta, epsOut, gradW, gradPW, cpu.par)
	case tensor.Float64:
		sconv2dBackward[float64](d, input, depthW, pointW, delta, epsOut, gradW, gradPW, cpu.par)
	default:
		return fmt.Errorf("%s: unsupported dtype %s", op, dt)
	}
	return nil
}

func sconv2dBackward[T tensor.Float](d sconvDims, input, depthW, pointW, delta,
	epsOut, gradW, gradPW *tensor.RawTensor, par parallel.Config,
) {
	x := tensor.Elements[T](input.Contiguous())
	wd := tensor.Elements[T](depthW.Contiguous())
	dl := tensor.Elements[T](delta.Contiguous())

	ddc := dl
	if pointW != nil {
		oplane := d.oplane()
		wp := tensor.Elements[T](pointW.Contiguous())
		gpw := tensor.Elements[T](gradPW)

		dc := make([]T, d.n*d.cd*oplane)
		depthwise(d, x, wd, dc, par)

		// gradPW accumulates over the batch, so the samples run in order.
		gp := dense(d.cout, d.cd, gpw)
		for n := 0; n < d.n; n++ {
			var beta T
			if n > 0 {
				beta = 1
			}
			a := dense(d.cout, oplane, dl[n*d.cout*oplane:][:d.cout*oplane])
			b := dense(d.cd, oplane, dc[n*d.cd*oplane:][:d.cd*oplane])
			gemm(blas.NoTrans, blas.Trans, 1, a, b, beta, gp)
		}

		ddc = make([]T, d.n*d.cd*oplane)
		wpm := dense(d.cout, d.cd, wp)
		parallel.For(d.n, func(n int) {
			b := dense(d.cout, oplane, dl[n*d.cout*oplane:][:d.cout*oplane])
			c := dense(d.cd, oplane, ddc[n*d.cd*oplane:][:d.cd*oplane])
			gemm(blas.Trans, blas.NoTrans, 1, wpm, b, 0, c)
		}, par)
	}

	depthwiseWeightGrad(d, x, ddc, tensor.Elements[T](gradW), par)
	depthwiseInputGrad(d, wd, ddc, tensor.Elements[T](epsOut), par)
}

// depthwiseWeightGrad overwrites gw[m, c] with the correlation of ddc[:, c*M+m]
// and x[:, c]. Each input channel owns a disjoint slice of gw.
func depthwiseWeightGrad[T tensor.Float](d sconvDims, x, ddc, gw []T, par parallel.Config) {
	g := d.g
	plane, oplane, k := d.plane(), d.oplane(), d.kernel()

	parallel.For(d.c, func(c int) {
		for m := 0; m < d.m; m++ {
			kern := gw[(m*d.c+c)*k:][:k]
			clear(kern)
			for n := 0; n < d.n; n++ {
				src := x[(n*d.c+c)*plane:][:plane]
				grad := ddc[(n*d.cd+c*d.m+m)*oplane:][:oplane]
				for oh := 0; oh < g.OutH; oh++ {
					hStart := oh*g.StrideH - g.PadH
					for ow := 0; ow < g.OutW; ow++ {
						gv := grad[oh*g.OutW+ow]
						if gv == 0 {
							continue
						}
						wStart := ow*g.StrideW - g.PadW
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
								kern[kh*g.KernelW+kw] += gv * row[iw]
							}
						}
					}
				}
			}
		}
	}, par)
}

// depthwiseInputGrad overwrites eps[n, c] with the transposed convolution of
// ddc[n, c*M:(c+1)*M] by wd[:, c]. Padding positions are dropped.
func depthwiseInputGrad[T tensor.Float](d sconvDims, wd, ddc, eps []T, par parallel.Config) {
	g := d.g
	plane, oplane, k := d.plane(), d.oplane(), d.kernel()

	parallel.ForBatch(d.n, d.c, func(n, c int) {
		dst := eps[(n*d.c+c)*plane:][:plane]
		clear(dst)
		for m := 0; m < d.m; m++ {
			kern := wd[(m*d.c+c)*k:][:k]
			grad := ddc[(n*d.cd+c*d.m+m)*oplane:][:oplane]
			for oh := 0; oh < g.OutH; oh++ {
				hStart := oh*g.StrideH - g.PadH
				for ow := 0; ow < g.OutW; ow++ {
					gv := grad[oh*g.OutW+ow]
					if gv == 0 {
						continue
					}
					wStart := ow*g.StrideW - g.PadW
					for kh := 0; kh < g.KernelH; kh++ {
						ih := hStart + kh*g.DilationH
						if ih < 0 || ih >= d.h {
							continue
						}
						row := dst[ih*d.w:][:d.w]
						for kw := 0; kw < g.KernelW; kw++ {
							iw := wStart + kw*g.DilationW
							if iw < 0 || iw >= d.w {
								continue
							}
							row[iw] += gv * kern[kh*g.KernelW+kw]
						}
					}
				}
			}
		}
	}, par)
}
