package cpu

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/sepconv/internal/tensor"
)

// matrix is a row-major matrix view over a slice. stride is the distance
// between consecutive rows and may exceed cols.
type matrix[T tensor.Float] struct {
	rows, cols, stride int
	data               []T
}

func dense[T tensor.Float](rows, cols int, data []T) matrix[T] {
	return matrix[T]{rows: rows, cols: cols, stride: cols, data: data}
}

// gemm computes c = alpha*op(a)*op(b) + beta*c through gonum's BLAS.
func gemm[T tensor.Float](tA, tB blas.Transpose, alpha T, a, b matrix[T], beta T, c matrix[T]) {
	switch cd := any(c.data).(type) {
	case []float32:
		blas32.Gemm(tA, tB, float32(alpha),
			blas32.General{Rows: a.rows, Cols: a.cols, Stride: a.stride, Data: any(a.data).([]float32)},
			blas32.General{Rows: b.rows, Cols: b.cols, Stride: b.stride, Data: any(b.data).([]float32)},
			float32(beta),
			blas32.General{Rows: c.rows, Cols: c.cols, Stride: c.stride, Data: cd})
	case []float64:
		blas64.Gemm(tA, tB, float64(alpha),
			blas64.General{Rows: a.rows, Cols: a.cols, Stride: a.stride, Data: any(a.data).([]float64)},
			blas64.General{Rows: b.rows, Cols: b.cols, Stride: b.stride, Data: any(b.data).([]float64)},
			float64(beta),
			blas64.General{Rows: c.rows, Cols: c.cols, Stride: c.stride, Data: cd})
	}
}
