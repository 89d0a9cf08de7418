package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/tensor"
)

// numericalGradient estimates dL/dp for every element of p with central
// differences, where L = sum(out * r).
func numericalGradient(p *tensor.RawTensor, loss func() float64) []float64 {
	data := p.AsFloat64()
	orig := append([]float64(nil), data...)
	defer func() { copy(data, orig) }()
	return fd.Gradient(nil, func(x []float64) float64 {
		copy(data, x)
		return loss()
	}, orig, &fd.Settings{Formula: fd.Central})
}

func TestSConv2DBackward_GradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // Deterministic test data
	backend := New()

	for _, tc := range geometryCorpus() {
		t.Run(tc.name, func(t *testing.T) {
			input, depthW, pointW, bias, g := tc.operands(t, rng)
			r := randTensor(t, rng, tc.outShape(g))

			loss := func() float64 {
				return floats.Dot(referenceSConv2D(input, depthW, pointW, bias, g), r.AsFloat64())
			}

			epsOut := zeros(t, input.Shape(), tensor.Float64)
			gradW := zeros(t, depthW.Shape(), tensor.Float64)
			var gradPW *tensor.RawTensor
			if pointW != nil {
				gradPW = zeros(t, pointW.Shape(), tensor.Float64)
			}

			require.NoError(t, backend.SConv2DBackward(input, depthW, pointW, r, g.Args(), epsOut, gradW, gradPW))

			assert.True(t, floats.EqualApprox(numericalGradient(input, loss), epsOut.AsFloat64(), 1e-6), "input gradient")
			assert.True(t, floats.EqualApprox(numericalGradient(depthW, loss), gradW.AsFloat64(), 1e-6), "depthwise gradient")
			if pointW != nil {
				assert.True(t, floats.EqualApprox(numericalGradient(pointW, loss), gradPW.AsFloat64(), 1e-6), "pointwise gradient")
			}
		})
	}
}

func TestSConv2DBackward_OverwritesOutputs(t *testing.T) {
	rng := rand.New(rand.NewSource(5)) //nolint:gosec // Deterministic test data
	backend := New()
	tc := geometryCorpus()[3]
	input, depthW, pointW, _, g := tc.operands(t, rng)
	delta := randTensor(t, rng, tc.outShape(g))

	run := func(fill float64) (eps, gw, gpw []float64) {
		epsOut := zeros(t, input.Shape(), tensor.Float64)
		gradW := zeros(t, depthW.Shape(), tensor.Float64)
		gradPW := zeros(t, pointW.Shape(), tensor.Float64)
		epsOut.Fill(fill)
		gradW.Fill(fill)
		gradPW.Fill(fill)
		require.NoError(t, backend.SConv2DBackward(input, depthW, pointW, delta, g.Args(), epsOut, gradW, gradPW))
		return epsOut.ToFloat64(), gradW.ToFloat64(), gradPW.ToFloat64()
	}

	e0, w0, p0 := run(0)
	e1, w1, p1 := run(123)
	assert.Equal(t, e0, e1)
	assert.Equal(t, w0, w1)
	assert.Equal(t, p0, p1)
}

func TestSConv2DBackward_InputGradientShapeMirrorsInput(t *testing.T) {
	backend := New()
	cfg := conv.Config{
		Kernel: [2]int{3, 3}, Stride: [2]int{2, 2}, Dilation: [2]int{1, 1}, Mode: conv.Explicit,
	}
	input := zeros(t, tensor.Shape{2, 3, 9, 7}, tensor.Float32)
	depthW := zeros(t, tensor.Shape{1, 3, 3, 3}, tensor.Float32)
	g, err := conv.Resolve(9, 7, cfg)
	require.NoError(t, err)
	delta := zeros(t, tensor.Shape{2, 3, g.OutH, g.OutW}, tensor.Float32)

	// An epsilon sized like the output is rejected.
	bad := zeros(t, tensor.Shape{2, 3, g.OutH, g.OutW}, tensor.Float32)
	gradW := zeros(t, depthW.Shape(), tensor.Float32)
	assert.Error(t, backend.SConv2DBackward(input, depthW, nil, delta, g.Args(), bad, gradW, nil))

	epsOut := zeros(t, input.Shape(), tensor.Float32)
	assert.NoError(t, backend.SConv2DBackward(input, depthW, nil, delta, g.Args(), epsOut, gradW, nil))
}

func TestSConv2DBackward_Errors(t *testing.T) {
	backend := New()
	input := zeros(t, tensor.Shape{1, 2, 4, 4}, tensor.Float64)
	depthW := zeros(t, tensor.Shape{1, 2, 3, 3}, tensor.Float64)
	pointW := zeros(t, tensor.Shape{3, 2, 1, 1}, tensor.Float64)
	delta := zeros(t, tensor.Shape{1, 3, 2, 2}, tensor.Float64)
	epsOut := zeros(t, input.Shape(), tensor.Float64)
	gradW := zeros(t, depthW.Shape(), tensor.Float64)
	gradPW := zeros(t, pointW.Shape(), tensor.Float64)
	args := []int{3, 3, 1, 1, 0, 0, 1, 1, 0}

	require.NoError(t, backend.SConv2DBackward(input, depthW, pointW, delta, args, epsOut, gradW, gradPW))

	tests := []struct {
		name string
		call func() error
	}{
		{"missing pointwise gradient", func() error {
			return backend.SConv2DBackward(input, depthW, pointW, delta, args, epsOut, gradW, nil)
		}},
		{"unexpected pointwise gradient", func() error {
			d := zeros(t, tensor.Shape{1, 2, 2, 2}, tensor.Float64)
			return backend.SConv2DBackward(input, depthW, nil, d, args, epsOut, gradW, gradPW)
		}},
		{"delta shape", func() error {
			return backend.SConv2DBackward(input, depthW, pointW, zeros(t, tensor.Shape{1, 2, 2, 2}, tensor.Float64),
				args, epsOut, gradW, gradPW)
		}},
		{"weight gradient dtype", func() error {
			return backend.SConv2DBackward(input, depthW, pointW, delta, args, epsOut,
				zeros(t, depthW.Shape(), tensor.Float32), gradPW)
		}},
		{"column-major input gradient", func() error {
			f, err := tensor.NewRawOrder(input.Shape(), tensor.Float64, tensor.F)
			require.NoError(t, err)
			return backend.SConv2DBackward(input, depthW, pointW, delta, args, f, gradW, gradPW)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "sconv2d_bp")
		})
	}
}
