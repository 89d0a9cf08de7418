// Package activation provides the elementwise activation functions applied to
// the layer's pre-activation output, together with their derivatives.
package activation

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/sepconv/internal/tensor"
)

// Func is an activation function over whole tensors.
type Func interface {
	// String returns the canonical lower-case name.
	String() string
	// Forward returns f(z) as a new row-major tensor. z is not modified.
	Forward(z *tensor.RawTensor) *tensor.RawTensor
	// Backprop returns dL/dz = f'(z) * eps as a new row-major tensor.
	Backprop(z, eps *tensor.RawTensor) (*tensor.RawTensor, error)
}

// Elementwise is a Func defined by a scalar function. Helpers use Apply and
// Derivative to evaluate it without going through Forward.
type Elementwise interface {
	Func
	Apply(x float64) float64
	Derivative(x float64) float64
}

type elementwise struct {
	name string
	f    func(x float64) float64
	df   func(x float64) float64
}

func (e *elementwise) String() string               { return e.name }
func (e *elementwise) Apply(x float64) float64      { return e.f(x) }
func (e *elementwise) Derivative(x float64) float64 { return e.df(x) }

func (e *elementwise) Forward(z *tensor.RawTensor) *tensor.RawTensor {
	out := z.Contiguous()
	if out == z {
		out = z.Dup()
	}
	switch out.DType() {
	case tensor.Float32:
		data := out.AsFloat32()
		for i, v := range data {
			data[i] = float32(e.f(float64(v)))
		}
	case tensor.Float64:
		data := out.AsFloat64()
		for i, v := range data {
			data[i] = e.f(v)
		}
	}
	return out
}

func (e *elementwise) Backprop(z, eps *tensor.RawTensor) (*tensor.RawTensor, error) {
	if !z.Shape().Equal(eps.Shape()) {
		return nil, fmt.Errorf("%s backprop: pre-activation shape %v does not match epsilon shape %v",
			e.name, z.Shape(), eps.Shape())
	}
	if z.DType() != eps.DType() {
		return nil, fmt.Errorf("%s backprop: dtype mismatch %s vs %s", e.name, z.DType(), eps.DType())
	}
	zc := z.Contiguous()
	out := eps.Contiguous()
	if out == eps {
		out = eps.Dup()
	}
	switch out.DType() {
	case tensor.Float32:
		zd, od := zc.AsFloat32(), out.AsFloat32()
		for i := range od {
			od[i] *= float32(e.df(float64(zd[i])))
		}
	case tensor.Float64:
		zd, od := zc.AsFloat64(), out.AsFloat64()
		for i := range od {
			od[i] *= e.df(zd[i])
		}
	}
	return out, nil
}

// Identity returns f(x) = x.
func Identity() Elementwise {
	return &elementwise{
		name: "identity",
		f:    func(x float64) float64 { return x },
		df:   func(float64) float64 { return 1 },
	}
}

// ReLU returns f(x) = max(0, x). The derivative at 0 is taken as 0.
func ReLU() Elementwise {
	return &elementwise{
		name: "relu",
		f:    func(x float64) float64 { return math.Max(0, x) },
		df: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	}
}

// LeakyReLU returns f(x) = x for x > 0, alpha*x otherwise.
func LeakyReLU(alpha float64) Elementwise {
	return &elementwise{
		name: "leakyrelu",
		f: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return alpha * x
		},
		df: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return alpha
		},
	}
}

// ELU returns f(x) = x for x > 0, alpha*(exp(x)-1) otherwise.
func ELU(alpha float64) Elementwise {
	return &elementwise{
		name: "elu",
		f: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return alpha * math.Expm1(x)
		},
		df: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return alpha * math.Exp(x)
		},
	}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Sigmoid returns f(x) = 1 / (1 + exp(-x)).
func Sigmoid() Elementwise {
	return &elementwise{
		name: "sigmoid",
		f:    sigmoid,
		df: func(x float64) float64 {
			s := sigmoid(x)
			return s * (1 - s)
		},
	}
}

// Tanh returns f(x) = tanh(x).
func Tanh() Elementwise {
	return &elementwise{
		name: "tanh",
		f:    math.Tanh,
		df: func(x float64) float64 {
			t := math.Tanh(x)
			return 1 - t*t
		},
	}
}

// Softplus returns f(x) = log(1 + exp(x)).
func Softplus() Elementwise {
	return &elementwise{
		name: "softplus",
		f: func(x float64) float64 {
			// log1p(exp(x)) overflows for large x.
			if x > 20 {
				return x
			}
			return math.Log1p(math.Exp(x))
		},
		df: sigmoid,
	}
}

// Softsign returns f(x) = x / (1 + |x|).
func Softsign() Elementwise {
	return &elementwise{
		name: "softsign",
		f:    func(x float64) float64 { return x / (1 + math.Abs(x)) },
		df: func(x float64) float64 {
			d := 1 + math.Abs(x)
			return 1 / (d * d)
		},
	}
}

// Swish returns f(x) = x * sigmoid(x).
func Swish() Elementwise {
	return &elementwise{
		name: "swish",
		f:    func(x float64) float64 { return x * sigmoid(x) },
		df: func(x float64) float64 {
			s := sigmoid(x)
			return s + x*s*(1-s)
		},
	}
}

// GELU returns the exact Gaussian error linear unit x * Phi(x).
func GELU() Elementwise {
	return &elementwise{
		name: "gelu",
		f:    func(x float64) float64 { return 0.5 * x * (1 + math.Erf(x/math.Sqrt2)) },
		df: func(x float64) float64 {
			cdf := 0.5 * (1 + math.Erf(x/math.Sqrt2))
			pdf := math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
			return cdf + x*pdf
		},
	}
}

// Default slopes for the parameterised functions returned by FromName.
const (
	DefaultLeakyReLUAlpha = 0.01
	DefaultELUAlpha       = 1.0
)

// FromName returns the activation with the given case-insensitive name.
func FromName(name string) (Func, error) {
	switch strings.ToLower(name) {
	case "identity", "linear", "":
		return Identity(), nil
	case "relu":
		return ReLU(), nil
	case "leakyrelu":
		return LeakyReLU(DefaultLeakyReLUAlpha), nil
	case "elu":
		return ELU(DefaultELUAlpha), nil
	case "sigmoid":
		return Sigmoid(), nil
	case "tanh":
		return Tanh(), nil
	case "softplus":
		return Softplus(), nil
	case "softsign":
		return Softsign(), nil
	case "swish", "silu":
		return Swish(), nil
	case "gelu":
		return GELU(), nil
	default:
		return nil, fmt.Errorf("unknown activation %q", name)
	}
}
