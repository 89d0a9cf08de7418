package params

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/sepconv/internal/tensor"
)

// BiasKey is the conventional key of a bias parameter. Noise skips it unless
// configured otherwise.
const BiasKey = "b"

// Noise perturbs parameters during training.
type Noise interface {
	// AppliesTo reports whether the parameter key is perturbed.
	AppliesTo(key string) bool
	// Perturb returns a perturbed copy of w. w is not modified.
	Perturb(w *tensor.RawTensor) *tensor.RawTensor
}

// DropConnect zeroes each weight independently with probability
// 1 - RetainProb.
type DropConnect struct {
	RetainProb  float64
	ApplyToBias bool
}

// NewDropConnect returns DropConnect noise keeping weights with probability
// retain. Panics unless 0 < retain <= 1.
func NewDropConnect(retain float64) *DropConnect {
	if retain <= 0 || retain > 1 {
		panic(fmt.Sprintf("params: DropConnect retain probability %v outside (0, 1]", retain))
	}
	return &DropConnect{RetainProb: retain}
}

// AppliesTo implements Noise.
func (d *DropConnect) AppliesTo(key string) bool {
	return key != BiasKey || d.ApplyToBias
}

// Perturb implements Noise.
func (d *DropConnect) Perturb(w *tensor.RawTensor) *tensor.RawTensor {
	mask := distuv.Bernoulli{P: d.RetainProb}
	return perturb(w, func(v float64) float64 {
		return v * mask.Rand()
	})
}

// GaussianNoise perturbs weights with N(0, Stddev) when Additive, or scales
// them by N(1, Stddev) otherwise.
type GaussianNoise struct {
	Stddev      float64
	Additive    bool
	ApplyToBias bool
}

// AppliesTo implements Noise.
func (g *GaussianNoise) AppliesTo(key string) bool {
	return key != BiasKey || g.ApplyToBias
}

// Perturb implements Noise.
func (g *GaussianNoise) Perturb(w *tensor.RawTensor) *tensor.RawTensor {
	if g.Additive {
		dist := distuv.Normal{Mu: 0, Sigma: g.Stddev}
		return perturb(w, func(v float64) float64 { return v + dist.Rand() })
	}
	dist := distuv.Normal{Mu: 1, Sigma: g.Stddev}
	return perturb(w, func(v float64) float64 { return v * dist.Rand() })
}

func perturb(w *tensor.RawTensor, f func(float64) float64) *tensor.RawTensor {
	out := w.Dup()
	switch out.DType() {
	case tensor.Float32:
		data := out.AsFloat32()
		for i, v := range data {
			data[i] = float32(f(float64(v)))
		}
	case tensor.Float64:
		data := out.AsFloat64()
		for i, v := range data {
			data[i] = f(v)
		}
	}
	return out
}
