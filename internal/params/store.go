// Package params owns a layer's trainable parameters and their gradients.
//
// Parameters and gradients each live in one flat arena; the per-key tensors
// handed out by Store are views into those arenas, so an optimizer can update
// the whole layer through Flat and FlatGradients while kernels write into the
// per-key gradient views in place.
package params

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/sepconv/internal/tensor"
)

// Spec declares one parameter.
type Spec struct {
	Key   string
	Shape tensor.Shape
}

// Store holds the parameter and gradient arenas of one layer.
type Store struct {
	dtype  tensor.DataType
	keys   []string
	params *tensor.RawTensor
	grads  *tensor.RawTensor
	views  map[string]*tensor.RawTensor
	gviews map[string]*tensor.RawTensor

	noise Noise
	noisy map[string]*tensor.RawTensor
}

// NewStore allocates zeroed arenas for the given parameters, in order.
func NewStore(dtype tensor.DataType, specs ...Spec) (*Store, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("params: no parameters declared")
	}
	total := 0
	for _, sp := range specs {
		if err := sp.Shape.Validate(); err != nil {
			return nil, fmt.Errorf("params: %q: %w", sp.Key, err)
		}
		total += sp.Shape.NumElements()
	}

	params, err := tensor.NewRaw(tensor.Shape{total}, dtype)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	grads, err := tensor.NewRaw(tensor.Shape{total}, dtype)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}

	s := &Store{
		dtype:  dtype,
		params: params,
		grads:  grads,
		views:  make(map[string]*tensor.RawTensor, len(specs)),
		gviews: make(map[string]*tensor.RawTensor, len(specs)),
		noisy:  make(map[string]*tensor.RawTensor),
	}
	offset := 0
	for _, sp := range specs {
		if _, dup := s.views[sp.Key]; dup {
			return nil, fmt.Errorf("params: duplicate parameter %q", sp.Key)
		}
		pv, err := params.View(offset, sp.Shape)
		if err != nil {
			return nil, fmt.Errorf("params: %q: %w", sp.Key, err)
		}
		gv, err := grads.View(offset, sp.Shape)
		if err != nil {
			return nil, fmt.Errorf("params: %q: %w", sp.Key, err)
		}
		s.keys = append(s.keys, sp.Key)
		s.views[sp.Key] = pv
		s.gviews[sp.Key] = gv
		offset += sp.Shape.NumElements()
	}
	return s, nil
}

// DType returns the element type of both arenas.
func (s *Store) DType() tensor.DataType {
	return s.dtype
}

// Keys returns the parameter keys in declaration order.
func (s *Store) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Has reports whether key was declared.
func (s *Store) Has(key string) bool {
	_, ok := s.views[key]
	return ok
}

// NumParams returns the total number of scalar parameters.
func (s *Store) NumParams() int {
	return s.params.NumElements()
}

// Flat returns the whole parameter arena.
func (s *Store) Flat() *tensor.RawTensor {
	return s.params
}

// FlatGradients returns the whole gradient arena.
func (s *Store) FlatGradients() *tensor.RawTensor {
	return s.grads
}

// Param returns the view of parameter key. Writes go to the arena.
// Panics if key was not declared.
func (s *Store) Param(key string) *tensor.RawTensor {
	v, ok := s.views[key]
	if !ok {
		panic(fmt.Sprintf("params: unknown parameter %q", key))
	}
	return v
}

// GradientView returns the gradient view of parameter key. The same tensor
// is returned on every call; kernels overwrite it in place.
// Panics if key was not declared.
func (s *Store) GradientView(key string) *tensor.RawTensor {
	v, ok := s.gviews[key]
	if !ok {
		panic(fmt.Sprintf("params: unknown parameter %q", key))
	}
	return v
}

// SetWeightNoise installs the noise applied by ParamWithNoise. nil disables
// noise. Pending noisy copies are discarded.
func (s *Store) SetWeightNoise(n Noise) {
	s.ClearNoise()
	s.noise = n
}

// WeightNoise returns the installed noise, or nil.
func (s *Store) WeightNoise() Noise {
	return s.noise
}

// ParamWithNoise returns parameter key as seen by one training iteration.
// Outside training, or without applicable noise, it is the plain view.
// Otherwise the noisy copy is drawn once and reused until ClearNoise, so a
// forward pass and the matching backward pass see the same weights.
func (s *Store) ParamWithNoise(key string, training bool) *tensor.RawTensor {
	p := s.Param(key)
	if !training || s.noise == nil || !s.noise.AppliesTo(key) {
		return p
	}
	if n, ok := s.noisy[key]; ok {
		return n
	}
	n := s.noise.Perturb(p)
	s.noisy[key] = n
	return n
}

// HasPendingNoise reports whether any noisy copy is held.
func (s *Store) HasPendingNoise() bool {
	return len(s.noisy) > 0
}

// ClearNoise drops all noisy copies.
func (s *Store) ClearNoise() {
	for k, n := range s.noisy {
		n.Release()
		delete(s.noisy, k)
	}
}

// ZeroGradients clears the gradient arena.
func (s *Store) ZeroGradients() {
	s.grads.Zero()
}

// InitUniform fills parameter key from U(-bound, bound) with
// bound = sqrt(6 / (fanIn + fanOut)) (Xavier/Glorot).
func (s *Store) InitUniform(key string, fanIn, fanOut int) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	dist := distuv.Uniform{Min: -bound, Max: bound}
	p := s.Param(key)
	switch s.dtype {
	case tensor.Float32:
		data := p.AsFloat32()
		for i := range data {
			data[i] = float32(dist.Rand())
		}
	case tensor.Float64:
		data := p.AsFloat64()
		for i := range data {
			data[i] = dist.Rand()
		}
	}
}
