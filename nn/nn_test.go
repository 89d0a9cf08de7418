// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sepconv/backend/cpu"
	"github.com/born-ml/sepconv/nn"
	"github.com/born-ml/sepconv/tensor"
)

func TestSeparableConv2D_PublicAPI(t *testing.T) {
	backend := cpu.New()
	cfg := nn.DefaultSeparableConv2DConfig(2, 4)
	cfg.Conv.Mode = nn.PaddingSame
	cfg.Activation = nn.ReLU()
	cfg.CacheMode = nn.CacheHost
	cfg.Backend = backend
	cfg.Helpers = []nn.ConvHelper{cpu.NewIm2colHelper(backend, cpu.DefaultIm2colConfig())}
	layer := nn.NewSeparableConv2D(cfg)

	x, err := tensor.NewRaw(tensor.Shape{1, 2, 6, 6}, tensor.Float32)
	require.NoError(t, err)
	x.Fill(0.5)
	layer.SetInput(x)

	out, err := layer.Activate(true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4, 6, 6}, out.Shape())
	assert.True(t, layer.HasCachedPreOutput())

	eps, err := tensor.NewRaw(out.Shape(), tensor.Float32)
	require.NoError(t, err)
	eps.Fill(1)
	grad, epsIn, err := layer.BackpropGradient(eps)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), epsIn.Shape())
	assert.Equal(t, []string{nn.DepthwiseWeightKey, nn.PointwiseWeightKey}, grad.Keys())
}

func TestSeparableConv2D_PublicErrors(t *testing.T) {
	layer := nn.NewSeparableConv2D(nn.DefaultSeparableConv2DConfig(3, 3))

	_, err := layer.Activate(false)
	assert.True(t, errors.Is(err, nn.ErrMissingInput))

	small, _ := tensor.NewRaw(tensor.Shape{1, 3, 2, 2}, tensor.Float32)
	layer.SetInput(small)
	_, err = layer.Activate(false)
	assert.ErrorIs(t, err, nn.ErrInvalidGeometry)
}

func ExampleNewSeparableConv2D() {
	cfg := nn.DefaultSeparableConv2DConfig(3, 8)
	cfg.DepthMultiplier = 2
	cfg.Conv.Stride = [2]int{2, 2}
	cfg.Conv.Mode = nn.PaddingSame
	layer := nn.NewSeparableConv2D(cfg)

	shape, err := layer.OutputShape(tensor.Shape{4, 3, 31, 32})
	if err != nil {
		panic(err)
	}
	fmt.Println(shape)
	fmt.Println(layer.Params().Param(nn.DepthwiseWeightKey).Shape())
	fmt.Println(layer.Params().Param(nn.PointwiseWeightKey).Shape())
	// Output:
	// [4, 8, 16, 16]
	// [2, 3, 3, 3]
	// [8, 6, 1, 1]
}
