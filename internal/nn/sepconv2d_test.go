package nn

import (
	"bytes"
	"errors"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/sepconv/internal/activation"
	"github.com/born-ml/sepconv/internal/backend/cpu"
	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/memory"
	"github.com/born-ml/sepconv/internal/params"
	"github.com/born-ml/sepconv/internal/tensor"
)

func randInput(t *testing.T, rng *rand.Rand, shape tensor.Shape, dt tensor.DataType) *tensor.RawTensor {
	t.Helper()
	x, err := tensor.NewRaw(shape, dt)
	require.NoError(t, err)
	n := x.NumElements()
	for i := 0; i < n; i++ {
		idx := []int{i / (shape[1] * shape[2] * shape[3]), i / (shape[2] * shape[3]) % shape[1],
			i / shape[3] % shape[2], i % shape[3]}
		x.Set(rng.Float64()*2-1, idx...)
	}
	return x
}

func testConfig(nIn, nOut int) SeparableConv2DConfig {
	cfg := DefaultSeparableConv2DConfig(nIn, nOut)
	cfg.Name = "sep1"
	cfg.Index = 3
	cfg.DType = tensor.Float64
	cfg.Conv.Padding = [2]int{1, 1}
	return cfg
}

// twin returns a second layer built from cfg with the same parameters as l.
func twin(t *testing.T, l *SeparableConv2D, cfg SeparableConv2DConfig) *SeparableConv2D {
	t.Helper()
	other := NewSeparableConv2D(cfg)
	require.NoError(t, other.Params().Flat().CopyFrom(l.Params().Flat()))
	return other
}

func TestSeparableConv2D_OutputShape(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SeparableConv2DConfig)
		input   tensor.Shape
		wantOut tensor.Shape
	}{
		{"padded 3x3 keeps size", func(*SeparableConv2DConfig) {}, tensor.Shape{2, 3, 32, 32}, tensor.Shape{2, 5, 32, 32}},
		{"valid 3x3", func(c *SeparableConv2DConfig) { c.Conv.Padding = [2]int{0, 0} }, tensor.Shape{1, 3, 8, 6}, tensor.Shape{1, 5, 6, 4}},
		{"same stride 2", func(c *SeparableConv2DConfig) {
			c.Conv.Mode = conv.Same
			c.Conv.Stride = [2]int{2, 2}
		}, tensor.Shape{2, 3, 9, 10}, tensor.Shape{2, 5, 5, 5}},
		{"depthwise only with multiplier", func(c *SeparableConv2DConfig) {
			c.UsePointwise = false
			c.DepthMultiplier = 2
			c.NOut = 0
		}, tensor.Shape{1, 3, 5, 5}, tensor.Shape{1, 6, 5, 5}},
		{"dilated", func(c *SeparableConv2DConfig) {
			c.Conv.Dilation = [2]int{2, 2}
			c.Conv.Padding = [2]int{0, 0}
		}, tensor.Shape{1, 3, 9, 9}, tensor.Shape{1, 5, 5, 5}},
	}

	rng := rand.New(rand.NewSource(1)) //nolint:gosec // Deterministic test data
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(3, 5)
			tt.mutate(&cfg)
			layer := NewSeparableConv2D(cfg)

			shape, err := layer.OutputShape(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, shape)

			layer.SetInput(randInput(t, rng, tt.input, tensor.Float64))
			out, err := layer.Activate(false)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out.Shape())
			assert.Equal(t, tensor.C, out.Order())
		})
	}
}

func TestSeparableConv2D_MissingInput(t *testing.T) {
	layer := NewSeparableConv2D(testConfig(3, 5))

	_, err := layer.Activate(true)
	assert.ErrorIs(t, err, ErrMissingInput)
	_, err = layer.PreOutput(false)
	assert.ErrorIs(t, err, ErrMissingInput)
	_, _, err = layer.BackpropGradient(nil)
	assert.ErrorIs(t, err, ErrMissingInput)

	var me *MissingInputError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "sep1", me.Layer)
	assert.Equal(t, 3, me.Index)
	assert.Equal(t, "backprop", me.Op)
}

func TestSeparableConv2D_WrongRank(t *testing.T) {
	layer := NewSeparableConv2D(testConfig(3, 5))

	flat, _ := tensor.NewRaw(tensor.Shape{2, 75}, tensor.Float64)
	layer.SetInput(flat)

	_, err := layer.Activate(false)
	require.ErrorIs(t, err, ErrInvalidInputShape)
	assert.Contains(t, err.Error(), "flattened")
	assert.Contains(t, err.Error(), "[2, 75]")
	assert.Contains(t, err.Error(), `"sep1"`)

	eps, _ := tensor.NewRaw(tensor.Shape{2, 5, 5, 5}, tensor.Float64)
	_, _, err = layer.BackpropGradient(eps)
	require.ErrorIs(t, err, ErrInvalidInputShape)
	assert.Contains(t, err.Error(), "flattened")

	rank3, _ := tensor.NewRaw(tensor.Shape{3, 5, 5}, tensor.Float64)
	layer.SetInput(rank3)

	_, err = layer.Activate(false)
	require.ErrorIs(t, err, ErrInvalidInputShape)
	assert.NotContains(t, err.Error(), "flattened")

	_, _, err = layer.BackpropGradient(eps)
	var se *InvalidInputShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, tensor.Shape{3, 5, 5}, se.Shape)
	assert.Empty(t, se.Hint)
}

func TestSeparableConv2D_ChannelMismatch(t *testing.T) {
	layer := NewSeparableConv2D(testConfig(3, 5))
	x, _ := tensor.NewRaw(tensor.Shape{1, 4, 6, 6}, tensor.Float64)
	layer.SetInput(x)

	_, err := layer.Activate(false)
	require.ErrorIs(t, err, ErrChannelMismatch)

	var ce *ChannelMismatchError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 4, ce.Got)
	assert.Equal(t, 3, ce.Expected)

	_, _, err = layer.BackpropGradient(nil)
	assert.ErrorIs(t, err, ErrChannelMismatch)
}

func TestSeparableConv2D_DTypeMismatch(t *testing.T) {
	layer := NewSeparableConv2D(testConfig(3, 5))
	x, _ := tensor.NewRaw(tensor.Shape{1, 3, 6, 6}, tensor.Float32)
	layer.SetInput(x)

	_, err := layer.Activate(false)
	assert.ErrorIs(t, err, ErrInvalidInputShape)
}

func TestSeparableConv2D_InvalidGeometry(t *testing.T) {
	cfg := testConfig(3, 5)
	cfg.Conv.Kernel = [2]int{5, 5}
	cfg.Conv.Padding = [2]int{0, 0}
	layer := NewSeparableConv2D(cfg)
	x, _ := tensor.NewRaw(tensor.Shape{1, 3, 3, 3}, tensor.Float64)
	layer.SetInput(x)

	_, err := layer.Activate(false)
	require.ErrorIs(t, err, conv.ErrInvalidGeometry)
	assert.Contains(t, err.Error(), "sep1")

	_, _, err = layer.BackpropGradient(nil)
	assert.ErrorIs(t, err, conv.ErrInvalidGeometry)
}

func TestSeparableConv2D_BackpropShapesAndRecord(t *testing.T) {
	rng := rand.New(rand.NewSource(2)) //nolint:gosec // Deterministic test data

	t.Run("pointwise", func(t *testing.T) {
		cfg := testConfig(3, 5)
		cfg.Conv.Stride = [2]int{2, 2}
		layer := NewSeparableConv2D(cfg)
		x := randInput(t, rng, tensor.Shape{2, 3, 7, 9}, tensor.Float64)
		layer.SetInput(x)

		out, err := layer.Activate(true)
		require.NoError(t, err)
		eps := randInput(t, rng, out.Shape(), tensor.Float64)

		grad, epsOut, err := layer.BackpropGradient(eps)
		require.NoError(t, err)

		assert.Equal(t, x.Shape(), epsOut.Shape())
		assert.Equal(t, []string{DepthwiseWeightKey, PointwiseWeightKey}, grad.Keys())
		assert.Nil(t, grad.Get(BiasKey))
		for _, key := range grad.Keys() {
			order, ok := grad.Order(key)
			require.True(t, ok)
			assert.Equal(t, tensor.C, order)
			assert.Same(t, layer.Params().GradientView(key), grad.Get(key))
			assert.True(t, grad.Get(key).SharesBuffer(layer.Params().FlatGradients()))
		}
	})

	t.Run("depthwise only", func(t *testing.T) {
		cfg := testConfig(2, 0)
		cfg.UsePointwise = false
		cfg.DepthMultiplier = 3
		cfg.HasBias = false
		layer := NewSeparableConv2D(cfg)
		x := randInput(t, rng, tensor.Shape{1, 2, 5, 5}, tensor.Float64)
		layer.SetInput(x)

		out, err := layer.Activate(true)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{1, 6, 5, 5}, out.Shape())

		grad, epsOut, err := layer.BackpropGradient(randInput(t, rng, out.Shape(), tensor.Float64))
		require.NoError(t, err)
		assert.Equal(t, x.Shape(), epsOut.Shape())
		assert.Equal(t, []string{DepthwiseWeightKey}, grad.Keys())
		assert.Equal(t, 1, grad.Len())
	})
}

func TestSeparableConv2D_GradientBufferIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(3)) //nolint:gosec // Deterministic test data
	layer := NewSeparableConv2D(testConfig(3, 4))
	gradW := layer.Params().GradientView(DepthwiseWeightKey)

	for i := 0; i < 3; i++ {
		layer.SetInput(randInput(t, rng, tensor.Shape{2, 3, 6, 6}, tensor.Float64))
		out, err := layer.Activate(true)
		require.NoError(t, err)
		grad, _, err := layer.BackpropGradient(randInput(t, rng, out.Shape(), tensor.Float64))
		require.NoError(t, err)
		assert.Same(t, gradW, grad.Get(DepthwiseWeightKey))
	}
}

func TestSeparableConv2D_BadEpsilonLeavesGradientsUntouched(t *testing.T) {
	rng := rand.New(rand.NewSource(4)) //nolint:gosec // Deterministic test data
	layer := NewSeparableConv2D(testConfig(3, 4))
	layer.SetInput(randInput(t, rng, tensor.Shape{2, 3, 6, 6}, tensor.Float64))
	layer.Params().FlatGradients().Fill(7)

	tests := []tensor.Shape{
		{2, 3, 6, 6}, // input-shaped
		{2, 4, 5, 5},
		{2, 4, 6},
	}
	for _, shape := range tests {
		eps, err := tensor.NewRaw(shape, tensor.Float64)
		require.NoError(t, err)
		_, _, err = layer.BackpropGradient(eps)
		assert.ErrorIs(t, err, ErrInvalidInputShape, "epsilon %v", shape)
	}
	_, _, err := layer.BackpropGradient(nil)
	assert.ErrorIs(t, err, ErrInvalidInputShape)

	for _, v := range layer.Params().FlatGradients().AsFloat64() {
		require.Equal(t, 7.0, v)
	}
}

// The layer's input gradient and weight gradients must match central
// differences of L = sum(activate(x) * r).
func TestSeparableConv2D_GradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(5)) //nolint:gosec // Deterministic test data

	for _, fn := range []activation.Func{activation.Tanh(), activation.Sigmoid(), activation.Identity()} {
		t.Run(fn.String(), func(t *testing.T) {
			cfg := testConfig(2, 3)
			cfg.DepthMultiplier = 2
			cfg.Activation = fn
			cfg.Conv.Mode = conv.Same
			cfg.Conv.Stride = [2]int{2, 1}
			layer := NewSeparableConv2D(cfg)
			layer.Params().Param(BiasKey).Fill(0.1)

			x := randInput(t, rng, tensor.Shape{2, 2, 5, 4}, tensor.Float64)
			layer.SetInput(x)
			out, err := layer.Activate(true)
			require.NoError(t, err)
			r := randInput(t, rng, out.Shape(), tensor.Float64)

			grad, epsOut, err := layer.BackpropGradient(r)
			require.NoError(t, err)

			loss := func() float64 {
				o, err := layer.Activate(false)
				require.NoError(t, err)
				return floats.Dot(o.ToFloat64(), r.ToFloat64())
			}
			numeric := func(p *tensor.RawTensor) []float64 {
				data := p.AsFloat64()
				orig := append([]float64(nil), data...)
				defer func() { copy(data, orig) }()
				return fd.Gradient(nil, func(v []float64) float64 {
					copy(data, v)
					return loss()
				}, orig, &fd.Settings{Formula: fd.Central})
			}

			assert.True(t, floats.EqualApprox(numeric(x), epsOut.AsFloat64(), 1e-6), "input gradient")
			for _, key := range grad.Keys() {
				assert.True(t, floats.EqualApprox(numeric(layer.Params().Param(key)), grad.Get(key).ToFloat64(), 1e-6), key)
			}
		})
	}
}

func TestSeparableConv2D_CacheProduceConsume(t *testing.T) {
	rng := rand.New(rand.NewSource(6)) //nolint:gosec // Deterministic test data
	cfg := testConfig(3, 4)
	cfg.CacheMode = CacheHost
	cfg.Activation = activation.Tanh()
	layer := NewSeparableConv2D(cfg)
	x := randInput(t, rng, tensor.Shape{2, 3, 6, 6}, tensor.Float64)
	layer.SetInput(x)

	_, err := layer.Activate(false)
	require.NoError(t, err)
	assert.False(t, layer.HasCachedPreOutput(), "inference does not cache")

	out, err := layer.Activate(true)
	require.NoError(t, err)
	assert.True(t, layer.HasCachedPreOutput())

	eps := randInput(t, rng, out.Shape(), tensor.Float64)
	cached, cachedEps, err := layer.BackpropGradient(eps)
	require.NoError(t, err)
	assert.False(t, layer.HasCachedPreOutput(), "backprop consumes the cache")
	cachedW := cached.Get(DepthwiseWeightKey).ToFloat64()

	// Without a cache the pre-activation is recomputed; results must agree.
	uncachedCfg := cfg
	uncachedCfg.CacheMode = CacheNone
	plain := twin(t, layer, uncachedCfg)
	plain.SetInput(x)
	_, err = plain.Activate(true)
	require.NoError(t, err)
	assert.False(t, plain.HasCachedPreOutput())
	grad, plainEps, err := plain.BackpropGradient(eps)
	require.NoError(t, err)

	assert.True(t, floats.EqualApprox(cachedEps.ToFloat64(), plainEps.ToFloat64(), 1e-12))
	assert.True(t, floats.EqualApprox(cachedW, grad.Get(DepthwiseWeightKey).ToFloat64(), 1e-12))
}

func TestSeparableConv2D_CacheNeedsWorkspace(t *testing.T) {
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // Deterministic test data
	cfg := testConfig(3, 4)
	cfg.CacheMode = CacheHost
	layer := NewSeparableConv2D(cfg)
	layer.mem.Remove(memory.CacheWorkspace)

	layer.SetInput(randInput(t, rng, tensor.Shape{1, 3, 4, 4}, tensor.Float64))
	_, err := layer.Activate(true)
	require.NoError(t, err)
	assert.False(t, layer.HasCachedPreOutput())
}

func TestSeparableConv2D_RepeatedActivateIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(8)) //nolint:gosec // Deterministic test data
	cfg := testConfig(3, 4)
	cfg.CacheMode = CacheHost
	cfg.Activation = activation.ReLU()
	layer := NewSeparableConv2D(cfg)
	reference := twin(t, layer, func() SeparableConv2DConfig { c := cfg; c.CacheMode = CacheNone; return c }())

	x1 := randInput(t, rng, tensor.Shape{2, 3, 6, 6}, tensor.Float64)
	x2 := randInput(t, rng, tensor.Shape{2, 3, 6, 6}, tensor.Float64)

	layer.SetInput(x1)
	out1, err := layer.Activate(true)
	require.NoError(t, err)
	snapshot := out1.ToFloat64()

	layer.SetInput(x2)
	out2, err := layer.Activate(true)
	require.NoError(t, err)

	assert.Equal(t, snapshot, out1.ToFloat64(), "first output changed by second call")
	assert.False(t, out1.SharesBuffer(out2))

	reference.SetInput(x2)
	want, err := reference.Activate(false)
	require.NoError(t, err)
	assert.Equal(t, want.ToFloat64(), out2.ToFloat64())
}

func TestSeparableConv2D_ZeroBiasCreatedOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(9)) //nolint:gosec // Deterministic test data
	cfg := testConfig(3, 4)
	cfg.HasBias = false
	layer := NewSeparableConv2D(cfg)
	assert.False(t, layer.Params().Has(BiasKey))
	assert.Nil(t, layer.zeroBias)

	layer.SetInput(randInput(t, rng, tensor.Shape{1, 3, 4, 4}, tensor.Float64))
	_, err := layer.Activate(true)
	require.NoError(t, err)
	first := layer.zeroBias
	require.NotNil(t, first)
	assert.Equal(t, tensor.Shape{1, 4}, first.Shape())

	out, err := layer.Activate(false)
	require.NoError(t, err)
	eps := randInput(t, rng, out.Shape(), tensor.Float64)
	_, _, err = layer.BackpropGradient(eps)
	require.NoError(t, err)

	assert.Same(t, first, layer.zeroBias)
	assert.Zero(t, floats.Norm(first.AsFloat64(), 1))
}

// decliningHelper refuses every call and counts the attempts.
type decliningHelper struct {
	preOutputs, activations int
}

func (d *decliningHelper) Name() string { return "declining" }

func (d *decliningHelper) PreOutput(_, _, _, _ *tensor.RawTensor, _ conv.Geometry) (*tensor.RawTensor, bool) {
	d.preOutputs++
	return nil, false
}

func (d *decliningHelper) Activate(_ *tensor.RawTensor, _ activation.Func) (*tensor.RawTensor, bool) {
	d.activations++
	return nil, false
}

// constantHelper accepts every call with a fixed result.
type constantHelper struct{ out *tensor.RawTensor }

func (c constantHelper) Name() string { return "constant" }

func (c constantHelper) PreOutput(_, _, _, _ *tensor.RawTensor, _ conv.Geometry) (*tensor.RawTensor, bool) {
	return c.out.Dup(), true
}

func (c constantHelper) Activate(z *tensor.RawTensor, _ activation.Func) (*tensor.RawTensor, bool) {
	return z.Dup(), true
}

func TestSeparableConv2D_HelperFallback(t *testing.T) {
	rng := rand.New(rand.NewSource(10)) //nolint:gosec // Deterministic test data
	x := randInput(t, rng, tensor.Shape{2, 3, 6, 6}, tensor.Float64)

	cfg := testConfig(3, 4)
	cfg.Activation = activation.Softsign()
	plain := NewSeparableConv2D(cfg)
	plain.SetInput(x)
	want, err := plain.Activate(false)
	require.NoError(t, err)

	declining := &decliningHelper{}
	var logs bytes.Buffer
	withHelper := cfg
	withHelper.Helpers = []ConvHelper{declining}
	withHelper.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	layer := twin(t, plain, withHelper)
	layer.SetInput(x)

	got, err := layer.Activate(false)
	require.NoError(t, err)
	assert.Equal(t, want.ToFloat64(), got.ToFloat64())
	assert.Equal(t, 1, declining.preOutputs)
	assert.Equal(t, 1, declining.activations)
	assert.Contains(t, logs.String(), "helper declined")
	assert.Contains(t, logs.String(), "declining")

	// Column-major input is never offered to accelerated helpers.
	f, err := x.Reshape(tensor.F, x.Shape())
	require.NoError(t, err)
	layer.SetInput(f)
	got, err = layer.Activate(false)
	require.NoError(t, err)
	assert.Equal(t, 1, declining.preOutputs)
	assert.True(t, floats.EqualApprox(want.ToFloat64(), got.ToFloat64(), 1e-12))
}

func TestSeparableConv2D_AcceptingHelperWins(t *testing.T) {
	cfg := testConfig(3, 4)
	cfg.Conv.Padding = [2]int{0, 0}
	sentinel, err := tensor.NewRaw(tensor.Shape{1, 4, 2, 2}, tensor.Float64)
	require.NoError(t, err)
	sentinel.Fill(42)

	second := &decliningHelper{}
	cfg.Helpers = []ConvHelper{constantHelper{out: sentinel}, second}
	layer := NewSeparableConv2D(cfg)
	x, _ := tensor.NewRaw(tensor.Shape{1, 3, 4, 4}, tensor.Float64)
	layer.SetInput(x)

	out, err := layer.Activate(false)
	require.NoError(t, err)
	assert.Equal(t, 42.0, out.At(0, 3, 1, 1))
	assert.Zero(t, second.preOutputs)
	assert.Zero(t, second.activations)
}

func TestSeparableConv2D_Im2colHelperMatchesPrimitive(t *testing.T) {
	rng := rand.New(rand.NewSource(11)) //nolint:gosec // Deterministic test data
	cfg := testConfig(4, 6)
	cfg.DepthMultiplier = 2
	cfg.Conv.Mode = conv.Same
	cfg.Conv.Dilation = [2]int{2, 1}
	cfg.Activation = activation.GELU()
	plain := NewSeparableConv2D(cfg)

	fast := cfg
	backend := cpu.New()
	fast.Backend = backend
	fast.Helpers = []ConvHelper{cpu.NewIm2colHelper(backend, cpu.DefaultIm2colConfig())}
	accelerated := twin(t, plain, fast)

	for i := 0; i < 5; i++ {
		x := randInput(t, rng, tensor.Shape{2, 4, 5 + i, 7}, tensor.Float64)
		plain.SetInput(x)
		accelerated.SetInput(x)

		want, err := plain.Activate(false)
		require.NoError(t, err)
		got, err := accelerated.Activate(false)
		require.NoError(t, err)
		assert.True(t, floats.EqualApprox(want.ToFloat64(), got.ToFloat64(), 1e-10))
	}
}

func TestSeparableConv2D_WeightNoiseClearedAfterBackprop(t *testing.T) {
	rng := rand.New(rand.NewSource(12)) //nolint:gosec // Deterministic test data
	cfg := testConfig(3, 4)
	cfg.WeightNoise = &params.GaussianNoise{Stddev: 0.1, Additive: true}
	layer := NewSeparableConv2D(cfg)
	layer.SetInput(randInput(t, rng, tensor.Shape{1, 3, 5, 5}, tensor.Float64))

	_, err := layer.Activate(false)
	require.NoError(t, err)
	assert.False(t, layer.Params().HasPendingNoise(), "inference draws no noise")

	out, err := layer.Activate(true)
	require.NoError(t, err)
	assert.True(t, layer.Params().HasPendingNoise())

	_, _, err = layer.BackpropGradient(randInput(t, rng, out.Shape(), tensor.Float64))
	require.NoError(t, err)
	assert.False(t, layer.Params().HasPendingNoise())
}

func TestSeparableConv2D_PreOutputMatchesIdentityActivate(t *testing.T) {
	rng := rand.New(rand.NewSource(13)) //nolint:gosec // Deterministic test data
	layer := NewSeparableConv2D(testConfig(3, 2))
	layer.SetInput(randInput(t, rng, tensor.Shape{1, 3, 5, 5}, tensor.Float64))

	z, err := layer.PreOutput(false)
	require.NoError(t, err)
	a, err := layer.Activate(false)
	require.NoError(t, err)
	assert.Equal(t, z.ToFloat64(), a.ToFloat64())
}

func TestNewSeparableConv2D_InvalidConfigPanics(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SeparableConv2DConfig)
	}{
		{"zero input channels", func(c *SeparableConv2DConfig) { c.NIn = 0 }},
		{"zero depth multiplier", func(c *SeparableConv2DConfig) { c.DepthMultiplier = 0 }},
		{"depthwise only channel count", func(c *SeparableConv2DConfig) { c.UsePointwise = false }},
		{"zero kernel", func(c *SeparableConv2DConfig) { c.Conv.Kernel = [2]int{0, 3} }},
		{"zero stride", func(c *SeparableConv2DConfig) { c.Conv.Stride = [2]int{1, 0} }},
		{"negative padding", func(c *SeparableConv2DConfig) { c.Conv.Padding = [2]int{-1, 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(3, 5)
			tt.mutate(&cfg)
			assert.Panics(t, func() { NewSeparableConv2D(cfg) })
		})
	}
}

func TestParseCacheMode(t *testing.T) {
	for _, m := range []CacheMode{CacheNone, CacheHost, CacheDevice} {
		got, err := ParseCacheMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseCacheMode("disk")
	assert.Error(t, err)
}
