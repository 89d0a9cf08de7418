package nn

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/sepconv/internal/backend/cpu"
	"github.com/born-ml/sepconv/internal/conv"
	"github.com/born-ml/sepconv/internal/memory"
	"github.com/born-ml/sepconv/internal/params"
	"github.com/born-ml/sepconv/internal/tensor"
)

// SeparableConv2D is a depthwise-separable 2D convolution layer.
//
// The depthwise stage convolves each input channel with DepthMultiplier
// filters of its own; the optional pointwise stage mixes the resulting
// NIn*DepthMultiplier channels with a 1x1 convolution:
//
//	Input:            [N, NIn, H, W]
//	Depthwise "W":    [DepthMultiplier, NIn, KH, KW]
//	Pointwise "pW":   [NOut, NIn*DepthMultiplier, 1, 1]
//	Bias "b":         [1, NOut]
//	Output:           [N, NOut, OH, OW]
//
// The layer holds the input it was given with SetInput, in the same way the
// surrounding network feeds layers. Activate runs the forward pass and
// BackpropGradient the backward pass for that input.
//
// A SeparableConv2D is not safe for concurrent use.
type SeparableConv2D struct {
	cfg     SeparableConv2DConfig
	params  *params.Store
	backend *cpu.CPUBackend
	helpers []ConvHelper
	generic primitiveHelper
	mem     *memory.Manager
	logger  *slog.Logger

	input    *tensor.RawTensor
	zeroBias *tensor.RawTensor
	cache    cacheSlot
}

// NewSeparableConv2D creates a layer with Xavier-initialized weights and zero
// bias. Panics on an invalid configuration.
func NewSeparableConv2D(cfg SeparableConv2DConfig) *SeparableConv2D {
	cfg.validate()

	kh, kw := cfg.Conv.Kernel[0], cfg.Conv.Kernel[1]
	depth := cfg.NIn * cfg.DepthMultiplier
	specs := []params.Spec{
		{Key: DepthwiseWeightKey, Shape: tensor.Shape{cfg.DepthMultiplier, cfg.NIn, kh, kw}},
	}
	if cfg.UsePointwise {
		specs = append(specs, params.Spec{Key: PointwiseWeightKey, Shape: tensor.Shape{cfg.NOut, depth, 1, 1}})
	}
	if cfg.HasBias {
		specs = append(specs, params.Spec{Key: BiasKey, Shape: tensor.Shape{1, cfg.NOut}})
	}
	store, err := params.NewStore(cfg.DType, specs...)
	if err != nil {
		panic(fmt.Sprintf("sepconv2d: %v", err))
	}
	// Each depthwise filter sees one channel.
	store.InitUniform(DepthwiseWeightKey, kh*kw, cfg.DepthMultiplier*kh*kw)
	if cfg.UsePointwise {
		store.InitUniform(PointwiseWeightKey, depth, cfg.NOut)
	}
	store.SetWeightNoise(cfg.WeightNoise)

	backend := cfg.Backend
	if backend == nil {
		backend = cpu.New()
	}
	mem := cfg.Memory
	if mem == nil {
		mem = memory.NewManager(memory.WorkingWorkspace)
		if cfg.CacheMode != CacheNone {
			mem.Workspace(memory.CacheWorkspace)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &SeparableConv2D{
		cfg:     cfg,
		params:  store,
		backend: backend,
		helpers: append([]ConvHelper(nil), cfg.Helpers...),
		generic: primitiveHelper{backend: backend},
		mem:     mem,
		logger:  logger.With("layer", cfg.Name, "index", cfg.Index),
	}
}

// Name returns the layer name.
func (l *SeparableConv2D) Name() string { return l.cfg.Name }

// Index returns the layer index within its network.
func (l *SeparableConv2D) Index() int { return l.cfg.Index }

// Config returns the effective configuration.
func (l *SeparableConv2D) Config() SeparableConv2DConfig { return l.cfg }

// Params returns the layer's parameter store.
func (l *SeparableConv2D) Params() *params.Store { return l.params }

// SetInput sets the input used by the next forward and backward calls.
func (l *SeparableConv2D) SetInput(x *tensor.RawTensor) { l.input = x }

// Input returns the current input, or nil.
func (l *SeparableConv2D) Input() *tensor.RawTensor { return l.input }

// ClearInput drops the input and any cached pre-activation.
func (l *SeparableConv2D) ClearInput() {
	l.input = nil
	l.cache.invalidate()
}

// HasCachedPreOutput reports whether the cache slot holds a pre-activation
// waiting for the next backward call.
func (l *SeparableConv2D) HasCachedPreOutput() bool { return l.cache.filled() }

// OutputShape returns the output shape for an input of the given shape.
func (l *SeparableConv2D) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	if len(in) != 4 {
		return nil, l.rankError("outputShape", in)
	}
	g, err := conv.Resolve(in[2], in[3], l.cfg.Conv)
	if err != nil {
		return nil, l.geometryError("outputShape", in, err)
	}
	return tensor.Shape{in[0], l.cfg.NOut, g.OutH, g.OutW}, nil
}

// PreOutput returns the pre-activation output for the current input. The
// result is owned by the caller. Nothing is cached.
func (l *SeparableConv2D) PreOutput(training bool) (*tensor.RawTensor, error) {
	g, err := l.validateInput("preOutput")
	if err != nil {
		return nil, err
	}
	return l.preOutput(training, g, l.mem.Detached)
}

// Activate runs the forward pass on the current input and returns the
// activated output. In training mode with caching enabled the pre-activation
// is kept for the next BackpropGradient call.
func (l *SeparableConv2D) Activate(training bool) (*tensor.RawTensor, error) {
	g, err := l.validateInput("activate")
	if err != nil {
		return nil, err
	}

	scope := l.mem.Workspace(memory.WorkingWorkspace).Borrow()
	defer scope.Close()

	z, err := l.preOutput(training, g, scope.Alloc)
	if err != nil {
		return nil, err
	}

	if training && l.cfg.CacheMode != CacheNone && l.mem.Exists(memory.CacheWorkspace) {
		if err := l.cache.produce(z, l.mem.Workspace(memory.CacheWorkspace)); err != nil {
			return nil, fmt.Errorf("sepconv2d: layer %q: caching pre-activation: %w", l.cfg.Name, err)
		}
	}

	return l.activate(z), nil
}

// BackpropGradient runs the backward pass for the current input.
//
// epsilon is dL/d(output), shaped like the Activate result. It returns the
// weight gradients, written into the parameter store's gradient views, and
// dL/d(input), shaped like the input. The bias gradient is not computed.
func (l *SeparableConv2D) BackpropGradient(epsilon *tensor.RawTensor) (*Gradient, *tensor.RawTensor, error) {
	const op = "backprop"
	g, err := l.validateInput(op)
	if err != nil {
		return nil, nil, err
	}
	in := l.input.Shape()
	outShape := tensor.Shape{in[0], l.cfg.NOut, g.OutH, g.OutW}
	if epsilon == nil {
		return nil, nil, &InvalidInputShapeError{
			Layer: l.cfg.Name, Index: l.cfg.Index, Op: op,
			Reason: fmt.Sprintf("epsilon is nil, expected %v", outShape),
		}
	}
	if !epsilon.Shape().Equal(outShape) || epsilon.DType() != l.cfg.DType {
		return nil, nil, &InvalidInputShapeError{
			Layer: l.cfg.Name, Index: l.cfg.Index, Op: op, Shape: epsilon.Shape(),
			Reason: fmt.Sprintf("epsilon must be %v %s, is %s", outShape, l.cfg.DType, epsilon.DType()),
		}
	}

	scope := l.mem.Workspace(memory.WorkingWorkspace).Borrow()
	defer scope.Close()

	z, release, ok := l.cache.take()
	if ok {
		defer release()
		if !z.Shape().Equal(outShape) {
			l.logger.Debug("discarding stale cached pre-activation", "cached", z.Shape().String(), "want", outShape.String())
			ok = false
		}
	}
	if !ok {
		if z, err = l.preOutput(true, g, scope.Alloc); err != nil {
			return nil, nil, err
		}
	}

	delta, err := l.cfg.Activation.Backprop(z, epsilon)
	if err != nil {
		return nil, nil, fmt.Errorf("sepconv2d: layer %q: %w", l.cfg.Name, err)
	}

	epsOut, err := l.mem.Detached(in, l.cfg.DType)
	if err != nil {
		return nil, nil, fmt.Errorf("sepconv2d: layer %q: %w", l.cfg.Name, err)
	}

	depthW := l.params.ParamWithNoise(DepthwiseWeightKey, true)
	gradW := l.params.GradientView(DepthwiseWeightKey)
	var pointW, gradPW *tensor.RawTensor
	if l.cfg.UsePointwise {
		pointW = l.params.ParamWithNoise(PointwiseWeightKey, true)
		gradPW = l.params.GradientView(PointwiseWeightKey)
	}

	if err := l.backend.SConv2DBackward(l.input, depthW, pointW, delta, g.Args(), epsOut, gradW, gradPW); err != nil {
		return nil, nil, fmt.Errorf("sepconv2d: layer %q: %w", l.cfg.Name, err)
	}

	grad := NewGradient()
	grad.Set(DepthwiseWeightKey, gradW, tensor.C)
	if gradPW != nil {
		grad.Set(PointwiseWeightKey, gradPW, tensor.C)
	}

	l.params.ClearNoise()
	return grad, epsOut, nil
}

// validateInput checks the current input and resolves its geometry.
func (l *SeparableConv2D) validateInput(op string) (conv.Geometry, error) {
	if l.input == nil {
		return conv.Geometry{}, &MissingInputError{Layer: l.cfg.Name, Index: l.cfg.Index, Op: op}
	}
	shape := l.input.Shape()
	if len(shape) != 4 {
		return conv.Geometry{}, l.rankError(op, shape)
	}
	if want := l.params.Param(DepthwiseWeightKey).Size(1); shape[1] != want {
		return conv.Geometry{}, &ChannelMismatchError{
			Layer: l.cfg.Name, Index: l.cfg.Index, Op: op,
			Shape: shape, Got: shape[1], Expected: want,
		}
	}
	if l.input.DType() != l.cfg.DType {
		return conv.Geometry{}, &InvalidInputShapeError{
			Layer: l.cfg.Name, Index: l.cfg.Index, Op: op, Shape: shape,
			Reason: fmt.Sprintf("input dtype %s does not match layer dtype %s", l.input.DType(), l.cfg.DType),
		}
	}
	g, err := conv.Resolve(shape[2], shape[3], l.cfg.Conv)
	if err != nil {
		return conv.Geometry{}, l.geometryError(op, shape, err)
	}
	return g, nil
}

func (l *SeparableConv2D) rankError(op string, shape tensor.Shape) error {
	e := &InvalidInputShapeError{
		Layer: l.cfg.Name, Index: l.cfg.Index, Op: op, Shape: shape,
		Reason: fmt.Sprintf("expected rank 4 [N, C, H, W], got rank %d", len(shape)),
	}
	if len(shape) == 2 {
		e.Hint = flattenedInputHint
	}
	return e
}

func (l *SeparableConv2D) geometryError(op string, shape tensor.Shape, err error) error {
	return fmt.Errorf("sepconv2d: layer %q (index %d) %s: input %v: %w",
		l.cfg.Name, l.cfg.Index, op, shape, err)
}

// bias returns the bias parameter, or the layer's zero bias when the layer has
// none. The zero bias is created on first use outside every workspace and is
// never written afterwards.
func (l *SeparableConv2D) bias(training bool) (*tensor.RawTensor, error) {
	if l.cfg.HasBias {
		return l.params.ParamWithNoise(BiasKey, training), nil
	}
	if l.zeroBias == nil {
		b, err := l.mem.Detached(tensor.Shape{1, l.cfg.NOut}, l.cfg.DType)
		if err != nil {
			return nil, err
		}
		l.zeroBias = b
	}
	return l.zeroBias, nil
}

// preOutput runs the helper chain. Accelerated helpers are only offered dense
// row-major inputs; the generic primitive writes into a tensor from alloc.
func (l *SeparableConv2D) preOutput(training bool, g conv.Geometry, alloc allocFunc) (*tensor.RawTensor, error) {
	depthW := l.params.ParamWithNoise(DepthwiseWeightKey, training)
	var pointW *tensor.RawTensor
	if l.cfg.UsePointwise {
		pointW = l.params.ParamWithNoise(PointwiseWeightKey, training)
	}
	bias, err := l.bias(training)
	if err != nil {
		return nil, fmt.Errorf("sepconv2d: layer %q: %w", l.cfg.Name, err)
	}

	if len(l.helpers) > 0 && l.input.Order() == tensor.C && l.input.IsContiguous() {
		for _, h := range l.helpers {
			if z, ok := h.PreOutput(l.input, depthW, pointW, bias, g); ok {
				return z, nil
			}
			l.logger.Debug("helper declined pre-output", "helper", h.Name(), "geometry", g.String())
		}
	}

	z, err := l.generic.compute(l.input, depthW, pointW, bias, g, alloc)
	if err != nil {
		return nil, fmt.Errorf("sepconv2d: layer %q: %w", l.cfg.Name, err)
	}
	return z, nil
}

// activate applies the activation through the first accepting helper when z
// has the stride order helpers require, else generically.
func (l *SeparableConv2D) activate(z *tensor.RawTensor) *tensor.RawTensor {
	fn := l.cfg.Activation
	if z.StrideDescendingCAscendingF() {
		for _, h := range l.helpers {
			if out, ok := h.Activate(z, fn); ok {
				return out
			}
			l.logger.Debug("helper declined activation", "helper", h.Name(), "activation", fn.String())
		}
	}
	out, _ := l.generic.Activate(z, fn)
	return out
}
