// Package main provides a CLI that runs a separable convolution layer on
// random data and reports shapes, timings and summary statistics.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/sepconv/backend/cpu"
	"github.com/born-ml/sepconv/backend/webgpu"
	"github.com/born-ml/sepconv/nn"
	"github.com/born-ml/sepconv/tensor"
)

const version = "v0.0.1-dev"

type options struct {
	batch, channels, height, width int
	outChannels, multiplier        int
	kernel, stride, pad, dilation  int
	mode                           string
	activation                     string
	cache                          string
	useFloat64                     bool
	noPointwise                    bool
	im2col                         bool
	gpu                            bool
	workers                        int
	verbose                        bool
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("sepconv %s\n", version)
		return
	}

	var opts options
	fs := flag.NewFlagSet("sepconv", flag.ExitOnError)
	fs.IntVar(&opts.batch, "n", 8, "batch size")
	fs.IntVar(&opts.channels, "c", 16, "input channels")
	fs.IntVar(&opts.height, "height", 32, "input height")
	fs.IntVar(&opts.width, "width", 32, "input width")
	fs.IntVar(&opts.outChannels, "out", 32, "output channels (ignored with -no-pointwise)")
	fs.IntVar(&opts.multiplier, "m", 1, "depth multiplier")
	fs.IntVar(&opts.kernel, "k", 3, "kernel size")
	fs.IntVar(&opts.stride, "s", 1, "stride")
	fs.IntVar(&opts.pad, "p", 1, "padding (explicit mode)")
	fs.IntVar(&opts.dilation, "d", 1, "dilation")
	fs.StringVar(&opts.mode, "mode", "explicit", "padding mode: explicit or same")
	fs.StringVar(&opts.activation, "act", "relu", "activation function")
	fs.StringVar(&opts.cache, "cache", "host", "pre-activation cache: none, host or device")
	fs.BoolVar(&opts.useFloat64, "f64", false, "use float64 data")
	fs.BoolVar(&opts.noPointwise, "no-pointwise", false, "depthwise stage only")
	fs.BoolVar(&opts.im2col, "im2col", true, "enable the CPU im2col helper")
	fs.BoolVar(&opts.gpu, "gpu", false, "enable the WebGPU helper when available")
	fs.IntVar(&opts.workers, "workers", 0, "CPU workers (0 = all cores)")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	_ = fs.Parse(os.Args[1:])

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(opts, logger); err != nil {
		logger.Error("sepconv failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	cfg, cleanup, err := layerConfig(opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	layer := nn.NewSeparableConv2D(cfg)

	x, err := randomTensor(tensor.Shape{opts.batch, opts.channels, opts.height, opts.width}, cfg.DType)
	if err != nil {
		return err
	}
	layer.SetInput(x)

	start := time.Now()
	out, err := layer.Activate(true)
	if err != nil {
		return err
	}
	forward := time.Since(start)
	logger.Info("forward", "input", x.Shape().String(), "output", out.Shape().String(), "took", forward)

	eps, err := randomTensor(out.Shape(), cfg.DType)
	if err != nil {
		return err
	}
	start = time.Now()
	grad, epsIn, err := layer.BackpropGradient(eps)
	if err != nil {
		return err
	}
	logger.Info("backward", "epsilon", epsIn.Shape().String(), "took", time.Since(start))

	summarize("output", out)
	summarize("input gradient", epsIn)
	for _, e := range grad.Entries() {
		summarize("gradient "+e.Key, e.Tensor)
	}
	return nil
}

func layerConfig(opts options, logger *slog.Logger) (nn.SeparableConv2DConfig, func(), error) {
	cleanup := func() {}
	nOut := opts.outChannels
	if opts.noPointwise {
		nOut = 0
	}
	cfg := nn.DefaultSeparableConv2DConfig(opts.channels, nOut)
	cfg.DepthMultiplier = opts.multiplier
	cfg.UsePointwise = !opts.noPointwise
	cfg.Conv.Kernel = [2]int{opts.kernel, opts.kernel}
	cfg.Conv.Stride = [2]int{opts.stride, opts.stride}
	cfg.Conv.Padding = [2]int{opts.pad, opts.pad}
	cfg.Conv.Dilation = [2]int{opts.dilation, opts.dilation}
	cfg.Logger = logger
	if opts.useFloat64 {
		cfg.DType = tensor.Float64
	}

	switch opts.mode {
	case "explicit":
		cfg.Conv.Mode = nn.PaddingExplicit
	case "same":
		cfg.Conv.Mode = nn.PaddingSame
	default:
		return cfg, cleanup, fmt.Errorf("unknown padding mode %q", opts.mode)
	}

	act, err := nn.ActivationFromName(opts.activation)
	if err != nil {
		return cfg, cleanup, err
	}
	cfg.Activation = act

	if cfg.CacheMode, err = nn.ParseCacheMode(opts.cache); err != nil {
		return cfg, cleanup, err
	}

	par := cpu.DefaultParallelConfig()
	if opts.workers > 0 {
		par.NumWorkers = opts.workers
	}
	cfg.Backend = cpu.NewWithConfig(par)

	if opts.gpu {
		if !webgpu.IsAvailable() {
			logger.Warn("WebGPU not available, using CPU")
		} else if gpu, err := webgpu.New(); err != nil {
			logger.Warn("WebGPU initialization failed, using CPU", "error", err)
		} else {
			logger.Info("WebGPU helper enabled", "adapter", gpu.AdapterName())
			cfg.Helpers = append(cfg.Helpers, gpu)
			cleanup = gpu.Release
		}
	}
	if opts.im2col {
		cfg.Helpers = append(cfg.Helpers, cpu.NewIm2colHelper(cfg.Backend, cpu.DefaultIm2colConfig()))
	}
	return cfg, cleanup, nil
}

func randomTensor(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	dist := distuv.Normal{Mu: 0, Sigma: 1}
	data := make([]float64, shape.NumElements())
	for i := range data {
		data[i] = dist.Rand()
	}
	if dtype == tensor.Float64 {
		return tensor.FromFloat64(data, shape)
	}
	f32 := make([]float32, len(data))
	for i, v := range data {
		f32[i] = float32(v)
	}
	return tensor.FromFloat32(f32, shape)
}

func summarize(name string, t *tensor.RawTensor) {
	v := t.ToFloat64()
	fmt.Printf("%-20s %-18v mean=%+.6f min=%+.6f max=%+.6f l2=%.6f\n",
		name, t.Shape(), floats.Sum(v)/float64(len(v)), floats.Min(v), floats.Max(v), floats.Norm(v, 2))
}
