//go:build windows

package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// device owns a WebGPU device and the compiled forward pipelines.
type device struct {
	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	device      *wgpu.Device
	queue       *wgpu.Queue
	adapterName string

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
}

func openDevice() (*device, error) {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", err)
	}

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &device{
		instance:    instance,
		adapter:     adapter,
		device:      dev,
		queue:       queue,
		adapterName: "default",
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
	}, nil
}

func (d *device) release() {
	for _, p := range d.pipelines {
		p.Release()
	}
	for _, s := range d.shaders {
		s.Release()
	}
	d.pipelines, d.shaders = nil, nil
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}

// pipeline returns the cached pipeline for entryPoint of code, compiling the
// shader on first use.
func (d *device) pipeline(name, code, entryPoint string) *wgpu.ComputePipeline {
	key := name + "/" + entryPoint
	if p, ok := d.pipelines[key]; ok {
		return p
	}
	shader, ok := d.shaders[name]
	if !ok {
		shader = d.device.CreateShaderModuleWGSL(code)
		d.shaders[name] = shader
	}
	p := d.device.CreateComputePipelineSimple(nil, shader, entryPoint)
	d.pipelines[key] = p
	return p
}

// createBuffer creates a storage buffer initialized with data.
func (d *device) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer
}

func floatBytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy view of float32 data
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}

// buffers tracks the buffers of one dispatch so they can be freed together.
type buffers []*wgpu.Buffer

func (bs *buffers) storage(d *device, data []float32) *wgpu.Buffer {
	buf := d.createBuffer(floatBytes(data), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	*bs = append(*bs, buf)
	return buf
}

func (bs *buffers) output(d *device, n int) *wgpu.Buffer {
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(n * 4),
	})
	*bs = append(*bs, buf)
	return buf
}

func (bs *buffers) uniform(d *device, params []byte) *wgpu.Buffer {
	buf := d.createBuffer(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	*bs = append(*bs, buf)
	return buf
}

func (bs buffers) free() {
	for _, b := range bs {
		b.Release()
	}
}

// pass is one compute dispatch.
type pass struct {
	pipeline *wgpu.ComputePipeline
	entries  []wgpu.BindGroupEntry
	elements int
}

func entry(binding uint32, buf *wgpu.Buffer, size int) wgpu.BindGroupEntry {
	return wgpu.BufferBindingEntry(binding, buf, 0, uint64(size))
}

// submit records passes in order and reads n float32 values of result back
// through a staging buffer.
func (d *device) submit(passes []pass, result *wgpu.Buffer, n int) ([]float32, error) {
	encoder := d.device.CreateCommandEncoder(nil)
	for _, p := range passes {
		group := d.device.CreateBindGroupSimple(p.pipeline.GetBindGroupLayout(0), p.entries)
		defer group.Release()

		computePass := encoder.BeginComputePass(nil)
		computePass.SetPipeline(p.pipeline)
		computePass.SetBindGroup(0, group, nil)
		computePass.DispatchWorkgroups(workgroups(p.elements), 1, 1)
		computePass.End()
	}

	size := uint64(n * 4)
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()
	encoder.CopyBufferToBuffer(result, 0, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	out := make([]float32, n)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(out, unsafe.Slice((*float32)(mappedPtr), n))
	staging.Unmap()
	return out, nil
}

func (d *device) sconv(job *sconvJob) ([]float32, error) {
	depthwise := d.pipeline("sconv", sconvShader, "depthwise")
	pointwise := d.pipeline("sconv", sconvShader, "pointwise")

	var bs buffers
	defer bs.free()
	x := bs.storage(d, job.x)
	wd := bs.storage(d, job.wd)
	wp := bs.storage(d, job.wp)
	bias := bs.storage(d, job.bias)
	dc := bs.output(d, job.dcLen)
	result := bs.output(d, job.outLen)
	params := bs.uniform(d, job.params)

	return d.submit([]pass{
		{
			pipeline: depthwise,
			entries: []wgpu.BindGroupEntry{
				entry(0, x, 4*len(job.x)),
				entry(1, wd, 4*len(job.wd)),
				entry(2, dc, 4*job.dcLen),
				entry(3, params, sconvParamsSize),
			},
			elements: job.dcLen,
		},
		{
			pipeline: pointwise,
			entries: []wgpu.BindGroupEntry{
				entry(2, dc, 4*job.dcLen),
				entry(3, params, sconvParamsSize),
				entry(4, wp, 4*len(job.wp)),
				entry(5, bias, 4*len(job.bias)),
				entry(6, result, 4*job.outLen),
			},
			elements: job.outLen,
		},
	}, result, job.outLen)
}

func (d *device) relu(src []float32) ([]float32, error) {
	p := d.pipeline("relu", reluShader, "main")

	var bs buffers
	defer bs.free()
	in := bs.storage(d, src)
	out := bs.output(d, len(src))
	params := bs.uniform(d, sizeParams(len(src)))

	return d.submit([]pass{{
		pipeline: p,
		entries: []wgpu.BindGroupEntry{
			entry(0, in, 4*len(src)),
			entry(1, out, 4*len(src)),
			entry(2, params, 16),
		},
		elements: len(src),
	}}, out, len(src))
}
