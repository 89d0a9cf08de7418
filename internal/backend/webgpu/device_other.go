//go:build !windows

package webgpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// device owns a WebGPU device and the compiled forward pipelines.
type device struct {
	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	device      *wgpu.Device
	queue       *wgpu.Queue
	adapterName string

	pipelines map[string]*wgpu.ComputePipeline
}

func openDevice() (*device, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("webgpu: failed to create instance")
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}
	info := adapter.GetInfo()

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
		adapterName: info.Name,
		pipelines:   make(map[string]*wgpu.ComputePipeline),
	}, nil
}

func (d *device) release() {
	for _, p := range d.pipelines {
		p.Release()
	}
	d.pipelines = nil
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}

// pipeline returns the cached pipeline for entryPoint of code, compiling it
// on first use.
func (d *device) pipeline(name, code, entryPoint string) (*wgpu.ComputePipeline, error) {
	key := name + "/" + entryPoint
	if p, ok := d.pipelines[key]; ok {
		return p, nil
	}
	mod, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: compile %s: %w", name, err)
	}
	defer mod.Release()

	p, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   key,
		Compute: wgpu.ProgrammableStageDescriptor{Module: mod, EntryPoint: entryPoint},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: pipeline %s: %w", key, err)
	}
	d.pipelines[key] = p
	return p, nil
}

// buffers tracks the buffers of one dispatch so they can be freed together.
type buffers []*wgpu.Buffer

func (bs *buffers) storage(d *device, data []float32) (*wgpu.Buffer, error) {
	buf, err := d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: wgpu.ToBytes(data),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create buffer: %w", err)
	}
	*bs = append(*bs, buf)
	return buf, nil
}

func (bs *buffers) output(d *device, n int) (*wgpu.Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  uint64(n * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create buffer: %w", err)
	}
	*bs = append(*bs, buf)
	return buf, nil
}

func (bs *buffers) uniform(d *device, params []byte) (*wgpu.Buffer, error) {
	buf, err := d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: params,
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create uniform: %w", err)
	}
	*bs = append(*bs, buf)
	return buf, nil
}

func (bs buffers) free() {
	for _, b := range bs {
		b.Destroy()
	}
}

// pass is one compute dispatch.
type pass struct {
	pipeline *wgpu.ComputePipeline
	entries  []wgpu.BindGroupEntry
	elements int
}

func entry(binding uint32, buf *wgpu.Buffer) wgpu.BindGroupEntry {
	return wgpu.BindGroupEntry{Binding: binding, Buffer: buf, Size: buf.GetSize()}
}

// submit records passes in order, copies result into a staging buffer and
// reads n float32 values back.
func (d *device) submit(passes []pass, result *wgpu.Buffer, n int) ([]float32, error) {
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: create command encoder: %w", err)
	}
	for _, p := range passes {
		group, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Layout:  p.pipeline.GetBindGroupLayout(0),
			Entries: p.entries,
		})
		if err != nil {
			return nil, fmt.Errorf("webgpu: create bind group: %w", err)
		}
		defer group.Release()

		cp := encoder.BeginComputePass(nil)
		cp.SetPipeline(p.pipeline)
		cp.SetBindGroup(0, group, nil)
		cp.DispatchWorkgroups(workgroups(p.elements), 1, 1)
		cp.End()
	}

	size := uint64(n * 4)
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create staging buffer: %w", err)
	}
	defer staging.Destroy()
	encoder.CopyBufferToBuffer(result, 0, staging, 0, size)

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: finish command: %w", err)
	}
	d.queue.Submit(cmd)

	done := make(chan struct{})
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("webgpu: map status %d", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: map staging buffer: %w", err)
	}
Loop:
	for {
		d.device.Poll(true, nil)
		select {
		case <-done:
			break Loop
		default:
		}
	}
	if mapErr != nil {
		return nil, mapErr
	}

	data := staging.GetMappedRange(0, uint(size))
	if data == nil {
		return nil, fmt.Errorf("webgpu: mapped range is nil")
	}
	out := make([]float32, n)
	copy(out, wgpu.FromBytes[float32](data))
	staging.Unmap()
	return out, nil
}

func (d *device) sconv(job *sconvJob) ([]float32, error) {
	depthwise, err := d.pipeline("sconv", sconvShader, "depthwise")
	if err != nil {
		return nil, err
	}
	pointwise, err := d.pipeline("sconv", sconvShader, "pointwise")
	if err != nil {
		return nil, err
	}

	var bs buffers
	defer bs.free()
	x, err := bs.storage(d, job.x)
	if err != nil {
		return nil, err
	}
	wd, err := bs.storage(d, job.wd)
	if err != nil {
		return nil, err
	}
	wp, err := bs.storage(d, job.wp)
	if err != nil {
		return nil, err
	}
	bias, err := bs.storage(d, job.bias)
	if err != nil {
		return nil, err
	}
	dc, err := bs.output(d, job.dcLen)
	if err != nil {
		return nil, err
	}
	result, err := bs.output(d, job.outLen)
	if err != nil {
		return nil, err
	}
	params, err := bs.uniform(d, job.params)
	if err != nil {
		return nil, err
	}

	return d.submit([]pass{
		{
			pipeline: depthwise,
			entries:  []wgpu.BindGroupEntry{entry(0, x), entry(1, wd), entry(2, dc), entry(3, params)},
			elements: job.dcLen,
		},
		{
			pipeline: pointwise,
			entries:  []wgpu.BindGroupEntry{entry(2, dc), entry(3, params), entry(4, wp), entry(5, bias), entry(6, result)},
			elements: job.outLen,
		},
	}, result, job.outLen)
}

func (d *device) relu(src []float32) ([]float32, error) {
	p, err := d.pipeline("relu", reluShader, "main")
	if err != nil {
		return nil, err
	}

	var bs buffers
	defer bs.free()
	in, err := bs.storage(d, src)
	if err != nil {
		return nil, err
	}
	out, err := bs.output(d, len(src))
	if err != nil {
		return nil, err
	}
	params, err := bs.uniform(d, sizeParams(len(src)))
	if err != nil {
		return nil, err
	}

	return d.submit([]pass{{
		pipeline: p,
		entries:  []wgpu.BindGroupEntry{entry(0, in), entry(1, out), entry(2, params)},
		elements: len(src),
	}}, out, len(src))
}
