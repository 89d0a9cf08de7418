package webgpu

import (
	"encoding/binary"

	"github.com/born-ml/sepconv/internal/conv"
)

// workgroupSize is the number of threads per workgroup in every shader.
const workgroupSize = 256

// maxWorkgroups is the largest X dimension a single dispatch may use.
const maxWorkgroups = 65535

// maxElements is the largest tensor a one-dimensional dispatch covers.
const maxElements = workgroupSize * maxWorkgroups

// sconvParamsSize is the byte size of the sconvParams uniform, a multiple
// of 16.
const sconvParamsSize = 20 * 4

// sconvShader holds the two forward stages of the separable convolution.
//
// depthwise writes dc[N, C*M, OH, OW], channel c*M+m being input channel c
// convolved with its m-th filter. pointwise mixes dc with the 1x1 weights
// (or passes it through when use_pointwise is 0) and adds the bias.
const sconvShader = `
struct Params {
    n: u32, c: u32, h: u32, w: u32,
    m: u32, cout: u32, oh: u32, ow: u32,
    kh: u32, kw: u32, sh: u32, sw: u32,
    ph: i32, pw: i32, dh: u32, dw: u32,
    use_pointwise: u32, pad0: u32, pad1: u32, pad2: u32,
}

@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> wd: array<f32>;
@group(0) @binding(2) var<storage, read_write> dc: array<f32>;
@group(0) @binding(3) var<uniform> p: Params;
@group(0) @binding(4) var<storage, read> wp: array<f32>;
@group(0) @binding(5) var<storage, read> bias: array<f32>;
@group(0) @binding(6) var<storage, read_write> result: array<f32>;

@compute @workgroup_size(256)
fn depthwise(@builtin(global_invocation_id) gid: vec3<u32>) {
    let cd = p.c * p.m;
    let plane = p.oh * p.ow;
    let idx = gid.x;
    if (idx >= p.n * cd * plane) {
        return;
    }
    let ox = idx % p.ow;
    let oy = (idx / p.ow) % p.oh;
    let ch = (idx / plane) % cd;
    let b = idx / (plane * cd);
    let c = ch / p.m;
    let m = ch % p.m;

    var acc: f32 = 0.0;
    for (var ky: u32 = 0u; ky < p.kh; ky = ky + 1u) {
        let iy = i32(oy * p.sh + ky * p.dh) - p.ph;
        if (iy < 0 || iy >= i32(p.h)) {
            continue;
        }
        for (var kx: u32 = 0u; kx < p.kw; kx = kx + 1u) {
            let ix = i32(ox * p.sw + kx * p.dw) - p.pw;
            if (ix < 0 || ix >= i32(p.w)) {
                continue;
            }
            let xv = x[((b * p.c + c) * p.h + u32(iy)) * p.w + u32(ix)];
            let wv = wd[((m * p.c + c) * p.kh + ky) * p.kw + kx];
            acc = acc + xv * wv;
        }
    }
    dc[idx] = acc;
}

@compute @workgroup_size(256)
fn pointwise(@builtin(global_invocation_id) gid: vec3<u32>) {
    let cd = p.c * p.m;
    let plane = p.oh * p.ow;
    let idx = gid.x;
    if (idx >= p.n * p.cout * plane) {
        return;
    }
    let s = idx % plane;
    let o = (idx / plane) % p.cout;
    let b = idx / (plane * p.cout);

    var acc: f32 = bias[o];
    if (p.use_pointwise == 0u) {
        acc = acc + dc[(b * cd + o) * plane + s];
    } else {
        for (var k: u32 = 0u; k < cd; k = k + 1u) {
            acc = acc + wp[o * cd + k] * dc[(b * cd + k) * plane + s];
        }
    }
    result[idx] = acc;
}
`

// reluShader applies max(x, 0) element-wise.
const reluShader = `
struct Params {
    size: u32,
}

@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        let v = src[idx];
        if (v > 0.0) {
            dst[idx] = v;
        } else {
            dst[idx] = 0.0;
        }
    }
}
`

// sconvJob is one forward pass as flat float32 operands.
type sconvJob struct {
	x, wd, wp, bias []float32
	params          []byte
	dcLen, outLen   int
}

// newSconvJob packs the operands of a forward pass. wp is nil for a
// depthwise-only layer.
func newSconvJob(x, wd, wp, bias []float32, n, c, h, w, m, cout int, g conv.Geometry) *sconvJob {
	usePointwise := uint32(1)
	if wp == nil {
		usePointwise = 0
		wp = []float32{0} // bindings may not be empty
	}
	fields := []uint32{
		uint32(n), uint32(c), uint32(h), uint32(w),
		uint32(m), uint32(cout), uint32(g.OutH), uint32(g.OutW),
		uint32(g.KernelH), uint32(g.KernelW), uint32(g.StrideH), uint32(g.StrideW),
		uint32(int32(g.PadH)), uint32(int32(g.PadW)), uint32(g.DilationH), uint32(g.DilationW),
		usePointwise, 0, 0, 0,
	}
	params := make([]byte, sconvParamsSize)
	for i, v := range fields {
		binary.LittleEndian.PutUint32(params[4*i:], v)
	}
	plane := g.OutH * g.OutW
	return &sconvJob{
		x: x, wd: wd, wp: wp, bias: bias,
		params: params,
		dcLen:  n * c * m * plane,
		outLen: n * cout * plane,
	}
}

// sizeParams packs the single-field uniform of element-wise shaders.
func sizeParams(n int) []byte {
	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], uint32(n))
	return params
}

// workgroups returns ceil(n / workgroupSize).
func workgroups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize)
}
