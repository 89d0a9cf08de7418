package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Device represents the compute device a tensor's data was produced on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Order is the memory layout tag of a tensor.
type Order byte

// Memory layouts.
const (
	C Order = 'c' // row-major
	F Order = 'f' // column-major
)

// String returns "c" or "f".
func (o Order) String() string {
	return string(o)
}

// tensorBuffer is a reference-counted buffer shared by a tensor and its views.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex
}

func newTensorBuffer(size int) *tensorBuffer {
	return wrapTensorBuffer(make([]byte, size))
}

func wrapTensorBuffer(data []byte) *tensorBuffer {
	buf := &tensorBuffer{data: data}
	buf.refCount.Store(1)
	return buf
}

func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

func (tb *tensorBuffer) isUnique() bool {
	return tb.refCount.Load() == 1
}

// RawTensor is a strided n-dimensional array of float32 or float64 values.
//
// Several RawTensors may share one buffer (views). The offset and strides are
// expressed in elements, not bytes.
type RawTensor struct {
	buffer *tensorBuffer
	shape  Shape
	stride []int
	dtype  DataType
	order  Order
	device Device
	offset int
}

// NewRaw creates a zero-filled row-major tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return NewRawOrder(shape, dtype, C)
}

// NewRawOrder creates a zero-filled tensor with the given memory layout.
func NewRawOrder(shape Shape, dtype DataType, order Order) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if order != C && order != F {
		return nil, fmt.Errorf("invalid order %q", byte(order))
	}
	return &RawTensor{
		buffer: newTensorBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.StridesFor(order),
		dtype:  dtype,
		order:  order,
		device: CPU,
	}, nil
}

// NewRawFromBuffer wraps caller-owned bytes as a contiguous tensor.
// The slice must hold at least shape.NumElements()*dtype.Size() bytes; the
// tensor never grows or reallocates it.
func NewRawFromBuffer(data []byte, shape Shape, dtype DataType, order Order) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	need := shape.NumElements() * dtype.Size()
	if len(data) < need {
		return nil, fmt.Errorf("buffer holds %d bytes, shape %v needs %d", len(data), shape, need)
	}
	if order != C && order != F {
		return nil, fmt.Errorf("invalid order %q", byte(order))
	}
	return &RawTensor{
		buffer: wrapTensorBuffer(data[:need]),
		shape:  shape.Clone(),
		stride: shape.StridesFor(order),
		dtype:  dtype,
		order:  order,
		device: CPU,
	}, nil
}

// FromFloat32 creates a row-major float32 tensor holding a copy of data.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	r, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat32(), data)
	return r, nil
}

// FromFloat64 creates a row-major float64 tensor holding a copy of data.
func FromFloat64(data []float64, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	r, err := NewRaw(shape, Float64)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat64(), data)
	return r, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Rank returns the number of dimensions.
func (r *RawTensor) Rank() int {
	return len(r.shape)
}

// Size returns the length of dimension i.
func (r *RawTensor) Size(i int) int {
	return r.shape[i]
}

// Strides returns the tensor's element strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// Order returns the layout tag.
func (r *RawTensor) Order() Order {
	return r.order
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the device that produced the tensor's data.
func (r *RawTensor) Device() Device {
	return r.device
}

// WithDevice tags the tensor with the device that produced it.
func (r *RawTensor) WithDevice(d Device) *RawTensor {
	r.device = d
	return r
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the size of the tensor's elements in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the bytes backing a contiguous tensor.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	start := r.offset * r.dtype.Size()
	return r.buffer.data[start : start+r.ByteSize()]
}

// AsFloat32 interprets the data as []float32 in memory order.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by Data()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64 in memory order.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by Data()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Clone returns a view sharing the buffer (reference count incremented).
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		order:  r.order,
		device: r.device,
		offset: r.offset,
	}
}

// Release decrements the reference count and drops the buffer at zero.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// IsUnique reports whether this tensor is the only reference to its buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.isUnique()
}

// SharesBuffer reports whether both tensors are views of the same buffer.
func (r *RawTensor) SharesBuffer(other *RawTensor) bool {
	return other != nil && r.buffer == other.buffer
}

// View returns a contiguous row-major view of shape starting at element
// offset of a contiguous tensor. The view writes through to r.
func (r *RawTensor) View(offset int, shape Shape) (*RawTensor, error) {
	if !r.IsContiguous() {
		return nil, fmt.Errorf("view of non-contiguous tensor with strides %v", r.stride)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if offset < 0 || offset+shape.NumElements() > r.NumElements() {
		return nil, fmt.Errorf("view [%d, %d) out of range for %d elements",
			offset, offset+shape.NumElements(), r.NumElements())
	}
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		order:  C,
		device: r.device,
		offset: r.offset + offset,
	}, nil
}

// Elements returns the data of a contiguous tensor as []T, where T must match
// the tensor's dtype.
func Elements[T Float](r *RawTensor) []T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(r.AsFloat32()).([]T)
	case float64:
		return any(r.AsFloat64()).([]T)
	default:
		panic(fmt.Sprintf("tensor: unsupported element type %T", zero))
	}
}
