package tensor

import "fmt"

// IsContiguous reports whether the elements occupy one dense block laid out
// in the tensor's own order.
func (r *RawTensor) IsContiguous() bool {
	want := r.shape.StridesFor(r.order)
	for i, s := range r.stride {
		if r.shape[i] != 1 && s != want[i] {
			return false
		}
	}
	return true
}

// StrideDescendingCAscendingF reports whether strides are non-increasing for
// a 'c' tensor or non-decreasing for an 'f' tensor, ignoring unit dimensions.
// Accelerated kernels require this ordering.
func (r *RawTensor) StrideDescendingCAscendingF() bool {
	prev := -1
	for i, s := range r.stride {
		if r.shape[i] == 1 {
			continue
		}
		if prev >= 0 {
			if r.order == C && s > prev {
				return false
			}
			if r.order == F && s < prev {
				return false
			}
		}
		prev = s
	}
	return true
}

// offsetOf maps a row-major linear index to the element offset in the buffer.
func (r *RawTensor) offsetOf(linear int) int {
	off := r.offset
	for i := len(r.shape) - 1; i >= 0; i-- {
		d := r.shape[i]
		off += (linear % d) * r.stride[i]
		linear /= d
	}
	return off
}

// elementOffset maps a multi-index to the element offset in the buffer.
func (r *RawTensor) elementOffset(idx []int) int {
	if len(idx) != len(r.shape) {
		panic(fmt.Sprintf("tensor: index of rank %d for tensor of rank %d", len(idx), len(r.shape)))
	}
	off := r.offset
	for i, v := range idx {
		if v < 0 || v >= r.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, r.shape))
		}
		off += v * r.stride[i]
	}
	return off
}

// At returns the element at idx as float64, honouring strides.
func (r *RawTensor) At(idx ...int) float64 {
	return r.load(r.elementOffset(idx))
}

// Set stores v at idx, honouring strides.
func (r *RawTensor) Set(v float64, idx ...int) {
	r.store(r.elementOffset(idx), v)
}

func (r *RawTensor) load(off int) float64 {
	switch r.dtype {
	case Float32:
		return float64(r.all32()[off])
	case Float64:
		return r.all64()[off]
	default:
		panic("tensor: unsupported dtype")
	}
}

func (r *RawTensor) store(off int, v float64) {
	switch r.dtype {
	case Float32:
		r.all32()[off] = float32(v)
	case Float64:
		r.all64()[off] = v
	default:
		panic("tensor: unsupported dtype")
	}
}

// all32 and all64 expose the whole shared buffer, indexed by element offset.
func (r *RawTensor) all32() []float32 {
	n := len(r.buffer.data) / 4
	whole := &RawTensor{buffer: r.buffer, shape: Shape{n}, stride: []int{1}, dtype: Float32, order: C}
	return whole.AsFloat32()
}

func (r *RawTensor) all64() []float64 {
	n := len(r.buffer.data) / 8
	whole := &RawTensor{buffer: r.buffer, shape: Shape{n}, stride: []int{1}, dtype: Float64, order: C}
	return whole.AsFloat64()
}

// Zero fills the tensor with zeros in place.
func (r *RawTensor) Zero() {
	if r.IsContiguous() {
		clear(r.Data())
		return
	}
	n := r.NumElements()
	for i := 0; i < n; i++ {
		r.store(r.offsetOf(i), 0)
	}
}

// Fill sets every element to v in place.
func (r *RawTensor) Fill(v float64) {
	n := r.NumElements()
	for i := 0; i < n; i++ {
		r.store(r.offsetOf(i), v)
	}
}

// CopyFrom copies src element-by-element into r. Shapes must match; layouts
// and dtypes may differ.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if !r.shape.Equal(src.shape) {
		return fmt.Errorf("copy: shape mismatch %v vs %v", r.shape, src.shape)
	}
	if r.dtype == src.dtype && r.order == src.order && r.IsContiguous() && src.IsContiguous() {
		copy(r.Data(), src.Data())
		return nil
	}
	n := r.NumElements()
	for i := 0; i < n; i++ {
		r.store(r.offsetOf(i), src.load(src.offsetOf(i)))
	}
	return nil
}

// Dup returns a deep copy with the same shape, dtype and order. The copy owns
// a fresh buffer.
func (r *RawTensor) Dup() *RawTensor {
	out, err := NewRawOrder(r.shape, r.dtype, r.order)
	if err != nil {
		panic(fmt.Sprintf("dup: %v", err))
	}
	if err := out.CopyFrom(r); err != nil {
		panic(fmt.Sprintf("dup: %v", err))
	}
	out.device = r.device
	return out
}

// Contiguous returns r if it is already a contiguous row-major tensor,
// otherwise a row-major copy.
func (r *RawTensor) Contiguous() *RawTensor {
	if r.order == C && r.IsContiguous() {
		return r
	}
	out, err := NewRaw(r.shape, r.dtype)
	if err != nil {
		panic(fmt.Sprintf("contiguous: %v", err))
	}
	if err := out.CopyFrom(r); err != nil {
		panic(fmt.Sprintf("contiguous: %v", err))
	}
	return out
}

// Reshape returns a tensor of the new shape whose elements, read in the given
// order, equal r's elements read in that order. When r is contiguous in that
// order the result is a view; otherwise the data is copied.
func (r *RawTensor) Reshape(order Order, shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			r.shape, r.NumElements(), shape, shape.NumElements())
	}
	src := r
	if r.order != order || !r.IsContiguous() {
		fresh, err := NewRawOrder(r.shape, r.dtype, order)
		if err != nil {
			return nil, fmt.Errorf("reshape: %w", err)
		}
		if err := fresh.CopyFrom(r); err != nil {
			return nil, fmt.Errorf("reshape: %w", err)
		}
		src = fresh
	} else {
		src.buffer.addRef()
	}
	return &RawTensor{
		buffer: src.buffer,
		shape:  shape.Clone(),
		stride: shape.StridesFor(order),
		dtype:  src.dtype,
		order:  order,
		device: src.device,
		offset: src.offset,
	}, nil
}

// ToFloat64 returns the elements in row-major order as a new []float64.
func (r *RawTensor) ToFloat64() []float64 {
	n := r.NumElements()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = r.load(r.offsetOf(i))
	}
	return out
}
