// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/sepconv/internal/tensor"
)

// RawTensor is the strided tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Order()
//   - Typed data access via AsFloat32() and AsFloat64()
//   - Element access in logical order via At() and Set()
//   - Buffer sharing via Clone() and View()
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32)
//	data := raw.AsFloat32()
//	clone := raw.Clone() // shares the buffer
type RawTensor = tensor.RawTensor

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Order is the memory layout tag of a tensor.
type Order = tensor.Order

// Device identifies where a tensor's data was produced.
type Device = tensor.Device

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// Memory layouts.
const (
	C = tensor.C // row-major
	F = tensor.F // column-major
)

// Compute devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// NewRaw creates a zeroed row-major tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// NewRawOrder creates a zeroed tensor in the given layout.
func NewRawOrder(shape Shape, dtype DataType, order Order) (*RawTensor, error) {
	return tensor.NewRawOrder(shape, dtype, order)
}

// FromFloat32 creates a row-major float32 tensor holding a copy of data.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}

// FromFloat64 creates a row-major float64 tensor holding a copy of data.
func FromFloat64(data []float64, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat64(data, shape)
}
