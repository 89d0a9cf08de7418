// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the strided tensor container consumed and produced
// by the separable convolution layer.
//
// # Overview
//
// A RawTensor is a reference-counted buffer plus shape, strides, data type
// and an order tag:
//   - Float32 and Float64 data
//   - Row-major ('c') or column-major ('f') layout
//   - Zero-copy views sharing one buffer
//
// # Basic Usage
//
//	import "github.com/born-ml/sepconv/tensor"
//
//	func main() {
//	    x, err := tensor.FromFloat32(data, tensor.Shape{1, 3, 32, 32})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(x.Shape(), x.Order())
//	}
package tensor
