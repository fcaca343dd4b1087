// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides type-safe tensor operations for cellwarp.
//
// # Overview
//
// Tensors are the fundamental data structure in cellwarp. This package
// provides:
//   - Generic type-safe tensors (Tensor[T, B])
//   - Copy-on-write raw buffers (RawTensor)
//   - The Backend compute interface
//   - Device abstraction
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/cellwarp/tensor"
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    // A [channels, height, width] image patch
//	    patch := tensor.Zeros[float32](tensor.Shape{3, 256, 256}, backend)
//
//	    // Add a batch dimension for the model
//	    batch := patch.Unsqueeze(0) // [1, 3, 256, 256]
//	    fmt.Println(batch.Shape())
//	}
//
// # Supported Data Types
//
// The tensor package supports the following data types via the DType constraint:
//   - float32, float64 (floating-point)
//   - int32, int64 (signed integers)
//   - uint8 (unsigned integers, useful for label masks)
//   - bool (boolean masks)
//
// # Design
//
// Tensor[T, B] is a thin typed wrapper over RawTensor that carries the
// backend, the gradient slot, and shape metadata. Compute kernels
// (convolution, grid sampling, reductions) are methods on the Backend
// interface and operate on RawTensor values, so the same typed code runs
// unchanged on the plain CPU backend or wrapped in the autodiff decorator:
//
//	warped := tensor.New[float32](backend.GridSample(img.Raw(), field.Raw()), backend)
//
// # Gradients
//
// Tensors participate in automatic differentiation when their backend is
// the autodiff decorator:
//
//	x := tensor.Randn[float32](tensor.Shape{1, 2, 64, 64}, be).RequireGrad()
//	// ... forward pass recorded on the tape ...
//	grad := x.Grad() // populated after be.Backward()
//
// Detach returns a view that stops gradient flow, which the trainer uses
// when feeding predicted warp fields into metric-only label transfers.
//
// # Memory Management
//
// RawTensor buffers are copy-on-write. Clone is cheap and shares the
// underlying buffer until one side writes through an As* accessor.
package tensor
