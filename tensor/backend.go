// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/cellwarp/internal/tensor"

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - backend/cpu: Pure Go, parallelized across cores
//
// Decorator backends for additional functionality:
//   - autodiff: Automatic differentiation (wraps any backend)
//
// Example:
//
//	import (
//	    "github.com/born-ml/cellwarp/tensor"
//	    "github.com/born-ml/cellwarp/backend/cpu"
//	)
//
//	backend := cpu.New()
//	x := tensor.Rand[float32](tensor.Shape{1, 3, 64, 64}, backend)
//	up := backend.Upsample2D(x.Raw(), 2) // [1, 3, 128, 128]
type Backend interface {
	// Element-wise binary operations.
	Add(a, b *RawTensor) *RawTensor // Element-wise addition.
	Sub(a, b *RawTensor) *RawTensor // Element-wise subtraction.
	Mul(a, b *RawTensor) *RawTensor // Element-wise multiplication.
	Div(a, b *RawTensor) *RawTensor // Element-wise division.

	// Convolutional operations.
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor // 2D convolution.
	MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor   // 2D max pooling.

	// Convolution gradients. Declared on the backend so the autodiff layer
	// can route backward passes without reimplementing the kernels.
	Conv2DInputBackward(gradOutput, kernel *RawTensor, inputShape Shape, stride, padding int) *RawTensor  // Conv2D input gradient.
	Conv2DKernelBackward(gradOutput, input *RawTensor, kernelShape Shape, stride, padding int) *RawTensor // Conv2D kernel gradient.
	MaxPool2DBackward(input, gradOutput *RawTensor, maxIndices []int, kernelSize, stride int) *RawTensor  // MaxPool2D gradient.

	// Upsample2D performs nearest-neighbor upsampling by an integer scale
	// factor on [N,C,H,W] tensors.
	Upsample2D(input *RawTensor, scale int) *RawTensor

	// GridSample warps input [N,C,H,W] by a dense displacement field
	// [N,2,H,W] (dy, dx in pixels) using bilinear interpolation with
	// clamp-to-edge handling of out-of-bounds coordinates.
	GridSample(input, field *RawTensor) *RawTensor

	// GridSampleBackward computes gradients of GridSample with respect to
	// both the sampled input and the displacement field.
	GridSampleBackward(gradOutput, input, field *RawTensor) (gradInput, gradField *RawTensor)

	// Planar symmetry operations on [N,C,H,W] tensors.
	FlipH(x *RawTensor) *RawTensor        // Mirror along the width axis.
	Rot90(x *RawTensor, k int) *RawTensor // Rotate k quarter turns counter-clockwise.

	// WindowedNCC computes a windowed normalized cross-correlation response
	// map between two [N,C,H,W] tensors. The result is [N,1,H,W].
	WindowedNCC(a, b *RawTensor, window int) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor // Reshape tensor.

	// Scalar operations (element-wise with scalar).
	MulScalar(x *RawTensor, scalar any) *RawTensor // Multiply by scalar.
	AddScalar(x *RawTensor, scalar any) *RawTensor // Add scalar.
	SubScalar(x *RawTensor, scalar any) *RawTensor // Subtract scalar.
	DivScalar(x *RawTensor, scalar any) *RawTensor // Divide by scalar.

	// Reduction operations.
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor  // Sum along dimension.
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor // Mean along dimension.

	// Manipulation operations.
	Cat(tensors []*RawTensor, dim int) *RawTensor // Concatenate along dimension.
	Chunk(x *RawTensor, n, dim int) []*RawTensor  // Split into n equal parts.
	Unsqueeze(x *RawTensor, dim int) *RawTensor   // Add dimension of size 1.
	Squeeze(x *RawTensor, dim int) *RawTensor     // Remove dimension of size 1.

	// Type conversion.
	Cast(x *RawTensor, dtype DataType) *RawTensor // Cast to different data type.

	// Metadata.
	Name() string   // Backend name (e.g., "CPU").
	Device() Device // Device type.
}

// Compile-time check that internal Backend implements public Backend.
var _ Backend = tensor.Backend(nil)
