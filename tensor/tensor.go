// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor is the public tensor API for cellwarp.
//
// It re-exports the internal tensor core: the generic Tensor[T, B]
// wrapper, the untyped RawTensor it is built on, the Backend compute
// interface, and the Shape/DataType/Device vocabulary shared by every
// other package.
//
// Example:
//
//	backend := cpu.New()
//	patch := tensor.Zeros[float32](tensor.Shape{3, 64, 64}, backend)
//	batch := patch.Unsqueeze(0) // [1, 3, 64, 64]
package tensor

import (
	"github.com/born-ml/cellwarp/internal/tensor"
)

// DType is the compile-time constraint for element types:
// float32, float64, int32, int64, uint8, bool.
type DType = tensor.DType

// DataType is the runtime tag corresponding to DType.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Device identifies where a tensor's buffer lives.
type Device = tensor.Device

// Device constants. Only CPU is wired up today.
const (
	CPU  Device = tensor.CPU
	CUDA Device = tensor.CUDA
)

// Shape holds tensor dimensions, outermost first.
// Shape{1, 6, 64, 64} is one batch entry of six 64x64 channels.
type Shape = tensor.Shape

// Backend is defined in backend.go.

// Tensor is the generic type-safe tensor. T is the element type and B
// the backend; wrapping the backend in the autodiff decorator makes
// every operation on the tensor recordable.
//
//	backend := cpu.New()
//	views := tensor.Zeros[float32](tensor.Shape{2, 6, 64, 64}, backend)
//	moving := views.Chunk(2, 1)[0] // [2, 3, 64, 64]
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T, B](shape, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Ones[T, B](shape, b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full[T, B](shape, value, b)
}

// Randn creates a tensor drawn from the standard normal N(0, 1).
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Randn[T, B](shape, b)
}

// Rand creates a tensor drawn from the uniform U(0, 1).
func Rand[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Rand[T, B](shape, b)
}

// Arange creates a 1D tensor counting from start to end, exclusive.
//
//	idx := tensor.Arange[float32](0, 10, backend) // [0, 1, ..., 9]
func Arange[T DType, B Backend](start, end T, b B) *Tensor[T, B] {
	return tensor.Arange[T, B](start, end, b)
}

// Eye creates an n-by-n identity matrix.
func Eye[T DType, B Backend](n int, b B) *Tensor[T, B] {
	return tensor.Eye[T, B](n, b)
}

// FromSlice creates a tensor from a Go slice. The slice length must
// match the shape's element count.
//
//	theta, err := tensor.FromSlice([]float32{1, 0, 0, 0, 1, 0}, tensor.Shape{2, 3}, backend)
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice[T, B](data, shape, b)
}

// New wraps an existing RawTensor. Most callers want the typed
// creation functions instead.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T, B](raw, b)
}

// NewRaw allocates an untyped tensor. Most callers want the typed
// creation functions instead.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// Cat concatenates tensors along dim. The registration net's decoder
// uses it for skip connections; the loader uses it to stack views.
//
//	pair := tensor.Cat([]*tensor.Tensor[float32, B]{fixed, moving}, 1)
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	return tensor.Cat(tensors, dim)
}

// Where selects x where cond is true and y elsewhere.
func Where[T DType, B Backend](cond *Tensor[bool, B], x, y *Tensor[T, B]) *Tensor[T, B] {
	return tensor.Where(cond, x, y)
}

// BroadcastShapes resolves two shapes under NumPy broadcasting rules,
// reporting whether either operand actually needs broadcasting.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
