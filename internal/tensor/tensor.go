package tensor

import "fmt"

// Tensor wraps a RawTensor with a static element type T and the
// backend B that executes its operations. The two type parameters
// keep shape-preserving arithmetic type-safe at compile time while
// the RawTensor underneath stays generic for serialization and
// backend dispatch.
//
//	backend := cpu.New()
//	patch := tensor.Zeros[float32](Shape{1, 6, 256, 256}, backend)
//	sum := patch.Add(patch)
type Tensor[T DType, B Backend] struct {
	raw          *RawTensor
	backend      B
	grad         *Tensor[T, B]
	requiresGrad bool
}

// New wraps an existing RawTensor. The caller asserts that the raw
// tensor's dtype matches T; typed accessors panic if it does not.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return &Tensor[T, B]{raw: raw, backend: b}
}

// FromSlice copies a Go slice into a fresh tensor of the given shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}

	var zero T
	raw, err := NewRaw(shape, inferDataType(zero), b.Device())
	if err != nil {
		return nil, err
	}

	t := New[T, B](raw, b)
	copy(t.Data(), data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor[T, B]) Shape() Shape {
	return t.raw.Shape()
}

// DType returns the tensor's data type.
func (t *Tensor[T, B]) DType() DataType {
	return t.raw.DType()
}

// Device returns the device holding the tensor's data.
func (t *Tensor[T, B]) Device() Device {
	return t.raw.Device()
}

// NumElements returns the total number of elements.
func (t *Tensor[T, B]) NumElements() int {
	return t.raw.NumElements()
}

// Raw exposes the underlying RawTensor for backend and serialization
// code that works below the typed API.
func (t *Tensor[T, B]) Raw() *RawTensor {
	return t.raw
}

// Backend returns the backend this tensor executes on.
func (t *Tensor[T, B]) Backend() B {
	return t.backend
}

// Grad returns the gradient accumulated by the last backward pass,
// or nil if none has run.
func (t *Tensor[T, B]) Grad() *Tensor[T, B] {
	return t.grad
}

// SetGrad installs a gradient tensor. The autodiff tape calls this
// after Backward; user code rarely needs it.
func (t *Tensor[T, B]) SetGrad(grad *Tensor[T, B]) {
	t.grad = grad
}

// Detach returns a tensor sharing the same storage but invisible to
// the autodiff tape. Use it to cut gradient flow, for example when a
// predicted warp field should move labels without the label loss
// backpropagating into the registration network:
//
//	warped, _ := warp.Warp(label, field.Detach())
func (t *Tensor[T, B]) Detach() *Tensor[T, B] {
	return &Tensor[T, B]{
		raw:     t.raw,
		backend: t.backend,
	}
}

// Data returns the tensor's storage as a typed slice. No copy is
// made; writes through the slice are writes to the tensor.
func (t *Tensor[T, B]) Data() []T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(t.raw.AsFloat32()).([]T)
	case float64:
		return any(t.raw.AsFloat64()).([]T)
	case int32:
		return any(t.raw.AsInt32()).([]T)
	case int64:
		return any(t.raw.AsInt64()).([]T)
	case uint8:
		return any(t.raw.AsUint8()).([]T)
	case bool:
		return any(t.raw.AsBool()).([]T)
	default:
		panic("unsupported type")
	}
}

// Item returns the value of a scalar tensor. Panics on anything with
// a non-empty shape.
func (t *Tensor[T, B]) Item() T {
	if len(t.Shape()) != 0 || t.NumElements() != 1 {
		panic(fmt.Sprintf("Item() only works for scalar tensors, got shape %v", t.Shape()))
	}
	return t.Data()[0]
}

// flatIndex resolves multi-dimensional indices against the strides,
// panicking on rank mismatch or out-of-range indices.
func (t *Tensor[T, B]) flatIndex(indices []int) int {
	if len(indices) != len(t.Shape()) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.Shape()), len(indices)))
	}

	offset := 0
	strides := t.raw.Strides()
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape()[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.Shape()[i]))
		}
		offset += idx * strides[i]
	}
	return offset
}

// At returns the element at the given indices.
//
//	field := tensor.Zeros[float32](Shape{2, 64, 64}, backend)
//	dy := field.At(1, 12, 40)
func (t *Tensor[T, B]) At(indices ...int) T {
	return t.Data()[t.flatIndex(indices)]
}

// Set writes the element at the given indices.
func (t *Tensor[T, B]) Set(value T, indices ...int) {
	t.Data()[t.flatIndex(indices)] = value
}

// String describes the tensor without printing its contents.
func (t *Tensor[T, B]) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %s", t.raw.DType(), t.raw.Shape(), t.raw.Device())
}

// Clone returns an independent tensor over the same storage. Backend
// operations copy on write, so the clone behaves as a deep copy as
// long as writes go through the backend rather than Data. Gradient
// state does not carry over; the clone starts untracked.
func (t *Tensor[T, B]) Clone() *Tensor[T, B] {
	return &Tensor[T, B]{
		raw:     t.raw.Clone(),
		backend: t.backend,
	}
}

// RequireGrad marks the tensor as a gradient leaf and returns it for
// chaining. Backends that record a tape will track operations on it.
//
//	x := tensor.Ones[float32](Shape{1, 2, 8, 8}, be).RequireGrad()
//	y := be.MulScalar(x.Raw(), float32(2))  // recorded on the tape
//	grads := be.Tape().Backward(seed, be)   // grads[x.Raw()] now set
func (t *Tensor[T, B]) RequireGrad() *Tensor[T, B] {
	t.requiresGrad = true
	return t
}

// RequiresGrad reports whether the tensor participates in gradient
// computation.
func (t *Tensor[T, B]) RequiresGrad() bool {
	return t.requiresGrad
}
