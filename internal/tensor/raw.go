package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Device identifies where a tensor's buffer lives. Only the CPU
// backend exists today; CUDA reserves the slot an accelerator port
// would take.
type Device int

const (
	CPU Device = iota
	CUDA
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	default:
		return "Unknown"
	}
}

// refBuffer is the shared storage behind RawTensor. Clones share the
// buffer and bump the count; backends may write in place only while
// the count is 1.
type refBuffer struct {
	data []byte
	refs atomic.Int32
	mu   sync.Mutex
}

func newRefBuffer(size int) *refBuffer {
	b := &refBuffer{data: make([]byte, size)}
	b.refs.Store(1)
	return b
}

func (b *refBuffer) retain() {
	b.refs.Add(1)
}

func (b *refBuffer) release() {
	if b.refs.Add(-1) == 0 {
		b.mu.Lock()
		b.data = nil
		b.mu.Unlock()
	}
}

// RawTensor is the untyped tensor core: a dtype tag, a shape, and a
// reference-counted byte buffer. The typed Tensor wrapper and the
// backends build on it.
type RawTensor struct {
	buffer *refBuffer
	shape  Shape
	stride []int
	dtype  DataType
	device Device
	offset int
}

// NewRaw allocates a zeroed tensor of the given shape and dtype.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		buffer: newRefBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the tensor's dimensions.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the row-major strides in elements.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the element type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns where the buffer lives.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the element count.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the buffer size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data exposes the raw bytes. Writes are visible through every clone
// of this tensor.
func (r *RawTensor) Data() []byte {
	return r.buffer.data[r.offset:]
}

// view reinterprets the buffer as a typed slice without copying.
func view[T any](r *RawTensor, want DataType) []T {
	if r.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, want))
	}
	data := r.buffer.data[r.offset:]
	//nolint:gosec // zero-copy reinterpretation, length bounded by NumElements
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat32 views the buffer as []float32. Panics on dtype mismatch.
func (r *RawTensor) AsFloat32() []float32 {
	return view[float32](r, Float32)
}

// AsFloat64 views the buffer as []float64. Panics on dtype mismatch.
func (r *RawTensor) AsFloat64() []float64 {
	return view[float64](r, Float64)
}

// AsInt32 views the buffer as []int32. Panics on dtype mismatch.
func (r *RawTensor) AsInt32() []int32 {
	return view[int32](r, Int32)
}

// AsInt64 views the buffer as []int64. Panics on dtype mismatch.
func (r *RawTensor) AsInt64() []int64 {
	return view[int64](r, Int64)
}

// AsUint8 views the buffer as []uint8. Panics on dtype mismatch.
func (r *RawTensor) AsUint8() []uint8 {
	if r.dtype != Uint8 {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, Uint8))
	}
	return r.buffer.data[r.offset:]
}

// AsBool views the buffer as []bool. Panics on dtype mismatch.
func (r *RawTensor) AsBool() []bool {
	return view[bool](r, Bool)
}

// Clone returns a tensor sharing this one's buffer in O(1). Backends
// copy the storage only when a write would be seen through another
// reference.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.retain()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset,
	}
}

// Release drops this reference. The storage is freed when the last
// reference goes.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// IsUnique reports whether no clone shares the buffer, which is what
// licenses a backend to overwrite it in place.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.refs.Load() == 1
}

// ForceNonUnique pins the buffer against in-place writes by holding an
// extra reference until the returned func runs. The autodiff backend
// defers it around recorded operations whose inputs the tape replays.
func (r *RawTensor) ForceNonUnique() func() {
	r.buffer.retain()
	return func() { r.buffer.release() }
}
